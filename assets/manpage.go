//go:build ignore
// +build ignore

package main

import (
	"compress/gzip"
	"log"
	"os"

	"github.com/spf13/cobra/doc"

	"github.com/bpineau/vibegit/cmd"
)

func main() {
	header := &doc.GenManHeader{
		Title:   "VIBE-GIT",
		Section: "1",
		Source:  "vibe-git",
	}

	f, err := os.Create("vibe-git.1.gz")
	if err != nil {
		log.Fatal(err)
	}

	zw := gzip.NewWriter(f)

	if err = doc.GenMan(cmd.RootCmd, header, zw); err != nil {
		log.Fatal(err)
	}

	if err = zw.Flush(); err != nil {
		log.Fatal(err)
	}

	if err = zw.Close(); err != nil {
		log.Fatal(err)
	}

	if err = f.Close(); err != nil {
		log.Fatal(err)
	}
}
