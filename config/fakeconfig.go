package config

import (
	"time"

	"github.com/bpineau/vibegit/pkg/log"
)

// FakeConfig returns a configuration struct for unit tests: no settle
// delay, short timeouts, logs discarded.
func FakeConfig(repoDir string) *VgConfig {
	logger, _ := log.New("debug", "", "test")

	return &VgConfig{
		Logger:          logger,
		RepoDir:         repoDir,
		Remote:          "origin",
		BaseBranches:    []string{"main", "master"},
		Debounce:        0,
		CommitPoll:      50 * time.Millisecond,
		SettleDelay:     0,
		ShutdownTimeout: time.Second,
		StaleAfter:      24 * time.Hour,
		GitBinary:       "git",
		GhBinary:        "gh",
	}
}
