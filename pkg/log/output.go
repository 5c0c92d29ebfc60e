//go:build !windows
// +build !windows

package log

import (
	"fmt"
	"log/syslog"

	"github.com/sirupsen/logrus"
	ls "github.com/sirupsen/logrus/hooks/syslog"
)

func syslogHook(logServer string) (logrus.Hook, error) {
	if logServer == "" {
		return nil, fmt.Errorf("syslog output needs a log server (ie. 127.0.0.1:514)")
	}

	hook, err := ls.NewSyslogHook("udp", logServer, syslog.LOG_INFO, "vibe-git")
	if err != nil {
		return nil, fmt.Errorf("failed to hook syslog output: %v", err)
	}

	return hook, nil
}
