//go:build windows
// +build windows

package log

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

func syslogHook(logServer string) (logrus.Hook, error) {
	return nil, fmt.Errorf("syslog output isn't supported on Windows, use stderr")
}
