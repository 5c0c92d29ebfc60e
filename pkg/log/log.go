// Package log initialize and configure a logrus logger.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const (
	outputStdout = "stdout"
	outputStderr = "stderr"
	outputTest   = "test"
	outputSyslog = "syslog"
)

// New initialize logrus and return a new logger.
func New(logLevel string, logServer string, logOutput string) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	output, hook, err := getOutput(logServer, logOutput)
	if err != nil {
		return nil, err
	}

	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}

	log := &logrus.Logger{
		Out:       output,
		Formatter: formatter,
		Hooks:     make(logrus.LevelHooks),
		Level:     level,
	}

	if hook != nil {
		log.Hooks.Add(hook)
	}

	return log, nil
}

// IsStdout tells if the given output setting writes logs to stdout, which
// is reserved for the MCP protocol when serving on stdio.
func IsStdout(logOutput string) bool {
	return logOutput == outputStdout
}

// getOutput returns where logs go, and the hook an output needs. The test
// output discards everything but keeps entries in a test hook.
func getOutput(logServer string, logOutput string) (io.Writer, logrus.Hook, error) {
	switch logOutput {
	case outputStdout:
		return os.Stdout, nil, nil
	case outputTest:
		_, hook := test.NewNullLogger()
		return io.Discard, hook, nil
	case outputSyslog:
		hook, err := syslogHook(logServer)
		if err != nil {
			return nil, nil, err
		}
		return io.Discard, hook, nil
	default:
		return os.Stderr, nil, nil
	}
}
