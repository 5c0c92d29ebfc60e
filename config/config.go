package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// VgConfig is the configuration struct, passed to the workflow and server
type VgConfig struct {
	// Logger should be used to send all logs
	Logger *logrus.Logger

	// RepoDir is where the repository lookup starts (defaults to cwd)
	RepoDir string

	// Remote is the git remote we pull from and push to
	Remote string

	// BaseBranches are the candidate base branches, by preference
	BaseBranches []string

	// Debounce is the minimum interval between two commit signals
	Debounce time.Duration

	// CommitPoll bounds the auto-commit worker wait on its signal
	CommitPoll time.Duration

	// SettleDelay is the pause after the final hook-running amend
	SettleDelay time.Duration

	// ShutdownTimeout bounds the wait on the watcher and worker
	ShutdownTimeout time.Duration

	// StaleAfter is the age after which a persisted session is dropped
	StaleAfter time.Duration

	// CommandTimeout bounds every git and gh call. Zero means no timeout.
	CommandTimeout time.Duration

	// GitBinary and GhBinary are the external tools we drive
	GitBinary string
	GhBinary  string

	// HealthPort is the facultative healthcheck port
	HealthPort int

	// NoMirror disables the on-disk session mirror
	NoMirror bool
}

// Init fills defaults and validates the configuration
func (c *VgConfig) Init() error {
	if c.Logger == nil {
		return fmt.Errorf("a logger is required")
	}

	if c.RepoDir == "" {
		dir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get the current directory: %v", err)
		}
		c.RepoDir = dir
	}

	if c.Remote == "" {
		c.Remote = "origin"
	}

	var bases []string
	for _, b := range c.BaseBranches {
		if b = strings.TrimSpace(b); b != "" {
			bases = append(bases, b)
		}
	}
	if len(bases) == 0 {
		bases = []string{"main", "master"}
	}
	c.BaseBranches = bases

	if c.GitBinary == "" {
		c.GitBinary = "git"
	}
	if c.GhBinary == "" {
		c.GhBinary = "gh"
	}

	durations := map[string]time.Duration{
		"debounce":         c.Debounce,
		"commit-poll":      c.CommitPoll,
		"settle-delay":     c.SettleDelay,
		"shutdown-timeout": c.ShutdownTimeout,
		"stale-after":      c.StaleAfter,
		"command-timeout":  c.CommandTimeout,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s can't be negative (got %s)", name, d)
		}
	}

	if c.CommitPoll == 0 {
		c.CommitPoll = time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 2 * time.Second
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = 24 * time.Hour
	}

	if c.HealthPort < 0 || c.HealthPort > 65535 {
		return fmt.Errorf("invalid healthcheck port %d", c.HealthPort)
	}

	c.Logger.Debugf("Configuration initialized for %s", c.RepoDir)
	return nil
}
