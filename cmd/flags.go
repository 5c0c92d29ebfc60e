package cmd

import (
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	logLevel     string
	logOutput    string
	logServer    string
	repoDir      string
	remote       string
	baseBranches []string
	debounce     time.Duration
	commitPoll   time.Duration
	settleDelay  time.Duration
	shutdownTout time.Duration
	staleAfter   time.Duration
	commandTout  time.Duration
	gitBinary    string
	ghBinary     string
	healthP      int
	noMirror     bool
)

func bindPFlag(key string, cmd string) {
	if err := viper.BindPFlag(key, RootCmd.PersistentFlags().Lookup(cmd)); err != nil {
		log.Fatal("Failed to bind cli argument:", err)
	}
}

func init() {
	cobra.OnInitialize(loadConfigFile)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(statusCmd)

	defaultCfg := "/etc/" + appName + "/" + appName + ".yaml"
	RootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultCfg, "Configuration file")

	RootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "v", "info", "Log level")
	bindPFlag("log-level", "log-level")

	RootCmd.PersistentFlags().StringVarP(&logOutput, "log-output", "o", "stderr", "Log output (stderr, syslog, test)")
	bindPFlag("log-output", "log-output")

	RootCmd.PersistentFlags().StringVarP(&logServer, "log-server", "r", "", "Log server (if using syslog)")
	bindPFlag("log-server", "log-server")

	RootCmd.PersistentFlags().StringVarP(&repoDir, "repo-dir", "C", "", "Where to look for the repository (defaults to the current directory)")
	bindPFlag("repo-dir", "repo-dir")

	RootCmd.PersistentFlags().StringVarP(&remote, "remote", "R", "origin", "Git remote to pull from and push to")
	bindPFlag("remote", "remote")

	RootCmd.PersistentFlags().StringSliceVarP(&baseBranches, "base-branches", "b", []string{"main", "master"}, "Candidate base branches, by preference")
	bindPFlag("base-branches", "base-branches")

	RootCmd.PersistentFlags().DurationVarP(&debounce, "debounce", "d", time.Second, "Minimum interval between two auto-commits")
	bindPFlag("debounce", "debounce")

	RootCmd.PersistentFlags().DurationVar(&commitPoll, "commit-poll", time.Second, "Auto-commit worker liveness check interval")
	bindPFlag("commit-poll", "commit-poll")

	RootCmd.PersistentFlags().DurationVar(&settleDelay, "settle-delay", 2*time.Second, "Pause after running commit hooks on the squashed commit")
	bindPFlag("settle-delay", "settle-delay")

	RootCmd.PersistentFlags().DurationVar(&shutdownTout, "shutdown-timeout", 2*time.Second, "How long to wait for the file watcher to stop")
	bindPFlag("shutdown-timeout", "shutdown-timeout")

	RootCmd.PersistentFlags().DurationVar(&staleAfter, "stale-after", 24*time.Hour, "Age after which a persisted session is dropped")
	bindPFlag("stale-after", "stale-after")

	RootCmd.PersistentFlags().DurationVarP(&commandTout, "command-timeout", "t", 0, "Timeout for each git or gh invocation (0 for none)")
	bindPFlag("command-timeout", "command-timeout")

	RootCmd.PersistentFlags().StringVar(&gitBinary, "git-binary", "git", "Git executable")
	bindPFlag("git-binary", "git-binary")

	RootCmd.PersistentFlags().StringVar(&ghBinary, "gh-binary", "gh", "GitHub CLI executable, used to open pull requests")
	bindPFlag("gh-binary", "gh-binary")

	RootCmd.PersistentFlags().IntVarP(&healthP, "healthcheck-port", "p", 0, "Port for answering healthchecks on /health url")
	bindPFlag("healthcheck-port", "healthcheck-port")

	RootCmd.PersistentFlags().BoolVar(&noMirror, "no-mirror", false, "Don't mirror the session under .git")
	bindPFlag("no-mirror", "no-mirror")
}
