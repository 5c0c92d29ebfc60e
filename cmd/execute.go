package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bpineau/vibegit/config"
	vlog "github.com/bpineau/vibegit/pkg/log"
	"github.com/bpineau/vibegit/pkg/run"
	"github.com/bpineau/vibegit/pkg/vibe"
)

const appName = "vibe-git"

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   appName,
		Short: "Auto-commit coding sessions to disposable git branches",
		Long: "vibe-git is an MCP server watching a git working tree: it auto-commits every change\n" +
			"to a vibe-<timestamp> branch, then squashes, rebases, pushes and opens a pull request on request.\n" +
			"Without subcommand, it serves the MCP tools on stdio.",

		SilenceUsage: true,
		RunE:         serve,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools on stdio",
		RunE:  serve,
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the vibe status of the current repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := newConfig()
			if err != nil {
				return err
			}

			res := vibe.New(conf, nil, nil).Status(context.Background())
			cmd.Println(res.String())
			if res.Err != nil {
				return res.Err
			}
			return nil
		},
	}
)

// Execute adds all child commands to the root command and sets their flags.
func Execute() error {
	return RootCmd.Execute()
}

func serve(cmd *cobra.Command, args []string) error {
	if vlog.IsStdout(viper.GetString("log-output")) {
		return fmt.Errorf("stdout is reserved for the MCP protocol, pick another --log-output")
	}

	conf, err := newConfig()
	if err != nil {
		return err
	}

	return run.Run(conf, version)
}

func newConfig() (*config.VgConfig, error) {
	logger, err := vlog.New(viper.GetString("log-level"), viper.GetString("log-server"), viper.GetString("log-output"))
	if err != nil {
		return nil, fmt.Errorf("failed to create the logger: %v", err)
	}

	conf := &config.VgConfig{
		Logger:          logger,
		RepoDir:         viper.GetString("repo-dir"),
		Remote:          viper.GetString("remote"),
		BaseBranches:    splitList(viper.GetStringSlice("base-branches")),
		Debounce:        viper.GetDuration("debounce"),
		CommitPoll:      viper.GetDuration("commit-poll"),
		SettleDelay:     viper.GetDuration("settle-delay"),
		ShutdownTimeout: viper.GetDuration("shutdown-timeout"),
		StaleAfter:      viper.GetDuration("stale-after"),
		CommandTimeout:  viper.GetDuration("command-timeout"),
		GitBinary:       viper.GetString("git-binary"),
		GhBinary:        viper.GetString("gh-binary"),
		HealthPort:      viper.GetInt("healthcheck-port"),
		NoMirror:        viper.GetBool("no-mirror"),
	}

	if err := conf.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize the configuration: %v", err)
	}

	return conf, nil
}

// splitList accepts both repeated flags and comma separated env values
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
