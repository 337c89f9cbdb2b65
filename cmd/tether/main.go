// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Command tether runs and administers Kafka and Redis connections managed
// by the tether libraries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xmidt-org/tether/cmd/tether/internal/config"
	"github.com/xmidt-org/tether/cmd/tether/internal/logging"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// defaultConnectTimeout bounds the wait for a connection in the one-shot
// admin commands.
const defaultConnectTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// app carries the state shared by the subcommands.
type app struct {
	configPath     string
	logLevel       string
	logJSON        bool
	connectTimeout time.Duration

	cfg config.Config
}

// load reads the configuration and sets up logging. Flags override the
// configuration file and the environment.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = a.logJSON
	}

	logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		JSONOutput: cfg.Log.JSON,
		Output:     cmd.ErrOrStderr(),
	})

	a.cfg = cfg
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "tether",
		Short: "Keep Kafka and Redis connections alive",
		Long: `tether holds connections to Kafka brokers and Redis servers, replacing
them when they are lost. The serve command exposes them over HTTP; the
other commands administer topics and cached data.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load(cmd)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf(
		"tether version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (.yaml, .toml or .json)")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	pf.BoolVar(&a.logJSON, "log-json", false, "write logs as JSON")
	pf.DurationVar(&a.connectTimeout, "connect-timeout", defaultConnectTimeout, "how long admin commands wait for a connection")

	root.AddCommand(
		newVersionCmd(),
		newServeCmd(a),
		newTopicsCmd(a),
		newCacheCmd(a),
	)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tether %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
}
