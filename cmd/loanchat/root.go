package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/comigor/loanchat-go/internal/auth"
	"github.com/comigor/loanchat-go/internal/config"
	"github.com/comigor/loanchat-go/internal/logger"
	"github.com/comigor/loanchat-go/internal/orchestrator"
	"github.com/comigor/loanchat-go/internal/tokenstore"
)

// app holds the process-scoped collaborators shared by every subcommand.
type app struct {
	cfg    *config.Config
	tokens tokenstore.Store
	client *orchestrator.Client
	auth   *auth.Manager
}

func newApp(cfg *config.Config) *app {
	a := &app{cfg: cfg, tokens: tokenstore.Open(cfg.TokenStore)}
	a.client = orchestrator.New(cfg.API, func() string { return a.auth.Token() })
	a.auth = auth.NewManager(a.client, a.tokens)
	return a
}

func (a *app) Close() error {
	if c, ok := a.tokens.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		a          *app
	)

	root := &cobra.Command{
		Use:   "loanchat",
		Short: "Terminal client for the loan origination assistant",
		Long: `loanchat talks to the loan orchestrator: sign in, chat your way through the
application stages and upload your salary slip when asked.

Quick Start:
  loanchat signup --email you@example.com --name "Your Name"
  loanchat login -u you@example.com
  loanchat chat`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				if err := os.Setenv("CONFIG_PATH", configPath); err != nil {
					return err
				}
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			logger.Configure(cmd.ErrOrStderr(), cfg.Log.Format)
			logger.SetLevel(cfg.Log.Level)

			a = newApp(cfg)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a == nil {
				return nil
			}
			return a.Close()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml or ~/.loanchat/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	getApp := func() *app { return a }
	root.AddCommand(
		newChatCmd(getApp),
		newLoginCmd(getApp),
		newLogoutCmd(getApp),
		newWhoamiCmd(getApp),
		newSignupCmd(getApp),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "loanchat %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
