package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/comigor/loanchat-go/internal/apperr"
	"github.com/comigor/loanchat-go/internal/chat"
	"github.com/comigor/loanchat-go/internal/logger"
	"github.com/comigor/loanchat-go/internal/metrics"
	"github.com/comigor/loanchat-go/internal/repl"
	"github.com/comigor/loanchat-go/internal/upload"
)

func newChatCmd(getApp func() *app) *cobra.Command {
	var (
		metricsListen string
		width         int
		height        int
		resume        string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive loan conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Nothing protected is shown until the auth session has settled.
			a.auth.Resolve(ctx)

			policy := upload.DefaultPolicy()
			if a.cfg.Upload.MaxBytes > 0 {
				policy.MaxBytes = a.cfg.Upload.MaxBytes
			}
			conv, err := chat.Open(a.auth, a.client, chat.Options{Policy: policy})
			switch {
			case errors.Is(err, apperr.ErrUnauthenticated):
				return errors.New("not logged in; run `loanchat login` first")
			case err != nil:
				return err
			}

			if resume != "" {
				if err := conv.Resume(ctx, resume); err != nil {
					return fmt.Errorf("resume %s: %w", resume, err)
				}
			}

			listen := a.cfg.Metrics.Listen
			if metricsListen != "" {
				listen = metricsListen
			}
			if listen != "" {
				metricsCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				go func() {
					if err := metrics.Serve(metricsCtx, listen); err != nil {
						logger.L.Error("metrics server failed", "error", err)
					}
				}()
			}

			user := a.auth.Snapshot().User
			fmt.Fprintf(cmd.OutOrStdout(), "Hi %s!\n", user.FullName)

			loop := &repl.Loop{
				In:    cmd.InOrStdin(),
				Out:   cmd.OutOrStdout(),
				Conv:   conv,
				Width:  width,
				Height: height,
			}
			if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "expose Prometheus metrics on this address (e.g. :9464)")
	cmd.Flags().IntVar(&width, "width", 80, "wrap messages at this many columns")
	cmd.Flags().IntVar(&height, "height", 20, "lines shown by /transcript")
	cmd.Flags().StringVar(&resume, "resume", "", "continue an existing conversation by id")
	return cmd
}
