package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/dlport/internal/admin"
	"github.com/danmuck/dlport/internal/auth"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Hold the channel open and serve the admin HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Admin.Listen = listen
			}
			if a.cfg.Admin.Listen == "" {
				return errors.New("serve: no admin listen address (set [admin] listen or --listen)")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "admin listen address, e.g. 127.0.0.1:7070")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	client, closeFn, err := a.client(ctx, false)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := client.Manager().Start(ctx); err != nil {
		log.Warn().Err(err).Msg("peer unavailable, retrying")
	}
	srv := admin.New("dlportctl", a.cfg.Admin.Listen, a.cfg.Admin.CorsOrigins, client)
	srv.RequireToken(auth.FromSecret(a.cfg.Admin.Token))
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
