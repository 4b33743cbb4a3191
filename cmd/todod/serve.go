package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/todos/httpapi"
	"github.com/jonwraymond/todos/observe"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the todo API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := newObservability(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				if err := c.Close(shutdownCtx); err != nil {
					c.log.Warn(shutdownCtx, "shutdown", observe.Err(err))
				}
			}()

			c.buildAuth(cfg)
			if err := c.buildTasks(ctx, cfg); err != nil {
				return err
			}

			srv := &http.Server{
				Addr: cfg.Server.Addr,
				Handler: httpapi.NewRouter(httpapi.Config{
					Gate:               c.gate,
					Tasks:              c.tasks,
					Health:             c.health,
					Metrics:            c.obs.MetricsHandler(),
					Logger:             c.log,
					CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
					ExposeAuthorizer:   cfg.Server.ExposeAuthorizer,
				}),
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
			}
			return run(ctx, srv, c.log)
		},
	}
}

// run serves until ctx is done, then drains in-flight requests.
func run(ctx context.Context, srv *http.Server, log observe.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", observe.Field{Key: "addr", Value: srv.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
