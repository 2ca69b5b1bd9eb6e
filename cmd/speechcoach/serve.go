package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/speechcoach/internal/server"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(root.configPath)
			if err != nil {
				return err
			}
			defer p.closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if verify {
				profile, err := p.remote.Profile(ctx, credentials(p.cfg))
				if err != nil {
					return fmt.Errorf("token check failed: %w", err)
				}
				p.logger.Info("Signed in", slog.String("username", profile.Username))
			}

			return serve(ctx, p)
		},
	}
	cmd.Flags().BoolVar(&verify, "verify-token", false, "Check the token against the profile endpoint before serving")
	return cmd
}

func serve(ctx context.Context, p *pipeline) error {
	if !p.cfg.HTTP.Enabled {
		return errors.New("http server is disabled in the configuration")
	}

	httpServer := server.NewHTTPServer(p.cfg.HTTP, p.logger, server.Deps{
		Config:        p.cfg,
		Session:       p.session,
		Notifications: p.notifications,
		Remote:        p.remote,
		Metrics:       p.metrics,
		Gatherer:      p.registry,
	})
	if err := httpServer.Start(); err != nil {
		return err
	}

	p.logger.Info("Service started successfully, waiting for signals...",
		slog.String("session_id", p.session.ID()),
	)
	<-ctx.Done()

	p.logger.Info("Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := httpServer.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop http server: %w", err))
	}
	if err := p.session.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("close session: %w", err))
	}

	stats := p.remote.GetStats()
	p.logger.Info("Final client statistics",
		slog.Uint64("requests", stats.TotalRequests),
		slog.Uint64("failed", stats.FailedRequests),
		slog.Duration("avg_response_time", stats.AvgResponseTime),
	)
	p.logger.Info("Service stopped")

	return errors.Join(errs...)
}
