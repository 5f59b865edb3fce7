package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/stash/internal/config"
	"github.com/dmitrymomot/stash/internal/httpapi"
	"github.com/dmitrymomot/stash/pkg/logger"
)

func serveCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the cache service",
		Long:  "Run the HTTP cache service with its maintenance scheduler until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Address = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := build(ctx, cfg, log)
			if err != nil {
				return err
			}

			if err := s.scheduler.Start(ctx); err != nil {
				_ = s.close(context.WithoutCancel(ctx))
				return fmt.Errorf("start maintenance: %w", err)
			}

			opts := []httpapi.Option{
				httpapi.WithLogger(log),
				httpapi.WithChecks(s.checks),
			}
			if s.upstream != nil {
				opts = append(opts, httpapi.WithUpstream(s.upstream))
			}
			if s.sessions != nil {
				opts = append(opts, httpapi.WithSessions(s.sessions, cfg.Session.Header, cfg.Session.Lifetime))
			}
			if s.profiles != nil {
				opts = append(opts, httpapi.WithProfiles(s.profiles))
			}
			if s.metrics != nil {
				opts = append(opts, httpapi.WithMetrics(s.metrics))
			}
			api := httpapi.New(s.cache, s.scheduler, opts...)

			ln, err := net.Listen("tcp", cfg.HTTP.Address)
			if err != nil {
				_ = s.scheduler.Stop(context.WithoutCancel(ctx))
				_ = s.close(context.WithoutCancel(ctx))
				return fmt.Errorf("listen %s: %w", cfg.HTTP.Address, err)
			}

			log.Info("stash started",
				slog.String("addr", ln.Addr().String()),
				slog.String("default_backend", cfg.Cache.DefaultBackend),
				slog.String("persistent", cfg.Cache.Persistent),
				slog.String("session", cfg.Cache.Session),
			)

			return httpapi.Serve(ctx, ln, api.Router(), cfg.HTTP, log,
				s.scheduler.Shutdown(),
				func(context.Context) error {
					s.retriever.Wait()
					return nil
				},
				s.close,
			)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides http.address")

	return cmd
}

// setup loads the configuration and builds the logger from it.
func setup(path string) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.Log, httpapi.RequestIDExtractor(), logger.CacheKeyExtractor())
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}
