package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/stash/pkg/maintenance"
	"github.com/dmitrymomot/stash/pkg/redis"
)

var errNoRedis = errors.New("invalidate: redis.url is not configured")

func invalidateCmd(configPath *string) *cobra.Command {
	var key bool

	cmd := &cobra.Command{
		Use:   "invalidate <tag>",
		Short: "Broadcast a tag invalidation to running instances",
		Long:  "Publish an invalidation signal on the Redis channel every running instance subscribes to. With --key the argument is a cache key instead of a tag.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*configPath)
			if err != nil {
				return err
			}
			if cfg.Redis.URL == "" {
				return errNoRedis
			}

			ctx := cmd.Context()
			client, err := redis.Open(ctx, cfg.Redis.URL, cfg.Redis.Options()...)
			if err != nil {
				return err
			}
			defer func() { _ = redis.Shutdown(client)(ctx) }()

			sig := maintenance.Signal{Kind: maintenance.SignalTag, Value: args[0]}
			if key {
				sig.Kind = maintenance.SignalKey
			}

			signals := maintenance.NewRedisSignals(client, cfg.Maintenance.Channel)
			if err := signals.Publish(ctx, sig); err != nil {
				return fmt.Errorf("publish %s: %w", sig, err)
			}
			log.Info("invalidation published", slog.String("signal", sig.String()), slog.String("channel", cfg.Maintenance.Channel))
			return nil
		},
	}

	cmd.Flags().BoolVar(&key, "key", false, "Treat the argument as a cache key")

	return cmd
}
