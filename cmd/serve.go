package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"fiszki/internal/config"
	"fiszki/internal/flashcards"
	"fiszki/internal/ratelimit"
	"fiszki/internal/server"
	"fiszki/internal/store/postgres"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var overridePort int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			if overridePort != 0 {
				if overridePort <= 0 || overridePort > 65535 {
					return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
				}
				cfg.Server.Port = overridePort
			}

			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().IntVar(&overridePort, "port", 0, "override server port")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	log, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	client, err := newAIClient(cfg)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	limiter, closeLimiter, err := openLimiter(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLimiter()

	svc := flashcards.NewService(client, store, log)

	srv, err := server.New(cfg, svc, limiter, log)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

// openStore uses Postgres when a DSN is configured and process memory otherwise.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (flashcards.Store, func(), error) {
	if cfg.Postgres.DSN == "" {
		log.Warn("postgres.dsn is not set, generations are kept in memory only")
		return flashcards.NewMemoryStore(), func() {}, nil
	}

	store, err := postgres.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func openLimiter(ctx context.Context, cfg config.Config, log *slog.Logger) (ratelimit.Limiter, func(), error) {
	if cfg.Redis.URL == "" {
		return ratelimit.Noop{}, func() {}, nil
	}

	client, err := ratelimit.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	log.Info("rate limiting enabled",
		slog.Int("generate_limit", cfg.Redis.GenerateLimit),
		slog.Duration("window", cfg.Redis.Window),
	)
	return ratelimit.NewRedis(client, cfg.Redis.GenerateLimit, cfg.Redis.Window), func() { _ = client.Close() }, nil
}
