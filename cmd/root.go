package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"fiszki/internal/config"
	"fiszki/internal/logger"
	"fiszki/internal/openrouter"
)

type rootOptions struct {
	configPath string
}

// Execute runs the CLI with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "fiszki",
		Short:         "Fiszki AI flashcard generator",
		Long:          "fiszki turns source text into flashcard proposals using an OpenRouter-compatible chat completion API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML configuration file (optional)")

	root.AddCommand(
		newServeCommand(opts),
		newGenerateCommand(opts),
		newChatCommand(opts),
		newMigrateCommand(opts),
	)
	return root
}

// loadConfig reads the file when one is given; otherwise defaults plus environment.
func (o *rootOptions) loadConfig() (config.Config, error) {
	if o.configPath == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(o.configPath)
}

func setupLogger(cfg config.Config) (*slog.Logger, error) {
	log, err := logger.Init(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

func newAIClient(cfg config.Config) (*openrouter.Client, error) {
	client, err := openrouter.New(cfg.OpenRouter.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create openrouter client: %w", err)
	}
	return client, nil
}
