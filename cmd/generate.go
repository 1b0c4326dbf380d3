package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fiszki/internal/flashcards"
)

func newGenerateCommand(root *rootOptions) *cobra.Command {
	var (
		inputPath string
		model     string
		userID    string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate flashcard proposals from a text file or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			log, err := setupLogger(cfg)
			if err != nil {
				return err
			}

			input, err := readInput(inputPath, cmd.InOrStdin())
			if err != nil {
				return err
			}

			uid := cfg.Server.DevUserID
			if userID != "" {
				uid = userID
			}
			user, err := uuid.Parse(uid)
			if err != nil {
				return fmt.Errorf("parse user id %q: %w", uid, err)
			}

			client, err := newAIClient(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, closeStore, err := openStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			var svcOpts []flashcards.ServiceOption
			if model != "" {
				svcOpts = append(svcOpts, flashcards.WithModel(model))
			}
			svc := flashcards.NewService(client, store, log, svcOpts...)

			gen, err := svc.Generate(ctx, user, input)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"generation_id": gen.ID,
				"proposals":     gen.Proposals,
			})
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "-", "path to the source text, - for stdin")
	cmd.Flags().StringVar(&model, "model", "", "override the configured model")
	cmd.Flags().StringVar(&userID, "user", "", "user id to attribute the generation to")
	return cmd
}

func readInput(path string, stdin io.Reader) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("input file %q does not exist", path)
		}
		return "", fmt.Errorf("read input file %q: %w", path, err)
	}
	return string(data), nil
}
