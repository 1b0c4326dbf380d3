package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"fiszki/internal/openrouter"
)

func newChatCommand(root *rootOptions) *cobra.Command {
	var (
		model       string
		system      string
		temperature float64
		maxTokens   int
		schemaPath  string
		schemaName  string
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a single chat message to the provider and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if _, err := setupLogger(cfg); err != nil {
				return err
			}

			client, err := newAIClient(cfg)
			if err != nil {
				return err
			}

			var messages []openrouter.Message
			if system != "" {
				messages = append(messages, openrouter.Message{Role: openrouter.RoleSystem, Content: system})
			}
			messages = append(messages, openrouter.Message{Role: openrouter.RoleUser, Content: strings.Join(args, " ")})

			params := &openrouter.ModelParams{}
			if cmd.Flags().Changed("temperature") {
				params.Temperature = &temperature
			}
			if cmd.Flags().Changed("max-tokens") {
				params.MaxTokens = &maxTokens
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if schemaPath != "" {
				data, err := os.ReadFile(schemaPath)
				if err != nil {
					return fmt.Errorf("read schema file %q: %w", schemaPath, err)
				}
				if !json.Valid(data) {
					return fmt.Errorf("schema file %q is not valid JSON", schemaPath)
				}

				raw, err := client.SendStructuredChat(ctx, openrouter.StructuredChatRequest{
					Model:      model,
					Messages:   messages,
					Params:     params,
					SchemaName: schemaName,
					Schema:     json.RawMessage(data),
				})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(raw))
				return err
			}

			resp, err := client.SendChat(ctx, openrouter.ChatRequest{Model: model, Messages: messages, Params: params})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, resp.Content())
			return err
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "model to use instead of the configured default")
	cmd.Flags().StringVar(&system, "system", "", "system prompt")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature (0-2)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "maximum completion tokens")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "path to a JSON Schema; the reply is requested as structured output")
	cmd.Flags().StringVar(&schemaName, "schema-name", "response", "name of the structured output schema")
	return cmd
}
