// Package flashcards turns source text into flashcard proposals through the AI provider
// and records every generation and AI failure.
package flashcards

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"fiszki/internal/openrouter"
)

const maxLoggedMessageChars = 1000

// ChatClient is the part of *openrouter.Client the service needs.
type ChatClient interface {
	SendStructuredChat(ctx context.Context, req openrouter.StructuredChatRequest) (json.RawMessage, error)
	DefaultModel() string
}

// Service generates flashcard proposals.
type Service struct {
	client ChatClient
	store  Store
	logger *slog.Logger
	model  string
	newID  func() uuid.UUID
}

type ServiceOption func(*Service)

// WithModel overrides the client's default model for generation requests.
func WithModel(model string) ServiceOption {
	return func(s *Service) { s.model = model }
}

func NewService(client ChatClient, store Store, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		client: client,
		store:  store,
		logger: logger.With(slog.String("component", "flashcards")),
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Propose asks the provider for proposals and validates them. Errors wrap ErrAIProvider
// (provider failure or *OutputError) or ErrAIMisconfigured.
func (s *Service) Propose(ctx context.Context, input string) ([]ProposalDraft, error) {
	raw, err := s.client.SendStructuredChat(ctx, openrouter.StructuredChatRequest{
		Model: s.model,
		Messages: []openrouter.Message{
			{Role: openrouter.RoleSystem, Content: systemPrompt},
			{Role: openrouter.RoleUser, Content: input},
		},
		SchemaName: SchemaName,
		Schema:     ProposalSchema(),
	})
	if err != nil {
		switch openrouter.KindOf(err) {
		case openrouter.KindValidation, openrouter.KindConfig:
			return nil, fmt.Errorf("%w: %w", ErrAIMisconfigured, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrAIProvider, err)
		}
	}

	return parseProposals(raw)
}

// Generate validates input, proposes flashcards and persists the generation with its
// proposals. AI failures are recorded in the error log before being returned.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, input string) (*Generation, error) {
	cmd, err := GenerateCommand{Input: input}.Normalize()
	if err != nil {
		return nil, err
	}

	drafts, err := s.Propose(ctx, cmd.Input)
	if err != nil {
		s.recordFailure(ctx, userID, err)
		return nil, err
	}

	gen := &Generation{
		ID:        s.newID(),
		UserID:    userID,
		Input:     cmd.Input,
		Model:     s.modelName(),
		Proposals: make([]Proposal, 0, len(drafts)),
	}
	for _, d := range drafts {
		gen.Proposals = append(gen.Proposals, Proposal{
			ID:           s.newID(),
			GenerationID: gen.ID,
			Index:        d.Index,
			Front:        d.Front,
			Back:         d.Back,
		})
	}

	if err := s.store.SaveGeneration(ctx, gen); err != nil {
		return nil, fmt.Errorf("save generation: %w", err)
	}

	s.logger.Info("generation stored",
		slog.String("generation_id", gen.ID.String()),
		slog.String("user_id", userID.String()),
		slog.String("model", gen.Model),
		slog.Int("input_chars", len([]rune(gen.Input))),
	)
	return gen, nil
}

func (s *Service) modelName() string {
	if s.model != "" {
		return s.model
	}
	return s.client.DefaultModel()
}

// recordFailure writes AI failures to the error log. A failed write is only logged.
func (s *Service) recordFailure(ctx context.Context, userID uuid.UUID, cause error) {
	code, message, ok := classifyFailure(cause)
	if !ok {
		return
	}

	s.logger.Warn("generation failed",
		slog.String("user_id", userID.String()),
		slog.String("code", code),
		slog.String("kind", string(openrouter.KindOf(cause))),
		slog.Any("error", cause),
	)

	entry := GenerationErrorLog{UserID: userID, Code: code, Message: truncate(message, maxLoggedMessageChars)}
	if err := s.store.LogGenerationError(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to log generation error", slog.Any("error", err))
	}
}

func classifyFailure(err error) (code, message string, ok bool) {
	var outputErr *OutputError
	if errors.As(err, &outputErr) {
		return ErrorCodeAIOutputValidation, outputErr.Message, true
	}
	if !errors.Is(err, ErrAIProvider) {
		return "", "", false
	}

	var clientErr *openrouter.Error
	if errors.As(err, &clientErr) {
		return ErrorCodeAIProvider, clientErr.Error(), true
	}
	return ErrorCodeAIProvider, err.Error(), true
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
