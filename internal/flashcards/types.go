package flashcards

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	ProposalCount  = 3
	MinInputLength = 1000
	MaxInputLength = 10000
	MaxFrontLength = 200
	MaxBackLength  = 500
)

// Error codes stored in generation_error_logs.
const (
	ErrorCodeAIProvider         = "AI_PROVIDER_ERROR"
	ErrorCodeAIOutputValidation = "AI_OUTPUT_VALIDATION_ERROR"
)

var (
	// ErrAIProvider means the provider failed or returned unusable proposals. The caller
	// may retry later.
	ErrAIProvider = errors.New("AI generation failed")
	// ErrAIMisconfigured means the request never reached the provider because the client
	// or the request it was given is invalid.
	ErrAIMisconfigured = errors.New("AI client is misconfigured")
	ErrInvalidCommand  = errors.New("invalid generate command")
)

// ProposalDraft is a validated proposal that has not been persisted yet.
type ProposalDraft struct {
	Index int    `json:"index" validate:"min=0,max=2"`
	Front string `json:"front" validate:"min=1,max=200"`
	Back  string `json:"back" validate:"min=1,max=500"`
}

type Proposal struct {
	ID           uuid.UUID `json:"id"`
	GenerationID uuid.UUID `json:"-"`
	Index        int       `json:"index"`
	Front        string    `json:"front"`
	Back         string    `json:"back"`
}

// Generation is one AI run over a user's input together with its proposals.
type Generation struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Input     string
	Model     string
	CreatedAt time.Time
	Proposals []Proposal
}

// GenerationErrorLog is a recorded AI failure. GenerationID is nil when the failure
// happened before a generation row existed.
type GenerationErrorLog struct {
	UserID       uuid.UUID
	GenerationID *uuid.UUID
	Code         string
	Message      string
}

// Store persists generations and failure logs.
type Store interface {
	// SaveGeneration stores the generation and all of its proposals atomically and sets
	// CreatedAt.
	SaveGeneration(ctx context.Context, gen *Generation) error
	LogGenerationError(ctx context.Context, entry GenerationErrorLog) error
}
