package flashcards

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// GenerateCommand is the body of a generate request.
type GenerateCommand struct {
	Input string `json:"input" validate:"min=1000,max=10000"`
}

// ValidationError describes the first invalid field of a GenerateCommand.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidCommand
}

// Normalize trims the input and checks its length.
func (c GenerateCommand) Normalize() (GenerateCommand, error) {
	out := GenerateCommand{Input: strings.TrimSpace(c.Input)}
	if err := validate.Struct(out); err != nil {
		return GenerateCommand{}, &ValidationError{
			Field:   "input",
			Message: fmt.Sprintf("input must be between %d and %d characters after trimming", MinInputLength, MaxInputLength),
		}
	}
	return out, nil
}

// OutputError means the provider answered but the proposals break the business rules.
// It is reported to callers as ErrAIProvider.
type OutputError struct {
	Message string
	Err     error
}

func (e *OutputError) Error() string {
	return e.Message
}

func (e *OutputError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAIProvider}
	}
	return []error{ErrAIProvider, e.Err}
}

type wireProposal struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type wireDocument struct {
	Proposals []wireProposal `json:"proposals"`
}

// parseProposals decodes the structured output and normalizes it into exactly
// ProposalCount trimmed drafts.
func parseProposals(raw json.RawMessage) ([]ProposalDraft, error) {
	var doc wireDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &OutputError{Message: "AI output does not match the proposals document", Err: err}
	}

	if len(doc.Proposals) != ProposalCount {
		return nil, &OutputError{Message: fmt.Sprintf("AI must return exactly %d proposals, got %d", ProposalCount, len(doc.Proposals))}
	}

	drafts := make([]ProposalDraft, 0, len(doc.Proposals))
	for i, p := range doc.Proposals {
		draft := ProposalDraft{
			Index: i,
			Front: strings.TrimSpace(p.Front),
			Back:  strings.TrimSpace(p.Back),
		}
		if err := validateDraft(draft); err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	return drafts, nil
}

func validateDraft(d ProposalDraft) error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &OutputError{Message: fmt.Sprintf("proposal %d is invalid", d.Index), Err: err}
	}

	switch field := fieldErrs[0].Field(); field {
	case "index":
		return &OutputError{Message: fmt.Sprintf("proposal index %d is out of range 0-%d", d.Index, ProposalCount-1)}
	default:
		return &OutputError{Message: fmt.Sprintf("proposal %d has invalid %s length", d.Index, field)}
	}
}
