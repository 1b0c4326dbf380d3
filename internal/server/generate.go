package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"fiszki/internal/flashcards"
)

const userIDHeader = "X-User-Id"

type proposalResponse struct {
	ID    uuid.UUID `json:"id"`
	Index int       `json:"index"`
	Front string    `json:"front"`
	Back  string    `json:"back"`
}

type generateResponse struct {
	GenerationID uuid.UUID          `json:"generation_id"`
	Proposals    []proposalResponse `json:"proposals"`
}

func (s *Server) handleGenerate(c echo.Context) error {
	var cmd flashcards.GenerateCommand
	if err := decodeRequestBody(c, &cmd); err != nil {
		return err
	}

	ctx := c.Request().Context()
	userID := s.userID(c)

	allowed, err := s.limiter.Allow(ctx, "generate:"+userID.String())
	switch {
	case err != nil:
		s.logger.Warn("rate limiter unavailable, allowing request", slog.Any("error", err))
	case !allowed:
		return requestError{
			Status:  http.StatusTooManyRequests,
			Title:   http.StatusText(http.StatusTooManyRequests),
			Message: "Too many generation requests, please slow down.",
		}
	}

	gen, err := s.generator.Generate(ctx, userID, cmd.Input)
	if err != nil {
		return s.toHTTPError(err)
	}

	resp := generateResponse{
		GenerationID: gen.ID,
		Proposals:    make([]proposalResponse, 0, len(gen.Proposals)),
	}
	for _, p := range gen.Proposals {
		resp.Proposals = append(resp.Proposals, proposalResponse{ID: p.ID, Index: p.Index, Front: p.Front, Back: p.Back})
	}
	return c.JSON(http.StatusOK, resp)
}

// userID trusts the X-User-Id header when it holds a UUID and falls back to the
// configured development user otherwise.
func (s *Server) userID(c echo.Context) uuid.UUID {
	raw := strings.TrimSpace(c.Request().Header.Get(userIDHeader))
	if raw == "" {
		return s.devUserID
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return s.devUserID
	}
	return id
}
