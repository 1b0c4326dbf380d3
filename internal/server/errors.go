package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"fiszki/internal/flashcards"
)

// requestError is rendered as {error, message, details?} with the given status.
type requestError struct {
	Status  int
	Title   string
	Message string
	Details any
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		return badRequest("Invalid JSON body.", nil)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return badRequest("Request body must contain a single JSON object.", nil)
	}
	return nil
}

func badRequest(message string, details any) error {
	return requestError{
		Status:  http.StatusBadRequest,
		Title:   http.StatusText(http.StatusBadRequest),
		Message: message,
		Details: details,
	}
}

func (s *Server) toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	var verr *flashcards.ValidationError
	if errors.As(err, &verr) {
		return badRequest(verr.Message, map[string]string{"field": verr.Field})
	}

	if errors.Is(err, flashcards.ErrAIProvider) {
		return requestError{
			Status:  http.StatusBadGateway,
			Title:   http.StatusText(http.StatusBadGateway),
			Message: "AI generation failed, please try again later.",
		}
	}

	s.logger.Error("unexpected error while generating flashcards", slog.Any("error", err))
	return requestError{
		Status:  http.StatusInternalServerError,
		Title:   http.StatusText(http.StatusInternalServerError),
		Message: "Internal server error.",
	}
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr)
		return
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		_ = writeError(c, requestError{
			Status:  echoErr.Code,
			Title:   http.StatusText(echoErr.Code),
			Message: http.StatusText(echoErr.Code) + ".",
		})
		return
	}

	s.logger.Error("unhandled error", slog.Any("error", err))
	_ = writeError(c, requestError{
		Status:  http.StatusInternalServerError,
		Title:   http.StatusText(http.StatusInternalServerError),
		Message: "Internal server error.",
	})
}

func writeError(c echo.Context, e requestError) error {
	return c.JSON(e.Status, errorBody{Error: e.Title, Message: e.Message, Details: e.Details})
}
