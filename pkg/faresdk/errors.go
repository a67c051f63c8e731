package faresdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrTransport wraps failures where no response was received.
	ErrTransport = errors.New("faresdk: transport failure")

	// ErrNotAuthenticated is returned without a network call when an
	// authenticated operation is attempted with no token.
	ErrNotAuthenticated = errors.New("faresdk: not authenticated")

	// Status sentinels, matched by *APIError via errors.Is.
	ErrUnauthorized = errors.New("faresdk: unauthorized")
	ErrForbidden    = errors.New("faresdk: forbidden")
	ErrNotFound     = errors.New("faresdk: not found")
	ErrValidation   = errors.New("faresdk: validation failed")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" && e.Message != "" {
		return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets callers match an APIError against the status sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrValidation:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}

// errorBody covers the shapes the backend uses for errors. Older endpoints
// answer in Portuguese field names.
type errorBody struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Erro     string `json:"erro"`
	Mensagem string `json:"mensagem"`
}

// parseErrorResponse converts a non-2xx response body into an *APIError.
func parseErrorResponse(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Code = firstNonEmpty(eb.Error, eb.Erro)
		apiErr.Message = firstNonEmpty(eb.Message, eb.Mensagem)

		// {"error": "Credenciais inválidas"} carries the message in "error".
		if apiErr.Message == "" && strings.Contains(apiErr.Code, " ") {
			apiErr.Message, apiErr.Code = apiErr.Code, ""
		}
		return apiErr
	}

	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 256 {
		apiErr.Message = text
	}
	return apiErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
