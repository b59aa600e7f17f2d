package storyapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"plotline/internal/domain"
	"plotline/internal/httputil"
)

// APIError is a non-2xx response from the story service.
// Status 404, 409 and 400 match domain.ErrNotFound, ErrConflict and
// ErrValidation under errors.Is.
type APIError struct {
	Method string
	Path   string
	Status int
	Title  string
	Detail string
	// Body is the raw response, e.g. the existing branch on a 409
	Body []byte
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Title
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

// Is maps HTTP status codes onto the domain sentinels
func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrNotFound:
		return e.Status == http.StatusNotFound
	case domain.ErrConflict:
		return e.Status == http.StatusConflict
	case domain.ErrValidation:
		return e.Status == http.StatusBadRequest
	}
	return false
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{Method: method, Path: path, Status: status, Body: body}
	var p httputil.Problem
	if err := json.Unmarshal(body, &p); err == nil {
		apiErr.Title = p.Title
		apiErr.Detail = p.Detail
	}
	return apiErr
}
