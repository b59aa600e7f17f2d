package httputil

import (
	"encoding/json"
	"net/http"
)

// ProblemContentType is the media type of RFC 7807 error bodies
const ProblemContentType = "application/problem+json"

// problemTypes maps statuses to their RFC 7231 section; others use about:blank
var problemTypes = map[int]string{
	http.StatusBadRequest:            "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.1",
	http.StatusNotFound:              "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.4",
	http.StatusConflict:              "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.8",
	http.StatusRequestEntityTooLarge: "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.11",
	http.StatusInternalServerError:   "https://datatracker.ietf.org/doc/html/rfc7231#section-6.6.1",
	http.StatusBadGateway:            "https://datatracker.ietf.org/doc/html/rfc7231#section-6.6.3",
	http.StatusGatewayTimeout:        "https://datatracker.ietf.org/doc/html/rfc7231#section-6.6.5",
}

// Problem is an RFC 7807 error body. The story API client decodes the
// same type.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// NewProblem fills Type and Title from status
func NewProblem(status int, detail string) Problem {
	typ, ok := problemTypes[status]
	if !ok {
		typ = "about:blank"
	}
	return Problem{Type: typ, Title: http.StatusText(status), Status: status, Detail: detail}
}

// RespondJSON writes data as JSON. The payload is marshaled before any
// header goes out, so an encoding failure becomes a clean 500.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	write(w, "application/json", status, payload)
}

// RespondNoContent writes an empty 204
func RespondNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// RespondError writes a problem+json body
func RespondError(w http.ResponseWriter, status int, detail string) {
	payload, err := json.Marshal(NewProblem(status, detail))
	if err != nil {
		write(w, "text/plain", http.StatusInternalServerError, []byte("internal server error"))
		return
	}
	write(w, ProblemContentType, status, payload)
}

func write(w http.ResponseWriter, contentType string, status int, payload []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
