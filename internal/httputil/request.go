package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// maxBodyBytes bounds request bodies; snippets are capped well below this
const maxBodyBytes = 10 << 20

// ParseJSON decodes JSON from the request body into dest.
// Unknown fields are accepted so older clients keep working.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}

// PathParam returns a trimmed path wildcard, or an error naming it when empty
func PathParam(r *http.Request, name string) (string, error) {
	value := strings.TrimSpace(r.PathValue(name))
	if value == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return value, nil
}
