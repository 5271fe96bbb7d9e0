package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"support-chat-backend/internal/api"
	"support-chat-backend/internal/dto"
)

type HTTPError = api.HTTPError

type ApiMessageResponse struct {
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	return api.WriteJSON(w, status, v)
}

func MethodHandler(
	w http.ResponseWriter,
	r *http.Request,
	allowed map[string]func(http.ResponseWriter, *http.Request) error,
) error {
	if handler, ok := allowed[r.Method]; ok {
		return handler(w, r)
	}
	return &HTTPError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    "Method not allowed.",
		ErrorLog:   fmt.Errorf("method %s not allowed on %s", r.Method, r.URL.Path),
	}
}

// decodeJSON reads and validates a request body. An empty body decodes to the
// zero value when optional is set.
func decodeJSON(r *http.Request, v any, optional bool) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return &HTTPError{
				StatusCode: http.StatusBadRequest,
				Message:    "Invalid request payload",
				ErrorLog:   fmt.Errorf("decode %s body: %w", r.URL.Path, err),
			}
		}
	}
	if err := dto.Validate(v); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    err.Error(),
			ErrorLog:   err,
		}
	}
	return nil
}

// pathSegments returns the parts of path below prefix.
func pathSegments(path, prefix string) ([]string, bool) {
	trimmed := strings.TrimPrefix(path, prefix)
	if trimmed == path {
		return nil, false
	}
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return nil, false
	}
	return strings.Split(trimmed, "/"), true
}

func notFound(path string) error {
	return &HTTPError{
		StatusCode: http.StatusNotFound,
		Message:    "Not found",
		ErrorLog:   fmt.Errorf("no route for %s", path),
	}
}

// anonymousToken looks for the visitor token in the header, then the query.
func anonymousToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get("X-Anonymous-Token")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("anonymousToken"))
}
