package endpoints

import (
	"context"
	"net/http"
	"time"

	"support-chat-backend/internal/dto"
)

const healthTimeout = 3 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type UtilsEndpoints interface {
	Health(http.ResponseWriter, *http.Request) error
}

type utilsEndpoints struct {
	store Pinger
}

// NewUtilsEndpoints reports the store state on /health. A nil store is
// reported as "skipped", as in a relay-only process without record access.
func NewUtilsEndpoints(store Pinger) UtilsEndpoints {
	return &utilsEndpoints{store: store}
}

func (h *utilsEndpoints) Health(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleHealth,
	})
}

func (h *utilsEndpoints) handleHealth(w http.ResponseWriter, r *http.Request) error {
	if h.store == nil {
		return WriteJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok", Store: "skipped"})
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		return &HTTPError{
			StatusCode: http.StatusServiceUnavailable,
			Message:    "Store unavailable",
			ErrorLog:   err,
		}
	}
	return WriteJSON(w, http.StatusOK, dto.HealthResponse{Status: "ok", Store: "ok"})
}
