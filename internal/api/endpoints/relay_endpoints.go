package endpoints

import (
	"fmt"
	"net/http"

	"support-chat-backend/internal/relay"
)

type RelayEndpoints interface {
	Websocket(http.ResponseWriter, *http.Request) error
}

type relayEndpoints struct {
	handler *relay.Handler
}

func NewRelayEndpoints(handler *relay.Handler) RelayEndpoints {
	return &relayEndpoints{handler: handler}
}

// Websocket upgrades to a relay session. It returns as soon as the session's
// pumps are running, so the request worker is released immediately.
func (h *relayEndpoints) Websocket(w http.ResponseWriter, r *http.Request) error {
	if h.handler == nil {
		return &HTTPError{
			StatusCode: http.StatusServiceUnavailable,
			Message:    "Websocket not available",
			ErrorLog:   fmt.Errorf("relay handler missing"),
		}
	}
	if r.Method != http.MethodGet {
		return MethodHandler(w, r, nil)
	}
	return serviceError(h.handler.ServeWS(w, r))
}
