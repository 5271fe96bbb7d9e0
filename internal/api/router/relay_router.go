package router

import (
	"net/http"

	"support-chat-backend/internal/api"
	"support-chat-backend/internal/api/endpoints"
)

func RelayRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		relayEndpoints := endpoints.NewRelayEndpoints(s.Relay())
		mux.HandleFunc(prefix+"/ws", s.MakeHTTPHandleFunc(relayEndpoints.Websocket))
	}
}
