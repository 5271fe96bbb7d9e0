package router

import (
	"net/http"

	"support-chat-backend/internal/api"
	"support-chat-backend/internal/api/endpoints"
)

func AuthRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		authEndpoints := endpoints.NewAuthEndpoints(s.Auth())
		mux.HandleFunc(prefix+"/auth/admin/login", s.MakeHTTPHandleFunc(authEndpoints.Login))
	}
}
