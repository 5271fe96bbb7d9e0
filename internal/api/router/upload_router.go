package router

import (
	"net/http"

	"support-chat-backend/internal/api"
	"support-chat-backend/internal/api/endpoints"
)

func UploadRoutes(prefix string, maxBytes int64) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		uploadEndpoints := endpoints.NewUploadEndpoints(s.Conversations(), s.Emitter(), s.Files(), maxBytes, prefix)

		mux.HandleFunc(prefix+"/uploads/upload", s.MakeHTTPHandleFunc(uploadEndpoints.Upload))
		mux.HandleFunc(prefix+"/uploads/files/", s.MakeHTTPHandleFunc(uploadEndpoints.Files))
	}
}
