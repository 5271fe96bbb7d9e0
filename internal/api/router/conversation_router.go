package router

import (
	"net/http"

	"support-chat-backend/internal/api"
	"support-chat-backend/internal/api/endpoints"
	"support-chat-backend/internal/api/middleware"
)

func ConversationRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		convEndpoints := endpoints.NewConversationEndpoints(s.Conversations(), s.Emitter(), prefix)

		mux.HandleFunc(prefix+"/chat/conversations/start", s.MakeHTTPHandleFunc(convEndpoints.Start))
		mux.HandleFunc(prefix+"/chat/conversations/resume", s.MakeHTTPHandleFunc(convEndpoints.Resume))
		mux.HandleFunc(prefix+"/chat/conversations", s.MakeHTTPHandleFunc(convEndpoints.Conversations, middleware.ValidateAdminJWT))
		mux.HandleFunc(prefix+"/chat/conversations/", s.MakeHTTPHandleFunc(convEndpoints.Conversation))
		mux.HandleFunc(prefix+"/chat/messages/", s.MakeHTTPHandleFunc(convEndpoints.Message))
	}
}
