package endpoints

import (
	"context"
	"net/http"
	"strings"

	"support-chat-backend/internal/dto"
	"support-chat-backend/internal/model"
	"support-chat-backend/internal/relay"
	conversationservice "support-chat-backend/internal/service/conversation"
)

const relaySessionHeader = "X-Relay-Session"

type ConversationEndpoints interface {
	Start(http.ResponseWriter, *http.Request) error
	Resume(http.ResponseWriter, *http.Request) error
	Conversations(http.ResponseWriter, *http.Request) error
	Conversation(http.ResponseWriter, *http.Request) error
	Message(http.ResponseWriter, *http.Request) error
}

type ConversationPaths struct {
	ConversationPrefix string
	MessagePrefix      string
}

type conversationEndpoints struct {
	service *conversationservice.Service
	emitter *relay.Emitter
	paths   ConversationPaths
}

func NewConversationEndpoints(service *conversationservice.Service, emitter *relay.Emitter, prefix string) ConversationEndpoints {
	base := strings.TrimRight(prefix, "/")
	return &conversationEndpoints{
		service: service,
		emitter: emitter,
		paths: ConversationPaths{
			ConversationPrefix: base + "/chat/conversations/",
			MessagePrefix:      base + "/chat/messages/",
		},
	}
}

func (h *conversationEndpoints) Start(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleStart,
	})
}

func (h *conversationEndpoints) Resume(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleResume,
	})
}

func (h *conversationEndpoints) Conversations(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListConversations,
	})
}

// Conversation serves /chat/conversations/:id/{messages,mark-read,close}.
func (h *conversationEndpoints) Conversation(w http.ResponseWriter, r *http.Request) error {
	parts, ok := pathSegments(r.URL.Path, h.paths.ConversationPrefix)
	if !ok || len(parts) != 2 {
		return notFound(r.URL.Path)
	}

	switch parts[1] {
	case "messages":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet:  func(w http.ResponseWriter, r *http.Request) error { return h.handleListMessages(w, r, parts[0]) },
			http.MethodPost: func(w http.ResponseWriter, r *http.Request) error { return h.handlePostMessage(w, r, parts[0]) },
		})
	case "mark-read":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPut: func(w http.ResponseWriter, r *http.Request) error { return h.handleMarkRead(w, r, parts[0]) },
		})
	case "close":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPut: func(w http.ResponseWriter, r *http.Request) error { return h.handleClose(w, r, parts[0]) },
		})
	default:
		return notFound(r.URL.Path)
	}
}

// Message serves /chat/messages/:id/read.
func (h *conversationEndpoints) Message(w http.ResponseWriter, r *http.Request) error {
	parts, ok := pathSegments(r.URL.Path, h.paths.MessagePrefix)
	if !ok || len(parts) != 2 || parts[1] != "read" {
		return notFound(r.URL.Path)
	}
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPut: func(w http.ResponseWriter, r *http.Request) error { return h.handleMessageRead(w, r, parts[0]) },
	})
}

func (h *conversationEndpoints) handleStart(w http.ResponseWriter, r *http.Request) error {
	var req dto.StartConversationRequest
	if err := decodeJSON(r, &req, true); err != nil {
		return err
	}

	result, err := h.service.StartConversation(r.Context(), req.OrganizationID)
	if err != nil {
		return serviceError(err)
	}

	return WriteJSON(w, http.StatusCreated, dto.StartConversationResponse{
		AnonymousToken: result.User.AnonymousToken,
		ConversationID: result.Conversation.ConversationID,
		Message:        "Conversation started",
	})
}

func (h *conversationEndpoints) handleResume(w http.ResponseWriter, r *http.Request) error {
	var req dto.ResumeConversationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		return err
	}

	result, err := h.service.ResumeConversation(r.Context(), req.AnonymousToken)
	if err != nil {
		return serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.ResumeConversationResponse{
		AnonymousToken: result.User.AnonymousToken,
		ConversationID: result.Conversation.ConversationID,
	})
}

func (h *conversationEndpoints) handleListConversations(w http.ResponseWriter, r *http.Request) error {
	identity, err := h.service.AdminFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return serviceError(err)
	}

	conversations, err := h.service.ListConversations(r.Context(), identity)
	if err != nil {
		return serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.ListConversationsResponse{
		Conversations: dto.NewConversationResponses(conversations),
	})
}

func (h *conversationEndpoints) handleListMessages(w http.ResponseWriter, r *http.Request, conversationID string) error {
	caller, err := h.caller(r, "")
	if err != nil {
		return err
	}

	messages, err := h.service.ListMessages(r.Context(), caller, conversationID)
	if err != nil {
		return serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.ListMessagesResponse{
		Messages: dto.NewMessageResponses(messages),
	})
}

func (h *conversationEndpoints) handlePostMessage(w http.ResponseWriter, r *http.Request, conversationID string) error {
	var req dto.PostMessageRequest
	if err := decodeJSON(r, &req, false); err != nil {
		return err
	}

	caller, err := h.caller(r, req.AnonymousToken)
	if err != nil {
		return err
	}

	result, err := h.service.PostMessage(r.Context(), caller, conversationservice.PostMessageParams{
		ConversationID: conversationID,
		Content:        req.Content,
		FromAdmin:      req.IsAdminMessage,
		MessageType:    model.MessageTypeText,
	})
	if err != nil {
		return serviceError(err)
	}

	if h.emitter != nil {
		h.emitter.MessageCreated(context.WithoutCancel(r.Context()), result, strings.TrimSpace(r.Header.Get(relaySessionHeader)))
	}

	return WriteJSON(w, http.StatusCreated, dto.NewMessageResponse(result.Message))
}

func (h *conversationEndpoints) handleMarkRead(w http.ResponseWriter, r *http.Request, conversationID string) error {
	identity, err := h.service.AdminFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return serviceError(err)
	}

	result, err := h.service.MarkConversationRead(r.Context(), identity, conversationID)
	if err != nil {
		return serviceError(err)
	}

	if h.emitter != nil {
		h.emitter.MessagesRead(context.WithoutCancel(r.Context()), result.Messages)
	}

	ids := make([]string, 0, len(result.Messages))
	for _, message := range result.Messages {
		ids = append(ids, message.MessageID)
	}

	return WriteJSON(w, http.StatusOK, dto.MarkConversationReadResponse{
		ConversationID: result.Conversation.ConversationID,
		UnreadCount:    result.Conversation.UnreadCount,
		ReadMessageIDs: ids,
	})
}

func (h *conversationEndpoints) handleClose(w http.ResponseWriter, r *http.Request, conversationID string) error {
	identity, err := h.service.AdminFromAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return serviceError(err)
	}

	conversation, err := h.service.CloseConversation(r.Context(), identity, conversationID)
	if err != nil {
		return serviceError(err)
	}

	if h.emitter != nil {
		h.emitter.ConversationClosed(context.WithoutCancel(r.Context()), conversation)
	}

	return WriteJSON(w, http.StatusOK, dto.NewConversationResponse(conversation))
}

func (h *conversationEndpoints) handleMessageRead(w http.ResponseWriter, r *http.Request, messageID string) error {
	var req dto.MarkMessageReadRequest
	if err := decodeJSON(r, &req, true); err != nil {
		return err
	}

	caller, err := h.caller(r, req.AnonymousToken)
	if err != nil {
		return err
	}

	result, err := h.service.MarkMessageRead(r.Context(), caller, messageID)
	if err != nil {
		return serviceError(err)
	}

	if result.Changed && h.emitter != nil {
		h.emitter.MessagesRead(context.WithoutCancel(r.Context()), []model.MessageItem{result.Message})
	}

	return WriteJSON(w, http.StatusOK, dto.NewMessageResponse(result.Message))
}

// caller resolves who is making the request. A bearer token that fails to
// verify is rejected rather than ignored.
func (h *conversationEndpoints) caller(r *http.Request, bodyToken string) (conversationservice.Caller, error) {
	return resolveCaller(h.service, r, bodyToken)
}

func resolveCaller(service *conversationservice.Service, r *http.Request, bodyToken string) (conversationservice.Caller, error) {
	caller := conversationservice.Caller{AnonymousToken: strings.TrimSpace(bodyToken)}
	if caller.AnonymousToken == "" {
		caller.AnonymousToken = anonymousToken(r)
	}

	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		identity, err := service.AdminFromAuthorizationHeader(header)
		if err != nil {
			return conversationservice.Caller{}, serviceError(err)
		}
		caller.Admin = &identity
	}

	return caller, nil
}
