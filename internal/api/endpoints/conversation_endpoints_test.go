package endpoints

import (
	"net/http"
	"testing"

	"support-chat-backend/internal/api"
	"support-chat-backend/internal/dto"
	"support-chat-backend/internal/relay/event"
)

func startConversation(t *testing.T, f *chatFixture) dto.StartConversationResponse {
	t.Helper()
	resp := doJSONRequest[dto.StartConversationResponse](t, f.handler, http.MethodPost, "/api/chat/conversations/start", nil, nil, http.StatusCreated)
	if resp.AnonymousToken == "" || resp.ConversationID == "" {
		t.Fatalf("incomplete start response %+v", resp)
	}
	return resp
}

func TestStartAndVisitorMessageFlow(t *testing.T) {
	f := setupChatFixture(t)
	admin := f.adminToken(t, "agent@example.com", "1")
	started := startConversation(t, f)

	empty := doJSONRequest[dto.ListConversationsResponse](t, f.handler, http.MethodGet, "/api/chat/conversations", nil, bearer(admin), http.StatusOK)
	if len(empty.Conversations) != 0 {
		t.Fatalf("empty conversations must stay hidden, got %d", len(empty.Conversations))
	}

	path := "/api/chat/conversations/" + started.ConversationID + "/messages"
	msg := doJSONRequest[dto.MessageResponse](t, f.handler, http.MethodPost, path, dto.PostMessageRequest{
		Content:        "I need help with my order",
		AnonymousToken: started.AnonymousToken,
	}, map[string]string{relaySessionHeader: "sess-visitor"}, http.StatusCreated)
	if msg.IsAdminMessage || msg.MessageType != "text" {
		t.Fatalf("unexpected message %+v", msg)
	}

	events := f.broker.events(t)
	adminRoom := events[event.AdminRoom("1")]
	if len(adminRoom) != 2 {
		t.Fatalf("expected conversation_created and conversation_updated, got %d events", len(adminRoom))
	}
	if _, ok := adminRoom[0].(event.ConversationCreated); !ok {
		t.Fatalf("expected conversation_created first, got %T", adminRoom[0])
	}
	updated, ok := adminRoom[1].(event.ConversationUpdated)
	if !ok || updated.UnreadCount != 1 {
		t.Fatalf("unexpected update %+v", adminRoom[1])
	}
	if len(events[event.SessionRoom("sess-visitor")]) != 1 {
		t.Fatal("sender session should receive message_sent")
	}

	list := doJSONRequest[dto.ListConversationsResponse](t, f.handler, http.MethodGet, "/api/chat/conversations", nil, bearer(admin), http.StatusOK)
	if len(list.Conversations) != 1 || list.Conversations[0].UnreadCount != 1 {
		t.Fatalf("unexpected list %+v", list.Conversations)
	}
	if list.Conversations[0].LastMessage != "I need help with my order" {
		t.Fatalf("unexpected last message %q", list.Conversations[0].LastMessage)
	}

	f.broker.reset()
	read := doJSONRequest[dto.MarkConversationReadResponse](t, f.handler, http.MethodPut, "/api/chat/conversations/"+started.ConversationID+"/mark-read", nil, bearer(admin), http.StatusOK)
	if read.UnreadCount != 0 || len(read.ReadMessageIDs) != 1 || read.ReadMessageIDs[0] != msg.MessageID {
		t.Fatalf("unexpected mark-read response %+v", read)
	}
	receipts := f.broker.events(t)[event.ConversationRoom(started.ConversationID)]
	if len(receipts) != 1 {
		t.Fatalf("expected one message_read, got %d", len(receipts))
	}

	f.broker.reset()
	again := doJSONRequest[dto.MarkConversationReadResponse](t, f.handler, http.MethodPut, "/api/chat/conversations/"+started.ConversationID+"/mark-read", nil, bearer(admin), http.StatusOK)
	if len(again.ReadMessageIDs) != 0 || len(f.broker.events(t)) != 0 {
		t.Fatal("second mark-read must be a no-op")
	}
}

func TestAdminReplyResetsUnread(t *testing.T) {
	f := setupChatFixture(t)
	admin := f.adminToken(t, "agent@example.com", "1")
	started := startConversation(t, f)
	path := "/api/chat/conversations/" + started.ConversationID + "/messages"

	for _, content := range []string{"hello", "anyone there?"} {
		doJSONRequest[dto.MessageResponse](t, f.handler, http.MethodPost, path, dto.PostMessageRequest{Content: content}, map[string]string{"X-Anonymous-Token": started.AnonymousToken}, http.StatusCreated)
	}

	reply := doJSONRequest[dto.MessageResponse](t, f.handler, http.MethodPost, path, dto.PostMessageRequest{Content: "Hi, how can I help?", IsAdminMessage: true}, bearer(admin), http.StatusCreated)
	if !reply.IsAdminMessage {
		t.Fatal("reply should be an admin message")
	}

	list := doJSONRequest[dto.ListConversationsResponse](t, f.handler, http.MethodGet, "/api/chat/conversations", nil, bearer(admin), http.StatusOK)
	if list.Conversations[0].UnreadCount != 0 || list.Conversations[0].LastMessage != "Hi, how can I help?" {
		t.Fatalf("unexpected conversation after reply %+v", list.Conversations[0])
	}

	history := doJSONRequest[dto.ListMessagesResponse](t, f.handler, http.MethodGet, path+"?anonymousToken="+started.AnonymousToken, nil, nil, http.StatusOK)
	if len(history.Messages) != 3 || history.Messages[2].MessageID != reply.MessageID {
		t.Fatalf("unexpected history %+v", history.Messages)
	}

	visitorRead := doJSONRequest[dto.MessageResponse](t, f.handler, http.MethodPut, "/api/chat/messages/"+reply.MessageID+"/read", dto.MarkMessageReadRequest{AnonymousToken: started.AnonymousToken}, nil, http.StatusOK)
	if !visitorRead.IsRead || visitorRead.ReadAt == "" {
		t.Fatalf("expected reply to be read %+v", visitorRead)
	}
}

func TestConversationAuthorization(t *testing.T) {
	f := setupChatFixture(t)
	admin := f.adminToken(t, "agent@example.com", "1")
	foreignAdmin := f.adminToken(t, "other@example.com", "2")
	started := startConversation(t, f)
	other := startConversation(t, f)
	path := "/api/chat/conversations/" + started.ConversationID + "/messages"

	cases := []struct {
		name    string
		method  string
		body    interface{}
		headers map[string]string
		status  int
	}{
		{"missing token", http.MethodGet, nil, nil, http.StatusUnauthorized},
		{"unknown token", http.MethodGet, nil, map[string]string{"X-Anonymous-Token": "user_doesnotexist"}, http.StatusNotFound},
		{"other visitor", http.MethodGet, nil, map[string]string{"X-Anonymous-Token": other.AnonymousToken}, http.StatusForbidden},
		{"foreign organization", http.MethodGet, nil, bearer(foreignAdmin), http.StatusForbidden},
		{"forged bearer", http.MethodGet, nil, bearer("forged"), http.StatusUnauthorized},
		{"admin flag without credentials", http.MethodPost, dto.PostMessageRequest{Content: "hi", IsAdminMessage: true, AnonymousToken: started.AnonymousToken}, nil, http.StatusUnauthorized},
		{"empty content", http.MethodPost, map[string]string{"content": ""}, map[string]string{"X-Anonymous-Token": started.AnonymousToken}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSONRequest[api.ApiError](t, f.handler, tc.method, path, tc.body, tc.headers, tc.status)
			if resp.Error == "" {
				t.Fatal("expected an error message")
			}
		})
	}

	doJSONRequest[api.ApiError](t, f.handler, http.MethodGet, "/api/chat/conversations", nil, nil, http.StatusUnauthorized)
	doJSONRequest[dto.ListMessagesResponse](t, f.handler, http.MethodGet, path, nil, bearer(admin), http.StatusOK)
	doJSONRequest[api.ApiError](t, f.handler, http.MethodGet, "/api/chat/conversations/missing/messages", nil, bearer(admin), http.StatusNotFound)
	doJSONRequest[api.ApiError](t, f.handler, http.MethodDelete, path, nil, bearer(admin), http.StatusMethodNotAllowed)
	doJSONRequest[api.ApiError](t, f.handler, http.MethodGet, "/api/chat/conversations/"+started.ConversationID+"/unknown", nil, bearer(admin), http.StatusNotFound)
}

func TestCloseAndResume(t *testing.T) {
	f := setupChatFixture(t)
	admin := f.adminToken(t, "agent@example.com", "1")
	started := startConversation(t, f)
	path := "/api/chat/conversations/" + started.ConversationID

	resumed := doJSONRequest[dto.ResumeConversationResponse](t, f.handler, http.MethodPost, "/api/chat/conversations/resume", dto.ResumeConversationRequest{AnonymousToken: started.AnonymousToken}, nil, http.StatusOK)
	if resumed.ConversationID != started.ConversationID {
		t.Fatalf("resume should return the open conversation, got %s", resumed.ConversationID)
	}

	closed := doJSONRequest[dto.ConversationResponse](t, f.handler, http.MethodPut, path+"/close", nil, bearer(admin), http.StatusOK)
	if !closed.IsClosed || closed.Status != "closed" {
		t.Fatalf("unexpected close response %+v", closed)
	}
	if _, ok := f.broker.events(t)[event.ConversationRoom(started.ConversationID)]; !ok {
		t.Fatal("expected conversation_closed in the conversation room")
	}

	doJSONRequest[api.ApiError](t, f.handler, http.MethodPost, path+"/messages", dto.PostMessageRequest{Content: "still there?"}, map[string]string{"X-Anonymous-Token": started.AnonymousToken}, http.StatusConflict)

	fresh := doJSONRequest[dto.ResumeConversationResponse](t, f.handler, http.MethodPost, "/api/chat/conversations/resume", dto.ResumeConversationRequest{AnonymousToken: started.AnonymousToken}, nil, http.StatusOK)
	if fresh.ConversationID == started.ConversationID || fresh.AnonymousToken != started.AnonymousToken {
		t.Fatalf("expected a new conversation for the same token, got %+v", fresh)
	}

	doJSONRequest[api.ApiError](t, f.handler, http.MethodPost, "/api/chat/conversations/resume", dto.ResumeConversationRequest{AnonymousToken: "user_unknown"}, nil, http.StatusNotFound)
	doJSONRequest[api.ApiError](t, f.handler, http.MethodPost, "/api/chat/conversations/resume", map[string]string{}, nil, http.StatusBadRequest)
}

func TestHealth(t *testing.T) {
	f := setupChatFixture(t)
	resp := doJSONRequest[dto.HealthResponse](t, f.handler, http.MethodGet, "/api/health", nil, nil, http.StatusOK)
	if resp.Status != "ok" || resp.Store != "ok" {
		t.Fatalf("unexpected health %+v", resp)
	}
}
