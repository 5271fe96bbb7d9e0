package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"support-chat-backend/internal/api"
	"support-chat-backend/internal/api/middleware"
	internaljwt "support-chat-backend/internal/jwt"
	"support-chat-backend/internal/queue"
	"support-chat-backend/internal/relay"
	"support-chat-backend/internal/relay/event"
	authsvc "support-chat-backend/internal/service/auth"
	conversationservice "support-chat-backend/internal/service/conversation"
	"support-chat-backend/internal/storage"
)

const testMaxUpload = 1024

type recordingBroker struct {
	mu       sync.Mutex
	messages []relay.Message
}

func (b *recordingBroker) Publish(_ context.Context, msg relay.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	return nil
}

// events decodes every published envelope, keyed by room.
func (b *recordingBroker) events(t *testing.T) map[string][]event.Event {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string][]event.Event)
	for _, msg := range b.messages {
		if len(msg.Event) == 0 {
			continue
		}
		ev, err := event.Decode(msg.Event)
		if err != nil {
			t.Fatalf("published invalid event: %v", err)
		}
		out[msg.Room] = append(out[msg.Room], ev)
	}
	return out
}

func (b *recordingBroker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = nil
}

type chatFixture struct {
	handler       http.Handler
	conversations *conversationservice.Service
	repo          *conversationservice.MemoryRepository
	auth          *authsvc.Service
	broker        *recordingBroker
	files         *storage.DiskStore
	uploadDir     string
}

func setupChatFixture(t *testing.T) *chatFixture {
	t.Helper()

	internaljwt.SetSecret(internaljwt.RoleAdmin, "jwt-test-secret")
	t.Cleanup(func() { internaljwt.SetSecret(internaljwt.RoleAdmin, "") })

	var mu sync.Mutex
	current := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}

	repo := conversationservice.NewMemoryRepository()
	conversations := conversationservice.NewWithRepository(repo, clock)
	auth := authsvc.NewWithRepository(authsvc.NewMemoryRepository(), time.Now)

	uploadDir := t.TempDir()
	files, err := storage.NewDiskStore(uploadDir)
	if err != nil {
		t.Fatalf("disk store: %v", err)
	}

	broker := &recordingBroker{}
	emitter := relay.NewEmitter(broker)

	queueManager := queue.NewRequestQueueManager(10, 2)
	t.Cleanup(queueManager.Shutdown)

	server := api.NewAPIServer(":0", queueManager, api.Services{
		Conversations: conversations,
		Auth:          auth,
		Emitter:       emitter,
		Files:         files,
	})

	convEndpoints := NewConversationEndpoints(conversations, emitter, "/api")
	uploadEndpoints := NewUploadEndpoints(conversations, emitter, files, testMaxUpload, "/api")
	authEndpoints := NewAuthEndpoints(auth)
	utilsEndpoints := NewUtilsEndpoints(conversations)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/conversations/start", server.MakeHTTPHandleFunc(convEndpoints.Start))
	mux.HandleFunc("/api/chat/conversations/resume", server.MakeHTTPHandleFunc(convEndpoints.Resume))
	mux.HandleFunc("/api/chat/conversations", server.MakeHTTPHandleFunc(convEndpoints.Conversations, middleware.ValidateAdminJWT))
	mux.HandleFunc("/api/chat/conversations/", server.MakeHTTPHandleFunc(convEndpoints.Conversation))
	mux.HandleFunc("/api/chat/messages/", server.MakeHTTPHandleFunc(convEndpoints.Message))
	mux.HandleFunc("/api/uploads/upload", server.MakeHTTPHandleFunc(uploadEndpoints.Upload))
	mux.HandleFunc("/api/uploads/files/", server.MakeHTTPHandleFunc(uploadEndpoints.Files))
	mux.HandleFunc("/api/auth/admin/login", server.MakeHTTPHandleFunc(authEndpoints.Login))
	mux.HandleFunc("/api/health", server.MakeHTTPHandleFunc(utilsEndpoints.Health))

	return &chatFixture{
		handler:       mux,
		conversations: conversations,
		repo:          repo,
		auth:          auth,
		broker:        broker,
		files:         files,
		uploadDir:     uploadDir,
	}
}

// adminToken provisions an admin in organization and logs them in.
func (f *chatFixture) adminToken(t *testing.T, email, organizationID string) string {
	t.Helper()
	if _, err := f.auth.CreateAdmin(context.Background(), authsvc.CreateAdminParams{
		Email:          email,
		Password:       "secret123",
		OrganizationID: organizationID,
	}); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	result, err := f.auth.Login(context.Background(), authsvc.LoginParams{Email: email, Password: "secret123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return result.Token
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSONRequest[T any](t *testing.T, handler http.Handler, method, target string, body interface{}, headers map[string]string, expectedStatus int) T {
	t.Helper()

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		payload = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, target, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != expectedStatus {
		t.Fatalf("%s %s: expected status %d, got %d: %s", method, target, expectedStatus, rec.Code, rec.Body.String())
	}

	var result T
	if expectedStatus != http.StatusNoContent {
		if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}

	return result
}
