package client_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"support-chat-backend/internal/api"
	"support-chat-backend/internal/api/router"
	"support-chat-backend/internal/client"
	internaljwt "support-chat-backend/internal/jwt"
	"support-chat-backend/internal/presence"
	"support-chat-backend/internal/queue"
	"support-chat-backend/internal/relay"
	"support-chat-backend/internal/relay/event"
	authsvc "support-chat-backend/internal/service/auth"
	conversationservice "support-chat-backend/internal/service/conversation"
	"support-chat-backend/internal/storage"

	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second

type chatServer struct {
	url     string
	hub     *relay.Hub
	tracker *presence.Tracker
}

func startChatServer(t *testing.T) *chatServer {
	t.Helper()

	internaljwt.SetSecret(internaljwt.RoleAdmin, "e2e-secret")
	t.Cleanup(func() { internaljwt.SetSecret(internaljwt.RoleAdmin, "") })

	conversations := conversationservice.NewWithRepository(conversationservice.NewMemoryRepository(), time.Now)
	auth := authsvc.NewWithRepository(authsvc.NewMemoryRepository(), time.Now)
	_, err := auth.CreateAdmin(context.Background(), authsvc.CreateAdminParams{
		Email:          "agent@example.com",
		Password:       "secret123",
		OrganizationID: "1",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	hub := relay.NewHub()
	go hub.Run(ctx)

	broker := relay.NewLocalBroker(hub, nil)
	emitter := relay.NewEmitter(broker)
	tracker := presence.NewTracker(conversations, emitter, presence.Config{})
	broker.SetActivitySink(tracker)
	require.NoError(t, tracker.Start())

	files, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	rqm := queue.NewRequestQueueManager(32, 4)
	server := api.NewAPIServer(":0", rqm, api.Services{
		Conversations: conversations,
		Auth:          auth,
		Relay:         relay.NewHandler(hub, conversations, tracker, relay.HandlerConfig{}),
		Emitter:       emitter,
		Files:         files,
	},
		router.ConversationRoutes("/api"),
		router.AuthRoutes("/api"),
		router.UploadRoutes("/api", 1<<20),
		router.UtilsRoutes("/api"),
		router.RelayRoutes("/api"),
	)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		ts.Close()
		tracker.Stop()
		cancel()
		rqm.Shutdown()
	})

	return &chatServer{url: ts.URL, hub: hub, tracker: tracker}
}

// runStream connects s until the test ends and hands every event to handle.
func runStream(t *testing.T, s *client.Stream, handle func(event.Event)) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	go func() {
		for ev := range s.Events() {
			handle(ev)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

type eventLog struct {
	mu     sync.Mutex
	events []event.Event
}

func (l *eventLog) add(ev event.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(match func(event.Event) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if match(ev) {
			n++
		}
	}
	return n
}

func hasMember(hub *relay.Hub, room, sessionID string) bool {
	for _, member := range hub.Members(room) {
		if member == sessionID {
			return true
		}
	}
	return false
}

func TestSupportConversationEndToEnd(t *testing.T) {
	srv := startChatServer(t)
	ctx := context.Background()
	base := client.NewAPI(srv.url)

	// Visitor starts a conversation.
	started, err := base.StartConversation(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, started.AnonymousToken)
	require.NotEmpty(t, started.ConversationID)
	convID := started.ConversationID

	// Admin signs in and subscribes to the organization room.
	login, err := base.Login(ctx, "agent@example.com", "secret123")
	require.NoError(t, err)
	admin := base.AsAdmin(login.Token)

	adminEvents := &eventLog{}
	pushed := client.NewReconciler(admin, client.ReconcilerConfig{Interval: time.Hour})
	adminStream := client.NewStream(client.StreamConfig{URL: admin.StreamURL()})
	runStream(t, adminStream, func(ev event.Event) {
		adminEvents.add(ev)
		pushed.Apply(ev)
	})
	require.NoError(t, adminStream.JoinAdminRoom("1"))
	require.Eventually(t, func() bool {
		id := adminStream.SessionID()
		return id != "" && hasMember(srv.hub, event.AdminRoom("1"), id)
	}, waitFor, 10*time.Millisecond)

	// A second dashboard relies on polling alone.
	polled := client.NewReconciler(admin, client.ReconcilerConfig{Interval: 50 * time.Millisecond})
	require.NoError(t, polled.Refresh(ctx))
	require.Empty(t, polled.Snapshot(), "empty conversations stay hidden")
	pollCtx, stopPolling := context.WithCancel(ctx)
	t.Cleanup(stopPolling)
	go polled.Run(pollCtx, nil)

	// Visitor connects to the relay and joins the conversation.
	visitorStream := client.NewStream(client.StreamConfig{URL: base.StreamURL(), AnonymousToken: started.AnonymousToken})
	visitorAPI := base.AsVisitor(started.AnonymousToken).WithRelaySession(visitorStream.SessionID)
	visitor := client.NewSession(visitorAPI, visitorStream, client.SessionConfig{ConversationID: convID})
	disconnectVisitor := runStream(t, visitorStream, visitor.HandleEvent)
	require.NoError(t, visitorStream.JoinConversation(convID))
	require.Eventually(t, func() bool { return srv.tracker.IsOnline(started.AnonymousToken) }, waitFor, 10*time.Millisecond)

	isOnline := func(ev event.Event) bool {
		e, ok := ev.(event.UserOnline)
		return ok && e.ConversationID == convID
	}
	require.Eventually(t, func() bool { return adminEvents.count(isOnline) == 1 }, waitFor, 10*time.Millisecond)

	// Visitor says hello.
	sent, err := visitor.Send(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", sent.Content)

	isCreated := func(ev event.Event) bool {
		e, ok := ev.(event.ConversationCreated)
		return ok && e.ConversationID == convID
	}
	require.Eventually(t, func() bool { return adminEvents.count(isCreated) == 1 }, waitFor, 10*time.Millisecond)

	for name, r := range map[string]*client.Reconciler{"push": pushed, "poll": polled} {
		require.Eventually(t, func() bool {
			list := r.Snapshot()
			return len(list) == 1 && list[0].ConversationID == convID &&
				list[0].LastMessage == "hello" && list[0].UnreadCount == 1
		}, waitFor, 10*time.Millisecond, name)
	}

	// The sender's echo does not duplicate the message.
	require.Eventually(t, func() bool { return len(visitor.Messages()) == 1 }, waitFor, 10*time.Millisecond)

	// Admin opens the conversation and marks it read.
	require.NoError(t, polled.MarkRead(ctx, convID))
	require.Equal(t, 0, polled.Snapshot()[0].UnreadCount)

	conversations, err := admin.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	require.Equal(t, 0, conversations[0].UnreadCount)

	adminSession := client.NewSession(admin, adminStream, client.SessionConfig{ConversationID: convID})
	require.NoError(t, adminSession.LoadHistory(ctx))
	require.Len(t, adminSession.Messages(), 1)
	require.True(t, adminSession.Messages()[0].IsRead)

	// The read receipt reaches the visitor over the relay.
	require.Eventually(t, func() bool {
		messages := visitor.Messages()
		return len(messages) == 1 && messages[0].IsRead
	}, waitFor, 10*time.Millisecond)

	// Marking read again changes nothing.
	again, err := admin.MarkConversationRead(ctx, convID)
	require.NoError(t, err)
	require.Equal(t, 0, again.UnreadCount)
	require.Empty(t, again.ReadMessageIDs)

	// Dropping the transport takes the visitor offline exactly once.
	disconnectVisitor()
	isOffline := func(ev event.Event) bool {
		e, ok := ev.(event.UserOffline)
		return ok && e.ConversationID == convID
	}
	require.Eventually(t, func() bool { return adminEvents.count(isOffline) == 1 }, waitFor, 10*time.Millisecond)
	require.False(t, srv.tracker.IsOnline(started.AnonymousToken))

	// Resuming with the same token lands in the same conversation.
	resumed, err := base.ResumeConversation(ctx, started.AnonymousToken)
	require.NoError(t, err)
	require.Equal(t, convID, resumed.ConversationID)
	require.Equal(t, started.AnonymousToken, resumed.AnonymousToken)
}

func TestUploadThroughClient(t *testing.T) {
	srv := startChatServer(t)
	ctx := context.Background()
	base := client.NewAPI(srv.url)

	started, err := base.StartConversation(ctx, "")
	require.NoError(t, err)

	visitor := client.NewSession(base.AsVisitor(started.AnonymousToken), nil, client.SessionConfig{ConversationID: started.ConversationID})
	msg, err := visitor.SendFile(ctx, "screenshot.png", "image/png", strings.NewReader("png bytes"))
	require.NoError(t, err)
	require.Equal(t, "image", msg.MessageType)
	require.Equal(t, "screenshot.png", msg.FileName)

	resp, err := http.Get(srv.url + msg.MediaURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "png bytes", string(body))
	require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	_, err = visitor.SendFile(ctx, "page.html", "text/html", strings.NewReader("<html>"))
	require.True(t, client.IsStatus(err, http.StatusBadRequest), "got %v", err)

	_, err = client.NewAPI(srv.url).AsVisitor("user_unknown").ListMessages(ctx, started.ConversationID)
	require.True(t, client.IsStatus(err, http.StatusNotFound), "got %v", err)
}
