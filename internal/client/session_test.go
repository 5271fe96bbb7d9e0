package client

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"support-chat-backend/internal/dto"
	"support-chat-backend/internal/relay/event"

	"github.com/stretchr/testify/require"
)

type fakeMessageAPI struct {
	admin bool
	token string

	mu       sync.Mutex
	messages []dto.MessageResponse
	readReqs []string
	uploads  []FileUpload
	seq      int
}

func (f *fakeMessageAPI) IsAdmin() bool          { return f.admin }
func (f *fakeMessageAPI) AnonymousToken() string { return f.token }

func (f *fakeMessageAPI) add(content string, fromAdmin bool) dto.MessageResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	msg := dto.MessageResponse{
		MessageID:      fmt.Sprintf("m%d", f.seq),
		ConversationID: "c1",
		Content:        content,
		IsAdminMessage: fromAdmin,
		MessageType:    "text",
		CreatedAt:      time.Date(2026, 1, 1, 10, 0, f.seq, 0, time.UTC).Format(time.RFC3339Nano),
	}
	f.messages = append(f.messages, msg)
	return msg
}

func (f *fakeMessageAPI) ListMessages(_ context.Context, conversationID string) ([]dto.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dto.MessageResponse, len(f.messages))
	copy(out, f.messages)
	return out, nil
}

func (f *fakeMessageAPI) PostMessage(_ context.Context, _ string, content string) (dto.MessageResponse, error) {
	return f.add(content, f.admin), nil
}

func (f *fakeMessageAPI) MarkMessageRead(_ context.Context, messageID string) (dto.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readReqs = append(f.readReqs, messageID)
	for i := range f.messages {
		if f.messages[i].MessageID == messageID {
			f.messages[i].IsRead = true
			f.messages[i].ReadAt = "2026-01-01T11:00:00Z"
			return f.messages[i], nil
		}
	}
	return dto.MessageResponse{}, &APIError{StatusCode: 404, Message: "message not found"}
}

func (f *fakeMessageAPI) Upload(_ context.Context, _ string, file FileUpload) (dto.UploadResponse, error) {
	body, _ := io.ReadAll(file.Body)
	f.mu.Lock()
	f.uploads = append(f.uploads, file)
	f.mu.Unlock()
	msg := f.add(file.Name, f.admin)
	msg.MessageType = file.MessageType
	msg.FileSize = int64(len(body))
	return dto.UploadResponse{Message: msg, FileURL: "/api/uploads/files/x"}, nil
}

func (f *fakeMessageAPI) reads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.readReqs...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []event.Event
}

func (e *recordingEmitter) Emit(ev event.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *recordingEmitter) names() []event.Name {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]event.Name, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Name())
	}
	return out
}

func messageIDs(messages []dto.MessageResponse) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.MessageID)
	}
	return out
}

func TestAdminLoadHistoryMarksVisitorMessagesRead(t *testing.T) {
	api := &fakeMessageAPI{admin: true}
	api.add("hello", false)
	api.add("reply", true)
	api.add("thanks", false)

	s := NewSession(api, nil, SessionConfig{ConversationID: "c1"})
	require.NoError(t, s.LoadHistory(context.Background()))

	require.Equal(t, []string{"m1", "m3"}, api.reads())
	for _, m := range s.Messages() {
		if !m.IsAdminMessage {
			require.True(t, m.IsRead, "message %s", m.MessageID)
		}
	}

	require.NoError(t, s.MarkRead(context.Background(), "m1"))
	require.Len(t, api.reads(), 2, "already read messages are not requested again")
}

func TestVisitorLoadHistoryLeavesReadStateAlone(t *testing.T) {
	api := &fakeMessageAPI{token: "user_1"}
	api.add("hello", false)
	api.add("reply", true)

	s := NewSession(api, nil, SessionConfig{ConversationID: "c1"})
	require.NoError(t, s.LoadHistory(context.Background()))
	require.Empty(t, api.reads())
	require.Len(t, s.Messages(), 2)
}

func TestSendMergesEchoesOnce(t *testing.T) {
	api := &fakeMessageAPI{token: "user_1"}
	var snapshots int
	s := NewSession(api, nil, SessionConfig{ConversationID: "c1", OnChange: func([]dto.MessageResponse) { snapshots++ }})

	sent, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)

	s.HandleEvent(event.MessageSent{MessageResponse: sent})
	s.HandleEvent(event.ReceiveMessage{MessageResponse: sent})
	require.NoError(t, s.pollOnce(context.Background()))

	require.Equal(t, []string{sent.MessageID}, messageIDs(s.Messages()))
	require.Equal(t, 1, snapshots)

	_, err = s.Send(context.Background(), "   ")
	require.Error(t, err)
}

func TestHandleEventOrdersAndFilters(t *testing.T) {
	s := NewSession(&fakeMessageAPI{}, nil, SessionConfig{ConversationID: "c1"})

	later := dto.MessageResponse{MessageID: "b", ConversationID: "c1", CreatedAt: "2026-01-01T10:00:02Z"}
	earlier := dto.MessageResponse{MessageID: "a", ConversationID: "c1", CreatedAt: "2026-01-01T10:00:01Z"}
	s.HandleEvent(event.ReceiveMessage{MessageResponse: later})
	s.HandleEvent(event.ReceiveMessage{MessageResponse: earlier})
	s.HandleEvent(event.ReceiveMessage{MessageResponse: dto.MessageResponse{MessageID: "x", ConversationID: "c2", CreatedAt: "2026-01-01T10:00:00Z"}})
	require.Equal(t, []string{"a", "b"}, messageIDs(s.Messages()))

	s.HandleEvent(event.MessageRead{MessageID: "b", ConversationID: "c1", ReadAt: "2026-01-01T10:05:00Z"})
	s.HandleEvent(event.MessageRead{MessageID: "a", ConversationID: "c2", ReadAt: "2026-01-01T10:05:00Z"})
	messages := s.Messages()
	require.False(t, messages[0].IsRead)
	require.True(t, messages[1].IsRead)
	require.Equal(t, "2026-01-01T10:05:00Z", messages[1].ReadAt)

	// Read state never moves backwards.
	s.HandleEvent(event.ReceiveMessage{MessageResponse: later})
	require.True(t, s.Messages()[1].IsRead)
}

func TestPollPicksUpGrowthAndAdminMarksRead(t *testing.T) {
	api := &fakeMessageAPI{admin: true}
	s := NewSession(api, nil, SessionConfig{ConversationID: "c1", PollInterval: 10 * time.Millisecond})
	require.NoError(t, s.LoadHistory(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Poll(ctx) }()

	api.add("are you there?", false)
	require.Eventually(t, func() bool {
		messages := s.Messages()
		return len(messages) == 1 && messages[0].IsRead
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"m1"}, api.reads())

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestSendFileClassifiesByMIME(t *testing.T) {
	cases := []struct {
		mime string
		want string
	}{
		{mime: "image/png", want: "image"},
		{mime: "video/mp4", want: "video"},
		{mime: "audio/ogg", want: "audio"},
		{mime: "application/pdf", want: "file"},
	}

	api := &fakeMessageAPI{token: "user_1"}
	s := NewSession(api, nil, SessionConfig{ConversationID: "c1"})
	for _, tc := range cases {
		msg, err := s.SendFile(context.Background(), "attachment", tc.mime, strings.NewReader("data"))
		require.NoError(t, err)
		require.Equal(t, tc.want, msg.MessageType, tc.mime)
		require.EqualValues(t, 4, msg.FileSize)
	}
	require.Len(t, s.Messages(), len(cases))
}

func TestTypingStartsOnceAndExpires(t *testing.T) {
	emitter := &recordingEmitter{}
	s := NewSession(&fakeMessageAPI{token: "user_1"}, emitter, SessionConfig{ConversationID: "c1", TypingTimeout: 20 * time.Millisecond})

	s.Typing()
	s.Typing()
	s.Typing()
	require.Equal(t, []event.Name{event.TypingStartName}, emitter.names())

	require.Eventually(t, func() bool {
		return len(emitter.names()) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []event.Name{event.TypingStartName, event.TypingStopName}, emitter.names())

	emitter.mu.Lock()
	start := emitter.events[0].(event.TypingStart)
	emitter.mu.Unlock()
	require.Equal(t, "c1", start.ConversationID)
	require.False(t, start.IsAdmin)
	require.Equal(t, "user_1", start.AnonymousToken)
}

func TestStopTypingIsImmediateAndIdempotent(t *testing.T) {
	emitter := &recordingEmitter{}
	s := NewSession(&fakeMessageAPI{admin: true}, emitter, SessionConfig{ConversationID: "c1", TypingTimeout: time.Hour})

	s.Typing()
	s.StopTyping()
	s.StopTyping()
	require.Equal(t, []event.Name{event.TypingStartName, event.TypingStopName}, emitter.names())

	// Sending also ends typing.
	s.Typing()
	_, err := s.Send(context.Background(), "done")
	require.NoError(t, err)
	require.Equal(t, []event.Name{event.TypingStartName, event.TypingStopName, event.TypingStartName, event.TypingStopName}, emitter.names())
}

func TestStaleTypingExpiryKeepsRearmedTyping(t *testing.T) {
	emitter := &recordingEmitter{}
	s := NewSession(&fakeMessageAPI{token: "user_1"}, emitter, SessionConfig{ConversationID: "c1", TypingTimeout: time.Hour})

	s.Typing()
	s.typingMu.Lock()
	first := s.typingGen
	s.typingMu.Unlock()

	s.Typing()
	s.expireTyping(first)
	require.Equal(t, []event.Name{event.TypingStartName}, emitter.names())

	s.typingMu.Lock()
	current := s.typingGen
	still := s.typing
	s.typingMu.Unlock()
	require.True(t, still)

	s.expireTyping(current)
	require.Equal(t, []event.Name{event.TypingStartName, event.TypingStopName}, emitter.names())
}

func TestTypingWithoutRelayIsNoop(t *testing.T) {
	s := NewSession(&fakeMessageAPI{}, nil, SessionConfig{ConversationID: "c1"})
	s.Typing()
	s.StopTyping()
}
