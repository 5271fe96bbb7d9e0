package client

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"support-chat-backend/internal/dto"
	"support-chat-backend/internal/model"
	"support-chat-backend/internal/relay/event"

	"github.com/rs/zerolog/log"
)

const (
	DefaultTypingTimeout = 2 * time.Second
	DefaultPollInterval  = 2 * time.Second
)

// MessageAPI is the REST surface a chat session needs.
type MessageAPI interface {
	IsAdmin() bool
	AnonymousToken() string
	ListMessages(ctx context.Context, conversationID string) ([]dto.MessageResponse, error)
	PostMessage(ctx context.Context, conversationID, content string) (dto.MessageResponse, error)
	MarkMessageRead(ctx context.Context, messageID string) (dto.MessageResponse, error)
	Upload(ctx context.Context, conversationID string, file FileUpload) (dto.UploadResponse, error)
}

// Emitter sends relay events. *Stream implements it.
type Emitter interface {
	Emit(ev event.Event) error
}

type SessionConfig struct {
	ConversationID string
	TypingTimeout  time.Duration
	PollInterval   time.Duration
	// OnChange receives the message list after every change.
	OnChange func([]dto.MessageResponse)
}

// Session is the state of one open conversation. Messages from the HTTP
// answers, relay events and polling are merged by id, so any of them may
// deliver the same message without duplicating it.
type Session struct {
	api     MessageAPI
	emitter Emitter
	cfg     SessionConfig

	mu       sync.Mutex
	messages []dto.MessageResponse
	index    map[string]int

	typingMu    sync.Mutex
	typing      bool
	typingTimer *time.Timer
	typingGen   uint64
}

// NewSession builds a session. emitter may be nil when no relay is
// available; typing indicators are then skipped.
func NewSession(api MessageAPI, emitter Emitter, cfg SessionConfig) *Session {
	if cfg.TypingTimeout <= 0 {
		cfg.TypingTimeout = DefaultTypingTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Session{
		api:     api,
		emitter: emitter,
		cfg:     cfg,
		index:   make(map[string]int),
	}
}

func (s *Session) ConversationID() string {
	return s.cfg.ConversationID
}

// Messages returns a copy of the list in ascending creation order.
func (s *Session) Messages() []dto.MessageResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dto.MessageResponse, len(s.messages))
	copy(out, s.messages)
	return out
}

// LoadHistory fetches every message. Admin sessions then mark unread
// visitor messages read.
func (s *Session) LoadHistory(ctx context.Context) error {
	messages, err := s.api.ListMessages(ctx, s.cfg.ConversationID)
	if err != nil {
		return err
	}
	s.merge(messages...)
	if s.api.IsAdmin() {
		return s.markVisible(ctx, messages)
	}
	return nil
}

func (s *Session) Send(ctx context.Context, content string) (dto.MessageResponse, error) {
	if strings.TrimSpace(content) == "" {
		return dto.MessageResponse{}, errors.New("client: message content is empty")
	}
	msg, err := s.api.PostMessage(ctx, s.cfg.ConversationID, content)
	if err != nil {
		return dto.MessageResponse{}, err
	}
	s.StopTyping()
	s.merge(msg)
	return msg, nil
}

// SendFile uploads one attachment, typed by its MIME prefix.
func (s *Session) SendFile(ctx context.Context, name, contentType string, body io.Reader) (dto.MessageResponse, error) {
	resp, err := s.api.Upload(ctx, s.cfg.ConversationID, FileUpload{
		Name:        name,
		ContentType: contentType,
		Body:        body,
		MessageType: string(model.MessageTypeForMIME(contentType)),
	})
	if err != nil {
		return dto.MessageResponse{}, err
	}
	s.merge(resp.Message)
	return resp.Message, nil
}

// MarkRead marks one message read. Messages already known to be read are
// not requested again.
func (s *Session) MarkRead(ctx context.Context, messageID string) error {
	s.mu.Lock()
	if i, ok := s.index[messageID]; ok && s.messages[i].IsRead {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	msg, err := s.api.MarkMessageRead(ctx, messageID)
	if err != nil {
		return err
	}
	s.merge(msg)
	return nil
}

// HandleEvent folds a relay event for this conversation into the list.
func (s *Session) HandleEvent(ev event.Event) {
	switch e := ev.(type) {
	case event.ReceiveMessage:
		if e.ConversationID == s.cfg.ConversationID {
			s.merge(e.MessageResponse)
		}
	case event.MessageSent:
		if e.ConversationID == s.cfg.ConversationID {
			s.merge(e.MessageResponse)
		}
	case event.MessageRead:
		if e.ConversationID == s.cfg.ConversationID {
			s.applyRead(e.MessageID, e.ReadAt)
		}
	}
}

// Typing announces typing once and re-arms the inactivity timer that ends
// it.
func (s *Session) Typing() {
	if s.emitter == nil {
		return
	}

	s.typingMu.Lock()
	defer s.typingMu.Unlock()

	if !s.typing {
		if err := s.emitter.Emit(event.TypingStart{Typing: s.typingPayload()}); err != nil {
			log.Debug().Err(err).Str("conversation", s.cfg.ConversationID).Msg("typing start not sent")
			return
		}
		s.typing = true
	}

	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingGen++
	gen := s.typingGen
	s.typingTimer = time.AfterFunc(s.cfg.TypingTimeout, func() { s.expireTyping(gen) })
}

func (s *Session) StopTyping() {
	if s.emitter == nil {
		return
	}

	s.typingMu.Lock()
	defer s.typingMu.Unlock()
	s.stopTypingLocked()
}

// expireTyping ends typing for the timer armed as gen. A timer that fired
// while Typing was re-arming is stale and ignored.
func (s *Session) expireTyping(gen uint64) {
	s.typingMu.Lock()
	defer s.typingMu.Unlock()

	if gen != s.typingGen {
		return
	}
	s.stopTypingLocked()
}

func (s *Session) stopTypingLocked() {
	s.typingGen++
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	if !s.typing {
		return
	}
	s.typing = false
	if err := s.emitter.Emit(event.TypingStop{Typing: s.typingPayload()}); err != nil {
		log.Debug().Err(err).Str("conversation", s.cfg.ConversationID).Msg("typing stop not sent")
	}
}

func (s *Session) typingPayload() event.Typing {
	return event.Typing{
		ConversationID: s.cfg.ConversationID,
		IsAdmin:        s.api.IsAdmin(),
		AnonymousToken: s.api.AnonymousToken(),
	}
}

// Poll refetches the history on a fixed interval until ctx is done. It is
// safe to run alongside the relay path.
func (s *Session) Poll(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.pollOnce(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("conversation", s.cfg.ConversationID).Msg("message poll failed")
			}
		}
	}
}

func (s *Session) pollOnce(ctx context.Context) error {
	messages, err := s.api.ListMessages(ctx, s.cfg.ConversationID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	known := len(s.messages)
	s.mu.Unlock()

	changed := s.merge(messages...)
	if len(messages) <= known && !changed {
		return nil
	}
	if s.api.IsAdmin() {
		return s.markVisible(ctx, messages)
	}
	return nil
}

func (s *Session) markVisible(ctx context.Context, messages []dto.MessageResponse) error {
	var errs []error
	for _, m := range messages {
		if m.IsAdminMessage || m.IsRead {
			continue
		}
		if err := s.MarkRead(ctx, m.MessageID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// merge inserts or updates messages by id. Read state only moves forward.
func (s *Session) merge(messages ...dto.MessageResponse) bool {
	s.mu.Lock()
	changed := false
	appended := false
	for _, m := range messages {
		if m.MessageID == "" || (m.ConversationID != "" && m.ConversationID != s.cfg.ConversationID) {
			continue
		}
		i, ok := s.index[m.MessageID]
		if !ok {
			s.index[m.MessageID] = len(s.messages)
			s.messages = append(s.messages, m)
			changed, appended = true, true
			continue
		}
		current := &s.messages[i]
		if m.IsRead && !current.IsRead {
			current.IsRead = true
			current.ReadAt = m.ReadAt
			changed = true
		}
	}
	if appended {
		sort.SliceStable(s.messages, func(i, j int) bool {
			return parseTime(s.messages[i].CreatedAt).Before(parseTime(s.messages[j].CreatedAt))
		})
		for i, m := range s.messages {
			s.index[m.MessageID] = i
		}
	}
	snapshot := s.snapshotIfChanged(changed)
	s.mu.Unlock()

	s.notify(snapshot)
	return changed
}

func (s *Session) applyRead(messageID, readAt string) {
	s.mu.Lock()
	changed := false
	if i, ok := s.index[messageID]; ok && !s.messages[i].IsRead {
		s.messages[i].IsRead = true
		s.messages[i].ReadAt = readAt
		changed = true
	}
	snapshot := s.snapshotIfChanged(changed)
	s.mu.Unlock()

	s.notify(snapshot)
}

// snapshotIfChanged must be called with s.mu held.
func (s *Session) snapshotIfChanged(changed bool) []dto.MessageResponse {
	if !changed || s.cfg.OnChange == nil {
		return nil
	}
	out := make([]dto.MessageResponse, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) notify(snapshot []dto.MessageResponse) {
	if snapshot != nil {
		s.cfg.OnChange(snapshot)
	}
}
