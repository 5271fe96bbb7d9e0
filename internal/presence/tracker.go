// Package presence infers whether anonymous visitors are connected and
// announces online/offline transitions to their organization's admin room.
package presence

import (
	"context"
	"sync"
	"time"

	"support-chat-backend/internal/logging"
	"support-chat-backend/internal/relay/event"
	"support-chat-backend/internal/service/conversation"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	DefaultIdleTimeout = 2 * time.Minute
	DefaultEvictAfter  = time.Hour
	DefaultSweepSpec   = "@every 30s"
)

type Validator interface {
	ValidateParticipant(ctx context.Context, token, conversationID string) (conversation.Participant, error)
}

type Publisher interface {
	Publish(ctx context.Context, room string, ev event.Event)
}

type Config struct {
	IdleTimeout time.Duration
	EvictAfter  time.Duration
	SweepSpec   string
	Now         func() time.Time
}

// Session is a copy of one tracked anonymous session.
type Session struct {
	Token              string
	ConversationID     string
	OrganizationID     string
	TransportSessionID string
	LastActiveAt       time.Time
	Online             bool
}

type notice struct {
	room string
	ev   event.Event
}

type Tracker struct {
	validator Validator
	publisher Publisher
	cfg       Config

	mu          sync.Mutex
	sessions    map[string]*Session
	byTransport map[string]string
	online      int

	engine *cron.Cron
}

func NewTracker(validator Validator, publisher Publisher, cfg Config) *Tracker {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.EvictAfter <= 0 {
		cfg.EvictAfter = DefaultEvictAfter
	}
	if cfg.SweepSpec == "" {
		cfg.SweepSpec = DefaultSweepSpec
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Tracker{
		validator:   validator,
		publisher:   publisher,
		cfg:         cfg,
		sessions:    make(map[string]*Session),
		byTransport: make(map[string]string),
		engine:      cron.New(cron.WithSeconds()),
	}
}

type sweepJob struct {
	tracker *Tracker
}

func (j sweepJob) Run() {
	j.tracker.Sweep(j.tracker.cfg.Now())
}

// Start schedules the periodic sweep.
func (t *Tracker) Start() error {
	if _, err := t.engine.AddJob(t.cfg.SweepSpec, cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(sweepJob{tracker: t})); err != nil {
		return err
	}
	t.engine.Start()
	log.Info().Str("spec", t.cfg.SweepSpec).Dur("idle_timeout", t.cfg.IdleTimeout).Msg("presence sweep started")
	return nil
}

// Stop halts the sweep and waits for a running pass to finish.
func (t *Tracker) Stop() {
	<-t.engine.Stop().Done()
	log.Info().Msg("presence sweep stopped")
}

// Join binds token to a conversation and transport session once the record
// store confirms the token owns the conversation. Validation failures are
// silent. It reports whether the join was accepted.
func (t *Tracker) Join(ctx context.Context, token, conversationID, transportSessionID string) bool {
	if token == "" || conversationID == "" || transportSessionID == "" {
		return false
	}

	participant, err := t.validator.ValidateParticipant(ctx, token, conversationID)
	if err != nil {
		log.Debug().Err(err).Str("token", logging.ShortToken(token)).Str("conversation", conversationID).Msg("presence join rejected")
		return false
	}

	now := t.cfg.Now()
	var notices []notice

	t.mu.Lock()
	s, exists := t.sessions[token]
	if !exists {
		s = &Session{Token: token}
		t.sessions[token] = s
	}

	if s.TransportSessionID != "" && s.TransportSessionID != transportSessionID {
		if t.byTransport[s.TransportSessionID] == token {
			delete(t.byTransport, s.TransportSessionID)
		}
	}
	t.byTransport[transportSessionID] = token

	if s.Online && s.ConversationID != participant.ConversationID {
		notices = append(notices, t.goOffline(s))
	}

	s.ConversationID = participant.ConversationID
	s.OrganizationID = participant.OrganizationID
	s.TransportSessionID = transportSessionID
	s.LastActiveAt = now
	if !s.Online {
		notices = append(notices, t.goOnline(s))
	}
	t.updateGauges()
	t.mu.Unlock()

	t.publish(ctx, notices)
	return true
}

// Activity refreshes a session. A session that had gone offline comes back
// online and is announced again.
func (t *Tracker) Activity(token string) {
	t.touch(token)
}

// Heartbeat has the same effect as Activity; clients send it on a timer so
// idle visitors stay online.
func (t *Tracker) Heartbeat(token string) {
	t.touch(token)
}

func (t *Tracker) touch(token string) {
	if token == "" {
		return
	}
	now := t.cfg.Now()
	var notices []notice

	t.mu.Lock()
	s, ok := t.sessions[token]
	if !ok {
		t.mu.Unlock()
		return
	}
	s.LastActiveAt = now
	if !s.Online {
		notices = append(notices, t.goOnline(s))
		t.updateGauges()
	}
	t.mu.Unlock()

	t.publish(context.Background(), notices)
}

// Disconnect marks the session bound to transportSessionID offline. A
// transport session the token has already moved away from is ignored.
func (t *Tracker) Disconnect(transportSessionID string) {
	var notices []notice

	t.mu.Lock()
	token, ok := t.byTransport[transportSessionID]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.byTransport, transportSessionID)

	s, ok := t.sessions[token]
	if ok && s.TransportSessionID == transportSessionID {
		s.TransportSessionID = ""
		if s.Online {
			notices = append(notices, t.goOffline(s))
			t.updateGauges()
		}
	}
	t.mu.Unlock()

	t.publish(context.Background(), notices)
}

// Sweep flips sessions idle for longer than the idle timeout offline and
// forgets sessions that have been inactive past the eviction window.
func (t *Tracker) Sweep(now time.Time) {
	var notices []notice
	evicted := 0

	t.mu.Lock()
	for token, s := range t.sessions {
		idle := now.Sub(s.LastActiveAt)
		if s.Online && idle > t.cfg.IdleTimeout {
			notices = append(notices, t.goOffline(s))
		}
		if !s.Online && idle > t.cfg.EvictAfter {
			if s.TransportSessionID != "" && t.byTransport[s.TransportSessionID] == token {
				delete(t.byTransport, s.TransportSessionID)
			}
			delete(t.sessions, token)
			evicted++
		}
	}
	t.updateGauges()
	t.mu.Unlock()

	if len(notices) > 0 || evicted > 0 {
		log.Debug().Int("offline", len(notices)).Int("evicted", evicted).Msg("presence sweep")
	}
	t.publish(context.Background(), notices)
}

// IsOnline reports whether token is online and active within the idle
// timeout at the time of the call.
func (t *Tracker) IsOnline(token string) bool {
	now := t.cfg.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[token]
	return ok && s.Online && now.Sub(s.LastActiveAt) <= t.cfg.IdleTimeout
}

func (t *Tracker) Snapshot() []Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, *s)
	}
	return out
}

func (t *Tracker) goOnline(s *Session) notice {
	s.Online = true
	t.online++
	return notice{
		room: event.AdminRoom(s.OrganizationID),
		ev:   event.UserOnline{Presence: event.Presence{ConversationID: s.ConversationID, AnonymousToken: s.Token}},
	}
}

func (t *Tracker) goOffline(s *Session) notice {
	s.Online = false
	t.online--
	return notice{
		room: event.AdminRoom(s.OrganizationID),
		ev:   event.UserOffline{Presence: event.Presence{ConversationID: s.ConversationID, AnonymousToken: s.Token}},
	}
}

func (t *Tracker) updateGauges() {
	onlineSessions.Set(float64(t.online))
	trackedSessions.Set(float64(len(t.sessions)))
}

func (t *Tracker) publish(ctx context.Context, notices []notice) {
	if t.publisher == nil {
		return
	}
	for _, n := range notices {
		t.publisher.Publish(ctx, n.room, n.ev)
	}
}
