package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"support-chat-backend/internal/logging"
	"support-chat-backend/internal/relay/event"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	defaultMinBackoff        = 500 * time.Millisecond
	defaultMaxBackoff        = 15 * time.Second
	streamWriteWait          = 10 * time.Second
	streamReadWait           = 75 * time.Second
	streamBufferSize         = 64
)

var ErrNotConnected = errors.New("client: relay stream not connected")

type StreamConfig struct {
	URL string
	// AnonymousToken enables heartbeats for visitor sessions.
	AnonymousToken    string
	HeartbeatInterval time.Duration
	MinBackoff        time.Duration
	MaxBackoff        time.Duration
	Dialer            *websocket.Dialer
}

// Stream is a reconnecting relay connection. Room joins are remembered and
// replayed after every reconnect; events received while nobody reads
// Events are dropped.
type Stream struct {
	cfg    StreamConfig
	events chan event.Event

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	joins     map[string]event.Event
}

func NewStream(cfg StreamConfig) *Stream {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Stream{
		cfg:    cfg,
		events: make(chan event.Event, streamBufferSize),
		joins:  make(map[string]event.Event),
	}
}

// Events is closed when Run returns.
func (s *Stream) Events() <-chan event.Event {
	return s.events
}

// Connected drives the reconnecting indicator.
func (s *Stream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// SessionID is the relay session of the current connection, empty while
// disconnected.
func (s *Stream) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Stream) JoinConversation(conversationID string) error {
	return s.remember("conversation:"+conversationID, event.JoinConversation{
		ConversationID: conversationID,
		AnonymousToken: s.cfg.AnonymousToken,
	})
}

func (s *Stream) LeaveConversation(conversationID string) error {
	s.mu.Lock()
	delete(s.joins, "conversation:"+conversationID)
	s.mu.Unlock()
	return s.Emit(event.LeaveConversation{ConversationID: conversationID})
}

func (s *Stream) JoinAdminRoom(organizationID string) error {
	return s.remember("admin:"+organizationID, event.JoinAdminRoom{OrganizationID: organizationID})
}

// remember records a join for replay and sends it now if connected.
func (s *Stream) remember(key string, ev event.Event) error {
	if err := event.Validate(ev); err != nil {
		return err
	}
	s.mu.Lock()
	s.joins[key] = ev
	s.mu.Unlock()

	if err := s.Emit(ev); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

// Emit sends one event on the current connection.
func (s *Stream) Emit(ev event.Event) error {
	frame, err := event.Encode(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	return s.write(s.conn, frame)
}

// write must be called with s.mu held.
func (s *Stream) write(conn *websocket.Conn, frame []byte) error {
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// Run keeps the stream connected until ctx is done.
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.events)

	backoff := s.cfg.MinBackoff
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = s.cfg.MinBackoff
		}
		log.Debug().Err(err).Dur("retry_in", backoff).Msg("relay stream disconnected")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, s.cfg.MaxBackoff)
	}
}

// session runs one connection until it fails. connected reports whether the
// dial succeeded.
func (s *Stream) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return false, err
	}

	conn.SetReadDeadline(time.Now().Add(streamReadWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(streamReadWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(streamWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.heartbeat(conn, stop)
	}()
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	err = s.readLoop(conn)

	s.mu.Lock()
	s.conn = nil
	s.sessionID = ""
	s.mu.Unlock()
	close(stop)
	wg.Wait()
	conn.Close()
	return true, err
}

func (s *Stream) readLoop(conn *websocket.Conn) error {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(streamReadWait))

		ev, err := event.Decode(frame)
		if err != nil {
			log.Debug().Err(err).Msg("dropping relay frame")
			continue
		}
		if ready, ok := ev.(event.SessionReady); ok {
			s.ready(conn, ready.SessionID)
		}

		select {
		case s.events <- ev:
		default:
			log.Debug().Str("event", string(ev.Name())).Msg("relay stream buffer full, dropping event")
		}
	}
}

// ready records the session id and replays the remembered joins.
func (s *Stream) ready(conn *websocket.Conn, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
	for _, ev := range s.joins {
		frame, err := event.Encode(ev)
		if err != nil {
			continue
		}
		if err := s.write(conn, frame); err != nil {
			log.Debug().Err(err).Str("session", sessionID).Msg("failed to replay join")
			return
		}
	}
}

func (s *Stream) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	if s.cfg.AnonymousToken == "" {
		return
	}
	frame, err := event.Encode(event.Heartbeat{AnonymousToken: s.cfg.AnonymousToken})
	if err != nil {
		return
	}

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			err := s.write(conn, frame)
			s.mu.Unlock()
			if err != nil {
				log.Debug().Err(err).Str("token", logging.ShortToken(s.cfg.AnonymousToken)).Msg("heartbeat failed")
				return
			}
		}
	}
}
