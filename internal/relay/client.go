package relay

import (
	"errors"
	"sync"
	"time"

	"support-chat-backend/internal/logging"
	"support-chat-backend/internal/service/conversation"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	pingPeriod     = 30 * time.Second
	pongWait       = 2 * pingPeriod
	writeWait      = 10 * time.Second
	maxFrameSize   = 512 * 1024
	sendBufferSize = 64
)

// Client is one relay transport session.
type Client struct {
	ID    string
	Admin *conversation.Identity

	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	done    chan struct{}
	mu      sync.Mutex

	// rooms is owned by the hub goroutine.
	rooms map[string]struct{}

	stateMu       sync.Mutex
	token         string
	conversations map[string]struct{}
}

func newClient(conn *websocket.Conn, id string, admin *conversation.Identity, limiter *rate.Limiter) *Client {
	return &Client{
		ID:            id,
		Admin:         admin,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		limiter:       limiter,
		done:          make(chan struct{}),
		rooms:         make(map[string]struct{}),
		conversations: make(map[string]struct{}),
	}
}

func (cl *Client) IsAdmin() bool {
	return cl.Admin != nil
}

// Token is the anonymous token bound by a successful join.
func (cl *Client) Token() string {
	cl.stateMu.Lock()
	defer cl.stateMu.Unlock()
	return cl.token
}

func (cl *Client) enterConversation(conversationID, token string) {
	cl.stateMu.Lock()
	defer cl.stateMu.Unlock()
	cl.conversations[conversationID] = struct{}{}
	if token != "" {
		cl.token = token
	}
}

func (cl *Client) exitConversation(conversationID string) {
	cl.stateMu.Lock()
	defer cl.stateMu.Unlock()
	delete(cl.conversations, conversationID)
}

func (cl *Client) inConversation(conversationID string) bool {
	cl.stateMu.Lock()
	defer cl.stateMu.Unlock()
	_, ok := cl.conversations[conversationID]
	return ok
}

func (cl *Client) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-cl.done:
			return
		case <-ticker.C:
			cl.mu.Lock()
			err := cl.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			cl.mu.Unlock()

			if err != nil {
				log.Debug().Err(err).Str("session", cl.ID).Msg("relay ping failed")
				return
			}
		}
	}
}

func (cl *Client) writePump() {
	defer cl.conn.Close()

	for {
		select {
		case <-cl.done:
			return
		case payload, ok := <-cl.send:
			cl.mu.Lock()
			if !ok {
				cl.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				cl.mu.Unlock()
				return
			}
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := cl.conn.WriteMessage(websocket.TextMessage, payload)
			cl.mu.Unlock()

			if err != nil {
				log.Debug().Err(err).Str("session", cl.ID).Msg("relay write failed")
				return
			}
		}
	}
}

// readPump reads frames until the connection fails and hands each allowed
// frame to dispatch. onClose runs exactly once when the loop ends.
func (cl *Client) readPump(dispatch func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("session", cl.ID).Msg("recovered in relay read loop")
		}
		close(cl.done)
		onClose(cl)
		log.Debug().Str("session", cl.ID).Str("token", logging.ShortToken(cl.Token())).Msg("relay client disconnected")
	}()

	cl.conn.SetReadLimit(maxFrameSize)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := cl.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) || !isNormalClose(closeErr.Code) {
				log.Debug().Err(err).Str("session", cl.ID).Msg("relay read failed")
			}
			return
		}
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))

		if cl.limiter != nil && !cl.limiter.Allow() {
			log.Debug().Str("session", cl.ID).Msg("relay frame rate exceeded, dropping frame")
			continue
		}
		dispatch(cl, message)
	}
}

func isNormalClose(code int) bool {
	return code == websocket.CloseNormalClosure ||
		code == websocket.CloseGoingAway ||
		code == websocket.CloseNoStatusReceived
}
