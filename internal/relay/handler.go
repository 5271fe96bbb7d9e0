package relay

import (
	"context"
	"net/http"
	"strings"
	"time"

	"support-chat-backend/internal/logging"
	"support-chat-backend/internal/model"
	"support-chat-backend/internal/relay/event"
	"support-chat-backend/internal/service/conversation"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const dispatchTimeout = 5 * time.Second

// Conversations is the part of the conversation service the relay needs.
type Conversations interface {
	AdminFromToken(token string) (conversation.Identity, error)
	AuthorizeAdminConversation(ctx context.Context, identity conversation.Identity, conversationID string) (model.ConversationItem, error)
}

// Presence is the presence tracker as seen by the relay.
type Presence interface {
	Join(ctx context.Context, token, conversationID, sessionID string) bool
	Activity(token string)
	Heartbeat(token string)
	Disconnect(sessionID string)
}

type HandlerConfig struct {
	FrameRate  rate.Limit
	FrameBurst int
	// CheckOrigin defaults to accepting every origin.
	CheckOrigin func(r *http.Request) bool
}

type Handler struct {
	hub           *Hub
	conversations Conversations
	presence      Presence
	upgrader      websocket.Upgrader
	cfg           HandlerConfig
}

func NewHandler(hub *Hub, conversations Conversations, presence Presence, cfg HandlerConfig) *Handler {
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 20
	}
	if cfg.FrameBurst <= 0 {
		cfg.FrameBurst = 40
	}
	return &Handler{
		hub:           hub,
		conversations: conversations,
		presence:      presence,
		cfg:           cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (h *Handler) Hub() *Hub {
	return h.hub
}

// ServeWS upgrades the request. A token query parameter authenticates an
// admin; without it the session is anonymous until it joins a conversation.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) error {
	var admin *conversation.Identity
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		identity, err := h.conversations.AdminFromToken(token)
		if err != nil {
			return err
		}
		admin = &identity
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("relay upgrade failed")
		return nil
	}

	client := newClient(conn, uuid.NewString(), admin, rate.NewLimiter(h.cfg.FrameRate, h.cfg.FrameBurst))
	h.hub.Register(client)

	if ready, err := event.Encode(event.SessionReady{SessionID: client.ID}); err == nil {
		h.hub.Broadcast(Frame{Room: event.SessionRoom(client.ID), Payload: ready})
	}

	go client.keepAlive()
	go client.writePump()
	go client.readPump(h.dispatch, h.closed)

	log.Debug().Str("session", client.ID).Bool("admin", admin != nil).Msg("relay client connected")
	return nil
}

func (h *Handler) closed(client *Client) {
	h.hub.Unregister(client)
	if !client.IsAdmin() {
		h.presence.Disconnect(client.ID)
	}
}

// dispatch handles one inbound frame. Malformed or unauthorized frames are
// dropped without a reply.
func (h *Handler) dispatch(client *Client, frame []byte) {
	ev, err := event.Decode(frame)
	if err != nil {
		log.Debug().Err(err).Str("session", client.ID).Msg("dropping relay frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	switch e := ev.(type) {
	case event.JoinConversation:
		h.joinConversation(ctx, client, e)

	case event.LeaveConversation:
		client.exitConversation(e.ConversationID)
		h.hub.Leave(client.ID, event.ConversationRoom(e.ConversationID))

	case event.JoinAdminRoom:
		if client.Admin == nil || client.Admin.OrganizationID != e.OrganizationID {
			log.Debug().Str("session", client.ID).Str("organization", e.OrganizationID).Msg("admin room join refused")
			return
		}
		h.hub.Join(client.ID, event.AdminRoom(e.OrganizationID))

	case event.Heartbeat:
		if token := client.Token(); token != "" && token == e.AnonymousToken {
			h.presence.Heartbeat(token)
		}

	case event.UserActivity:
		if token := client.Token(); token != "" && token == e.AnonymousToken {
			h.presence.Activity(token)
		}

	case event.TypingStart:
		h.relayTyping(client, e.Typing, true)

	case event.TypingStop:
		h.relayTyping(client, e.Typing, false)

	case event.MessageRead:
		if !client.inConversation(e.ConversationID) {
			return
		}
		h.forward(client, event.ConversationRoom(e.ConversationID), e)

	default:
		log.Debug().Str("session", client.ID).Str("event", string(ev.Name())).Msg("ignoring server-side event from client")
	}
}

func (h *Handler) joinConversation(ctx context.Context, client *Client, e event.JoinConversation) {
	if client.Admin != nil {
		if _, err := h.conversations.AuthorizeAdminConversation(ctx, *client.Admin, e.ConversationID); err != nil {
			log.Debug().Err(err).Str("session", client.ID).Str("conversation", e.ConversationID).Msg("admin join refused")
			return
		}
		client.enterConversation(e.ConversationID, "")
		h.hub.Join(client.ID, event.ConversationRoom(e.ConversationID))
		return
	}

	if !h.presence.Join(ctx, e.AnonymousToken, e.ConversationID, client.ID) {
		return
	}
	client.enterConversation(e.ConversationID, e.AnonymousToken)
	h.hub.Join(client.ID, event.ConversationRoom(e.ConversationID))
	log.Debug().Str("session", client.ID).Str("conversation", e.ConversationID).Str("token", logging.ShortToken(e.AnonymousToken)).Msg("joined conversation")
}

func (h *Handler) relayTyping(client *Client, typing event.Typing, start bool) {
	if !client.inConversation(typing.ConversationID) {
		return
	}

	typing.IsAdmin = client.IsAdmin()
	typing.AnonymousToken = ""
	if !typing.IsAdmin {
		typing.AnonymousToken = client.Token()
		h.presence.Activity(typing.AnonymousToken)
	}

	room := event.ConversationRoom(typing.ConversationID)
	if start {
		h.forward(client, room, event.UserTyping{Typing: typing})
	} else {
		h.forward(client, room, event.UserStopTyping{Typing: typing})
	}
}

func (h *Handler) forward(client *Client, room string, ev event.Event) {
	frame, err := event.Encode(ev)
	if err != nil {
		log.Debug().Err(err).Str("session", client.ID).Msg("dropping invalid relay event")
		return
	}
	h.hub.Broadcast(Frame{Room: room, Except: client.ID, Payload: frame})
	incPublished(string(ev.Name()))
}
