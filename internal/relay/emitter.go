package relay

import (
	"context"

	"support-chat-backend/internal/dto"
	"support-chat-backend/internal/logging"
	"support-chat-backend/internal/model"
	"support-chat-backend/internal/relay/event"
	"support-chat-backend/internal/service/conversation"

	"github.com/rs/zerolog/log"
)

const lastMessagePreviewRunes = 100

// Emitter turns store changes into relay events. Emission is fire and forget:
// failures are logged and never reach the caller.
type Emitter struct {
	broker Broker
}

func NewEmitter(broker Broker) *Emitter {
	return &Emitter{broker: broker}
}

func (e *Emitter) Publish(ctx context.Context, room string, ev event.Event) {
	e.PublishExcept(ctx, room, "", ev)
}

func (e *Emitter) PublishExcept(ctx context.Context, room, exceptSession string, ev event.Event) {
	frame, err := event.Encode(ev)
	if err != nil {
		incPublishFailures()
		log.Error().Err(err).Str("room", room).Msg("refusing to publish malformed relay event")
		return
	}
	if err := e.broker.Publish(ctx, Message{Room: room, Except: exceptSession, Event: frame}); err != nil {
		incPublishFailures()
		log.Warn().Err(err).Str("room", room).Str("event", string(ev.Name())).Msg("relay publish failed")
		return
	}
	incPublished(string(ev.Name()))
}

// Activity forwards presence activity for an anonymous token.
func (e *Emitter) Activity(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := e.broker.Publish(ctx, Message{ActivityToken: token}); err != nil {
		log.Warn().Err(err).Str("token", logging.ShortToken(token)).Msg("relay activity publish failed")
	}
}

// MessageCreated announces a persisted message. The sender's own session gets
// message_sent instead of receive_message. User messages also update the admin
// room: conversation_created first when the conversation had no message
// before this write, then conversation_updated.
func (e *Emitter) MessageCreated(ctx context.Context, result conversation.MessageResult, senderSession string) {
	message := dto.NewMessageResponse(result.Message)
	current := result.Change.Current

	e.PublishExcept(ctx, event.ConversationRoom(message.ConversationID), senderSession, event.ReceiveMessage{MessageResponse: message})
	if senderSession != "" {
		e.Publish(ctx, event.SessionRoom(senderSession), event.MessageSent{MessageResponse: message})
	}

	if result.Message.IsAdminMessage {
		return
	}

	organizationID := current.OrganizationID
	if organizationID == "" {
		log.Warn().Str("conversation", message.ConversationID).Msg("conversation without organization, skipping admin notification")
	} else {
		adminRoom := event.AdminRoom(organizationID)
		preview := Truncate(current.LastMessage, lastMessagePreviewRunes)

		if result.Change.PreviousKnown && !result.Change.Previous.HasMessages() {
			e.Publish(ctx, adminRoom, event.ConversationCreated{
				ConversationID: current.ConversationID,
				AnonymousToken: current.AnonymousToken,
				CreatedAt:      current.CreatedAt,
				LastMessage:    preview,
			})
		}

		e.Publish(ctx, adminRoom, event.ConversationUpdated{
			ConversationID: current.ConversationID,
			LastMessage:    preview,
			AnonymousToken: current.AnonymousToken,
			HasMessages:    true,
			UnreadCount:    current.UnreadCount,
			UpdatedAt:      current.UpdatedAt,
		})
	}

	e.Activity(ctx, current.AnonymousToken)
}

// MessagesRead emits one read receipt per message that changed state.
func (e *Emitter) MessagesRead(ctx context.Context, messages []model.MessageItem) {
	for _, message := range messages {
		e.Publish(ctx, event.ConversationRoom(message.ConversationID), event.MessageRead{
			MessageID:      message.MessageID,
			ConversationID: message.ConversationID,
			ReadAt:         message.ReadAt,
		})
	}
}

func (e *Emitter) ConversationClosed(ctx context.Context, conv model.ConversationItem) {
	ev := event.ConversationClosed{ConversationID: conv.ConversationID}
	e.Publish(ctx, event.ConversationRoom(conv.ConversationID), ev)
	if conv.OrganizationID != "" {
		e.Publish(ctx, event.AdminRoom(conv.OrganizationID), ev)
	}
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
