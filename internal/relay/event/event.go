// Package event defines the relay wire protocol. Every frame is an envelope
// {"event": name, "data": payload}; payloads are a closed set of structs.
package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"support-chat-backend/internal/dto"
)

type Name string

const (
	JoinConversationName    Name = "join_conversation"
	LeaveConversationName   Name = "leave_conversation"
	JoinAdminRoomName       Name = "join_admin_room"
	HeartbeatName           Name = "heartbeat"
	UserActivityName        Name = "user_activity"
	TypingStartName         Name = "typing_start"
	TypingStopName          Name = "typing_stop"
	UserTypingName          Name = "user_typing"
	UserStopTypingName      Name = "user_stop_typing"
	SessionReadyName        Name = "session_ready"
	ReceiveMessageName      Name = "receive_message"
	MessageSentName         Name = "message_sent"
	ConversationCreatedName Name = "conversation_created"
	ConversationUpdatedName Name = "conversation_updated"
	ConversationClosedName  Name = "conversation_closed"
	UserOnlineName          Name = "user_online"
	UserOfflineName         Name = "user_offline"
	MessageReadName         Name = "message_read"
)

var (
	ErrUnknownEvent   = errors.New("event: unknown event")
	ErrInvalidPayload = errors.New("event: invalid payload")
)

// Event is implemented only by the payload types of this package.
type Event interface {
	Name() Name
	event()
}

type Envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var registry = map[Name]func([]byte) (Event, error){
	JoinConversationName:    decodeAs[JoinConversation],
	LeaveConversationName:   decodeAs[LeaveConversation],
	JoinAdminRoomName:       decodeAs[JoinAdminRoom],
	HeartbeatName:           decodeAs[Heartbeat],
	UserActivityName:        decodeAs[UserActivity],
	TypingStartName:         decodeAs[TypingStart],
	TypingStopName:          decodeAs[TypingStop],
	UserTypingName:          decodeAs[UserTyping],
	UserStopTypingName:      decodeAs[UserStopTyping],
	SessionReadyName:        decodeAs[SessionReady],
	ReceiveMessageName:      decodeAs[ReceiveMessage],
	MessageSentName:         decodeAs[MessageSent],
	ConversationCreatedName: decodeAs[ConversationCreated],
	ConversationUpdatedName: decodeAs[ConversationUpdated],
	ConversationClosedName:  decodeAs[ConversationClosed],
	UserOnlineName:          decodeAs[UserOnline],
	UserOfflineName:         decodeAs[UserOffline],
	MessageReadName:         decodeAs[MessageRead],
}

func decodeAs[T Event](data []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func Validate(ev Event) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidPayload)
	}
	if err := dto.Validate(ev); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, ev.Name(), err)
	}
	return nil
}

// Encode validates ev and renders its envelope.
func Encode(ev Event) ([]byte, error) {
	if err := Validate(ev); err != nil {
		return nil, err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("event: marshal %s: %w", ev.Name(), err)
	}
	return json.Marshal(Envelope{Event: ev.Name(), Data: data})
}

// Decode parses an envelope and returns its validated payload.
func Decode(frame []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return DecodeEnvelope(env)
}

func DecodeEnvelope(env Envelope) (Event, error) {
	decode, ok := registry[env.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	data := env.Data
	if len(data) == 0 || string(data) == "null" {
		data = []byte("{}")
	}
	ev, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.Event, err)
	}
	if err := Validate(ev); err != nil {
		return nil, err
	}
	return ev, nil
}
