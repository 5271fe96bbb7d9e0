package event

import "support-chat-backend/internal/dto"

type JoinConversation struct {
	ConversationID string `json:"conversationId" validate:"required,max=64"`
	AnonymousToken string `json:"anonymousToken,omitempty" validate:"max=128"`
}

type LeaveConversation struct {
	ConversationID string `json:"conversationId" validate:"required,max=64"`
}

type JoinAdminRoom struct {
	OrganizationID string `json:"organizationId" validate:"required,max=64"`
}

type Heartbeat struct {
	AnonymousToken string `json:"anonymousToken" validate:"required,max=128"`
}

type UserActivity struct {
	AnonymousToken string `json:"anonymousToken" validate:"required,max=128"`
}

// Typing is shared by the typing request and broadcast variants.
type Typing struct {
	ConversationID string `json:"conversationId" validate:"required,max=64"`
	IsAdmin        bool   `json:"isAdmin"`
	AnonymousToken string `json:"anonymousToken,omitempty" validate:"max=128"`
}

type TypingStart struct{ Typing }
type TypingStop struct{ Typing }
type UserTyping struct{ Typing }
type UserStopTyping struct{ Typing }

type SessionReady struct {
	SessionID string `json:"sessionId" validate:"required"`
}

type ReceiveMessage struct{ dto.MessageResponse }
type MessageSent struct{ dto.MessageResponse }

type ConversationCreated struct {
	ConversationID string `json:"conversationId" validate:"required"`
	AnonymousToken string `json:"anonymousToken"`
	CreatedAt      string `json:"createdAt"`
	LastMessage    string `json:"lastMessage"`
}

type ConversationUpdated struct {
	ConversationID string `json:"conversationId" validate:"required"`
	LastMessage    string `json:"lastMessage"`
	AnonymousToken string `json:"anonymousToken"`
	HasMessages    bool   `json:"hasMessages"`
	UnreadCount    int    `json:"unreadCount" validate:"min=0"`
	UpdatedAt      string `json:"updatedAt"`
}

type ConversationClosed struct {
	ConversationID string `json:"conversationId" validate:"required"`
}

// Presence is shared by the online and offline variants.
type Presence struct {
	ConversationID string `json:"conversationId" validate:"required"`
	AnonymousToken string `json:"anonymousToken" validate:"required"`
}

type UserOnline struct{ Presence }
type UserOffline struct{ Presence }

type MessageRead struct {
	MessageID      string `json:"messageId" validate:"required"`
	ConversationID string `json:"conversationId" validate:"required"`
	ReadAt         string `json:"readAt"`
}

func (JoinConversation) Name() Name    { return JoinConversationName }
func (LeaveConversation) Name() Name   { return LeaveConversationName }
func (JoinAdminRoom) Name() Name       { return JoinAdminRoomName }
func (Heartbeat) Name() Name           { return HeartbeatName }
func (UserActivity) Name() Name        { return UserActivityName }
func (TypingStart) Name() Name         { return TypingStartName }
func (TypingStop) Name() Name          { return TypingStopName }
func (UserTyping) Name() Name          { return UserTypingName }
func (UserStopTyping) Name() Name      { return UserStopTypingName }
func (SessionReady) Name() Name        { return SessionReadyName }
func (ReceiveMessage) Name() Name      { return ReceiveMessageName }
func (MessageSent) Name() Name         { return MessageSentName }
func (ConversationCreated) Name() Name { return ConversationCreatedName }
func (ConversationUpdated) Name() Name { return ConversationUpdatedName }
func (ConversationClosed) Name() Name  { return ConversationClosedName }
func (UserOnline) Name() Name          { return UserOnlineName }
func (UserOffline) Name() Name         { return UserOfflineName }
func (MessageRead) Name() Name         { return MessageReadName }

func (JoinConversation) event()    {}
func (LeaveConversation) event()   {}
func (JoinAdminRoom) event()       {}
func (Heartbeat) event()           {}
func (UserActivity) event()        {}
func (TypingStart) event()         {}
func (TypingStop) event()          {}
func (UserTyping) event()          {}
func (UserStopTyping) event()      {}
func (SessionReady) event()        {}
func (ReceiveMessage) event()      {}
func (MessageSent) event()         {}
func (ConversationCreated) event() {}
func (ConversationUpdated) event() {}
func (ConversationClosed) event()  {}
func (UserOnline) event()          {}
func (UserOffline) event()         {}
func (MessageRead) event()         {}
