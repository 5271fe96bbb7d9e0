package model

import (
	"strings"
	"time"
)

type ConversationStatus string

const (
	ConversationStatusOpen   ConversationStatus = "open"
	ConversationStatusClosed ConversationStatus = "closed"
)

// TimeLayout is used for every persisted timestamp. It is fixed width so the
// strings sort the same way the instants do, which the DynamoDB range keys
// rely on.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

type ConversationItem struct {
	ConversationID string             `dynamodbav:"conversationId"`
	UserID         string             `dynamodbav:"userId"`
	AnonymousToken string             `dynamodbav:"anonymousToken"`
	OrganizationID string             `dynamodbav:"organizationId"`
	LastMessage    string             `dynamodbav:"lastMessage"`
	UnreadCount    int                `dynamodbav:"unreadCount"`
	IsClosed       bool               `dynamodbav:"isClosed"`
	Status         ConversationStatus `dynamodbav:"status"`
	CreatedAt      string             `dynamodbav:"createdAt"`
	UpdatedAt      string             `dynamodbav:"updatedAt"`
}

func (c ConversationItem) HasMessages() bool {
	return c.LastMessage != ""
}

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
	MessageTypeAudio MessageType = "audio"
	MessageTypeFile  MessageType = "file"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeAudio, MessageTypeFile:
		return true
	}
	return false
}

// MessageTypeForMIME classifies an upload by the prefix of its MIME type.
func MessageTypeForMIME(mimeType string) MessageType {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MessageTypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return MessageTypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return MessageTypeAudio
	default:
		return MessageTypeFile
	}
}

type MessageItem struct {
	MessageID      string      `dynamodbav:"messageId"`
	ConversationID string      `dynamodbav:"conversationId"`
	Content        string      `dynamodbav:"content"`
	IsAdminMessage bool        `dynamodbav:"isAdminMessage"`
	MessageType    MessageType `dynamodbav:"messageType"`
	MediaURL       string      `dynamodbav:"mediaUrl,omitempty"`
	FileName       string      `dynamodbav:"fileName,omitempty"`
	FileSize       int64       `dynamodbav:"fileSize,omitempty"`
	MimeType       string      `dynamodbav:"mimeType,omitempty"`
	IsRead         bool        `dynamodbav:"isRead"`
	ReadAt         string      `dynamodbav:"readAt,omitempty"`
	CreatedAt      string      `dynamodbav:"createdAt"`
}

func ParseTime(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}
	}
	return t
}
