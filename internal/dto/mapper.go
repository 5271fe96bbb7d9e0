package dto

import "support-chat-backend/internal/model"

func NewConversationResponse(c model.ConversationItem) ConversationResponse {
	status := string(c.Status)
	if status == "" {
		status = string(model.ConversationStatusOpen)
	}
	return ConversationResponse{
		ConversationID: c.ConversationID,
		UserID:         c.UserID,
		AnonymousToken: c.AnonymousToken,
		OrganizationID: c.OrganizationID,
		LastMessage:    c.LastMessage,
		UnreadCount:    c.UnreadCount,
		IsClosed:       c.IsClosed,
		Status:         status,
		HasMessages:    c.HasMessages(),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func NewConversationResponses(items []model.ConversationItem) []ConversationResponse {
	out := make([]ConversationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewConversationResponse(item))
	}
	return out
}

func NewMessageResponse(m model.MessageItem) MessageResponse {
	return MessageResponse{
		MessageID:      m.MessageID,
		ConversationID: m.ConversationID,
		Content:        m.Content,
		IsAdminMessage: m.IsAdminMessage,
		MessageType:    string(m.MessageType),
		MediaURL:       m.MediaURL,
		FileName:       m.FileName,
		FileSize:       m.FileSize,
		MimeType:       m.MimeType,
		IsRead:         m.IsRead,
		ReadAt:         m.ReadAt,
		CreatedAt:      m.CreatedAt,
	}
}

func NewMessageResponses(items []model.MessageItem) []MessageResponse {
	out := make([]MessageResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewMessageResponse(item))
	}
	return out
}
