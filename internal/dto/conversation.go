package dto

type ConversationResponse struct {
	ConversationID string `json:"id"`
	UserID         string `json:"userId"`
	AnonymousToken string `json:"anonymousToken"`
	OrganizationID string `json:"organizationId"`
	LastMessage    string `json:"lastMessage"`
	UnreadCount    int    `json:"unreadCount"`
	IsClosed       bool   `json:"isClosed"`
	Status         string `json:"status"`
	HasMessages    bool   `json:"hasMessages"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

type MessageResponse struct {
	MessageID      string `json:"id" validate:"required"`
	ConversationID string `json:"conversationId" validate:"required"`
	Content        string `json:"content"`
	IsAdminMessage bool   `json:"isAdminMessage"`
	MessageType    string `json:"messageType"`
	MediaURL       string `json:"mediaUrl,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	FileSize       int64  `json:"fileSize,omitempty"`
	MimeType       string `json:"mimeType,omitempty"`
	IsRead         bool   `json:"isRead"`
	ReadAt         string `json:"readAt,omitempty"`
	CreatedAt      string `json:"createdAt" validate:"required"`
}

type StartConversationRequest struct {
	OrganizationID string `json:"organizationId,omitempty" validate:"omitempty,max=64"`
}

type StartConversationResponse struct {
	AnonymousToken string `json:"anonymousToken"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

type ResumeConversationRequest struct {
	AnonymousToken string `json:"anonymousToken" validate:"required,max=128"`
}

type ResumeConversationResponse struct {
	AnonymousToken string `json:"anonymousToken"`
	ConversationID string `json:"conversationId"`
}

type PostMessageRequest struct {
	Content        string `json:"content" validate:"required,max=5000"`
	IsAdminMessage bool   `json:"isAdminMessage"`
	AnonymousToken string `json:"anonymousToken,omitempty" validate:"omitempty,max=128"`
}

type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

type ListMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

type MarkConversationReadResponse struct {
	ConversationID string   `json:"conversationId"`
	UnreadCount    int      `json:"unreadCount"`
	ReadMessageIDs []string `json:"readMessageIds"`
}

type MarkMessageReadRequest struct {
	AnonymousToken string `json:"anonymousToken,omitempty" validate:"omitempty,max=128"`
}

type UploadResponse struct {
	Message MessageResponse `json:"message"`
	FileURL string          `json:"fileUrl"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}
