package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"support-chat-backend/internal/database"
	"support-chat-backend/internal/env"
	internaljwt "support-chat-backend/internal/jwt"
	"support-chat-backend/internal/model"
	"support-chat-backend/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ErrorCode string

const (
	ErrorCodeValidation   ErrorCode = "validation_error"
	ErrorCodeUnauthorized ErrorCode = "unauthorized"
	ErrorCodeForbidden    ErrorCode = "forbidden"
	ErrorCodeNotFound     ErrorCode = "not_found"
	ErrorCodeConflict     ErrorCode = "conflict"
	ErrorCodeInternal     ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Identity is an authenticated admin.
type Identity struct {
	AdminID        string
	OrganizationID string
	Email          string
}

// Caller is whoever issued a request: an admin, an anonymous token holder, or
// both when an admin page forwards a token.
type Caller struct {
	Admin          *Identity
	AnonymousToken string
}

func (c Caller) IsAdmin() bool {
	return c.Admin != nil
}

type StartResult struct {
	User         model.UserItem
	Conversation model.ConversationItem
	Created      bool
}

type PostMessageParams struct {
	ConversationID string
	Content        string
	FromAdmin      bool
	MessageType    model.MessageType
	MediaURL       string
	FileName       string
	FileSize       int64
	MimeType       string
}

type MessageResult struct {
	Message model.MessageItem
	Change  ConversationChange
}

type ReadResult struct {
	Conversation model.ConversationItem
	Messages     []model.MessageItem
}

type MessageReadResult struct {
	Message model.MessageItem
	Changed bool
}

// Participant is the outcome of a successful presence validation.
type Participant struct {
	ConversationID string
	OrganizationID string
	AnonymousToken string
}

type Service struct {
	repo           Repository
	now            func() time.Time
	organizationID string
}

func New(db *database.Database) *Service {
	return NewWithRepository(NewDynamoRepository(db), time.Now)
}

func NewWithRepository(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:           repo,
		now:            now,
		organizationID: env.GetOrDefault(env.DefaultOrganizationID, "1"),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// StartConversation creates an anonymous user and an empty conversation.
func (s *Service) StartConversation(ctx context.Context, organizationID string) (StartResult, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		organizationID = s.organizationID
	}

	nowStr := model.FormatTime(s.now())
	user := model.UserItem{
		UserID:         uuid.NewString(),
		AnonymousToken: utils.NewAnonymousToken(),
		OrganizationID: organizationID,
		CreatedAt:      nowStr,
		UpdatedAt:      nowStr,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return StartResult{}, newError(ErrorCodeInternal, "failed to create user", err)
	}

	conversation, err := s.openConversation(ctx, user, nowStr)
	if err != nil {
		return StartResult{}, err
	}

	return StartResult{User: user, Conversation: conversation, Created: true}, nil
}

// ResumeConversation returns the most recent open conversation of the token's
// user. A user whose conversations are all closed gets a fresh one.
func (s *Service) ResumeConversation(ctx context.Context, token string) (StartResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return StartResult{}, newError(ErrorCodeValidation, "anonymousToken is required", nil)
	}

	user, err := s.repo.GetUserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return StartResult{}, newError(ErrorCodeNotFound, "user not found", err)
		}
		return StartResult{}, newError(ErrorCodeInternal, "failed to load user", err)
	}

	conversations, err := s.repo.ListConversationsByUser(ctx, user.UserID)
	if err != nil {
		return StartResult{}, newError(ErrorCodeInternal, "failed to list conversations", err)
	}
	for _, conversation := range conversations {
		if !conversation.IsClosed {
			return StartResult{User: user, Conversation: conversation}, nil
		}
	}

	conversation, err := s.openConversation(ctx, user, model.FormatTime(s.now()))
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{User: user, Conversation: conversation, Created: true}, nil
}

func (s *Service) openConversation(ctx context.Context, user model.UserItem, nowStr string) (model.ConversationItem, error) {
	conversation := model.ConversationItem{
		ConversationID: uuid.NewString(),
		UserID:         user.UserID,
		AnonymousToken: user.AnonymousToken,
		OrganizationID: user.OrganizationID,
		Status:         model.ConversationStatusOpen,
		CreatedAt:      nowStr,
		UpdatedAt:      nowStr,
	}
	if err := s.repo.CreateConversation(ctx, conversation); err != nil {
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to create conversation", err)
	}
	return conversation, nil
}

// PostMessage persists a message, then applies its effect on the
// conversation counters in a single store update.
func (s *Service) PostMessage(ctx context.Context, caller Caller, params PostMessageParams) (MessageResult, error) {
	conversationID := strings.TrimSpace(params.ConversationID)
	content := strings.TrimSpace(params.Content)
	if conversationID == "" {
		return MessageResult{}, newError(ErrorCodeValidation, "conversationId is required", nil)
	}
	if content == "" {
		return MessageResult{}, newError(ErrorCodeValidation, "content is required", nil)
	}

	messageType := params.MessageType
	if messageType == "" {
		messageType = model.MessageTypeText
	}
	if !messageType.Valid() {
		return MessageResult{}, newError(ErrorCodeValidation, "invalid messageType", nil)
	}
	if messageType != model.MessageTypeText && params.MediaURL == "" {
		return MessageResult{}, newError(ErrorCodeValidation, "mediaUrl is required for media messages", nil)
	}

	if params.FromAdmin && !caller.IsAdmin() {
		return MessageResult{}, newError(ErrorCodeUnauthorized, "admin credentials required", nil)
	}

	conversation, err := s.loadConversation(ctx, conversationID)
	if err != nil {
		return MessageResult{}, err
	}

	if params.FromAdmin {
		if err := authorizeAdmin(caller.Admin, conversation); err != nil {
			return MessageResult{}, err
		}
	} else if err := s.authorizeToken(ctx, caller.AnonymousToken, conversation); err != nil {
		return MessageResult{}, err
	}

	if conversation.IsClosed {
		return MessageResult{}, newError(ErrorCodeConflict, "conversation is closed", nil)
	}

	nowStr := model.FormatTime(s.now())
	lastMessage := content
	if messageType != model.MessageTypeText {
		lastMessage = "Sent a " + string(messageType)
	}

	message := model.MessageItem{
		MessageID:      uuid.NewString(),
		ConversationID: conversationID,
		Content:        content,
		IsAdminMessage: params.FromAdmin,
		MessageType:    messageType,
		MediaURL:       params.MediaURL,
		FileName:       params.FileName,
		FileSize:       params.FileSize,
		MimeType:       params.MimeType,
		CreatedAt:      nowStr,
	}
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return MessageResult{}, newError(ErrorCodeInternal, "failed to store message", err)
	}

	// Counters move only once the message exists; a failed update takes the
	// message back out so the conversation never advertises it.
	change, err := s.repo.ApplyMessage(ctx, MessageUpdate{
		ConversationID: conversationID,
		LastMessage:    lastMessage,
		UpdatedAt:      nowStr,
		FromAdmin:      params.FromAdmin,
	})
	if err != nil {
		if delErr := s.repo.DeleteMessage(ctx, message.MessageID); delErr != nil {
			log.Error().Err(delErr).Str("messageId", message.MessageID).Msg("failed to remove orphaned message")
		}
		switch {
		case errors.Is(err, ErrNotFound):
			return MessageResult{}, newError(ErrorCodeNotFound, "conversation not found", err)
		case errors.Is(err, ErrClosed):
			return MessageResult{}, newError(ErrorCodeConflict, "conversation is closed", err)
		}
		return MessageResult{}, newError(ErrorCodeInternal, "failed to update conversation", err)
	}

	return MessageResult{Message: message, Change: change}, nil
}

// CheckUploadTarget verifies that the caller may attach a file to the
// conversation without writing anything.
func (s *Service) CheckUploadTarget(ctx context.Context, caller Caller, conversationID string, fromAdmin bool) (model.ConversationItem, error) {
	if fromAdmin && !caller.IsAdmin() {
		return model.ConversationItem{}, newError(ErrorCodeUnauthorized, "admin credentials required", nil)
	}
	conversation, err := s.loadConversation(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		return model.ConversationItem{}, err
	}
	if fromAdmin {
		err = authorizeAdmin(caller.Admin, conversation)
	} else {
		err = s.authorizeToken(ctx, caller.AnonymousToken, conversation)
	}
	if err != nil {
		return model.ConversationItem{}, err
	}
	if conversation.IsClosed {
		return model.ConversationItem{}, newError(ErrorCodeConflict, "conversation is closed", nil)
	}
	return conversation, nil
}

func (s *Service) ListMessages(ctx context.Context, caller Caller, conversationID string) ([]model.MessageItem, error) {
	conversation, err := s.authorizedConversation(ctx, caller, conversationID)
	if err != nil {
		return nil, err
	}

	messages, err := s.repo.ListMessages(ctx, conversation.ConversationID)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list messages", err)
	}
	return messages, nil
}

// ListConversations returns the organization's conversations that carry at
// least one message, most recently updated first.
func (s *Service) ListConversations(ctx context.Context, identity Identity) ([]model.ConversationItem, error) {
	if identity.AdminID == "" || identity.OrganizationID == "" {
		return nil, newError(ErrorCodeUnauthorized, "invalid admin identity", nil)
	}

	conversations, err := s.repo.ListConversationsByOrganization(ctx, identity.OrganizationID)
	if err != nil {
		return nil, newError(ErrorCodeInternal, "failed to list conversations", err)
	}

	out := make([]model.ConversationItem, 0, len(conversations))
	for _, conversation := range conversations {
		if conversation.HasMessages() {
			out = append(out, conversation)
		}
	}
	sortByUpdatedDesc(out)
	return out, nil
}

// MarkConversationRead resets the unread counter and marks every unread user
// message as read. Only messages that changed state are returned.
func (s *Service) MarkConversationRead(ctx context.Context, identity Identity, conversationID string) (ReadResult, error) {
	conversation, err := s.loadConversation(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		return ReadResult{}, err
	}
	if err := authorizeAdmin(&identity, conversation); err != nil {
		return ReadResult{}, err
	}

	nowStr := model.FormatTime(s.now())
	conversation, err = s.repo.ResetUnread(ctx, conversation.ConversationID, nowStr)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ReadResult{}, newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return ReadResult{}, newError(ErrorCodeInternal, "failed to reset unread count", err)
	}

	messages, err := s.repo.ListMessages(ctx, conversation.ConversationID)
	if err != nil {
		return ReadResult{}, newError(ErrorCodeInternal, "failed to list messages", err)
	}

	read := make([]model.MessageItem, 0)
	for _, message := range messages {
		if message.IsAdminMessage || message.IsRead {
			continue
		}
		updated, changed, err := s.repo.MarkMessageRead(ctx, message.MessageID, nowStr)
		if err != nil {
			return ReadResult{}, newError(ErrorCodeInternal, "failed to mark message read", err)
		}
		if changed {
			read = append(read, updated)
		}
	}

	return ReadResult{Conversation: conversation, Messages: read}, nil
}

// MarkMessageRead flips a single message to read. Admins mark user messages;
// the token owner marks admin messages. The conversation counter is left
// alone, it only follows conversation-level reads and admin replies.
func (s *Service) MarkMessageRead(ctx context.Context, caller Caller, messageID string) (MessageReadResult, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return MessageReadResult{}, newError(ErrorCodeValidation, "messageId is required", nil)
	}

	message, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return MessageReadResult{}, newError(ErrorCodeNotFound, "message not found", err)
		}
		return MessageReadResult{}, newError(ErrorCodeInternal, "failed to load message", err)
	}

	conversation, err := s.loadConversation(ctx, message.ConversationID)
	if err != nil {
		return MessageReadResult{}, err
	}

	if message.IsAdminMessage {
		if err := s.authorizeToken(ctx, caller.AnonymousToken, conversation); err != nil {
			return MessageReadResult{}, err
		}
	} else {
		if !caller.IsAdmin() {
			return MessageReadResult{}, newError(ErrorCodeUnauthorized, "admin credentials required", nil)
		}
		if err := authorizeAdmin(caller.Admin, conversation); err != nil {
			return MessageReadResult{}, err
		}
	}

	if message.IsRead {
		return MessageReadResult{Message: message}, nil
	}

	updated, changed, err := s.repo.MarkMessageRead(ctx, messageID, model.FormatTime(s.now()))
	if err != nil {
		return MessageReadResult{}, newError(ErrorCodeInternal, "failed to mark message read", err)
	}
	return MessageReadResult{Message: updated, Changed: changed}, nil
}

func (s *Service) CloseConversation(ctx context.Context, identity Identity, conversationID string) (model.ConversationItem, error) {
	conversation, err := s.loadConversation(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		return model.ConversationItem{}, err
	}
	if err := authorizeAdmin(&identity, conversation); err != nil {
		return model.ConversationItem{}, err
	}
	if conversation.IsClosed {
		return conversation, nil
	}

	closed, err := s.repo.CloseConversation(ctx, conversation.ConversationID, model.FormatTime(s.now()))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.ConversationItem{}, newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to close conversation", err)
	}
	return closed, nil
}

// ValidateParticipant confirms that token belongs to the user who owns the
// conversation.
func (s *Service) ValidateParticipant(ctx context.Context, token, conversationID string) (Participant, error) {
	conversation, err := s.loadConversation(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		return Participant{}, err
	}
	if err := s.authorizeToken(ctx, token, conversation); err != nil {
		return Participant{}, err
	}
	return Participant{
		ConversationID: conversation.ConversationID,
		OrganizationID: conversation.OrganizationID,
		AnonymousToken: strings.TrimSpace(token),
	}, nil
}

// AuthorizeAdminConversation checks that an admin may watch a conversation.
func (s *Service) AuthorizeAdminConversation(ctx context.Context, identity Identity, conversationID string) (model.ConversationItem, error) {
	conversation, err := s.loadConversation(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		return model.ConversationItem{}, err
	}
	if err := authorizeAdmin(&identity, conversation); err != nil {
		return model.ConversationItem{}, err
	}
	return conversation, nil
}

func (s *Service) AdminFromAuthorizationHeader(header string) (Identity, error) {
	authHeader := strings.TrimSpace(header)
	if authHeader == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "missing authorization header", nil)
	}

	token, ok := internaljwt.BearerToken(authHeader)
	if !ok {
		return Identity{}, newError(ErrorCodeUnauthorized, "invalid authorization header format", nil)
	}
	return s.AdminFromToken(token)
}

func (s *Service) AdminFromToken(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, newError(ErrorCodeUnauthorized, "empty token", nil)
	}

	claims, err := internaljwt.ParseToken(token, internaljwt.RoleAdmin)
	if err != nil {
		return Identity{}, newError(ErrorCodeUnauthorized, "invalid token", err)
	}

	return Identity{
		AdminID:        claims.AdminID,
		OrganizationID: claims.OrganizationID,
		Email:          claims.Email,
	}, nil
}

func (s *Service) authorizedConversation(ctx context.Context, caller Caller, conversationID string) (model.ConversationItem, error) {
	conversation, err := s.loadConversation(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		return model.ConversationItem{}, err
	}
	if caller.IsAdmin() {
		if err := authorizeAdmin(caller.Admin, conversation); err != nil {
			return model.ConversationItem{}, err
		}
		return conversation, nil
	}
	if err := s.authorizeToken(ctx, caller.AnonymousToken, conversation); err != nil {
		return model.ConversationItem{}, err
	}
	return conversation, nil
}

func (s *Service) loadConversation(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	if conversationID == "" {
		return model.ConversationItem{}, newError(ErrorCodeValidation, "conversationId is required", nil)
	}
	conversation, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.ConversationItem{}, newError(ErrorCodeNotFound, "conversation not found", err)
		}
		return model.ConversationItem{}, newError(ErrorCodeInternal, "failed to fetch conversation", err)
	}
	return conversation, nil
}

func (s *Service) authorizeToken(ctx context.Context, token string, conversation model.ConversationItem) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return newError(ErrorCodeUnauthorized, "anonymous token required", nil)
	}

	user, err := s.repo.GetUserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError(ErrorCodeNotFound, "user not found", err)
		}
		return newError(ErrorCodeInternal, "failed to load user", err)
	}
	if user.UserID != conversation.UserID {
		return newError(ErrorCodeForbidden, "token does not match conversation", nil)
	}
	return nil
}

func authorizeAdmin(identity *Identity, conversation model.ConversationItem) error {
	if identity == nil || identity.AdminID == "" || identity.OrganizationID == "" {
		return newError(ErrorCodeUnauthorized, "invalid admin identity", nil)
	}
	if identity.OrganizationID != conversation.OrganizationID {
		return newError(ErrorCodeForbidden, "conversation belongs to another organization", nil)
	}
	return nil
}
