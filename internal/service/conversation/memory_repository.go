package conversation

import (
	"context"
	"sync"

	"support-chat-backend/internal/database"
	"support-chat-backend/internal/model"
)

// MemoryRepository keeps every record in process memory. It backs the
// STORE_DRIVER=memory mode and the test suites.
type MemoryRepository struct {
	mu            sync.Mutex
	users         map[string]model.UserItem
	conversations map[string]model.ConversationItem
	messages      map[string]model.MessageItem
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:         make(map[string]model.UserItem),
		conversations: make(map[string]model.ConversationItem),
		messages:      make(map[string]model.MessageItem),
	}
}

func (m *MemoryRepository) Ping(context.Context) error {
	return nil
}

func (m *MemoryRepository) CreateUser(_ context.Context, user model.UserItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.UserID]; exists {
		return database.ErrConditionFailed
	}
	m.users[user.UserID] = user
	return nil
}

func (m *MemoryRepository) GetUserByToken(_ context.Context, token string) (model.UserItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.AnonymousToken == token {
			return user, nil
		}
	}
	return model.UserItem{}, ErrNotFound
}

func (m *MemoryRepository) CreateConversation(_ context.Context, conversation model.ConversationItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[conversation.ConversationID]; exists {
		return database.ErrConditionFailed
	}
	m.conversations[conversation.ConversationID] = conversation
	return nil
}

func (m *MemoryRepository) GetConversation(_ context.Context, conversationID string) (model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conversation, ok := m.conversations[conversationID]
	if !ok {
		return model.ConversationItem{}, ErrNotFound
	}
	return conversation, nil
}

func (m *MemoryRepository) ListConversationsByUser(_ context.Context, userID string) ([]model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.ConversationItem
	for _, conversation := range m.conversations {
		if conversation.UserID == userID {
			out = append(out, conversation)
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

func (m *MemoryRepository) ListConversationsByOrganization(_ context.Context, organizationID string) ([]model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.ConversationItem
	for _, conversation := range m.conversations {
		if conversation.OrganizationID == organizationID {
			out = append(out, conversation)
		}
	}
	sortByUpdatedDesc(out)
	return out, nil
}

func (m *MemoryRepository) ApplyMessage(_ context.Context, update MessageUpdate) (ConversationChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous, ok := m.conversations[update.ConversationID]
	if !ok {
		return ConversationChange{}, ErrNotFound
	}
	if previous.IsClosed {
		return ConversationChange{}, ErrClosed
	}

	current := previous
	current.LastMessage = update.LastMessage
	current.UpdatedAt = update.UpdatedAt
	if update.FromAdmin {
		current.UnreadCount = 0
	} else {
		current.UnreadCount++
	}
	m.conversations[update.ConversationID] = current

	return ConversationChange{Previous: previous, Current: current, PreviousKnown: true}, nil
}

func (m *MemoryRepository) ResetUnread(_ context.Context, conversationID, _ string) (model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conversation, ok := m.conversations[conversationID]
	if !ok {
		return model.ConversationItem{}, ErrNotFound
	}
	conversation.UnreadCount = 0
	m.conversations[conversationID] = conversation
	return conversation, nil
}

func (m *MemoryRepository) CloseConversation(_ context.Context, conversationID, updatedAt string) (model.ConversationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conversation, ok := m.conversations[conversationID]
	if !ok {
		return model.ConversationItem{}, ErrNotFound
	}
	conversation.IsClosed = true
	conversation.Status = model.ConversationStatusClosed
	conversation.UpdatedAt = updatedAt
	m.conversations[conversationID] = conversation
	return conversation, nil
}

func (m *MemoryRepository) CreateMessage(_ context.Context, message model.MessageItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.messages[message.MessageID]; exists {
		return database.ErrConditionFailed
	}
	m.messages[message.MessageID] = message
	return nil
}

func (m *MemoryRepository) DeleteMessage(_ context.Context, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.messages, messageID)
	return nil
}

func (m *MemoryRepository) GetMessage(_ context.Context, messageID string) (model.MessageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	message, ok := m.messages[messageID]
	if !ok {
		return model.MessageItem{}, ErrNotFound
	}
	return message, nil
}

func (m *MemoryRepository) ListMessages(_ context.Context, conversationID string) ([]model.MessageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.MessageItem
	for _, message := range m.messages {
		if message.ConversationID == conversationID {
			out = append(out, message)
		}
	}
	sortByCreatedAsc(out)
	return out, nil
}

func (m *MemoryRepository) MarkMessageRead(_ context.Context, messageID, readAt string) (model.MessageItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	message, ok := m.messages[messageID]
	if !ok {
		return model.MessageItem{}, false, ErrNotFound
	}
	if message.IsRead {
		return message, false, nil
	}
	message.IsRead = true
	message.ReadAt = readAt
	m.messages[messageID] = message
	return message, true, nil
}
