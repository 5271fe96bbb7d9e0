package conversation

import (
	"context"
	"errors"
	"sort"

	"support-chat-backend/internal/database"
	"support-chat-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	ErrNotFound = errors.New("conversation repository: not found")
	ErrClosed   = errors.New("conversation repository: conversation closed")
)

// MessageUpdate is applied to a conversation in the same write that persists
// the message's effect on the counters.
type MessageUpdate struct {
	ConversationID string
	LastMessage    string
	UpdatedAt      string
	FromAdmin      bool
}

// ConversationChange carries the conversation as it was immediately before an
// update and as it is after. PreviousKnown is false when the store could not
// report the prior image.
type ConversationChange struct {
	Previous      model.ConversationItem
	Current       model.ConversationItem
	PreviousKnown bool
}

type Repository interface {
	CreateUser(ctx context.Context, user model.UserItem) error
	GetUserByToken(ctx context.Context, token string) (model.UserItem, error)
	CreateConversation(ctx context.Context, conversation model.ConversationItem) error
	GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error)
	ListConversationsByUser(ctx context.Context, userID string) ([]model.ConversationItem, error)
	ListConversationsByOrganization(ctx context.Context, organizationID string) ([]model.ConversationItem, error)
	ApplyMessage(ctx context.Context, update MessageUpdate) (ConversationChange, error)
	ResetUnread(ctx context.Context, conversationID, updatedAt string) (model.ConversationItem, error)
	CloseConversation(ctx context.Context, conversationID, updatedAt string) (model.ConversationItem, error)
	CreateMessage(ctx context.Context, message model.MessageItem) error
	DeleteMessage(ctx context.Context, messageID string) error
	GetMessage(ctx context.Context, messageID string) (model.MessageItem, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.MessageItem, error)
	MarkMessageRead(ctx context.Context, messageID, readAt string) (model.MessageItem, bool, error)
	Ping(ctx context.Context) error
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *DynamoRepository) CreateUser(ctx context.Context, user model.UserItem) error {
	return r.db.Client.PutItem(ctx, model.UsersTable, user, aws.String("attribute_not_exists(userId)"))
}

func (r *DynamoRepository) GetUserByToken(ctx context.Context, token string) (model.UserItem, error) {
	items, err := r.db.Client.QueryIndexOrScan(ctx, model.UsersTable, model.UsersByTokenIndex, "anonymousToken", token, nil)
	if err != nil {
		return model.UserItem{}, err
	}
	users, err := database.UnmarshalItems[model.UserItem](items)
	if err != nil {
		return model.UserItem{}, err
	}
	if len(users) == 0 {
		return model.UserItem{}, ErrNotFound
	}
	return users[0], nil
}

func (r *DynamoRepository) CreateConversation(ctx context.Context, conversation model.ConversationItem) error {
	return r.db.Client.PutItem(ctx, model.ConversationsTable, conversation, aws.String("attribute_not_exists(conversationId)"))
}

func (r *DynamoRepository) GetConversation(ctx context.Context, conversationID string) (model.ConversationItem, error) {
	var conversation model.ConversationItem
	err := r.db.Client.GetItem(
		ctx,
		model.ConversationsTable,
		map[string]types.AttributeValue{
			"conversationId": database.AttrString(conversationID),
		},
		&conversation,
	)
	if err != nil {
		if database.IsNotFound(err) {
			return model.ConversationItem{}, ErrNotFound
		}
		return model.ConversationItem{}, err
	}
	return conversation, nil
}

func (r *DynamoRepository) ListConversationsByUser(ctx context.Context, userID string) ([]model.ConversationItem, error) {
	items, err := r.db.Client.QueryIndexOrScan(ctx, model.ConversationsTable, model.ConversationsByUserIndex, "userId", userID, nil)
	if err != nil {
		return nil, err
	}
	conversations, err := database.UnmarshalItems[model.ConversationItem](items)
	if err != nil {
		return nil, err
	}
	sortByCreatedDesc(conversations)
	return conversations, nil
}

func (r *DynamoRepository) ListConversationsByOrganization(ctx context.Context, organizationID string) ([]model.ConversationItem, error) {
	scanForward := false
	items, err := r.db.Client.QueryIndexOrScan(ctx, model.ConversationsTable, model.ConversationsByOrganizationIndex, "organizationId", organizationID, &scanForward)
	if err != nil {
		return nil, err
	}
	conversations, err := database.UnmarshalItems[model.ConversationItem](items)
	if err != nil {
		return nil, err
	}
	sortByUpdatedDesc(conversations)
	return conversations, nil
}

// ApplyMessage updates lastMessage and the unread counter in one conditional
// UpdateItem. The counter uses ADD so concurrent user messages never lose an
// increment; the old image tells the caller whether this was the first message.
func (r *DynamoRepository) ApplyMessage(ctx context.Context, update MessageUpdate) (ConversationChange, error) {
	updateExpr := "SET #lastMessage = :lastMessage, #updatedAt = :updatedAt ADD #unreadCount :one"
	values := map[string]types.AttributeValue{
		":lastMessage": database.AttrString(update.LastMessage),
		":updatedAt":   database.AttrString(update.UpdatedAt),
		":false":       database.AttrBool(false),
	}
	if update.FromAdmin {
		updateExpr = "SET #lastMessage = :lastMessage, #updatedAt = :updatedAt, #unreadCount = :zero"
		values[":zero"] = database.AttrNumber("0")
	} else {
		values[":one"] = database.AttrNumber("1")
	}

	var previous model.ConversationItem
	err := r.db.Client.UpdateItem(ctx, database.UpdateInput{
		TableName:      model.ConversationsTable,
		Key:            map[string]types.AttributeValue{"conversationId": database.AttrString(update.ConversationID)},
		UpdateExpr:     updateExpr,
		ConditionExpr:  "attribute_exists(conversationId) AND #isClosed = :false",
		ExprAttrValues: values,
		ExprAttrNames: map[string]string{
			"#lastMessage": "lastMessage",
			"#updatedAt":   "updatedAt",
			"#unreadCount": "unreadCount",
			"#isClosed":    "isClosed",
		},
		ReturnValues: types.ReturnValueAllOld,
		Out:          &previous,
	})
	if err != nil {
		if database.IsConditionFailed(err) {
			return ConversationChange{}, r.conditionCause(ctx, update.ConversationID)
		}
		return ConversationChange{}, err
	}

	current := previous
	current.LastMessage = update.LastMessage
	current.UpdatedAt = update.UpdatedAt
	if update.FromAdmin {
		current.UnreadCount = 0
	} else {
		current.UnreadCount = previous.UnreadCount + 1
	}

	return ConversationChange{
		Previous:      previous,
		Current:       current,
		PreviousKnown: previous.ConversationID != "",
	}, nil
}

func (r *DynamoRepository) ResetUnread(ctx context.Context, conversationID, updatedAt string) (model.ConversationItem, error) {
	var conversation model.ConversationItem
	err := r.db.Client.UpdateItem(ctx, database.UpdateInput{
		TableName:     model.ConversationsTable,
		Key:           map[string]types.AttributeValue{"conversationId": database.AttrString(conversationID)},
		UpdateExpr:    "SET #unreadCount = :zero",
		ConditionExpr: "attribute_exists(conversationId)",
		ExprAttrValues: map[string]types.AttributeValue{
			":zero": database.AttrNumber("0"),
		},
		ExprAttrNames: map[string]string{"#unreadCount": "unreadCount"},
		Out:           &conversation,
	})
	if err != nil {
		if database.IsConditionFailed(err) {
			return model.ConversationItem{}, ErrNotFound
		}
		return model.ConversationItem{}, err
	}
	return conversation, nil
}

func (r *DynamoRepository) CloseConversation(ctx context.Context, conversationID, updatedAt string) (model.ConversationItem, error) {
	var conversation model.ConversationItem
	err := r.db.Client.UpdateItem(ctx, database.UpdateInput{
		TableName:     model.ConversationsTable,
		Key:           map[string]types.AttributeValue{"conversationId": database.AttrString(conversationID)},
		UpdateExpr:    "SET #isClosed = :true, #status = :closed, #updatedAt = :updatedAt",
		ConditionExpr: "attribute_exists(conversationId)",
		ExprAttrValues: map[string]types.AttributeValue{
			":true":      database.AttrBool(true),
			":closed":    database.AttrString(string(model.ConversationStatusClosed)),
			":updatedAt": database.AttrString(updatedAt),
		},
		ExprAttrNames: map[string]string{
			"#isClosed":  "isClosed",
			"#status":    "status",
			"#updatedAt": "updatedAt",
		},
		Out: &conversation,
	})
	if err != nil {
		if database.IsConditionFailed(err) {
			return model.ConversationItem{}, ErrNotFound
		}
		return model.ConversationItem{}, err
	}
	return conversation, nil
}

func (r *DynamoRepository) CreateMessage(ctx context.Context, message model.MessageItem) error {
	return r.db.Client.PutItem(ctx, model.MessagesTable, message, aws.String("attribute_not_exists(messageId)"))
}

func (r *DynamoRepository) DeleteMessage(ctx context.Context, messageID string) error {
	return r.db.Client.DeleteItem(
		ctx,
		model.MessagesTable,
		map[string]types.AttributeValue{"messageId": database.AttrString(messageID)},
	)
}

func (r *DynamoRepository) GetMessage(ctx context.Context, messageID string) (model.MessageItem, error) {
	var message model.MessageItem
	err := r.db.Client.GetItem(
		ctx,
		model.MessagesTable,
		map[string]types.AttributeValue{"messageId": database.AttrString(messageID)},
		&message,
	)
	if err != nil {
		if database.IsNotFound(err) {
			return model.MessageItem{}, ErrNotFound
		}
		return model.MessageItem{}, err
	}
	return message, nil
}

func (r *DynamoRepository) ListMessages(ctx context.Context, conversationID string) ([]model.MessageItem, error) {
	scanForward := true
	items, err := r.db.Client.QueryIndexOrScan(ctx, model.MessagesTable, model.MessagesByConversationIndex, "conversationId", conversationID, &scanForward)
	if err != nil {
		return nil, err
	}
	messages, err := database.UnmarshalItems[model.MessageItem](items)
	if err != nil {
		return nil, err
	}
	sortByCreatedAsc(messages)
	return messages, nil
}

// MarkMessageRead flips isRead once. The boolean reports whether this call
// performed the transition.
func (r *DynamoRepository) MarkMessageRead(ctx context.Context, messageID, readAt string) (model.MessageItem, bool, error) {
	var message model.MessageItem
	err := r.db.Client.UpdateItem(ctx, database.UpdateInput{
		TableName:     model.MessagesTable,
		Key:           map[string]types.AttributeValue{"messageId": database.AttrString(messageID)},
		UpdateExpr:    "SET #isRead = :true, #readAt = :readAt",
		ConditionExpr: "attribute_exists(messageId) AND #isRead = :false",
		ExprAttrValues: map[string]types.AttributeValue{
			":true":   database.AttrBool(true),
			":false":  database.AttrBool(false),
			":readAt": database.AttrString(readAt),
		},
		ExprAttrNames: map[string]string{
			"#isRead": "isRead",
			"#readAt": "readAt",
		},
		Out: &message,
	})
	if err == nil {
		return message, true, nil
	}
	if !database.IsConditionFailed(err) {
		return model.MessageItem{}, false, err
	}

	existing, getErr := r.GetMessage(ctx, messageID)
	if getErr != nil {
		return model.MessageItem{}, false, getErr
	}
	return existing, false, nil
}

func (r *DynamoRepository) conditionCause(ctx context.Context, conversationID string) error {
	conversation, err := r.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conversation.IsClosed {
		return ErrClosed
	}
	return database.ErrConditionFailed
}

func sortByUpdatedDesc(conversations []model.ConversationItem) {
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt > conversations[j].UpdatedAt
	})
}

func sortByCreatedDesc(conversations []model.ConversationItem) {
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].CreatedAt > conversations[j].CreatedAt
	})
}

func sortByCreatedAsc(messages []model.MessageItem) {
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].CreatedAt == messages[j].CreatedAt {
			return messages[i].MessageID < messages[j].MessageID
		}
		return messages[i].CreatedAt < messages[j].CreatedAt
	})
}
