package model

const (
	UsersTable         = "Users"
	AdminsTable        = "Admins"
	ConversationsTable = "Conversations"
	MessagesTable      = "Messages"
)

const (
	UsersByTokenIndex                = "byAnonymousToken"
	AdminsByEmailIndex               = "byEmail"
	ConversationsByOrganizationIndex = "byOrganization"
	ConversationsByUserIndex         = "byUser"
	MessagesByConversationIndex      = "byConversation"
)

type UserItem struct {
	UserID         string `dynamodbav:"userId"`
	AnonymousToken string `dynamodbav:"anonymousToken"`
	OrganizationID string `dynamodbav:"organizationId"`
	CreatedAt      string `dynamodbav:"createdAt"`
	UpdatedAt      string `dynamodbav:"updatedAt"`
}

type AdminItem struct {
	AdminID        string `dynamodbav:"adminId"`
	Email          string `dynamodbav:"email"`
	Name           string `dynamodbav:"name,omitempty"`
	Role           string `dynamodbav:"role"`
	OrganizationID string `dynamodbav:"organizationId"`
	PasswordHash   string `dynamodbav:"passwordHash"`
	CreatedAt      string `dynamodbav:"createdAt"`
	UpdatedAt      string `dynamodbav:"updatedAt"`
}
