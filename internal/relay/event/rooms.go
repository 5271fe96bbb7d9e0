package event

import "strings"

const (
	conversationRoomPrefix = "conversation:"
	adminRoomPrefix        = "admin_room_"
	sessionRoomPrefix      = "session:"
)

func ConversationRoom(conversationID string) string {
	return conversationRoomPrefix + conversationID
}

func AdminRoom(organizationID string) string {
	return adminRoomPrefix + organizationID
}

// SessionRoom is the personal room every transport session joins on connect.
func SessionRoom(sessionID string) string {
	return sessionRoomPrefix + sessionID
}

func IsAdminRoom(room string) bool {
	return strings.HasPrefix(room, adminRoomPrefix)
}
