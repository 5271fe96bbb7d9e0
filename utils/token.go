package utils

import (
	"strings"

	"github.com/google/uuid"
)

const AnonymousTokenPrefix = "user_"

// NewAnonymousToken returns an opaque visitor token such as user_3f9c0a2b71de.
func NewAnonymousToken() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return AnonymousTokenPrefix + raw[:12]
}

// NewRequestID is used when a caller does not send X-Request-ID.
func NewRequestID() string {
	return uuid.NewString()
}
