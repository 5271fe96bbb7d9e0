package jwt

import (
	"sync"

	"support-chat-backend/internal/env"
)

var (
	secretsMu   sync.RWMutex
	RoleSecrets = map[Role]string{}
)

var roleSecretKeys = map[Role]string{
	RoleAdmin: env.AdminSecretKey,
}

// SetSecret overrides the signing secret of a role.
func SetSecret(role Role, secret string) {
	secretsMu.Lock()
	defer secretsMu.Unlock()
	RoleSecrets[role] = secret
}

func secretFor(role Role) (string, bool) {
	secretsMu.RLock()
	secret, ok := RoleSecrets[role]
	secretsMu.RUnlock()
	if ok && secret != "" {
		return secret, true
	}

	key, known := roleSecretKeys[role]
	if !known {
		return "", false
	}
	secret = env.Get(key)
	return secret, secret != ""
}
