package middleware

import (
	"encoding/json"
	"net/http"

	internaljwt "support-chat-backend/internal/jwt"

	"github.com/rs/zerolog/log"
)

type unauthorizedResponse struct {
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(unauthorizedResponse{Message: message})
}

// ValidateJWTMiddleware rejects requests without a valid bearer token for role.
// Signature and expiry are checked by ParseToken.
func ValidateJWTMiddleware(role internaljwt.Role) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := internaljwt.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeUnauthorized(w, "Unauthorized")
				return
			}

			if _, err := internaljwt.ParseToken(tokenString, role); err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected bearer token")
				writeUnauthorized(w, "Unauthorized")
				return
			}

			next(w, r)
		}
	}
}

var ValidateAdminJWT = ValidateJWTMiddleware(internaljwt.RoleAdmin)
