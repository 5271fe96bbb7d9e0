package jwt

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

const DefaultTokenTTL = 24 * time.Hour

func appendRoleChar(token string, role Role) string {
	return token + expectedRoleChar(role)
}

func expectedRoleChar(role Role) string {
	switch role {
	case RoleAdmin:
		return "a"
	}
	return ""
}

func CreateToken(admin Admin, role Role, validUntil int64) (string, error) {
	secret, ok := secretFor(role)
	if !ok {
		return "", fmt.Errorf("no signing secret for role")
	}

	if validUntil == 0 {
		validUntil = time.Now().Add(DefaultTokenTTL).Unix()
	}

	claims := jwt.MapClaims{
		"id":             admin.Id,
		"email":          admin.Email,
		"organizationId": admin.OrganizationID,
		"role":           admin.Role,
		"exp":            validUntil,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}

	return appendRoleChar(tokenString, role), nil
}

// ParseToken validates the role suffix, signature and expiry of an access token.
func ParseToken(tokenString string, role Role) (Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if len(tokenString) == 0 {
		return Claims{}, fmt.Errorf("token string is empty")
	}

	suffix := expectedRoleChar(role)
	if suffix == "" || !strings.HasSuffix(tokenString, suffix) {
		return Claims{}, fmt.Errorf("invalid role character in token")
	}
	tokenString = strings.TrimSuffix(tokenString, suffix)

	secret, ok := secretFor(role)
	if !ok {
		return Claims{}, fmt.Errorf("no signing secret for role")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("unauthorized: %v", err)
	}
	if !token.Valid {
		return Claims{}, fmt.Errorf("token is not valid - unauthorized")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("claims of unauthorized type")
	}

	claims := Claims{}
	claims.AdminID, _ = mapClaims["id"].(string)
	claims.Email, _ = mapClaims["email"].(string)
	claims.OrganizationID, _ = mapClaims["organizationId"].(string)
	claims.Role, _ = mapClaims["role"].(string)
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = int64(exp)
	}

	if claims.AdminID == "" || claims.OrganizationID == "" {
		return Claims{}, fmt.Errorf("token missing identifiers")
	}

	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}
