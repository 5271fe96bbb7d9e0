package endpoints

import (
	"net/http"
	"testing"

	"support-chat-backend/internal/api"
	"support-chat-backend/internal/dto"
	internaljwt "support-chat-backend/internal/jwt"
)

func TestAdminLogin(t *testing.T) {
	f := setupChatFixture(t)
	f.adminToken(t, "Agent@Example.com", "1")

	resp := doJSONRequest[dto.LoginResponse](t, f.handler, http.MethodPost, "/api/auth/admin/login", dto.LoginRequest{
		Email:    "agent@example.com",
		Password: "secret123",
	}, nil, http.StatusOK)

	if resp.Token == "" || resp.Admin.Email != "agent@example.com" || resp.Admin.OrganizationID != "1" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	claims, err := internaljwt.ParseToken(resp.Token, internaljwt.RoleAdmin)
	if err != nil {
		t.Fatalf("issued token does not parse: %v", err)
	}
	if claims.AdminID != resp.Admin.AdminID || claims.ExpiresAt != resp.ExpiresAt {
		t.Fatalf("claims %+v do not match response %+v", claims, resp)
	}
}

func TestAdminLoginFailures(t *testing.T) {
	f := setupChatFixture(t)
	f.adminToken(t, "agent@example.com", "1")

	doJSONRequest[api.ApiError](t, f.handler, http.MethodPost, "/api/auth/admin/login", dto.LoginRequest{Email: "agent@example.com", Password: "wrong-password"}, nil, http.StatusUnauthorized)
	doJSONRequest[api.ApiError](t, f.handler, http.MethodPost, "/api/auth/admin/login", dto.LoginRequest{Email: "nobody@example.com", Password: "secret123"}, nil, http.StatusUnauthorized)
	doJSONRequest[api.ApiError](t, f.handler, http.MethodPost, "/api/auth/admin/login", map[string]string{"email": "not-an-email"}, nil, http.StatusBadRequest)
	doJSONRequest[api.ApiError](t, f.handler, http.MethodGet, "/api/auth/admin/login", nil, nil, http.StatusMethodNotAllowed)
}
