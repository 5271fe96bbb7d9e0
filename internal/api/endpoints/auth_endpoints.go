package endpoints

import (
	"net/http"

	"support-chat-backend/internal/dto"
	"support-chat-backend/internal/model"
	authsvc "support-chat-backend/internal/service/auth"
)

type AuthEndpoints interface {
	Login(http.ResponseWriter, *http.Request) error
}

type authEndpoints struct {
	service *authsvc.Service
}

func NewAuthEndpoints(service *authsvc.Service) AuthEndpoints {
	return &authEndpoints{
		service: service,
	}
}

func (h *authEndpoints) Login(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleLogin,
	})
}

func (h *authEndpoints) handleLogin(w http.ResponseWriter, r *http.Request) error {
	var req dto.LoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		return err
	}

	result, err := h.service.Login(r.Context(), authsvc.LoginParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return serviceError(err)
	}

	return WriteJSON(w, http.StatusOK, dto.LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Admin:     toAdminResponse(result.Admin),
	})
}

func toAdminResponse(admin model.AdminItem) dto.AdminResponse {
	return dto.AdminResponse{
		AdminID:        admin.AdminID,
		Email:          admin.Email,
		Name:           admin.Name,
		Role:           admin.Role,
		OrganizationID: admin.OrganizationID,
	}
}
