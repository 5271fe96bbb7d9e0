package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"support-chat-backend/internal/database"
	"support-chat-backend/internal/env"
	internaljwt "support-chat-backend/internal/jwt"
	"support-chat-backend/internal/model"

	"github.com/google/uuid"
)

const adminRole = "admin"

type Service struct {
	repo Repository
	now  func() time.Time
	ttl  time.Duration
}

func New(db *database.Database) *Service {
	return NewWithRepository(NewDynamoRepository(db), time.Now)
}

func NewWithRepository(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}

	ttl := env.GetDuration(env.AdminTokenTTL)
	if ttl <= 0 {
		ttl = internaljwt.DefaultTokenTTL
	}

	return &Service{
		repo: repo,
		now:  now,
		ttl:  ttl,
	}
}

// Login checks the admin's password and issues an access token.
func (s *Service) Login(ctx context.Context, params LoginParams) (LoginResult, error) {
	email := normalizeEmail(params.Email)
	password := strings.TrimSpace(params.Password)

	if email == "" || password == "" {
		return LoginResult{}, newError(ErrorCodeValidation, "missing required fields", nil)
	}

	admin, err := s.repo.GetAdminByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", err)
		}
		return LoginResult{}, newError(ErrorCodeInternal, "failed to load admin", err)
	}

	if !internaljwt.ValidatePassword(admin.PasswordHash, password) {
		return LoginResult{}, newError(ErrorCodeUnauthorized, "invalid credentials", nil)
	}

	expiresAt := s.now().Add(s.ttl).Unix()
	token, err := internaljwt.CreateToken(internaljwt.Admin{
		Id:             admin.AdminID,
		Email:          admin.Email,
		OrganizationID: admin.OrganizationID,
		Role:           admin.Role,
	}, internaljwt.RoleAdmin, expiresAt)
	if err != nil {
		return LoginResult{}, newError(ErrorCodeInternal, "failed to issue token", err)
	}

	return LoginResult{
		Admin:     admin,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// CreateAdmin provisions an admin account. Used by the setup-admin command.
func (s *Service) CreateAdmin(ctx context.Context, params CreateAdminParams) (model.AdminItem, error) {
	email := normalizeEmail(params.Email)
	password := strings.TrimSpace(params.Password)
	if email == "" || len(password) < 6 {
		return model.AdminItem{}, newError(ErrorCodeValidation, "email and a password of at least 6 characters are required", nil)
	}

	organizationID := strings.TrimSpace(params.OrganizationID)
	if organizationID == "" {
		organizationID = env.GetOrDefault(env.DefaultOrganizationID, "1")
	}

	prepared, err := internaljwt.NewAdmin(internaljwt.RegisterAdmin{Email: email, Password: password})
	if err != nil {
		return model.AdminItem{}, newError(ErrorCodeInternal, "failed to prepare admin", err)
	}

	now := model.FormatTime(s.now())
	admin := model.AdminItem{
		AdminID:        uuid.NewString(),
		Email:          email,
		Name:           strings.TrimSpace(params.Name),
		Role:           adminRole,
		OrganizationID: organizationID,
		PasswordHash:   prepared.PasswordHash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.CreateAdmin(ctx, admin); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return model.AdminItem{}, newError(ErrorCodeConflict, "admin already exists", err)
		}
		return model.AdminItem{}, newError(ErrorCodeInternal, "failed to save admin", err)
	}
	return admin, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
