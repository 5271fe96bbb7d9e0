package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"support-chat-backend/internal/database"
	"support-chat-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
)

var (
	ErrNotFound      = errors.New("auth repository: not found")
	ErrAlreadyExists = errors.New("auth repository: already exists")
)

type Repository interface {
	CreateAdmin(ctx context.Context, admin model.AdminItem) error
	GetAdminByEmail(ctx context.Context, email string) (model.AdminItem, error)
}

type DynamoRepository struct {
	db *database.Database
}

func NewDynamoRepository(db *database.Database) Repository {
	return &DynamoRepository{db: db}
}

func (r *DynamoRepository) CreateAdmin(ctx context.Context, admin model.AdminItem) error {
	if _, err := r.GetAdminByEmail(ctx, admin.Email); err == nil {
		return ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	err := r.db.Client.PutItem(ctx, model.AdminsTable, admin, aws.String("attribute_not_exists(adminId)"))
	if database.IsConditionFailed(err) {
		return ErrAlreadyExists
	}
	return err
}

func (r *DynamoRepository) GetAdminByEmail(ctx context.Context, email string) (model.AdminItem, error) {
	items, err := r.db.Client.QueryIndexOrScan(ctx, model.AdminsTable, model.AdminsByEmailIndex, "email", email, nil)
	if err != nil {
		return model.AdminItem{}, err
	}
	admins, err := database.UnmarshalItems[model.AdminItem](items)
	if err != nil {
		return model.AdminItem{}, err
	}
	if len(admins) == 0 {
		return model.AdminItem{}, ErrNotFound
	}
	return admins[0], nil
}

type MemoryRepository struct {
	mu     sync.Mutex
	admins map[string]model.AdminItem
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{admins: make(map[string]model.AdminItem)}
}

func (m *MemoryRepository) CreateAdmin(_ context.Context, admin model.AdminItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(admin.Email)
	if _, exists := m.admins[key]; exists {
		return ErrAlreadyExists
	}
	m.admins[key] = admin
	return nil
}

func (m *MemoryRepository) GetAdminByEmail(_ context.Context, email string) (model.AdminItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	admin, ok := m.admins[strings.ToLower(email)]
	if !ok {
		return model.AdminItem{}, ErrNotFound
	}
	return admin, nil
}
