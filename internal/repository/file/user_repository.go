package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"classifier-api/internal/domain"
	"classifier-api/internal/repository"
	"classifier-api/internal/repository/memory"
)

// UserRepository is a development-only adapter that layers a JSON snapshot
// file over the in-memory store. Every mutation rewrites the full snapshot.
// It is not durable across concurrent writer processes; a single server
// instance is assumed.
type UserRepository struct {
	mu   sync.Mutex
	mem  *memory.UserRepository
	path string
}

type userRecord struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"password_hash"`
	APIKey       string     `json:"api_key"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	IsActive     bool       `json:"is_active"`
}

func NewUserRepository(path string) *UserRepository {
	return &UserRepository{
		mem:  memory.NewUserRepository(),
		path: path,
	}
}

func (r *UserRepository) Init(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var records []userRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	users := make([]domain.User, len(records))
	for i, rec := range records {
		users[i] = domain.User{
			ID:           rec.ID,
			Email:        rec.Email,
			Name:         rec.Name,
			PasswordHash: rec.PasswordHash,
			APIKey:       rec.APIKey,
			Role:         domain.Role(rec.Role),
			CreatedAt:    rec.CreatedAt,
			UpdatedAt:    rec.UpdatedAt,
			LastLoginAt:  rec.LastLoginAt,
			IsActive:     rec.IsActive,
		}
	}
	r.mem.Restore(users)
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	created, err := r.mem.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := r.persist(); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.mem.GetByEmail(ctx, email)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.mem.GetByID(ctx, id)
}

func (r *UserRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.User, error) {
	return r.mem.GetByAPIKey(ctx, apiKey)
}

func (r *UserRepository) Update(ctx context.Context, id string, update repository.UserUpdate) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	updated, err := r.mem.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}
	if err := r.persist(); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *UserRepository) SetPassword(ctx context.Context, id, passwordHash string) error {
	return r.mutate(func() error { return r.mem.SetPassword(ctx, id, passwordHash) })
}

func (r *UserRepository) SetAPIKey(ctx context.Context, id, apiKey string) error {
	return r.mutate(func() error { return r.mem.SetAPIKey(ctx, id, apiKey) })
}

func (r *UserRepository) TouchLogin(ctx context.Context, id string) error {
	return r.mutate(func() error { return r.mem.TouchLogin(ctx, id) })
}

func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	return r.mutate(func() error { return r.mem.Deactivate(ctx, id) })
}

func (r *UserRepository) Stats(ctx context.Context) (*domain.UserStats, error) {
	return r.mem.Stats(ctx)
}

func (r *UserRepository) mutate(fn func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := fn(); err != nil {
		return err
	}
	return r.persist()
}

func (r *UserRepository) persist() error {
	users := r.mem.Snapshot()
	records := make([]userRecord, len(users))
	for i, user := range users {
		records[i] = userRecord{
			ID:           user.ID,
			Email:        user.Email,
			Name:         user.Name,
			PasswordHash: user.PasswordHash,
			APIKey:       user.APIKey,
			Role:         string(user.Role),
			CreatedAt:    user.CreatedAt,
			UpdatedAt:    user.UpdatedAt,
			LastLoginAt:  user.LastLoginAt,
			IsActive:     user.IsActive,
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
