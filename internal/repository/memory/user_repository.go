package memory

import (
	"context"
	"sync"
	"time"

	"classifier-api/internal/domain"
	"classifier-api/internal/repository"
)

// UserRepository is a mutex-guarded in-process store adapter for
// single-instance deployments and tests. Email and api-key indexes track
// active users only; deactivated records stay in the id map.
type UserRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	byEmail map[string]string
	byKey   map[string]string
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
		byKey:   make(map[string]string),
	}
}

func (r *UserRepository) Init(ctx context.Context) error {
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := domain.NormalizeEmail(user.Email)
	if _, exists := r.byEmail[email]; exists {
		return nil, repository.ErrDuplicateEmail
	}

	now := time.Now().UTC()
	stored := cloneUser(user)
	stored.Email = email
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.IsActive = true
	if stored.Role == "" {
		stored.Role = domain.RoleUser
	}

	r.byID[stored.ID] = stored
	r.byEmail[email] = stored.ID
	r.byKey[stored.APIKey] = stored.ID

	*user = *cloneUser(stored)
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.activeLocked(id)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeLocked(id)
}

func (r *UserRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[apiKey]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.activeLocked(id)
}

func (r *UserRepository) Update(ctx context.Context, id string, update repository.UserUpdate) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok || !user.IsActive {
		return nil, repository.ErrNotFound
	}

	if update.Email != nil {
		email := domain.NormalizeEmail(*update.Email)
		if other, exists := r.byEmail[email]; exists && other != id {
			return nil, repository.ErrDuplicateEmail
		}
		delete(r.byEmail, user.Email)
		user.Email = email
		r.byEmail[email] = id
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	user.UpdatedAt = time.Now().UTC()
	return cloneUser(user), nil
}

func (r *UserRepository) SetPassword(ctx context.Context, id, passwordHash string) error {
	return r.mutate(id, func(user *domain.User) {
		user.PasswordHash = passwordHash
	})
}

func (r *UserRepository) SetAPIKey(ctx context.Context, id, apiKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok || !user.IsActive {
		return repository.ErrNotFound
	}
	delete(r.byKey, user.APIKey)
	user.APIKey = apiKey
	r.byKey[apiKey] = id
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserRepository) TouchLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.mutate(id, func(user *domain.User) {
		user.LastLoginAt = &now
	})
}

func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok || !user.IsActive {
		return repository.ErrNotFound
	}
	user.IsActive = false
	user.UpdatedAt = time.Now().UTC()
	delete(r.byEmail, user.Email)
	delete(r.byKey, user.APIKey)
	return nil
}

func (r *UserRepository) Stats(ctx context.Context) (*domain.UserStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	stats := &domain.UserStats{}
	for _, user := range r.byID {
		stats.TotalUsers++
		if user.IsActive {
			stats.ActiveUsers++
		}
		if user.LastLoginAt != nil && user.LastLoginAt.After(now.AddDate(0, 0, -30)) {
			stats.ActiveLast30Days++
		}
		if user.CreatedAt.After(now.AddDate(0, 0, -7)) {
			stats.NewLast7Days++
		}
	}
	return stats, nil
}

// Snapshot returns a consistent copy of every record, including deactivated
// ones. Used by the file adapter to persist state.
func (r *UserRepository) Snapshot() []domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]domain.User, 0, len(r.byID))
	for _, user := range r.byID {
		users = append(users, *cloneUser(user))
	}
	return users
}

// Restore replaces the store contents with the given records, rebuilding
// the active-user indexes.
func (r *UserRepository) Restore(users []domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID = make(map[string]*domain.User, len(users))
	r.byEmail = make(map[string]string)
	r.byKey = make(map[string]string)
	for i := range users {
		user := cloneUser(&users[i])
		r.byID[user.ID] = user
		if user.IsActive {
			r.byEmail[user.Email] = user.ID
			r.byKey[user.APIKey] = user.ID
		}
	}
}

func (r *UserRepository) mutate(id string, fn func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok || !user.IsActive {
		return repository.ErrNotFound
	}
	fn(user)
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserRepository) activeLocked(id string) (*domain.User, error) {
	user, ok := r.byID[id]
	if !ok || !user.IsActive {
		return nil, repository.ErrNotFound
	}
	return cloneUser(user), nil
}

func cloneUser(user *domain.User) *domain.User {
	copied := *user
	if user.LastLoginAt != nil {
		t := *user.LastLoginAt
		copied.LastLoginAt = &t
	}
	return &copied
}

var _ repository.UserRepository = (*UserRepository)(nil)
