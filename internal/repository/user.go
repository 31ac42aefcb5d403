package repository

import (
	"context"
	"errors"

	"classifier-api/internal/domain"
)

var (
	// ErrNotFound indicates no active user matched the lookup key.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicateEmail indicates the normalized email already belongs to an
	// active user.
	ErrDuplicateEmail = errors.New("email already in use")
	// ErrUnavailable indicates the backing store failed at the I/O level.
	ErrUnavailable = errors.New("user store unavailable")
)

// UserUpdate carries a partial profile mutation. Nil fields are left
// unchanged.
type UserUpdate struct {
	Name  *string
	Email *string
}

// UserRepository defines persistence operations for User entities. All
// lookups are restricted to active users; deactivated records are retained
// but invisible. Create and Update must resolve concurrent races on the
// same normalized email to exactly one winner.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.User, error)
	Update(ctx context.Context, id string, update UserUpdate) (*domain.User, error)
	SetPassword(ctx context.Context, id, passwordHash string) error
	SetAPIKey(ctx context.Context, id, apiKey string) error
	TouchLogin(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
	Stats(ctx context.Context) (*domain.UserStats, error)
}
