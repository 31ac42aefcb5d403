package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"classifier-api/internal/auth"
	"classifier-api/internal/domain"
	"classifier-api/internal/repository"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password on
	// login so callers cannot tell which part failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidPassword indicates the current password supplied to a
	// password change did not match.
	ErrInvalidPassword = errors.New("current password is incorrect")
	// ErrValidation wraps all malformed-input failures.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the caller lacks the required role.
	ErrForbidden = errors.New("insufficient privileges")
)

// AuthResult is returned by Register and Login: the safe user view plus a
// freshly issued bearer token.
type AuthResult struct {
	User      *domain.User
	Token     string
	ExpiresIn time.Duration
}

// ProfileStats is the caller-facing summary exposed by GetStats.
type ProfileStats struct {
	ID          string
	Name        string
	CreatedAt   time.Time
	LastLoginAt *time.Time
}

// UserService describes identity lifecycle operations.
type UserService interface {
	Register(ctx context.Context, email, password, name string) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	GetProfile(ctx context.Context, id string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id string, name, email *string) (*domain.User, error)
	ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error
	RegenerateAPIKey(ctx context.Context, id string) (string, error)
	Deactivate(ctx context.Context, id string) error
	GetStats(ctx context.Context, id string) (*ProfileStats, error)
	GetAggregateStats(ctx context.Context, callerID string) (*domain.UserStats, error)
}

type userService struct {
	users  repository.UserRepository
	hasher *auth.Hasher
	tokens *auth.TokenIssuer
	policy PasswordPolicy
}

func NewUserService(users repository.UserRepository, hasher *auth.Hasher, tokens *auth.TokenIssuer, policy PasswordPolicy) UserService {
	return &userService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		policy: policy,
	}
}

func (s *userService) Register(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = domain.NormalizeEmail(email)
	name = strings.TrimSpace(name)

	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := s.policy.Validate(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: password too long", ErrValidation)
		}
		return nil, err
	}

	apiKey, err := auth.NewAPIKey()
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		APIKey:       apiKey,
		Role:         domain.RoleUser,
	}

	if _, err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	return s.authResult(user)
}

func (s *userService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if err := s.users.TouchLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	// mirror the TouchLogin mutation on the copy we already hold
	now := time.Now().UTC()
	user.LastLoginAt = &now
	user.UpdatedAt = now

	return s.authResult(user)
}

func (s *userService) GetProfile(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) UpdateProfile(ctx context.Context, id string, name, email *string) (*domain.User, error) {
	update := repository.UserUpdate{}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if err := validateName(trimmed); err != nil {
			return nil, err
		}
		update.Name = &trimmed
	}
	if email != nil {
		normalized := domain.NormalizeEmail(*email)
		if err := validateEmail(normalized); err != nil {
			return nil, err
		}
		update.Email = &normalized
	}
	if update.Name == nil && update.Email == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrValidation)
	}

	user, err := s.users.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	if currentPassword == "" {
		return fmt.Errorf("%w: current password is required", ErrValidation)
	}
	if err := s.policy.Validate(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return ErrInvalidPassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return fmt.Errorf("%w: password too long", ErrValidation)
		}
		return err
	}

	return s.users.SetPassword(ctx, id, hash)
}

func (s *userService) RegenerateAPIKey(ctx context.Context, id string) (string, error) {
	apiKey, err := auth.NewAPIKey()
	if err != nil {
		return "", err
	}
	if err := s.users.SetAPIKey(ctx, id, apiKey); err != nil {
		return "", err
	}
	return apiKey, nil
}

func (s *userService) Deactivate(ctx context.Context, id string) error {
	return s.users.Deactivate(ctx, id)
}

func (s *userService) GetStats(ctx context.Context, id string) (*ProfileStats, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProfileStats{
		ID:          user.ID,
		Name:        user.Name,
		CreatedAt:   user.CreatedAt,
		LastLoginAt: user.LastLoginAt,
	}, nil
}

// GetAggregateStats checks the caller's stored role rather than a token
// claim, so a demotion takes effect immediately.
func (s *userService) GetAggregateStats(ctx context.Context, callerID string) (*domain.UserStats, error) {
	caller, err := s.users.GetByID(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if caller.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	return s.users.Stats(ctx)
}

func (s *userService) authResult(user *domain.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{
		User:      sanitizeUser(user),
		Token:     token,
		ExpiresIn: s.tokens.TTL(),
	}, nil
}

// sanitizeUser strips the password hash before the record leaves the
// service. The api key stays: the safe view echoes the current key.
func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	copied := *user
	copied.PasswordHash = ""
	return &copied
}
