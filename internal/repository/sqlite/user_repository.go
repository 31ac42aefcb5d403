package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"classifier-api/internal/domain"
	"classifier-api/internal/repository"
)

// Uniqueness is scoped to active records via partial indexes so a
// deactivated identity releases its email and api key for reuse.
var schemaStatements = []string{
	`
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	api_key TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'user',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	last_login_at DATETIME,
	is_active INTEGER NOT NULL DEFAULT 1
);
`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_active ON users(email) WHERE is_active = 1;`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_api_key_active ON users(api_key) WHERE is_active = 1;`,
}

const userColumns = `id, email, name, password_hash, api_key, role, created_at, updated_at, last_login_at, is_active`

// UserRepository is the relational store adapter. The partial unique index
// on email makes concurrent creates for the same address atomic: one insert
// wins, the rest observe a constraint violation.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create users schema: %w", err)
		}
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	now := time.Now().UTC()
	user.Email = domain.NormalizeEmail(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now
	user.IsActive = true
	if user.Role == "" {
		user.Role = domain.RoleUser
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (id, email, name, password_hash, api_key, role, created_at, updated_at, is_active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.APIKey,
		string(user.Role),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicateEmail
		}
		return nil, storeError("insert user", err)
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE email = ? AND is_active = 1`,
		domain.NormalizeEmail(email),
	)
	return scanUser(row)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE id = ? AND is_active = 1`,
		id,
	)
	return scanUser(row)
}

func (r *UserRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE api_key = ? AND is_active = 1`,
		apiKey,
	)
	return scanUser(row)
}

func (r *UserRepository) Update(ctx context.Context, id string, update repository.UserUpdate) (*domain.User, error) {
	var email *string
	if update.Email != nil {
		normalized := domain.NormalizeEmail(*update.Email)
		email = &normalized
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE users
SET name = COALESCE(?, name),
	email = COALESCE(?, email),
	updated_at = ?
WHERE id = ? AND is_active = 1`,
		update.Name,
		email,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicateEmail
		}
		return nil, storeError("update user", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return nil, storeError("update user rows", err)
	} else if affected == 0 {
		return nil, repository.ErrNotFound
	}

	return r.GetByID(ctx, id)
}

func (r *UserRepository) SetPassword(ctx context.Context, id, passwordHash string) error {
	return r.exec(ctx, "set password", `
UPDATE users
SET password_hash = ?, updated_at = ?
WHERE id = ? AND is_active = 1`,
		passwordHash, time.Now().UTC(), id)
}

func (r *UserRepository) SetAPIKey(ctx context.Context, id, apiKey string) error {
	return r.exec(ctx, "set api key", `
UPDATE users
SET api_key = ?, updated_at = ?
WHERE id = ? AND is_active = 1`,
		apiKey, time.Now().UTC(), id)
}

func (r *UserRepository) TouchLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.exec(ctx, "touch login", `
UPDATE users
SET last_login_at = ?, updated_at = ?
WHERE id = ? AND is_active = 1`,
		now, now, id)
}

func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	return r.exec(ctx, "deactivate user", `
UPDATE users
SET is_active = 0, updated_at = ?
WHERE id = ? AND is_active = 1`,
		time.Now().UTC(), id)
}

func (r *UserRepository) Stats(ctx context.Context) (*domain.UserStats, error) {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN last_login_at IS NOT NULL AND last_login_at > ? THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN created_at > ? THEN 1 ELSE 0 END), 0)
FROM users`,
		now.AddDate(0, 0, -30),
		now.AddDate(0, 0, -7),
	)

	var stats domain.UserStats
	if err := row.Scan(
		&stats.TotalUsers,
		&stats.ActiveUsers,
		&stats.ActiveLast30Days,
		&stats.NewLast7Days,
	); err != nil {
		return nil, storeError("scan user stats", err)
	}
	return &stats, nil
}

func (r *UserRepository) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeError(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeError(op, err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var user domain.User
	var role string
	var lastLogin sql.NullTime
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.APIKey,
		&role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&lastLogin,
		&user.IsActive,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, storeError("scan user", err)
	}
	user.Role = domain.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLoginAt = &t
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, repository.ErrUnavailable, err)
}
