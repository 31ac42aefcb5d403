package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classifier-api/internal/auth"
	"classifier-api/internal/domain"
	"classifier-api/internal/repository"
	"classifier-api/internal/repository/memory"
)

func newTestService(t *testing.T) (UserService, *memory.UserRepository, *auth.TokenIssuer) {
	t.Helper()
	users := memory.NewUserRepository()
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	svc := NewUserService(users, auth.NewHasher(4), tokens, RelaxedPasswordPolicy())
	return svc, users, tokens
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, tokens := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, " Ann@Example.COM ", "passw0rd", "Ann")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", registered.User.Email)
	assert.Empty(t, registered.User.PasswordHash)
	assert.NotEmpty(t, registered.User.APIKey)
	assert.Equal(t, domain.RoleUser, registered.User.Role)
	assert.Equal(t, time.Hour, registered.ExpiresIn)

	claims, err := tokens.Verify(registered.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, claims.UserID)
	assert.Equal(t, "ann@example.com", claims.Email)

	loggedIn, err := svc.Login(ctx, "ANN@example.com", "passw0rd")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, loggedIn.User.ID)
	assert.Empty(t, loggedIn.User.PasswordHash)
	require.NotNil(t, loggedIn.User.LastLoginAt)
	assert.WithinDuration(t, *loggedIn.User.LastLoginAt, loggedIn.User.UpdatedAt, time.Second)
	assert.False(t, loggedIn.User.UpdatedAt.Before(registered.User.UpdatedAt))

	claims, err = tokens.Verify(loggedIn.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, claims.UserID)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]struct {
		email, password, name string
	}{
		"bad email":     {"not-an-email", "passw0rd", "Ann"},
		"weak password": {"a@b.com", "short", "Ann"},
		"no digit":      {"a@b.com", "abcdefgh", "Ann"},
		"bad name":      {"a@b.com", "passw0rd", "A"},
		"numeric name":  {"a@b.com", "passw0rd", "Ann42"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(ctx, tc.email, tc.password, tc.name)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRegisterDuplicateEmailVariants(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@b.com", "passw0rd", "Ann")
	require.NoError(t, err)

	for _, variant := range []string{"a@b.com", "A@B.COM", " a@b.com "} {
		_, err := svc.Register(ctx, variant, "passw0rd", "Bea")
		require.ErrorIs(t, err, repository.ErrDuplicateEmail, "variant %q", variant)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@b.com", "passw0rd", "Ann")
	require.NoError(t, err)

	_, unknownErr := svc.Login(ctx, "nobody@b.com", "passw0rd")
	_, wrongErr := svc.Login(ctx, "a@b.com", "wrong-password")

	require.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	require.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())

	_, err = svc.Login(ctx, "", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginDeactivatedUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@b.com", "passw0rd", "Ann")
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, registered.User.ID))

	_, err = svc.Login(ctx, "a@b.com", "passw0rd")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGetProfileStripsHash(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@b.com", "passw0rd", "Ann")
	require.NoError(t, err)

	profile, err := svc.GetProfile(ctx, registered.User.ID)
	require.NoError(t, err)
	assert.Empty(t, profile.PasswordHash)
	assert.Equal(t, "a@b.com", profile.Email)
	assert.NotEmpty(t, profile.APIKey)
}

func TestUpdateProfile(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@b.com", "passw0rd", "Ann")
	require.NoError(t, err)

	name := "  Bea  "
	updated, err := svc.UpdateProfile(ctx, registered.User.ID, &name, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bea", updated.Name)
	assert.Equal(t, "a@b.com", updated.Email)

	email := "New@B.com"
	updated, err = svc.UpdateProfile(ctx, registered.User.ID, nil, &email)
	require.NoError(t, err)
	assert.Equal(t, "new@b.com", updated.Email)

	_, err = svc.UpdateProfile(ctx, registered.User.ID, nil, nil)
	require.ErrorIs(t, err, ErrValidation)

	bad := "not-an-email"
	_, err = svc.UpdateProfile(ctx, registered.User.ID, nil, &bad)
	require.ErrorIs(t, err, ErrValidation)
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@b.com", "passw0rd", "Ann")
	require.NoError(t, err)
	id := registered.User.ID

	err = svc.ChangePassword(ctx, id, "wrong-current", "newpass1")
	require.ErrorIs(t, err, ErrInvalidPassword)

	// a rejected change leaves the old password working
	_, err = svc.Login(ctx, "a@b.com", "passw0rd")
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, id, "passw0rd", "weak")
	require.ErrorIs(t, err, ErrValidation)

	err = svc.ChangePassword(ctx, id, "", "newpass1")
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, svc.ChangePassword(ctx, id, "passw0rd", "newpass1"))

	_, err = svc.Login(ctx, "a@b.com", "passw0rd")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "a@b.com", "newpass1")
	require.NoError(t, err)
}

func TestRegenerateAPIKey(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@b.com", "passw0rd", "Ann")
	require.NoError(t, err)
	oldKey := registered.User.APIKey

	newKey, err := svc.RegenerateAPIKey(ctx, registered.User.ID)
	require.NoError(t, err)
	assert.NotEqual(t, oldKey, newKey)
	assert.Len(t, newKey, 64)

	_, err = users.GetByAPIKey(ctx, oldKey)
	require.ErrorIs(t, err, repository.ErrNotFound)

	user, err := users.GetByAPIKey(ctx, newKey)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, user.ID)
}

func TestGetStats(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@b.com", "passw0rd", "Ann")
	require.NoError(t, err)

	stats, err := svc.GetStats(ctx, registered.User.ID)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, stats.ID)
	assert.Equal(t, "Ann", stats.Name)
	assert.False(t, stats.CreatedAt.IsZero())
}

func TestAggregateStatsRequiresAdmin(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@b.com", "passw0rd", "Ann")
	require.NoError(t, err)

	_, err = svc.GetAggregateStats(ctx, registered.User.ID)
	require.ErrorIs(t, err, ErrForbidden)

	admin, err := users.Create(ctx, &domain.User{
		ID:     "admin-1",
		Email:  "root@b.com",
		Name:   "Root",
		APIKey: "admin-key",
		Role:   domain.RoleAdmin,
	})
	require.NoError(t, err)

	stats, err := svc.GetAggregateStats(ctx, admin.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalUsers)
}
