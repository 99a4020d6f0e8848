package credentials

import (
	"context"
	"strings"
	"testing"

	"oauth-connect/internal/account"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userStore map[string]*account.User

func (s userStore) Create(context.Context, *account.User) error { return nil }

func (s userStore) ByID(context.Context, string) (*account.User, error) {
	return nil, account.ErrNotFound
}

func (s userStore) ByUsername(_ context.Context, name string) (*account.User, error) {
	u, ok := s[strings.ToLower(name)]
	if !ok {
		return nil, account.ErrNotFound
	}
	return u, nil
}

func TestHashPassword(t *testing.T) {
	_, _, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, version, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.Equal(t, HashVersionBcrypt, version)
	assert.NoError(t, VerifyPassword(hash, "correct horse"))
	assert.Error(t, VerifyPassword(hash, "battery staple"))
}

func TestAuthenticate(t *testing.T) {
	hash, version, err := HashPassword("correct horse")
	require.NoError(t, err)

	store := userStore{
		"alice":   {Username: "alice", PasswordHash: hash, HashVersion: version},
		"oauthed": {Username: "oauthed"},
	}
	svc := NewService(store)
	ctx := context.Background()

	u, err := svc.Authenticate(ctx, "Alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = svc.Authenticate(ctx, "alice", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "oauthed", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
