package credentials

import (
	"context"
	"errors"

	"oauth-connect/internal/account"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	users account.Store
}

func NewService(users account.Store) *Service {
	return &Service{users: users}
}

// Authenticate verifies a local username/password pair. Accounts created
// through a resource owner may have no password and can never log in here.
func (s *Service) Authenticate(
	ctx context.Context,
	username string,
	password string,
) (*account.User, error) {

	u, err := s.users.ByUsername(ctx, username)
	if err != nil {
		// hide whether user exists or not
		return nil, ErrInvalidCredentials
	}

	if u.PasswordHash == "" || u.HashVersion != HashVersionBcrypt {
		return nil, ErrInvalidCredentials
	}

	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}
