package resolver

import (
	"context"
	"errors"

	"oauth-connect/internal/account"
	"oauth-connect/internal/auth"
)

var ErrNotLinked = errors.New("identity is not linked to a local account")

// Resolver determines which local user an external identity belongs to.
type Resolver interface {
	Resolve(
		ctx context.Context,
		info *auth.UserInformation,
	) (userID string, err error)
}

// Connector persists the link between a local user and a provider identity.
type Connector interface {
	Connect(
		ctx context.Context,
		user *account.User,
		info *auth.UserInformation,
	) error
}
