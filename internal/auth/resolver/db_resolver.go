package resolver

import (
	"context"
	"database/sql"
	"errors"

	"oauth-connect/internal/account"
	"oauth-connect/internal/auth"
	"oauth-connect/internal/db"

	"github.com/google/uuid"
)

// DBResolver resolves and links identities using the identities table.
type DBResolver struct {
	db *db.DB
}

func NewDBResolver(db *db.DB) *DBResolver {
	return &DBResolver{db: db}
}

// Resolve returns the user linked to info, or ErrNotLinked. Unlike a plain
// social login it never creates users or links by email: linking only
// happens through the connect flows.
func (r *DBResolver) Resolve(
	ctx context.Context,
	info *auth.UserInformation,
) (string, error) {

	if info == nil {
		return "", errors.New("user information is nil")
	}

	var userID uuid.UUID
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM identities
		WHERE provider = $1
		  AND provider_user_id = $2
	`,
		info.Provider,
		info.ProviderUserID,
	).Scan(&userID)

	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotLinked
	}
	if err != nil {
		return "", err
	}

	return userID.String(), nil
}

// Connect links info to user. An identity already linked to another user is
// moved, so one provider account never maps to two local accounts.
func (r *DBResolver) Connect(
	ctx context.Context,
	user *account.User,
	info *auth.UserInformation,
) error {

	if user == nil || info == nil {
		return errors.New("connect requires a user and user information")
	}
	if info.Provider == "" || info.ProviderUserID == "" {
		return errors.New("user information missing provider identity")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (user_id, provider, provider_user_id, nickname)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_user_id)
		DO UPDATE SET user_id = EXCLUDED.user_id,
		              nickname = EXCLUDED.nickname,
		              updated_at = NOW()
	`,
		user.ID,
		info.Provider,
		info.ProviderUserID,
		info.Nickname,
	)
	return err
}
