package account

import (
	"context"
	"database/sql"
	"errors"

	"oauth-connect/internal/db"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(db *db.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts u and fills in its generated id and timestamps.
func (s *PostgresStore) Create(ctx context.Context, u *User) error {
	if len(u.Roles) == 0 {
		u.Roles = []string{RoleUser}
	}
	if u.Status == "" {
		u.Status = StatusActive
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, email_verified, password_hash, hash_version, roles, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`,
		u.Username,
		u.Email,
		u.EmailVerified,
		u.PasswordHash,
		u.HashVersion,
		pq.Array(u.Roles),
		string(u.Status),
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrUsernameTaken
	}
	return err
}

func (s *PostgresStore) ByID(ctx context.Context, id string) (*User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.one(ctx, `WHERE id = $1`, uid)
}

func (s *PostgresStore) ByUsername(ctx context.Context, username string) (*User, error) {
	return s.one(ctx, `WHERE LOWER(username) = LOWER($1)`, username)
}

func (s *PostgresStore) one(ctx context.Context, where string, arg any) (*User, error) {
	var (
		u      User
		roles  pq.StringArray
		status string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, email_verified, password_hash, hash_version, roles, status, created_at, updated_at
		FROM users
	`+where, arg).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.EmailVerified,
		&u.PasswordHash,
		&u.HashVersion,
		&roles,
		&status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u.Roles = []string(roles)
	u.Status = Status(status)
	return &u, nil
}
