package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusLocked   Status = "locked"
	StatusDisabled Status = "disabled"
	StatusExpired  Status = "expired"
)

const RoleUser = "ROLE_USER"

var (
	ErrNotFound      = errors.New("account: user not found")
	ErrUsernameTaken = errors.New("account: username already taken")
)

// User is a local account.
type User struct {
	ID            uuid.UUID
	Username      string
	Email         string
	EmailVerified bool
	PasswordHash  string
	HashVersion   string
	Roles         []string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store persists local users.
type Store interface {
	Create(ctx context.Context, u *User) error
	ByID(ctx context.Context, id string) (*User, error)
	ByUsername(ctx context.Context, username string) (*User, error)
}

// StatusError rejects a user whose account cannot log in.
type StatusError struct {
	UserID uuid.UUID
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("account %s is %s", e.UserID, e.Status)
}

// Checker runs account status checks after credentials were verified.
type Checker interface {
	CheckPostAuth(u *User) error
}

// StatusChecker rejects locked, disabled and expired accounts.
type StatusChecker struct{}

func (StatusChecker) CheckPostAuth(u *User) error {
	if u == nil {
		return errors.New("account: nil user")
	}
	switch u.Status {
	case StatusActive, "":
		return nil
	default:
		return &StatusError{UserID: u.ID, Status: u.Status}
	}
}
