package connect

import (
	"context"
	"errors"

	"oauth-connect/internal/auth"
	"oauth-connect/internal/session"
)

// Session is the per-user key/value scope the flows keep their state in.
// *session.Handle implements it.
type Session interface {
	Get(ctx context.Context, key string, v any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	Remove(ctx context.Context, key string) error
	Login(ctx context.Context, t session.Token) error
}

const lastErrorKey = "_security.last_error"

const (
	errorKindNotLinked = "account_not_linked"
	errorKindAuth      = "authentication"
)

type storedError struct {
	Kind      string                      `json:"kind"`
	NotLinked *auth.AccountNotLinkedError `json:"not_linked,omitempty"`
	Message   string                      `json:"message,omitempty"`
}

// StoreAuthError keeps err as the session's last security error so the next
// request to the connect view can pick it up.
func StoreAuthError(ctx context.Context, sess Session, err error) error {
	var notLinked *auth.AccountNotLinkedError
	if errors.As(err, &notLinked) {
		return sess.Set(ctx, lastErrorKey, storedError{Kind: errorKindNotLinked, NotLinked: notLinked})
	}
	return sess.Set(ctx, lastErrorKey, storedError{Kind: errorKindAuth, Message: err.Error()})
}

// TakeAuthError returns and removes the last security error, or nil.
func TakeAuthError(ctx context.Context, sess Session) (authErr error, err error) {
	var stored storedError
	ok, err := sess.Get(ctx, lastErrorKey, &stored)
	if err != nil || !ok {
		return nil, err
	}
	if err = sess.Remove(ctx, lastErrorKey); err != nil {
		return nil, err
	}

	if stored.Kind == errorKindNotLinked && stored.NotLinked != nil {
		return stored.NotLinked, nil
	}
	return &auth.AuthenticationError{Message: stored.Message}, nil
}
