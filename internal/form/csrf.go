package form

import (
	"context"
	"crypto/subtle"

	"oauth-connect/internal/session"
)

const csrfPrefix = "_csrf."

// Session is the part of the session store the forms need.
type Session interface {
	Get(ctx context.Context, key string, v any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

// CSRFToken returns the session's token for intent, minting one on first use.
func CSRFToken(ctx context.Context, sess Session, intent string) (string, error) {
	var token string
	ok, err := sess.Get(ctx, csrfPrefix+intent, &token)
	if err != nil {
		return "", err
	}
	if ok && token != "" {
		return token, nil
	}

	token, err = session.RandomToken(32)
	if err != nil {
		return "", err
	}
	if err := sess.Set(ctx, csrfPrefix+intent, token); err != nil {
		return "", err
	}
	return token, nil
}

// ValidCSRFToken reports whether token matches the session's token for intent.
func ValidCSRFToken(ctx context.Context, sess Session, intent, token string) bool {
	var want string
	ok, err := sess.Get(ctx, csrfPrefix+intent, &want)
	if err != nil || !ok || want == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(token)) == 1
}
