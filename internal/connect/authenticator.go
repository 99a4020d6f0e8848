package connect

import (
	"context"
	"errors"

	"oauth-connect/internal/account"
	"oauth-connect/internal/logger"
	"oauth-connect/internal/metrics"
	"oauth-connect/internal/session"

	"go.uber.org/zap"
)

// SessionAuthenticator logs a local user into the current session.
type SessionAuthenticator struct {
	checker  account.Checker
	firewall string
}

func NewSessionAuthenticator(checker account.Checker, firewall string) *SessionAuthenticator {
	return &SessionAuthenticator{checker: checker, firewall: firewall}
}

// Authenticate runs the post-auth status check and upgrades the session.
// A locked, disabled or expired account leaves the session anonymous and
// returns nil.
func (a *SessionAuthenticator) Authenticate(ctx context.Context, sess Session, user *account.User) error {
	if err := a.checker.CheckPostAuth(user); err != nil {
		var statusErr *account.StatusError
		if errors.As(err, &statusErr) {
			logger.From(ctx).Warn("authentication skipped",
				zap.String("user_id", statusErr.UserID.String()),
				zap.String("status", string(statusErr.Status)),
			)
			metrics.AccountStatusRejected.Inc()
			return nil
		}
		return err
	}

	return sess.Login(ctx, session.Token{
		UserID:   user.ID.String(),
		Firewall: a.firewall,
		Roles:    user.Roles,
	})
}
