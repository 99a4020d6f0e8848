package middleware

import (
	"errors"
	"net/http"

	"oauth-connect/internal/account"
	"oauth-connect/internal/logger"
	"oauth-connect/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sessionKey = "session"
	userKey    = "user"
)

type SessionConfig struct {
	Store    session.Store
	Users    account.Store
	Options  session.Options
	Firewall string
}

// Sessions loads the session for every request and, when it is
// authenticated on the firewall, the current user. Both are available via
// SessionFrom and UserFrom. A session pointing at a deleted user is
// dropped.
func Sessions(cfg SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		h, err := session.Load(ctx, cfg.Store, c.Writer, c.Request, cfg.Options)
		if err != nil {
			logger.Error("session load failed", map[string]any{"error": err.Error()})
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
			return
		}
		c.Set(sessionKey, h)

		reqLogger := logger.L().With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
		)

		if h.Authenticated(cfg.Firewall) {
			user, err := cfg.Users.ByID(ctx, h.UserID())
			switch {
			case err == nil:
				c.Set(userKey, user)
				ctx = withUserID(ctx, h.UserID())
				reqLogger = reqLogger.With(zap.String("user_id", h.UserID()))
			case errors.Is(err, account.ErrNotFound):
				_ = h.Logout(ctx)
			default:
				reqLogger.Error("current user lookup failed", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
				return
			}
		}

		c.Request = c.Request.WithContext(logger.ToContext(ctx, reqLogger))
		c.Next()
	}
}

// SessionFrom returns the handle stored by Sessions.
func SessionFrom(c *gin.Context) *session.Handle {
	h, _ := c.Get(sessionKey)
	s, _ := h.(*session.Handle)
	return s
}

// UserFrom returns the authenticated user, or nil.
func UserFrom(c *gin.Context) *account.User {
	u, _ := c.Get(userKey)
	user, _ := u.(*account.User)
	return user
}
