package handler

import (
	"errors"
	"net/http"

	"oauth-connect/internal/auth/credentials"
	"oauth-connect/internal/logger"
	"oauth-connect/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginRequest struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

// Login authenticates a local username and password.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sess := middleware.SessionFrom(c)
	if sess == nil {
		h.fail(c, errNoSessionScope)
		return
	}

	ctx := c.Request.Context()
	user, err := h.credentials.Authenticate(ctx, req.Username, req.Password)
	if errors.Is(err, credentials.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.authenticator.Authenticate(ctx, sess, user); err != nil {
		h.fail(c, err)
		return
	}

	// Locked, disabled and expired accounts are left anonymous without a
	// reason being given.
	if !sess.Authenticated(h.cfg.FirewallName) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	logger.From(ctx).Info("login success", zap.String("user_id", user.ID.String()))
	c.JSON(http.StatusOK, gin.H{"status": "logged_in"})
}

// Logout ends the session. It always succeeds.
func (h *Handler) Logout(c *gin.Context) {
	sess := middleware.SessionFrom(c)
	if sess == nil {
		c.Status(http.StatusNoContent)
		return
	}

	sid := sess.ID()
	if err := sess.Logout(c.Request.Context()); err != nil {
		logger.From(c.Request.Context()).Warn("logout failed", zap.Error(err))
	}

	logger.Info("logout", map[string]any{
		"session_id": sid,
		"ip":         c.ClientIP(),
	})

	c.Status(http.StatusNoContent)
}
