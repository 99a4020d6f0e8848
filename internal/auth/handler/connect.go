package handler

import (
	"github.com/gin-gonic/gin"
)

// connect renders the login page, or sends a visitor whose provider login
// found no linked account on to registration.
func (h *Handler) connect(c *gin.Context) {
	req, ok := h.flowRequest(c)
	if !ok {
		return
	}

	state, err := generateState(c, h.cfg.CookieSecure)
	if err != nil {
		h.fail(c, err)
		return
	}
	req.State = state
	req.Verifier = generatePKCE(c, h.cfg.CookieSecure)

	resp, err := h.controller.Connect(c.Request.Context(), req)
	h.respond(c, resp, err)
}

// connectService is the provider callback and confirmation page for
// linking an account to the logged-in user.
func (h *Handler) connectService(c *gin.Context) {
	req, ok := h.flowRequest(c)
	if !ok {
		return
	}

	if c.Query("code") != "" {
		if !validateState(c) {
			h.fail(c, errInvalidState)
			return
		}
		req.Verifier = pkceVerifier(c)
		clearOAuthCookies(c, h.cfg.CookieSecure)
	}

	resp, err := h.controller.ConnectService(c.Request.Context(), req, c.Param("service"))
	h.respond(c, resp, err)
}
