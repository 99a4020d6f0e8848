package handler

import (
	"errors"
	"net/http"

	"oauth-connect/internal/auth"
	"oauth-connect/internal/auth/resolver"
	"oauth-connect/internal/connect"
	"oauth-connect/internal/logger"
	"oauth-connect/internal/middleware"
	"oauth-connect/internal/routes"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// loginCheck is the firewall check path a resource owner redirects to after
// a login attempt. Failures are kept in the session and shown by connect.
func (h *Handler) loginCheck(c *gin.Context) {
	ctx := c.Request.Context()
	providerName := c.Param("provider")
	log := logger.From(ctx).With(zap.String("provider", providerName))

	d, err := h.providers.ByName(providerName)
	if err != nil {
		h.fail(c, err)
		return
	}

	sess := middleware.SessionFrom(c)
	if sess == nil {
		h.fail(c, errNoSessionScope)
		return
	}

	if !validateState(c) {
		h.fail(c, errInvalidState)
		return
	}

	// The provider reports a denied or cancelled login.
	if errParam := c.Query("error"); errParam != "" {
		log.Warn("oauth callback returned error",
			zap.String("error", errParam),
			zap.String("desc", c.Query("error_description")),
		)
		h.failLogin(c, &auth.AuthenticationError{Message: "Authentication with " + d.Name + " was not completed."})
		return
	}

	code := c.Query("code")
	if code == "" {
		h.fail(c, errMissingCode)
		return
	}

	verifier := pkceVerifier(c)
	if verifier == "" {
		h.fail(c, errMissingPKCE)
		return
	}
	clearOAuthCookies(c, h.cfg.CookieSecure)

	checkURL, err := h.providers.CheckURL(d, c.Request)
	if err != nil {
		h.fail(c, err)
		return
	}

	token, err := d.Owner.AccessToken(ctx, code, checkURL, oauth2.VerifierOption(verifier))
	if err != nil {
		log.Warn("code exchange failed", zap.Error(err))
		h.failLogin(c, &auth.AuthenticationError{Message: "Authentication failed."})
		return
	}

	info, err := d.Owner.UserInformation(ctx, token)
	if err != nil {
		log.Warn("user information failed", zap.Error(err))
		h.failLogin(c, &auth.AuthenticationError{Message: "Authentication failed."})
		return
	}

	userID, err := h.resolver.Resolve(ctx, info)
	if errors.Is(err, resolver.ErrNotLinked) {
		log.Info("identity not linked", zap.String("provider_user_id", info.ProviderUserID))
		h.failLogin(c, auth.NewAccountNotLinkedError(d.Name, token, info))
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	user, err := h.users.ByID(ctx, userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.authenticator.Authenticate(ctx, sess, user); err != nil {
		h.fail(c, err)
		return
	}

	log.Info("login success", zap.String("user_id", userID), zap.String("ip", c.ClientIP()))
	c.Redirect(http.StatusFound, h.path(routes.Home))
}

// failLogin stores err for the connect page and sends the browser there.
func (h *Handler) failLogin(c *gin.Context, err error) {
	if storeErr := connect.StoreAuthError(c.Request.Context(), middleware.SessionFrom(c), err); storeErr != nil {
		h.fail(c, storeErr)
		return
	}
	c.Redirect(http.StatusFound, h.path(routes.Connect))
}

func (h *Handler) path(name string) string {
	p, err := h.router.Generate(name, nil, false)
	if err != nil {
		return "/"
	}
	return p
}
