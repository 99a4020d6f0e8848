package handler

import (
	"errors"
	"net/http"

	"oauth-connect/internal/account"
	"oauth-connect/internal/auth/credentials"
	"oauth-connect/internal/auth/provider"
	"oauth-connect/internal/auth/resolver"
	"oauth-connect/internal/connect"
	"oauth-connect/internal/logger"
	"oauth-connect/internal/middleware"
	"oauth-connect/internal/routes"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errInvalidState   = errors.New("invalid state")
	errMissingCode    = errors.New("missing authorization code")
	errMissingPKCE    = errors.New("missing pkce verifier")
	errNoSessionScope = errors.New("session middleware not installed")
)

type Config struct {
	FirewallName string
	CookieSecure bool
}

type Handler struct {
	cfg           Config
	controller    *connect.Controller
	providers     *provider.Registry
	router        *routes.Table
	resolver      resolver.Resolver
	users         account.Store
	credentials   *credentials.Service
	authenticator connect.UserAuthenticator
}

func NewHandler(
	cfg Config,
	controller *connect.Controller,
	registry *provider.Registry,
	router *routes.Table,
	resolver resolver.Resolver,
	users account.Store,
	credentialService *credentials.Service,
	authenticator connect.UserAuthenticator,
) *Handler {
	return &Handler{
		cfg:           cfg,
		controller:    controller,
		providers:     registry,
		router:        router,
		resolver:      resolver,
		users:         users,
		credentials:   credentialService,
		authenticator: authenticator,
	}
}

func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	h.handle(r, http.MethodGet, routes.Connect, h.connect)
	h.handle(r, http.MethodGet, routes.ConnectRegistration, h.registration)
	h.handle(r, http.MethodPost, routes.ConnectRegistration, h.registration)
	h.handle(r, http.MethodGet, routes.ConnectRegistrationSuccess, h.registrationSuccess)
	h.handle(r, http.MethodGet, routes.ConnectService, h.connectService)
	h.handle(r, http.MethodPost, routes.ConnectService, h.connectService)
	h.handle(r, http.MethodGet, routes.LoginCheck, h.loginCheck)
	h.handle(r, http.MethodPost, routes.Login, h.Login)
	h.handle(r, http.MethodPost, routes.Logout, h.Logout)
}

func (h *Handler) handle(r gin.IRoutes, method, name string, fn gin.HandlerFunc) {
	path := h.router.Path(name)
	r.Handle(method, path, fn)

	logger.Info("route registered", map[string]any{
		"method": method,
		"path":   path,
		"name":   name,
	})
}

// flowRequest collects what the connect flows need from c.
func (h *Handler) flowRequest(c *gin.Context) (connect.Request, bool) {
	sess := middleware.SessionFrom(c)
	if sess == nil {
		h.fail(c, errNoSessionScope)
		return connect.Request{}, false
	}
	return connect.Request{
		HTTP:    c.Request,
		Session: sess,
		User:    middleware.UserFrom(c),
	}, true
}

func (h *Handler) respond(c *gin.Context, resp connect.Response, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	if resp.Redirect != "" {
		c.Redirect(http.StatusFound, resp.Redirect)
		return
	}
	c.HTML(http.StatusOK, resp.View, gin.H(resp.Data))
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	log := logger.From(c.Request.Context())

	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}

	log.Warn("request rejected", zap.Int("status", status), zap.Error(err))
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, connect.ErrConnectDisabled):
		return http.StatusForbidden
	case errors.Is(err, connect.ErrNotAuthenticated),
		errors.Is(err, connect.ErrNoAuthenticatedUser),
		errors.Is(err, errInvalidState),
		errors.Is(err, errMissingPKCE):
		return http.StatusUnauthorized
	case errors.Is(err, connect.ErrInvalidRegistrationAttempt),
		errors.Is(err, connect.ErrConfirmationNotFound),
		errors.Is(err, errMissingCode):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrUnknownResourceOwner):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
