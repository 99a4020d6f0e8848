package app

import (
	"context"
	"net/http"

	"oauth-connect/internal/account"
	"oauth-connect/internal/auth/credentials"
	"oauth-connect/internal/auth/handler"
	"oauth-connect/internal/auth/resolver"
	"oauth-connect/internal/config"
	"oauth-connect/internal/connect"
	"oauth-connect/internal/form"
	"oauth-connect/internal/metrics"
	"oauth-connect/internal/middleware"
	"oauth-connect/internal/routes"
	"oauth-connect/internal/session"
	"oauth-connect/internal/view"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	router, err := buildRouter(ctx, cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	return router, infra.Close, nil
}

func buildRouter(ctx context.Context, cfg config.Config, infra *Infra) (*gin.Engine, error) {

	// ----------------------------
	// Dependencies
	// ----------------------------

	urls := routes.Default(cfg.PublicBaseURL)

	registry, err := setupProviders(ctx, cfg, urls)
	if err != nil {
		return nil, err
	}

	users := account.NewPostgresStore(infra.DB)
	identities := resolver.NewDBResolver(infra.DB)
	authenticator := connect.NewSessionAuthenticator(account.StatusChecker{}, cfg.FirewallName)

	controller := connect.NewController(
		connect.Config{
			ConnectEnabled: cfg.ConnectEnabled,
			FirewallName:   cfg.FirewallName,
		},
		connect.Deps{
			Registry:      registry,
			Router:        urls,
			Connector:     identities,
			Registration:  form.NewRegistrationHandler(users),
			Confirmation:  form.NewConfirmationHandler(),
			Authenticator: authenticator,
		},
	)

	authHandler := handler.NewHandler(
		handler.Config{FirewallName: cfg.FirewallName, CookieSecure: cfg.CookieSecure},
		controller,
		registry,
		urls,
		identities,
		users,
		credentials.NewService(users),
		authenticator,
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())

	if err := view.Load(router); err != nil {
		return nil, err
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ----------------------------
	// Session-scoped routes
	// ----------------------------

	web := router.Group("/")
	web.Use(middleware.Sessions(middleware.SessionConfig{
		Store: infra.Sessions,
		Users: users,
		Options: session.Options{
			TTL:    cfg.SessionTTL,
			Cookie: session.CookieOptions{Secure: cfg.CookieSecure},
		},
		Firewall: cfg.FirewallName,
	}))

	web.GET("/", func(c *gin.Context) {
		if middleware.UserFrom(c) == nil {
			c.Redirect(http.StatusFound, urls.Path(routes.Connect))
			return
		}
		c.Redirect(http.StatusFound, "/api/me")
	})

	authHandler.RegisterRoutes(web)

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	api := web.Group("/api")
	api.Use(middleware.GinRequireAuth())

	api.GET("/me", func(c *gin.Context) {
		user := middleware.UserFrom(c)
		c.JSON(http.StatusOK, gin.H{
			"user_id":  user.ID.String(),
			"username": user.Username,
			"email":    user.Email,
			"roles":    user.Roles,
		})
	})

	return router, nil
}
