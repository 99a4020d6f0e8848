// Package connect links resource owner accounts to local users. Its
// controller drives the connect, registration and service confirmation
// flows; every piece of state between requests lives in the session.
package connect

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"oauth-connect/internal/account"
	"oauth-connect/internal/auth"
	"oauth-connect/internal/auth/provider"
	"oauth-connect/internal/auth/resolver"
	"oauth-connect/internal/form"
	"oauth-connect/internal/logger"
	"oauth-connect/internal/metrics"
	"oauth-connect/internal/routes"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// RegistrationWindow bounds how long a captured "account not linked" error
// can be turned into a registration, counted from when it was first stored.
const RegistrationWindow = 300 * time.Second

const (
	ViewLogin               = "login.html"
	ViewRegistration        = "registration.html"
	ViewRegistrationSuccess = "registration_success.html"
	ViewConnectConfirm      = "connect_confirm.html"
	ViewConnectSuccess      = "connect_success.html"
)

const (
	opConnect             = "connect"
	opRegistration        = "registration"
	opRegistrationSuccess = "registration_success"
	opConnectService      = "connect_service"
)

type Config struct {
	ConnectEnabled bool
	FirewallName   string
}

type Registry interface {
	List() []provider.Descriptor
	ByName(name string) (provider.Descriptor, error)
	AuthorizationURL(d provider.Descriptor, connect bool, req *http.Request, state string, opts ...oauth2.AuthCodeOption) (string, error)
}

type Router interface {
	Generate(name string, params map[string]string, absolute bool) (string, error)
}

type RegistrationFormHandler interface {
	Process(ctx context.Context, r *http.Request, sess form.Session, info *auth.UserInformation) (*form.Registration, bool, error)
}

type ConfirmationFormHandler interface {
	Process(ctx context.Context, r *http.Request, sess form.Session) (*form.Confirmation, bool, error)
}

type UserAuthenticator interface {
	Authenticate(ctx context.Context, sess Session, user *account.User) error
}

type Deps struct {
	Registry      Registry
	Router        Router
	Connector     resolver.Connector
	Registration  RegistrationFormHandler
	Confirmation  ConfirmationFormHandler
	Authenticator UserAuthenticator
	Clock         clockwork.Clock
}

// Request is everything a flow needs from the incoming HTTP request.
type Request struct {
	HTTP    *http.Request
	Session Session
	// User is the authenticated local user, nil for anonymous requests.
	User *account.User
	// AuthError is a security error raised while handling this request.
	// When nil the session's last security error is used.
	AuthError error
	// State and Verifier are the OAuth state and PKCE verifier bound to
	// the client for outgoing authorization links and code exchange.
	State    string
	Verifier string
}

// Response is either a redirect or a view with its data.
type Response struct {
	Redirect string
	View     string
	Data     map[string]any
}

type OwnerLink struct {
	Name string
	URL  string
}

type Controller struct {
	cfg  Config
	deps Deps
}

func NewController(cfg Config, deps Deps) *Controller {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Controller{cfg: cfg, deps: deps}
}

// Connect turns an "account not linked" error into a registration redirect
// when possible, otherwise renders the login page with the resource owners.
func (c *Controller) Connect(ctx context.Context, req Request) (Response, error) {
	authErr := req.AuthError
	if authErr == nil {
		var err error
		if authErr, err = TakeAuthError(ctx, req.Session); err != nil {
			return Response{}, c.fail(opConnect, err)
		}
	}

	authenticated := req.User != nil

	var notLinked *auth.AccountNotLinkedError
	if c.cfg.ConnectEnabled && !authenticated && errors.As(authErr, &notLinked) {
		now := c.deps.Clock.Now()
		key := strconv.FormatInt(now.Unix(), 10)

		if err := NewPendingLinkStore(req.Session).SaveRegistrationError(ctx, key, notLinked, now); err != nil {
			return Response{}, c.fail(opConnect, err)
		}
		target, err := c.deps.Router.Generate(routes.ConnectRegistration, map[string]string{"key": key}, false)
		if err != nil {
			return Response{}, c.fail(opConnect, err)
		}

		metrics.Flow(opConnect, metrics.OutcomeRedirect)
		return Response{Redirect: target}, nil
	}

	connectMode := authenticated && c.cfg.ConnectEnabled
	owners := c.deps.Registry.List()
	links := make([]OwnerLink, 0, len(owners))
	for _, d := range owners {
		u, err := c.deps.Registry.AuthorizationURL(d, connectMode, req.HTTP, req.State, challenge(req)...)
		if err != nil {
			return Response{}, c.fail(opConnect, err)
		}
		links = append(links, OwnerLink{Name: d.Name, URL: u})
	}

	loginAction, err := c.deps.Router.Generate(routes.Login, nil, false)
	if err != nil {
		return Response{}, c.fail(opConnect, err)
	}

	// The message is shown as is, including whatever detail the
	// authentication layer put in it.
	message := ""
	if authErr != nil {
		message = authErr.Error()
	}

	metrics.Flow(opConnect, metrics.OutcomeRender)
	return Response{
		View: ViewLogin,
		Data: map[string]any{
			"resourceOwners": links,
			"connect":        connectMode,
			"error":          message,
			"loginAction":    loginAction,
			"user":           req.User,
		},
	}, nil
}

// Registration creates a local account for the identity captured under key.
func (c *Controller) Registration(ctx context.Context, req Request, key string) (Response, error) {
	pending := NewPendingLinkStore(req.Session)

	entry, err := pending.TakeRegistrationEntry(ctx, key)
	if err != nil {
		return Response{}, c.fail(opRegistration, err)
	}

	now := c.deps.Clock.Now()
	if !c.registrationAllowed(req, key, entry, now) {
		return Response{}, c.fail(opRegistration, ErrInvalidRegistrationAttempt)
	}

	d, err := c.deps.Registry.ByName(entry.Error.ResourceOwnerName)
	if err != nil {
		return Response{}, c.fail(opRegistration, err)
	}
	info, err := d.Owner.UserInformation(ctx, entry.Error.AccessToken)
	if err != nil {
		return Response{}, c.fail(opRegistration, err)
	}

	f, accepted, err := c.deps.Registration.Process(ctx, req.HTTP, req.Session, info)
	if err != nil {
		return Response{}, c.fail(opRegistration, err)
	}

	if accepted {
		if err := c.deps.Connector.Connect(ctx, f.User, info); err != nil {
			return Response{}, c.fail(opRegistration, err)
		}
		if err := c.deps.Authenticator.Authenticate(ctx, req.Session, f.User); err != nil {
			return Response{}, c.fail(opRegistration, err)
		}
		target, err := c.deps.Router.Generate(routes.ConnectRegistrationSuccess, nil, false)
		if err != nil {
			return Response{}, c.fail(opRegistration, err)
		}

		logger.From(ctx).Info("account registered and connected",
			zap.String("provider", d.Name),
			zap.String("user_id", f.User.ID.String()),
		)
		metrics.Flow(opRegistration, metrics.OutcomeLinked)
		return Response{Redirect: target}, nil
	}

	newKey := nextKey(key, now)
	if err := pending.SaveRegistrationError(ctx, newKey, entry.Error, entry.CreatedAt); err != nil {
		return Response{}, c.fail(opRegistration, err)
	}
	action, err := c.deps.Router.Generate(routes.ConnectRegistration, map[string]string{"key": newKey}, false)
	if err != nil {
		return Response{}, c.fail(opRegistration, err)
	}

	metrics.Flow(opRegistration, metrics.OutcomeRender)
	return Response{
		View: ViewRegistration,
		Data: map[string]any{
			"key":             newKey,
			"form":            f,
			"userInformation": info,
			"action":          action,
		},
	}, nil
}

// RegistrationSuccess renders the page shown after a completed registration.
func (c *Controller) RegistrationSuccess(_ context.Context, req Request) (Response, error) {
	if req.User == nil {
		return Response{}, c.fail(opRegistrationSuccess, ErrNoAuthenticatedUser)
	}

	metrics.Flow(opRegistrationSuccess, metrics.OutcomeRender)
	return Response{
		View: ViewRegistrationSuccess,
		Data: map[string]any{"user": req.User},
	}, nil
}

// ConnectService links the resource owner account behind the current
// callback (or the pending confirmation under ?key) to the logged-in user
// once they confirm. Pending confirmations do not expire.
func (c *Controller) ConnectService(ctx context.Context, req Request, service string) (Response, error) {
	if !c.cfg.ConnectEnabled {
		return Response{}, c.fail(opConnectService, ErrConnectDisabled)
	}
	if req.User == nil {
		return Response{}, c.fail(opConnectService, ErrNotAuthenticated)
	}

	d, err := c.deps.Registry.ByName(service)
	if err != nil {
		return Response{}, c.fail(opConnectService, err)
	}

	now := c.deps.Clock.Now()
	query := req.HTTP.URL.Query()
	key := query.Get("key")
	if key == "" {
		key = strconv.FormatInt(now.Unix(), 10)
	}

	pending := NewPendingLinkStore(req.Session)

	var token *oauth2.Token
	if code := query.Get("code"); code != "" {
		redirectURI, err := c.deps.Router.Generate(routes.ConnectService, map[string]string{"service": d.Name}, true)
		if err != nil {
			return Response{}, c.fail(opConnectService, err)
		}
		if token, err = d.Owner.AccessToken(ctx, code, redirectURI, verifier(req)...); err != nil {
			return Response{}, c.fail(opConnectService, err)
		}
		if err := pending.SaveAccessToken(ctx, key, token, now); err != nil {
			return Response{}, c.fail(opConnectService, err)
		}
	} else {
		if token, err = pending.AccessToken(ctx, key); err != nil {
			return Response{}, c.fail(opConnectService, err)
		}
		if token == nil {
			return Response{}, c.fail(opConnectService, ErrConfirmationNotFound)
		}
	}

	info, err := d.Owner.UserInformation(ctx, token)
	if err != nil {
		return Response{}, c.fail(opConnectService, err)
	}

	f, accepted, err := c.deps.Confirmation.Process(ctx, req.HTTP, req.Session)
	if err != nil {
		return Response{}, c.fail(opConnectService, err)
	}

	if accepted {
		if err := c.deps.Connector.Connect(ctx, req.User, info); err != nil {
			return Response{}, c.fail(opConnectService, err)
		}

		logger.From(ctx).Info("account connected",
			zap.String("provider", d.Name),
			zap.String("user_id", req.User.ID.String()),
		)
		metrics.Flow(opConnectService, metrics.OutcomeLinked)
		return Response{
			View: ViewConnectSuccess,
			Data: map[string]any{
				"service":         d.Name,
				"userInformation": info,
			},
		}, nil
	}

	action, err := c.deps.Router.Generate(routes.ConnectService, map[string]string{"service": d.Name, "key": key}, false)
	if err != nil {
		return Response{}, c.fail(opConnectService, err)
	}

	metrics.Flow(opConnectService, metrics.OutcomeRender)
	return Response{
		View: ViewConnectConfirm,
		Data: map[string]any{
			"key":             key,
			"service":         d.Name,
			"form":            f,
			"userInformation": info,
			"action":          action,
		},
	}, nil
}

func (c *Controller) registrationAllowed(req Request, key string, e *PendingLinkEntry, now time.Time) bool {
	if !c.cfg.ConnectEnabled || req.User != nil {
		return false
	}
	if e == nil || e.Kind != KindRegistrationError || e.Error == nil {
		return false
	}

	minted, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return false
	}
	window := int64(RegistrationWindow / time.Second)
	if now.Unix()-minted > window {
		return false
	}
	return now.Unix()-e.CreatedAt.Unix() <= window
}

// fail records the failed operation and returns err unchanged.
func (c *Controller) fail(op string, err error) error {
	outcome := metrics.OutcomeError
	switch {
	case errors.Is(err, ErrConnectDisabled),
		errors.Is(err, ErrNotAuthenticated),
		errors.Is(err, ErrInvalidRegistrationAttempt),
		errors.Is(err, ErrNoAuthenticatedUser),
		errors.Is(err, ErrConfirmationNotFound),
		errors.Is(err, provider.ErrUnknownResourceOwner):
		outcome = metrics.OutcomeRejected
	}
	metrics.Flow(op, outcome)
	return err
}

// nextKey mints the key a redisplayed registration is stored under. Keys
// have second resolution, so a redisplay within the same second as the
// previous key moves one past it.
func nextKey(old string, now time.Time) string {
	k := now.Unix()
	if prev, err := strconv.ParseInt(old, 10, 64); err == nil && k <= prev {
		k = prev + 1
	}
	return strconv.FormatInt(k, 10)
}

func challenge(req Request) []oauth2.AuthCodeOption {
	if req.Verifier == "" {
		return nil
	}
	return []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(req.Verifier)}
}

func verifier(req Request) []oauth2.AuthCodeOption {
	if req.Verifier == "" {
		return nil
	}
	return []oauth2.AuthCodeOption{oauth2.VerifierOption(req.Verifier)}
}
