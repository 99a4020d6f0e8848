package connect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"oauth-connect/internal/account"
	"oauth-connect/internal/auth"
	"oauth-connect/internal/auth/provider"
	"oauth-connect/internal/form"
	"oauth-connect/internal/routes"
	"oauth-connect/internal/session"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var epoch = time.Unix(1_700_000_000, 0)

type memSession struct {
	values map[string][]byte
	logins []session.Token
}

func newMemSession() *memSession {
	return &memSession{values: map[string][]byte{}}
}

func (s *memSession) Get(_ context.Context, key string, v any) (bool, error) {
	raw, ok := s.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func (s *memSession) Set(_ context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.values[key] = raw
	return nil
}

func (s *memSession) Remove(_ context.Context, key string) error {
	delete(s.values, key)
	return nil
}

func (s *memSession) Login(_ context.Context, t session.Token) error {
	s.logins = append(s.logins, t)
	return nil
}

type exchange struct {
	code        string
	redirectURI string
	opts        int
}

type fakeOwner struct {
	name      string
	infos     map[string]*auth.UserInformation
	exchanges []exchange
}

func (o *fakeOwner) Name() string { return o.name }

func (o *fakeOwner) AuthorizationURL(redirectURI, state string, opts ...oauth2.AuthCodeOption) string {
	q := url.Values{"redirect_uri": {redirectURI}, "state": {state}, "opts": {fmt.Sprint(len(opts))}}
	return "https://idp.test/" + o.name + "/authorize?" + q.Encode()
}

func (o *fakeOwner) AccessToken(_ context.Context, code, redirectURI string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	o.exchanges = append(o.exchanges, exchange{code: code, redirectURI: redirectURI, opts: len(opts)})
	return &oauth2.Token{AccessToken: "token-" + code, TokenType: "Bearer"}, nil
}

func (o *fakeOwner) UserInformation(_ context.Context, token *oauth2.Token) (*auth.UserInformation, error) {
	info, ok := o.infos[token.AccessToken]
	if !ok {
		return nil, fmt.Errorf("%s: unknown token %q", o.name, token.AccessToken)
	}
	return info, nil
}

type fakeRegistrationForm struct {
	accept  bool
	user    *account.User
	prefill []*auth.UserInformation
}

func (f *fakeRegistrationForm) Process(_ context.Context, _ *http.Request, _ form.Session, info *auth.UserInformation) (*form.Registration, bool, error) {
	f.prefill = append(f.prefill, info)
	reg := &form.Registration{Username: info.Nickname, Email: info.Email, Errors: map[string]string{}}
	if !f.accept {
		reg.Errors["password"] = "This value should not be blank."
		return reg, false, nil
	}
	reg.User = f.user
	return reg, true, nil
}

type fakeConfirmationForm struct{}

func (fakeConfirmationForm) Process(_ context.Context, r *http.Request, _ form.Session) (*form.Confirmation, bool, error) {
	return &form.Confirmation{Token: "csrf", Errors: map[string]string{}}, r.Method == http.MethodPost, nil
}

type connectCall struct {
	user *account.User
	info *auth.UserInformation
}

type fakeConnector struct {
	calls []connectCall
}

func (c *fakeConnector) Connect(_ context.Context, user *account.User, info *auth.UserInformation) error {
	c.calls = append(c.calls, connectCall{user: user, info: info})
	return nil
}

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type harness struct {
	ctrl      *Controller
	clock     fakeClock
	sess      *memSession
	github    *fakeOwner
	google    *fakeOwner
	form      *fakeRegistrationForm
	connector *fakeConnector
	user      *account.User
}

func newHarness(t *testing.T, enabled bool) *harness {
	t.Helper()

	h := &harness{
		clock: clockwork.NewFakeClockAt(epoch),
		sess:  newMemSession(),
		github: &fakeOwner{name: "github", infos: map[string]*auth.UserInformation{
			"T": {Provider: "github", ProviderUserID: "583231", Nickname: "octocat", Email: "octocat@github.test", EmailVerified: true},
		}},
		google: &fakeOwner{name: "google", infos: map[string]*auth.UserInformation{
			"token-ABC": {Provider: "google", ProviderUserID: "1098", Nickname: "jane", Email: "jane@gmail.test"},
		}},
		connector: &fakeConnector{},
		user: &account.User{
			ID:       uuid.New(),
			Username: "jane",
			Roles:    []string{account.RoleUser},
			Status:   account.StatusActive,
		},
	}
	h.form = &fakeRegistrationForm{user: &account.User{
		ID:       uuid.New(),
		Username: "octocat",
		Roles:    []string{account.RoleUser},
		Status:   account.StatusActive,
	}}

	router := routes.Default("https://app.test")
	registry, err := provider.NewRegistry(router,
		provider.Descriptor{Name: "github", CheckPath: "/login/check/github", Owner: h.github},
		provider.Descriptor{Name: "google", CheckPath: "/login/check/google", Owner: h.google},
	)
	require.NoError(t, err)

	h.ctrl = NewController(Config{ConnectEnabled: enabled, FirewallName: "main"}, Deps{
		Registry:      registry,
		Router:        router,
		Connector:     h.connector,
		Registration:  h.form,
		Confirmation:  fakeConfirmationForm{},
		Authenticator: NewSessionAuthenticator(account.StatusChecker{}, "main"),
		Clock:         h.clock,
	})
	return h
}

func (h *harness) request(method, target string, user *account.User) Request {
	return Request{
		HTTP:    httptest.NewRequest(method, "https://app.test"+target, nil),
		Session: h.sess,
		User:    user,
		State:   "state-1",
	}
}

func notLinked(owner, token string) *auth.AccountNotLinkedError {
	return &auth.AccountNotLinkedError{
		ResourceOwnerName: owner,
		AccessToken:       &oauth2.Token{AccessToken: token},
		Message:           "No local account is linked to " + owner + ".",
	}
}
