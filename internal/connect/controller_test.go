package connect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"oauth-connect/internal/account"
	"oauth-connect/internal/auth"
	"oauth-connect/internal/auth/provider"
	"oauth-connect/internal/form"
	"oauth-connect/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyOf(t *testing.T, redirect string) string {
	t.Helper()
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "/connect/registration", u.Path)
	return u.Query().Get("key")
}

func TestConnectRedirectsNotLinkedErrorToRegistration(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	req := h.request(http.MethodGet, "/connect", nil)
	req.AuthError = notLinked("github", "T")

	resp, err := h.ctrl.Connect(ctx, req)
	require.NoError(t, err)

	assert.Empty(t, resp.View)
	key := keyOf(t, resp.Redirect)
	assert.Equal(t, strconv.FormatInt(epoch.Unix(), 10), key)

	entry, err := NewPendingLinkStore(h.sess).get(ctx, registrationPrefix, key)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, KindRegistrationError, entry.Kind)
	assert.Equal(t, "github", entry.Error.ResourceOwnerName)
	assert.Equal(t, "T", entry.Error.AccessToken.AccessToken)
}

func TestConnectAlwaysRedirectsNotLinkedForAnonymous(t *testing.T) {
	for i := 0; i < 5; i++ {
		h := newHarness(t, true)
		h.clock.Advance(time.Duration(i*97) * time.Second)

		req := h.request(http.MethodGet, "/connect", nil)
		req.AuthError = fmt.Errorf("login check: %w", notLinked("github", "T"))

		resp, err := h.ctrl.Connect(context.Background(), req)
		require.NoError(t, err)
		require.NotEmpty(t, resp.Redirect)
		assert.Empty(t, resp.View)

		entry, err := NewPendingLinkStore(h.sess).get(context.Background(), registrationPrefix, keyOf(t, resp.Redirect))
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, KindRegistrationError, entry.Kind)
	}
}

func TestConnectTakesLastErrorFromSession(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, StoreAuthError(ctx, h.sess, notLinked("github", "T")))

	resp, err := h.ctrl.Connect(ctx, h.request(http.MethodGet, "/connect", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Redirect)

	_, stillThere := h.sess.values[lastErrorKey]
	assert.False(t, stillThere)
}

func TestConnectRendersLoginLinks(t *testing.T) {
	tests := []struct {
		name          string
		enabled       bool
		authenticated bool
		wantRedirect  string
	}{
		{"anonymous", true, false, "https://app.test/login/check/github"},
		{"authenticated", true, true, "https://app.test/connect/service/github"},
		{"authenticated connect disabled", false, true, "https://app.test/login/check/github"},
		{"anonymous connect disabled", false, false, "https://app.test/login/check/github"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.enabled)
			var user *account.User
			if tt.authenticated {
				user = h.user
			}

			resp, err := h.ctrl.Connect(context.Background(), h.request(http.MethodGet, "/connect", user))
			require.NoError(t, err)
			assert.Empty(t, resp.Redirect)
			assert.Equal(t, ViewLogin, resp.View)
			assert.Equal(t, tt.enabled && tt.authenticated, resp.Data["connect"])

			links := resp.Data["resourceOwners"].([]OwnerLink)
			require.Len(t, links, 2)
			assert.Equal(t, "github", links[0].Name)
			assert.Equal(t, "google", links[1].Name)

			u, err := url.Parse(links[0].URL)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRedirect, u.Query().Get("redirect_uri"))
			assert.Equal(t, "state-1", u.Query().Get("state"))
		})
	}
}

func TestConnectAddsPKCEChallengeToLinks(t *testing.T) {
	h := newHarness(t, true)
	req := h.request(http.MethodGet, "/connect", nil)
	req.Verifier = "verifier"

	resp, err := h.ctrl.Connect(context.Background(), req)
	require.NoError(t, err)

	u, err := url.Parse(resp.Data["resourceOwners"].([]OwnerLink)[0].URL)
	require.NoError(t, err)
	assert.Equal(t, "1", u.Query().Get("opts"))
}

// The login view shows the raw error message, internals included.
func TestConnectShowsErrorMessageVerbatim(t *testing.T) {
	leaky := errors.New(`pq: relation "identities" does not exist`)

	t.Run("generic error", func(t *testing.T) {
		h := newHarness(t, true)
		req := h.request(http.MethodGet, "/connect", nil)
		req.AuthError = leaky

		resp, err := h.ctrl.Connect(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, leaky.Error(), resp.Data["error"])
	})

	t.Run("not linked while connect is disabled", func(t *testing.T) {
		h := newHarness(t, false)
		req := h.request(http.MethodGet, "/connect", nil)
		req.AuthError = notLinked("github", "T")

		resp, err := h.ctrl.Connect(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, ViewLogin, resp.View)
		assert.Equal(t, "No local account is linked to github.", resp.Data["error"])
		assert.Empty(t, h.sess.values)
	})

	t.Run("not linked while authenticated", func(t *testing.T) {
		h := newHarness(t, true)
		req := h.request(http.MethodGet, "/connect", h.user)
		req.AuthError = notLinked("github", "T")

		resp, err := h.ctrl.Connect(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, ViewLogin, resp.View)
	})
}

func TestConnectSameSecondOverwritesEntry(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	first := h.request(http.MethodGet, "/connect", nil)
	first.AuthError = notLinked("github", "T")
	r1, err := h.ctrl.Connect(ctx, first)
	require.NoError(t, err)

	second := h.request(http.MethodGet, "/connect", nil)
	second.AuthError = notLinked("google", "token-ABC")
	r2, err := h.ctrl.Connect(ctx, second)
	require.NoError(t, err)

	require.Equal(t, r1.Redirect, r2.Redirect)

	entry, err := NewPendingLinkStore(h.sess).get(ctx, registrationPrefix, keyOf(t, r1.Redirect))
	require.NoError(t, err)
	assert.Equal(t, "google", entry.Error.ResourceOwnerName)
}

func TestRegistrationValidity(t *testing.T) {
	type kind int
	const (
		absent kind = iota
		wrongKind
		rightKind
	)

	for _, enabled := range []bool{true, false} {
		for _, authenticated := range []bool{true, false} {
			for _, k := range []kind{absent, wrongKind, rightKind} {
				for _, elapsed := range []int64{0, 300, 301} {
					name := fmt.Sprintf("enabled=%v/authenticated=%v/kind=%d/elapsed=%d", enabled, authenticated, k, elapsed)
					t.Run(name, func(t *testing.T) {
						h := newHarness(t, enabled)
						ctx := context.Background()
						store := NewPendingLinkStore(h.sess)

						minted := epoch.Add(-time.Duration(elapsed) * time.Second)
						key := strconv.FormatInt(minted.Unix(), 10)

						switch k {
						case wrongKind:
							require.NoError(t, store.put(ctx, registrationPrefix, PendingLinkEntry{
								Key: key, Kind: KindAccessToken, Error: notLinked("github", "T"), CreatedAt: minted,
							}))
						case rightKind:
							require.NoError(t, store.SaveRegistrationError(ctx, key, notLinked("github", "T"), minted))
						}

						var user *account.User
						if authenticated {
							user = h.user
						}

						resp, err := h.ctrl.Registration(ctx, h.request(http.MethodGet, "/connect/registration?key="+key, user), key)

						valid := enabled && !authenticated && k == rightKind && elapsed <= 300
						if valid {
							require.NoError(t, err)
							assert.Equal(t, ViewRegistration, resp.View)
						} else {
							assert.ErrorIs(t, err, ErrInvalidRegistrationAttempt)
						}

						_, left := h.sess.values[registrationPrefix+key]
						assert.False(t, left, "entry under the submitted key must be consumed")
					})
				}
			}
		}
	}
}

func TestRegistrationRejectsNonNumericKey(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, NewPendingLinkStore(h.sess).SaveRegistrationError(ctx, "abc", notLinked("github", "T"), epoch))

	_, err := h.ctrl.Registration(ctx, h.request(http.MethodGet, "/connect/registration?key=abc", nil), "abc")
	assert.ErrorIs(t, err, ErrInvalidRegistrationAttempt)
}

func TestRegistrationAcceptedConnectsAndAuthenticates(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.form.accept = true

	key := strconv.FormatInt(epoch.Unix(), 10)
	require.NoError(t, NewPendingLinkStore(h.sess).SaveRegistrationError(ctx, key, notLinked("github", "T"), epoch))

	resp, err := h.ctrl.Registration(ctx, h.request(http.MethodPost, "/connect/registration?key="+key, nil), key)
	require.NoError(t, err)
	assert.Equal(t, "/connect/registration/success", resp.Redirect)

	require.Len(t, h.connector.calls, 1)
	assert.Same(t, h.form.user, h.connector.calls[0].user)
	assert.Equal(t, "583231", h.connector.calls[0].info.ProviderUserID)

	require.Len(t, h.sess.logins, 1)
	assert.Equal(t, h.form.user.ID.String(), h.sess.logins[0].UserID)
	assert.Equal(t, "main", h.sess.logins[0].Firewall)

	_, err = h.ctrl.Registration(ctx, h.request(http.MethodPost, "/connect/registration?key="+key, nil), key)
	assert.ErrorIs(t, err, ErrInvalidRegistrationAttempt)
	assert.Len(t, h.connector.calls, 1)
}

func TestRegistrationAcceptedWithLockedAccountStaysAnonymous(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.form.accept = true
	h.form.user.Status = account.StatusLocked

	key := strconv.FormatInt(epoch.Unix(), 10)
	require.NoError(t, NewPendingLinkStore(h.sess).SaveRegistrationError(ctx, key, notLinked("github", "T"), epoch))

	resp, err := h.ctrl.Registration(ctx, h.request(http.MethodPost, "/connect/registration", nil), key)
	require.NoError(t, err)
	assert.Equal(t, "/connect/registration/success", resp.Redirect)
	assert.Len(t, h.connector.calls, 1)
	assert.Empty(t, h.sess.logins)

	_, err = h.ctrl.RegistrationSuccess(ctx, h.request(http.MethodGet, "/connect/registration/success", nil))
	assert.ErrorIs(t, err, ErrNoAuthenticatedUser)
}

func TestRegistrationRedisplayMovesEntryToNewKey(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	store := NewPendingLinkStore(h.sess)

	oldKey := strconv.FormatInt(epoch.Unix(), 10)
	original := notLinked("github", "T")
	require.NoError(t, store.SaveRegistrationError(ctx, oldKey, original, epoch))

	h.clock.Advance(200 * time.Second)
	resp, err := h.ctrl.Registration(ctx, h.request(http.MethodPost, "/connect/registration", nil), oldKey)
	require.NoError(t, err)
	assert.Equal(t, ViewRegistration, resp.View)

	newKey := resp.Data["key"].(string)
	assert.NotEqual(t, oldKey, newKey)
	assert.Equal(t, "/connect/registration?key="+newKey, resp.Data["action"])
	assert.IsType(t, &form.Registration{}, resp.Data["form"])
	assert.Equal(t, "octocat", resp.Data["userInformation"].(*auth.UserInformation).Nickname)

	_, left := h.sess.values[registrationPrefix+oldKey]
	assert.False(t, left)

	moved, err := store.get(ctx, registrationPrefix, newKey)
	require.NoError(t, err)
	require.NotNil(t, moved)
	assert.Equal(t, original.Message, moved.Error.Message)
	assert.Equal(t, original.ResourceOwnerName, moved.Error.ResourceOwnerName)
	assert.True(t, moved.CreatedAt.Equal(epoch))

	// The new key is fresh but the window still runs from the first mint.
	h.clock.Advance(150 * time.Second)
	_, err = h.ctrl.Registration(ctx, h.request(http.MethodPost, "/connect/registration", nil), newKey)
	assert.ErrorIs(t, err, ErrInvalidRegistrationAttempt)
}

func TestRegistrationRedisplayWithinSameSecond(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	key := strconv.FormatInt(epoch.Unix(), 10)
	require.NoError(t, NewPendingLinkStore(h.sess).SaveRegistrationError(ctx, key, notLinked("github", "T"), epoch))

	seen := map[string]bool{key: true}
	for i := 0; i < 3; i++ {
		resp, err := h.ctrl.Registration(ctx, h.request(http.MethodPost, "/connect/registration", nil), key)
		require.NoError(t, err)

		next := resp.Data["key"].(string)
		assert.False(t, seen[next], "key %s reused", next)
		seen[next] = true
		key = next
	}
	assert.Equal(t, strconv.FormatInt(epoch.Unix()+3, 10), key)
}

func TestRegistrationUnknownResourceOwner(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	key := strconv.FormatInt(epoch.Unix(), 10)
	require.NoError(t, NewPendingLinkStore(h.sess).SaveRegistrationError(ctx, key, notLinked("bitbucket", "T"), epoch))

	_, err := h.ctrl.Registration(ctx, h.request(http.MethodGet, "/connect/registration", nil), key)
	assert.ErrorIs(t, err, provider.ErrUnknownResourceOwner)
}

func TestRegistrationSuccess(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.ctrl.RegistrationSuccess(context.Background(), h.request(http.MethodGet, "/connect/registration/success", nil))
	assert.ErrorIs(t, err, ErrNoAuthenticatedUser)

	resp, err := h.ctrl.RegistrationSuccess(context.Background(), h.request(http.MethodGet, "/connect/registration/success", h.user))
	require.NoError(t, err)
	assert.Equal(t, ViewRegistrationSuccess, resp.View)
	assert.Same(t, h.user, resp.Data["user"])
}

func TestConnectServicePreconditions(t *testing.T) {
	ctx := context.Background()

	disabled := newHarness(t, false)
	_, err := disabled.ctrl.ConnectService(ctx, disabled.request(http.MethodGet, "/connect/service/google?code=ABC", disabled.user), "google")
	assert.ErrorIs(t, err, ErrConnectDisabled)

	h := newHarness(t, true)
	_, err = h.ctrl.ConnectService(ctx, h.request(http.MethodGet, "/connect/service/google?code=ABC", nil), "google")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = h.ctrl.ConnectService(ctx, h.request(http.MethodGet, "/connect/service/bitbucket?code=ABC", h.user), "bitbucket")
	assert.ErrorIs(t, err, provider.ErrUnknownResourceOwner)

	assert.Empty(t, h.google.exchanges)
}

func TestConnectServiceWithoutCodeOrPendingToken(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.ctrl.ConnectService(context.Background(), h.request(http.MethodGet, "/connect/service/google", h.user), "google")
	assert.ErrorIs(t, err, ErrConfirmationNotFound)

	_, err = h.ctrl.ConnectService(context.Background(), h.request(http.MethodPost, "/connect/service/google?key=42", h.user), "google")
	assert.ErrorIs(t, err, ErrConfirmationNotFound)
	assert.Empty(t, h.connector.calls)
}

func TestConnectServiceConfirmationNeverExpires(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	resp, err := h.ctrl.ConnectService(ctx, h.request(http.MethodGet, "/connect/service/google?code=ABC", h.user), "google")
	require.NoError(t, err)
	key := resp.Data["key"].(string)

	h.clock.Advance(72 * time.Hour)

	resp, err = h.ctrl.ConnectService(ctx, h.request(http.MethodGet, "/connect/service/google?key="+key, h.user), "google")
	require.NoError(t, err)
	assert.Equal(t, ViewConnectConfirm, resp.View)
	assert.Equal(t, key, resp.Data["key"])
}

func TestConnectServicePassesPKCEVerifier(t *testing.T) {
	h := newHarness(t, true)
	req := h.request(http.MethodGet, "/connect/service/google?code=ABC", h.user)
	req.Verifier = "verifier"

	_, err := h.ctrl.ConnectService(context.Background(), req, "google")
	require.NoError(t, err)
	require.Len(t, h.google.exchanges, 1)
	assert.Equal(t, 1, h.google.exchanges[0].opts)
}

func TestScenarioRegistrationWithinWindow(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	req := h.request(http.MethodGet, "/connect", nil)
	req.AuthError = notLinked("github", "T")
	resp, err := h.ctrl.Connect(ctx, req)
	require.NoError(t, err)
	key := keyOf(t, resp.Redirect)

	h.clock.Advance(299 * time.Second)

	resp, err = h.ctrl.Registration(ctx, h.request(http.MethodGet, "/connect/registration?key="+key, nil), key)
	require.NoError(t, err)
	assert.Equal(t, ViewRegistration, resp.View)

	require.Len(t, h.form.prefill, 1)
	assert.Equal(t, "octocat", h.form.prefill[0].Nickname)
	f := resp.Data["form"].(*form.Registration)
	assert.Equal(t, "octocat", f.Username)
	assert.Equal(t, "octocat@github.test", f.Email)
}

func TestScenarioRegistrationAfterWindow(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	req := h.request(http.MethodGet, "/connect", nil)
	req.AuthError = notLinked("github", "T")
	resp, err := h.ctrl.Connect(ctx, req)
	require.NoError(t, err)
	key := keyOf(t, resp.Redirect)

	h.clock.Advance(400 * time.Second)

	_, err = h.ctrl.Registration(ctx, h.request(http.MethodGet, "/connect/registration?key="+key, nil), key)
	assert.ErrorIs(t, err, ErrInvalidRegistrationAttempt)
	assert.Empty(t, h.form.prefill)
}

func TestScenarioConnectService(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	resp, err := h.ctrl.ConnectService(ctx, h.request(http.MethodGet, "/connect/service/google?code=ABC", h.user), "google")
	require.NoError(t, err)
	assert.Equal(t, ViewConnectConfirm, resp.View)

	require.Len(t, h.google.exchanges, 1)
	assert.Equal(t, "ABC", h.google.exchanges[0].code)
	assert.Equal(t, "https://app.test/connect/service/google", h.google.exchanges[0].redirectURI)

	key := strconv.FormatInt(epoch.Unix(), 10)
	assert.Equal(t, key, resp.Data["key"])
	assert.Equal(t, "google", resp.Data["service"])
	assert.Equal(t, "/connect/service/google?key="+key, resp.Data["action"])

	token, err := NewPendingLinkStore(h.sess).AccessToken(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "token-ABC", token.AccessToken)

	resp, err = h.ctrl.ConnectService(ctx, h.request(http.MethodPost, "/connect/service/google?key="+key, h.user), "google")
	require.NoError(t, err)
	assert.Equal(t, ViewConnectSuccess, resp.View)

	require.Len(t, h.connector.calls, 1)
	assert.Same(t, h.user, h.connector.calls[0].user)
	assert.Equal(t, "1098", h.connector.calls[0].info.ProviderUserID)
	assert.Len(t, h.google.exchanges, 1)
}

func TestOperationsRecordOutcomes(t *testing.T) {
	count := func(op, outcome string) float64 {
		return testutil.ToFloat64(metrics.FlowTotal.WithLabelValues(op, outcome))
	}
	ctx := context.Background()

	t.Run("connect redirect", func(t *testing.T) {
		h := newHarness(t, true)
		before := count(opConnect, metrics.OutcomeRedirect)
		req := h.request(http.MethodGet, "/connect", nil)
		req.AuthError = notLinked("github", "T")
		_, err := h.ctrl.Connect(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, before+1, count(opConnect, metrics.OutcomeRedirect))
	})

	t.Run("connect render", func(t *testing.T) {
		h := newHarness(t, true)
		before := count(opConnect, metrics.OutcomeRender)
		_, err := h.ctrl.Connect(ctx, h.request(http.MethodGet, "/connect", nil))
		require.NoError(t, err)
		assert.Equal(t, before+1, count(opConnect, metrics.OutcomeRender))
	})

	t.Run("registration rejected", func(t *testing.T) {
		h := newHarness(t, true)
		before := count(opRegistration, metrics.OutcomeRejected)
		_, err := h.ctrl.Registration(ctx, h.request(http.MethodGet, "/connect/registration", nil), "1")
		require.Error(t, err)
		assert.Equal(t, before+1, count(opRegistration, metrics.OutcomeRejected))
	})

	t.Run("registration success render", func(t *testing.T) {
		h := newHarness(t, true)
		before := count(opRegistrationSuccess, metrics.OutcomeRender)
		_, err := h.ctrl.RegistrationSuccess(ctx, h.request(http.MethodGet, "/connect/registration/success", h.user))
		require.NoError(t, err)
		assert.Equal(t, before+1, count(opRegistrationSuccess, metrics.OutcomeRender))
	})

	t.Run("connect service linked", func(t *testing.T) {
		h := newHarness(t, true)
		_, err := h.ctrl.ConnectService(ctx, h.request(http.MethodGet, "/connect/service/google?code=ABC", h.user), "google")
		require.NoError(t, err)

		before := count(opConnectService, metrics.OutcomeLinked)
		key := strconv.FormatInt(epoch.Unix(), 10)
		_, err = h.ctrl.ConnectService(ctx, h.request(http.MethodPost, "/connect/service/google?key="+key, h.user), "google")
		require.NoError(t, err)
		assert.Equal(t, before+1, count(opConnectService, metrics.OutcomeLinked))
	})
}
