package provider

import (
	"context"

	"oauth-connect/internal/auth"

	"golang.org/x/oauth2"
)

// ResourceOwner is the client side of one external identity provider.
// Implementations return identity facts only and must not create users,
// link accounts or touch sessions.
type ResourceOwner interface {
	// Name returns the provider identifier (e.g. "google", "github").
	Name() string

	// AuthorizationURL returns the URL the browser is sent to. The provider
	// calls back redirectURI with the given state. opts carry extra
	// parameters such as the PKCE challenge.
	AuthorizationURL(redirectURI string, state string, opts ...oauth2.AuthCodeOption) string

	// AccessToken exchanges an authorization code. redirectURI must equal the
	// one used to build the authorization URL.
	AccessToken(ctx context.Context, code string, redirectURI string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)

	// UserInformation fetches the profile behind token.
	UserInformation(ctx context.Context, token *oauth2.Token) (*auth.UserInformation, error)
}

// WithRedirect returns a copy of cfg bound to redirectURI.
func WithRedirect(cfg *oauth2.Config, redirectURI string) *oauth2.Config {
	c := *cfg
	c.RedirectURL = redirectURI
	return &c
}
