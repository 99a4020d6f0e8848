package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"oauth-connect/internal/auth"
	"oauth-connect/internal/auth/provider"
	"oauth-connect/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const providerName = "keycloak"

// Provider implements OAuth + OIDC against a Keycloak realm.
type Provider struct {
	oauthConfig *oauth2.Config
	oidc        *oidc.Provider
}

// New initializes a Keycloak OIDC provider using discovery.
// issuer must be the realm issuer URL, e.g.
// http://keycloak:8081/realms/connect
// publicBaseURL, when set, replaces the scheme and host of the discovered
// authorization endpoint so browsers outside the container network reach it.
func New(
	ctx context.Context,
	issuer string,
	clientID string,
	clientSecret string,
	publicBaseURL string,
) (*Provider, error) {

	if issuer == "" || clientID == "" {
		return nil, errors.New("keycloak oauth config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init keycloak oidc provider: %w", err)
	}

	ep := oidcProvider.Endpoint()
	if publicBaseURL != "" {
		authURL, err := rebase(ep.AuthURL, publicBaseURL)
		if err != nil {
			return nil, err
		}
		ep.AuthURL = authURL
	}

	return &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     ep,
			Scopes: []string{
				oidc.ScopeOpenID,
				"email",
				"profile",
			},
		},
		oidc: oidcProvider,
	}, nil
}

func rebase(endpoint, base string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("keycloak: bad authorization endpoint: %w", err)
	}
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return "", fmt.Errorf("keycloak: bad public base url %q", base)
	}
	u.Scheme = b.Scheme
	u.Host = b.Host
	return u.String(), nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) AuthorizationURL(redirectURI string, state string, opts ...oauth2.AuthCodeOption) string {
	opts = append([]oauth2.AuthCodeOption{oauth2.AccessTypeOnline}, opts...)
	return provider.WithRedirect(p.oauthConfig, redirectURI).AuthCodeURL(state, opts...)
}

// AccessToken exchanges the authorization code for a token.
func (p *Provider) AccessToken(ctx context.Context, code string, redirectURI string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	token, err := provider.WithRedirect(p.oauthConfig, redirectURI).Exchange(ctx, code, opts...)
	if err != nil {
		logger.Error("keycloak token exchange failed", map[string]any{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("keycloak token exchange failed: %w", err)
	}
	return token, nil
}

func (p *Provider) UserInformation(ctx context.Context, token *oauth2.Token) (*auth.UserInformation, error) {
	return provider.OIDCUserInformation(ctx, p.oidc, providerName, token)
}
