package google

import (
	"context"
	"errors"
	"fmt"

	"oauth-connect/internal/auth"
	"oauth-connect/internal/auth/provider"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const providerName = "google"

type Provider struct {
	oauthConfig *oauth2.Config
	oidc        *oidc.Provider
}

func New(
	ctx context.Context,
	clientID string,
	clientSecret string,
) (*Provider, error) {

	if clientID == "" || clientSecret == "" {
		return nil, errors.New("google oauth config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
	if err != nil {
		return nil, fmt.Errorf("failed to init google oidc provider: %w", err)
	}

	return &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oidcProvider.Endpoint(),
			Scopes: []string{
				oidc.ScopeOpenID,
				"profile",
				"email",
			},
		},
		oidc: oidcProvider,
	}, nil
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) AuthorizationURL(redirectURI string, state string, opts ...oauth2.AuthCodeOption) string {
	opts = append([]oauth2.AuthCodeOption{oauth2.AccessTypeOnline}, opts...)
	return provider.WithRedirect(p.oauthConfig, redirectURI).AuthCodeURL(state, opts...)
}

func (p *Provider) AccessToken(ctx context.Context, code string, redirectURI string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	token, err := provider.WithRedirect(p.oauthConfig, redirectURI).Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("google token exchange failed: %w", err)
	}
	return token, nil
}

func (p *Provider) UserInformation(ctx context.Context, token *oauth2.Token) (*auth.UserInformation, error) {
	return provider.OIDCUserInformation(ctx, p.oidc, providerName, token)
}
