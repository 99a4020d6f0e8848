// Package github implements the GitHub resource owner. GitHub speaks plain
// OAuth 2.0 without id_tokens, so the profile comes from the REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"oauth-connect/internal/auth"
	"oauth-connect/internal/auth/provider"

	"golang.org/x/oauth2"
	githubendpoint "golang.org/x/oauth2/github"
)

const (
	providerName   = "github"
	defaultAPIBase = "https://api.github.com"
)

type Provider struct {
	oauthConfig *oauth2.Config
	apiBase     string
}

type Option func(*Provider)

// WithEndpoint points the provider at another GitHub instance (or a test server).
func WithEndpoint(ep oauth2.Endpoint, apiBase string) Option {
	return func(p *Provider) {
		p.oauthConfig.Endpoint = ep
		p.apiBase = apiBase
	}
}

func New(clientID, clientSecret string, opts ...Option) (*Provider, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("github oauth config missing required fields")
	}

	p := &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     githubendpoint.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiBase: defaultAPIBase,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Provider) Name() string {
	return providerName
}

func (p *Provider) AuthorizationURL(redirectURI string, state string, opts ...oauth2.AuthCodeOption) string {
	opts = append([]oauth2.AuthCodeOption{oauth2.SetAuthURLParam("allow_signup", "true")}, opts...)
	return provider.WithRedirect(p.oauthConfig, redirectURI).AuthCodeURL(state, opts...)
}

func (p *Provider) AccessToken(ctx context.Context, code string, redirectURI string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	token, err := provider.WithRedirect(p.oauthConfig, redirectURI).Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("github token exchange failed: %w", err)
	}
	return token, nil
}

type userResponse struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type emailResponse struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (p *Provider) UserInformation(ctx context.Context, token *oauth2.Token) (*auth.UserInformation, error) {
	if token == nil || token.AccessToken == "" {
		return nil, errors.New("github: missing access token")
	}

	client := p.oauthConfig.Client(ctx, token)

	var u userResponse
	raw := map[string]any{}
	if err := p.getJSON(ctx, client, "/user", &raw); err != nil {
		return nil, err
	}
	b, _ := json.Marshal(raw)
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, fmt.Errorf("github: decode user: %w", err)
	}
	if u.ID == 0 {
		return nil, errors.New("github user response missing id")
	}

	info := &auth.UserInformation{
		Provider:       providerName,
		ProviderUserID: strconv.FormatInt(u.ID, 10),
		Email:          u.Email,
		Nickname:       u.Login,
		RealName:       u.Name,
		Raw:            raw,
	}

	// The public email may be hidden; the emails endpoint knows the primary one.
	var emails []emailResponse
	if err := p.getJSON(ctx, client, "/user/emails", &emails); err == nil {
		for _, e := range emails {
			if e.Primary {
				info.Email = e.Email
				info.EmailVerified = e.Verified
				break
			}
		}
	}

	return info, nil
}

func (p *Provider) getJSON(ctx context.Context, client *http.Client, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github api %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github api %s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("github api %s: decode: %w", path, err)
	}
	return nil
}
