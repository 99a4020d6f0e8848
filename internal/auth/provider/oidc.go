package provider

import (
	"context"
	"errors"
	"fmt"

	"oauth-connect/internal/auth"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCUserInformation queries the provider's userinfo endpoint. The stored
// token may have lost its id_token on the way through the session, so the
// userinfo endpoint is used rather than the id_token claims.
func OIDCUserInformation(
	ctx context.Context,
	op *oidc.Provider,
	name string,
	token *oauth2.Token,
) (*auth.UserInformation, error) {

	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("%s: missing access token", name)
	}

	info, err := op.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, fmt.Errorf("%s userinfo request failed: %w", name, err)
	}

	var claims struct {
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
		GivenName         string `json:"given_name"`
	}
	if err := info.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s userinfo claims parse failed: %w", name, err)
	}

	raw := map[string]any{}
	_ = info.Claims(&raw)

	if info.Subject == "" {
		return nil, errors.New(name + " userinfo missing subject")
	}

	nickname := claims.PreferredUsername
	if nickname == "" {
		nickname = claims.GivenName
	}

	return &auth.UserInformation{
		Provider:       name,
		ProviderUserID: info.Subject,
		Email:          info.Email,
		EmailVerified:  info.EmailVerified,
		Nickname:       nickname,
		RealName:       claims.Name,
		Raw:            raw,
	}, nil
}
