package app

import (
	"context"
	"fmt"

	"oauth-connect/internal/auth/provider"
	"oauth-connect/internal/auth/provider/github"
	"oauth-connect/internal/auth/provider/google"
	"oauth-connect/internal/auth/provider/keycloak"
	"oauth-connect/internal/config"
	"oauth-connect/internal/logger"
)

// setupProviders builds the resource owners listed in RESOURCE_OWNERS, in
// that order. Owners without client credentials are skipped.
func setupProviders(ctx context.Context, cfg config.Config, router provider.URLGenerator) (*provider.Registry, error) {
	var list []provider.Descriptor

	for _, name := range cfg.ResourceOwners {
		var (
			d   provider.Descriptor
			err error
		)

		switch name {
		case "google":
			if cfg.GoogleClientID == "" {
				logger.Warn("resource owner not configured", map[string]any{"provider": name})
				continue
			}
			d = provider.Descriptor{Name: name, CheckPath: cfg.GoogleCheckPath}
			d.Owner, err = google.New(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret)

		case "github":
			if cfg.GitHubClientID == "" {
				logger.Warn("resource owner not configured", map[string]any{"provider": name})
				continue
			}
			d = provider.Descriptor{Name: name, CheckPath: cfg.GitHubCheckPath}
			d.Owner, err = github.New(cfg.GitHubClientID, cfg.GitHubClientSecret)

		case "keycloak":
			if cfg.KeycloakIssuer == "" {
				logger.Warn("resource owner not configured", map[string]any{"provider": name})
				continue
			}
			d = provider.Descriptor{Name: name, CheckPath: cfg.KeycloakCheckPath}
			d.Owner, err = keycloak.New(
				ctx,
				cfg.KeycloakIssuer,
				cfg.KeycloakClientID,
				cfg.KeycloakClientSecret,
				cfg.KeycloakPublicBaseURL,
			)

		default:
			return nil, fmt.Errorf("unknown resource owner %q in RESOURCE_OWNERS", name)
		}

		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		list = append(list, d)
	}

	return provider.NewRegistry(router, list...)
}
