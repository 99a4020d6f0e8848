package auth

import (
	"fmt"

	"golang.org/x/oauth2"
)

// UserInformation is the profile a resource owner returns for an access token.
// It contains facts only, no decisions.
type UserInformation struct {
	Provider       string         `json:"provider"`         // e.g. "google", "github"
	ProviderUserID string         `json:"provider_user_id"` // provider-scoped unique user identifier
	Email          string         `json:"email"`
	EmailVerified  bool           `json:"email_verified"`
	Nickname       string         `json:"nickname"`
	RealName       string         `json:"real_name"`
	Raw            map[string]any `json:"raw,omitempty"`
}

// AccountNotLinkedError is produced by the login check when the provider
// authenticated the user but no local account is linked to that identity.
type AccountNotLinkedError struct {
	ResourceOwnerName string        `json:"resource_owner_name"`
	AccessToken       *oauth2.Token `json:"access_token"`
	Message           string        `json:"message"`
}

func NewAccountNotLinkedError(owner string, token *oauth2.Token, info *UserInformation) *AccountNotLinkedError {
	name := ""
	if info != nil {
		name = info.Nickname
		if name == "" {
			name = info.Email
		}
	}
	return &AccountNotLinkedError{
		ResourceOwnerName: owner,
		AccessToken:       token,
		Message:           fmt.Sprintf("No local account is linked to %s user %q.", owner, name),
	}
}

func (e *AccountNotLinkedError) Error() string {
	return e.Message
}

// AuthenticationError is any other login failure kept for display.
type AuthenticationError struct {
	Message string `json:"message"`
}

func (e *AuthenticationError) Error() string {
	return e.Message
}
