package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
)

const (
	pkceCookieName = "__oauth_pkce"
	pkceTTL        = 5 * time.Minute
)

// generatePKCE issues a fresh verifier cookie. The S256 challenge derived
// from it goes into the authorization links.
func generatePKCE(c *gin.Context, secure bool) string {
	verifier := oauth2.GenerateVerifier()
	setOAuthCookie(c, pkceCookieName, verifier, pkceTTL, secure)
	return verifier
}

func pkceVerifier(c *gin.Context) string {
	cookie, err := c.Request.Cookie(pkceCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
