// Package authguard extracts the bearer credentials carried on every
// request. It never talks to the vault itself (token validity against the
// vault is the engine's job); this package only shapes and short-circuits
// malformed or missing credentials.
package authguard

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const bearerScheme = "Bearer"

// Identity is the authenticated caller of a request: the opaque user id
// header and the bearer token to be validated/forwarded to the vault.
type Identity struct {
	Token  string
	UserID string
}

const identityContextKey = "authguard.identity"

// Middleware extracts Authorization and user_id headers into an Identity
// and aborts with 401 if either is missing or the scheme isn't "Bearer";
// every endpoint requires both headers unconditionally.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := extract(c.Request.Header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed credentials"})
			return
		}
		c.Set(identityContextKey, identity)
		c.Next()
	}
}

func extract(header http.Header) (Identity, bool) {
	authHeader := header.Get("Authorization")
	userID := header.Get("user_id")
	if authHeader == "" || userID == "" {
		return Identity{}, false
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], bearerScheme) {
		return Identity{}, false
	}
	token := parts[1]
	if token == "" {
		return Identity{}, false
	}

	return Identity{Token: token, UserID: userID}, true
}

// FromContext retrieves the Identity set by Middleware. It panics if called
// on a context that Middleware never ran on, a programmer error, not a
// request-time condition.
func FromContext(c *gin.Context) Identity {
	v, ok := c.Get(identityContextKey)
	if !ok {
		panic("authguard: Identity missing from context; Middleware did not run")
	}
	return v.(Identity)
}
