package middleware

import (
	"context"
	"net/http"
	"strings"

	"postboard/identity"

	"github.com/gin-gonic/gin"
)

const credentialKey = "credential"

// Credentials resolves a raw Authorization value into a credential.
type Credentials interface {
	Resolve(ctx context.Context, raw string) (identity.Credential, error)
}

// Authenticate resolves the request's bearer token, when one is sent, and
// stores the credential for Viewer. Requests without a token pass through
// anonymously; the operation decides whether that is allowed. A token that
// does not verify is rejected here.
func Authenticate(creds Credentials) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip middleware for OPTIONS requests (CORS preflight)
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if token := c.Query("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Format should be: Bearer <token>",
				"code":  "UNAUTHENTICATED",
			})
			return
		}

		cred, err := creds.Resolve(c.Request.Context(), parts[1])
		if err != nil {
			Abort(c, err)
			return
		}

		c.Set(credentialKey, &cred)
		c.Next()
	}
}

// Viewer returns the credential Authenticate stored, or nil for anonymous
// requests.
func Viewer(c *gin.Context) *identity.Credential {
	v, ok := c.Get(credentialKey)
	if !ok {
		return nil
	}
	cred, _ := v.(*identity.Credential)
	return cred
}
