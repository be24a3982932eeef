package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware.
const (
	ClaimsKey = "claims"
	TokenKey  = "token"
)

var (
	ErrNoCredential   = errors.New("Authentication credentials were not provided.")
	ErrBadAuthHeader  = errors.New("invalid Authorization header")
	ErrTokenRevoked   = errors.New("token has been logged out")
	defaultAuthScheme = []string{"Bearer"}
)

// Verifier validates a raw access token and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, raw string) (map[string]interface{}, error)
}

// AuthOptions selects where the token is read from.
type AuthOptions struct {
	// Schemes accepted in the Authorization header; defaults to Bearer.
	Schemes []string
	// Cookie is consulted when no Authorization header is present.
	Cookie string
	// Revoked reports tokens that were logged out before they expired.
	Revoked func(ctx context.Context, raw string) (bool, error)
}

// ExtractToken returns the raw token carried by the request.
func ExtractToken(c *gin.Context, opts AuthOptions) (string, error) {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		if opts.Cookie != "" {
			if v, err := c.Cookie(opts.Cookie); err == nil && v != "" {
				return v, nil
			}
		}
		return "", ErrNoCredential
	}
	schemes := opts.Schemes
	if len(schemes) == 0 {
		schemes = defaultAuthScheme
	}
	scheme, token, ok := strings.Cut(auth, " ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", ErrBadAuthHeader
	}
	for _, s := range schemes {
		if strings.EqualFold(scheme, s) {
			return token, nil
		}
	}
	return "", ErrBadAuthHeader
}

// AuthMiddleware returns a Gin middleware that verifies the request's access
// token and stores its claims under ClaimsKey.
func AuthMiddleware(ver Verifier, opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := ExtractToken(c, opts)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": err.Error()})
			return
		}

		claims, err := ver.Verify(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Invalid token.", "reason": err.Error()})
			return
		}
		if opts.Revoked != nil {
			revoked, err := opts.Revoked(c.Request.Context(), raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token check failed"})
				return
			}
			if revoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": ErrTokenRevoked.Error()})
				return
			}
		}

		c.Set(ClaimsKey, claims)
		c.Set(TokenKey, raw)
		c.Next()
	}
}

// Subject returns the "sub" claim of an authenticated request.
func Subject(c *gin.Context) string {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return ""
	}
	cm, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}
	sub, _ := cm["sub"].(string)
	return sub
}
