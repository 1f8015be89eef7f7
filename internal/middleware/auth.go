package middleware

import (
	"net/http"
	"strings"

	"github.com/0xArchitect/ludo-backend/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"
)

const identityKey = "identity"

// IdentityVerifier turns an access token into the caller identity
type IdentityVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// AuthMiddleware JWT
type AuthMiddleware struct {
	verifier IdentityVerifier
	logger   logrus.FieldLogger
}

// NewAuthMiddleware creates the JWT middleware
func NewAuthMiddleware(verifier IdentityVerifier, logger logrus.FieldLogger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		logger:   logger,
	}
}

// RequireAuth verifies the access token and stores the identity on the context.
// Token sources, in order: Authorization bearer header, accessToken or token query,
// accessToken field of a JSON body.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, malformed := extractToken(c)
		if malformed {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("JWT failed - malformed Authorization header")

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid authorization format",
				"message": "Authorization header must be in format: Bearer <token>",
				"code":    "UNAUTHORIZED",
			})
			return
		}
		if tokenString == "" {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("JWT failed - no access token")

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Authentication required",
				"message": "Missing access token. Please provide a valid JWT token.",
				"code":    "UNAUTHORIZED",
			})
			return
		}

		identity, err := a.verifier.Verify(tokenString)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"error":  err.Error(),
			}).Warn("JWT failed - token verification failed")

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid or expired token",
				"message": "Access token is invalid or expired",
				"code":    "UNAUTHORIZED",
			})
			return
		}

		c.Set(identityKey, identity)
		a.logger.WithFields(logrus.Fields{
			"path":    c.Request.URL.Path,
			"user_id": identity.UserID,
		}).Debug("JWT success")

		c.Next()
	}
}

// IdentityFrom returns the identity stored by RequireAuth
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := v.(auth.Identity)
	return identity, ok
}

type bodyToken struct {
	AccessToken string `json:"accessToken"`
}

// extractToken reports malformed when an Authorization header is present but not a bearer token
func extractToken(c *gin.Context) (token string, malformed bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", true
		}
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), false
	}
	if t := c.Query("accessToken"); t != "" {
		return t, false
	}
	if t := c.Query("token"); t != "" {
		return t, false
	}
	if c.Request.Body != nil && c.ContentType() == binding.MIMEJSON {
		// ShouldBindBodyWith caches the body so handlers can bind it again
		var body bodyToken
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err == nil {
			return body.AccessToken, false
		}
	}
	return "", false
}
