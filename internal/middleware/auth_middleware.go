// internal/middleware/auth_middleware.go
package middleware

import (
	"net/http"
	"strings"

	xerrors "github.com/rgavrysh/renovator-app-sub001/internal/pkg/errors"
	"github.com/rgavrysh/renovator-app-sub001/internal/pkg/response"
	"github.com/rgavrysh/renovator-app-sub001/internal/service/auth"

	"github.com/gin-gonic/gin"
)

type AuthMiddleware struct {
	authService *auth.AuthService
}

func NewAuthMiddleware(authService *auth.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// Auth validates the bearer token and injects the resolved identity into the
// request context. A provider outage during the introspection fallback is
// reported as 502, not 401, so clients do not clear their tokens over it.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractBearer(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}

		user, session, err := m.authService.IdentityFromToken(c.Request.Context(), token)
		if err != nil {
			if xerrors.Is(err, xerrors.ErrProviderUnavailable) {
				response.Error(c, http.StatusBadGateway, "authorization server unavailable", err)
				return
			}
			response.Error(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		// Set user context
		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Set("email", user.Email)
		if session != nil {
			c.Set("session_id", session.ID)
		}

		c.Next()
	}
}

// OptionalAuth resolves the identity when a token is present but never aborts.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractBearer(c)
		if token == "" {
			c.Next()
			return
		}

		user, session, err := m.authService.IdentityFromToken(c.Request.Context(), token)
		if err != nil {
			// Don't abort, just continue without setting user context
			c.Next()
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Set("email", user.Email)
		if session != nil {
			c.Set("session_id", session.ID)
		}
		c.Set("authenticated", true)

		c.Next()
	}
}

// ExtractBearer extracts the bearer token from the Authorization header.
func ExtractBearer(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}

	return ""
}
