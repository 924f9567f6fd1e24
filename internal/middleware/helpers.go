// internal/middleware/helpers.go
package middleware

import (
	"github.com/rgavrysh/renovator-app-sub001/internal/domain/auth"

	"github.com/gin-gonic/gin"
)

// GetUserID gets the authenticated user id from context
func GetUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}

	id, ok := userID.(int64)
	return id, ok
}

// MustGetUserID gets the user id from context or panics
func MustGetUserID(c *gin.Context) int64 {
	id, exists := GetUserID(c)
	if !exists {
		panic("user_id not found in context")
	}
	return id
}

// GetUser gets the resolved user from context
func GetUser(c *gin.Context) (*auth.User, bool) {
	v, exists := c.Get("user")
	if !exists {
		return nil, false
	}

	user, ok := v.(*auth.User)
	return user, ok
}

// MustGetUser gets the resolved user from context or panics
func MustGetUser(c *gin.Context) *auth.User {
	user, exists := GetUser(c)
	if !exists {
		panic("user not found in context")
	}
	return user
}

// GetSessionID gets the session id from context, if the token resolved to a
// locally stored session
func GetSessionID(c *gin.Context) (string, bool) {
	v, exists := c.Get("session_id")
	if !exists {
		return "", false
	}

	id, ok := v.(string)
	return id, ok
}

// IsAuthenticated checks if request is authenticated
func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get("user_id")
	return exists
}
