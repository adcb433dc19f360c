package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"termbroker/internal/auth"
)

// RequireAuth validates the bearer token on every request, aborting with
// 401 and an error code the client can branch on.
func RequireAuth(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header is required",
				"code":  "AUTH_HEADER_MISSING",
			})
			c.Abort()
			return
		}

		token, err := extractBearerToken(authHeader)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "INVALID_AUTH_HEADER"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			var code string
			switch err {
			case auth.ErrTokenExpired:
				code = "TOKEN_EXPIRED"
			case auth.ErrInvalidToken:
				code = "INVALID_TOKEN"
			case auth.ErrTokenBlacklisted:
				code = "TOKEN_REVOKED"
			default:
				code = "TOKEN_VALIDATION_FAILED"
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": code})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("raw_token", claims.Raw)
		c.Set("authenticated", true)
		c.Next()
	}
}

// OptionalAuth validates a token if present but never aborts the request.
func OptionalAuth(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}
		token, err := extractBearerToken(authHeader)
		if err != nil {
			c.Next()
			return
		}
		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.Next()
			return
		}
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("raw_token", claims.Raw)
		c.Set("authenticated", true)
		c.Next()
	}
}

func extractBearerToken(authHeader string) (string, error) {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", errors.New("invalid authorization header format: expected 'Bearer <token>'")
	}
	token := strings.TrimPrefix(authHeader, bearerPrefix)
	if token == "" {
		return "", errors.New("token cannot be empty")
	}
	return token, nil
}

// GetUserID extracts the authenticated user id from context.
func GetUserID(c *gin.Context) (uint, bool) {
	id, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	v, ok := id.(uint)
	return v, ok
}

// GetUsername extracts the authenticated username from context.
func GetUsername(c *gin.Context) (string, bool) {
	name, exists := c.Get("username")
	if !exists {
		return "", false
	}
	v, ok := name.(string)
	return v, ok
}

// IsAuthenticated reports whether the current request carried a valid token.
func IsAuthenticated(c *gin.Context) bool {
	authenticated, exists := c.Get("authenticated")
	if !exists {
		return false
	}
	v, ok := authenticated.(bool)
	return ok && v
}

// GetRawToken retrieves the raw bearer token from context, for logout
// blacklisting.
func GetRawToken(c *gin.Context) (string, bool) {
	token, exists := c.Get("raw_token")
	if !exists {
		return "", false
	}
	v, ok := token.(string)
	return v, ok
}
