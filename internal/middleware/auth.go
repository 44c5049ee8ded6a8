package middleware

import (
	"net/http"
	"strings"

	"bugwars-sync/internal/auth"
	"github.com/gin-gonic/gin"
)

const (
	userIDContextKey   = "userID"
	usernameContextKey = "username"
)

func UserIDFromContext(c *gin.Context) (string, bool) {
	userID, ok := c.Get(userIDContextKey)
	if !ok {
		return "", false
	}
	value, ok := userID.(string)
	return value, ok && value != ""
}

func UsernameFromContext(c *gin.Context) string {
	return c.GetString(usernameContextKey)
}

// TokenFromRequest returns the bearer token, falling back to the token
// query parameter browsers use for websocket upgrades.
func TokenFromRequest(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return c.Query("token")
}

// RequireAuth rejects requests without a valid access token.
func RequireAuth(tokens *auth.VerifyCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := TokenFromRequest(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}

		claims, err := tokens.Verify(tokenString, auth.KindAccess)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}

		c.Set(userIDContextKey, claims.UserID)
		c.Set(usernameContextKey, claims.Username)
		c.Next()
	}
}
