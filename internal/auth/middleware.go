package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CarlesMG6/guessify-sub000/pkg/jwt"
)

const cookieName = "auth_token"

// Middleware authenticates the session token and sets user_id (and guest)
// on the context. The token is read from the auth cookie, a Bearer header or
// the token query parameter, which browsers need for WebSocket upgrades.
func Middleware(tokens *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := tokenFromRequest(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization token"})
			return
		}

		claims, err := tokens.ValidateToken(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("guest", claims.Guest)
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return c.Query("token")
}
