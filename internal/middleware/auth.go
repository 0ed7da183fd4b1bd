package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/auth"
)

// Context keys for storing claims in gin.Context.
//
// Why constants?
//   - A typo in c.Get("usr_id") compiles and silently returns nothing.
//   - Handlers go through GetUserID and GetEmail, which read these keys.
const (
	ContextKeyUserID = "user_id"
	ContextKeyEmail  = "email"
)

// AuthMiddleware returns a Gin middleware that validates JWT tokens.
//
// How it fits the chain:
//   - It runs before every /v1 handler except signup and login.
//   - On a bad or missing token it aborts with 401; the handler never runs.
//   - On success it stores the claims with c.Set and calls c.Next.
//
// Where the token comes from:
//   - "Authorization: Bearer <token>" for REST calls.
//   - ?token=<token> when there is no header. Browsers cannot set headers
//     on a websocket upgrade, so /v1/ws relies on it.
//
// secret is passed in rather than read from config so tests can sign their
// own tokens.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "missing or malformed authorization",
			})
			return
		}

		claims, err := auth.ParseToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		token := c.Query("token")
		return token, token != ""
	}

	// Split "Bearer eyJhbG..." into ["Bearer", "eyJhbG..."]
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// GetUserID returns the authenticated user, or uuid.Nil outside the
// middleware.
func GetUserID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

func GetEmail(c *gin.Context) string {
	val, exists := c.Get(ContextKeyEmail)
	if !exists {
		return ""
	}
	email, ok := val.(string)
	if !ok {
		return ""
	}
	return email
}
