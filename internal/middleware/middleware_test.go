package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/pulsechat/internal/auth"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func whoami(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "email": GetEmail(c)})
}

func TestAuthMiddleware(t *testing.T) {
	userID := uuid.New()
	token, err := auth.GenerateToken(userID, "ana@example.com", secret, time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", AuthMiddleware(secret), whoami)

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"bearer header", "/me", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "/me", "bearer " + token, http.StatusOK},
		{"query fallback", "/me?token=" + token, "", http.StatusOK},
		{"missing", "/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "/me", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			w := httptest.NewRecorder()
			r0 := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				r0.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, r0)

			req.Equal(tt.status, w.Code)
			if tt.status == http.StatusOK {
				req.Contains(w.Body.String(), userID.String())
			} else {
				req.Contains(w.Body.String(), `"success":false`)
			}
		})
	}
}

func TestGetters_OutsideMiddleware(t *testing.T) {
	req := require.New(t)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req.Equal(uuid.Nil, GetUserID(c))
	req.Empty(GetEmail(c))

	c.Set(ContextKeyUserID, "not-a-uuid")
	req.Equal(uuid.Nil, GetUserID(c))
}

func TestRateLimit(t *testing.T) {
	req := require.New(t)
	rl := NewRateLimiter(0, 2, time.Minute)

	r := gin.New()
	r.POST("/send", RateLimit(rl), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(ip string) int {
		w := httptest.NewRecorder()
		r0 := httptest.NewRequest(http.MethodPost, "/send", nil)
		r0.RemoteAddr = ip + ":1234"
		r.ServeHTTP(w, r0)
		return w.Code
	}

	// Given a burst of two and no refill
	req.Equal(http.StatusNoContent, send("10.0.0.1"))
	req.Equal(http.StatusNoContent, send("10.0.0.1"))
	req.Equal(http.StatusTooManyRequests, send("10.0.0.1"))

	// Another caller has its own bucket
	req.Equal(http.StatusNoContent, send("10.0.0.2"))
}

func TestRateLimiter_SweepsIdleBuckets(t *testing.T) {
	req := require.New(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1, time.Minute)
	rl.now = func() time.Time { return now }

	req.True(rl.Allow("a"))
	now = now.Add(30 * time.Second)
	req.True(rl.Allow("b"))

	now = now.Add(45 * time.Second)
	rl.sweep()
	req.NotContains(rl.buckets, "a")
	req.Contains(rl.buckets, "b")
}
