package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/pulsechat/internal/chat"
	"github.com/lalith-99/pulsechat/internal/config"
	"github.com/lalith-99/pulsechat/internal/middleware"
	"github.com/lalith-99/pulsechat/internal/observ"
	"github.com/lalith-99/pulsechat/internal/repository"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewRouter wires every route. Health, metrics, uploads and the auth
// entry points are public; everything else under /v1 needs a JWT.
func NewRouter(
	cfg *config.Config,
	store *repository.Store,
	svc *chat.Service,
	limiter *middleware.RateLimiter,
	health HealthChecker,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), observ.GinMiddleware(), observ.RequestLogger(logger))

	// health may be nil when nothing external backs the store.
	r.GET("/v1/health", func(c *gin.Context) {
		if health != nil {
			if err := health.Health(c.Request.Context()); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Static(cfg.UploadURLPrefix, cfg.UploadDir)

	authH := NewAuthHandler(store.Users, cfg.JWTSecret, cfg.TokenTTL, logger)
	users := NewUserHandler(svc, logger)
	messages := NewMessageHandler(svc, logger)
	groups := NewGroupHandler(svc, logger)
	members := NewMembershipHandler(svc, logger)
	ws := NewWSHandler(svc, cfg.SessionBuffer, logger)

	public := r.Group("/v1/auth")
	public.Use(middleware.RateLimit(limiter))
	public.POST("/signup", authH.Signup)
	public.POST("/login", authH.Login)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	send := middleware.RateLimit(limiter)

	v1.GET("/auth/check", authH.Check)
	v1.GET("/ws", ws.Serve)

	v1.GET("/users", users.List)
	v1.PUT("/users/me", users.UpdateMe)

	v1.GET("/messages/:peerID", messages.History)
	v1.POST("/messages/:peerID", send, messages.Send)

	v1.GET("/groups", groups.List)
	v1.GET("/groups/unread", groups.Unread)
	v1.POST("/groups", groups.Create)
	v1.PUT("/groups/:id", groups.Update)
	v1.GET("/groups/:id/messages", groups.Messages)
	v1.POST("/groups/:id/messages", send, groups.Send)
	v1.PUT("/groups/:id/seen", groups.Seen)
	v1.POST("/groups/:id/members", members.Add)
	v1.POST("/groups/:id/exit", members.Exit)

	return r
}
