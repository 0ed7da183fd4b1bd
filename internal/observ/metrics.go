package observ

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pulsechat_live_sessions",
		Help: "Current number of registered websocket sessions",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pulsechat_online_users",
		Help: "Users with at least one live session on this instance",
	})
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsechat_messages_total",
		Help: "Persisted messages by kind",
	}, []string{"kind"})
	PushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsechat_pushes_total",
		Help: "Events pushed to live sessions by event name and outcome",
	}, []string{"event", "outcome"})
	SeenUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulsechat_seen_transitions_total",
		Help: "Messages that transitioned into seen",
	})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		LiveSessions,
		OnlineUsers,
		MessagesTotal,
		PushesTotal,
		SeenUpdatesTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// GinMiddleware records request count and latency per route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HTTPRequestsTotal.With(labels).Inc()
		HTTPRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
