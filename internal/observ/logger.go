package observ

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Production emits JSON with sampling,
// everything else gets the human-readable development encoder. An unknown
// level falls back to info rather than failing startup.
func NewLogger(env, level string) (*zap.Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.InitialFields = map[string]any{"service": "pulsechat"}

	return config.Build()
}

// RequestLogger logs one line per HTTP request. Server errors log at error,
// everything else at debug so polling clients don't flood the output.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= 500 {
			logger.Error("request failed", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		logger.Debug("request", fields...)
	}
}
