package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		// Setenv first so the original value is restored after the test.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)
	unsetEnv(t, "PORT", "STORAGE", "REDIS_URL", "ENV", "JWT_SECRET", "TOKEN_TTL",
		"MAX_UPLOAD_BYTES", "SEND_RATE_PER_SEC", "SEND_RATE_BURST", "SESSION_BUFFER", "DB_MAX_CONNS")

	cfg, err := LoadConfig()
	req.NoError(err)
	req.Equal("8081", cfg.Port)
	req.Equal("postgres", cfg.Storage)
	req.Equal("development", cfg.Env)
	req.Equal("", cfg.RedisURL)
	req.Equal(24*time.Hour, cfg.TokenTTL)
	req.Equal(40, cfg.SendRateBurst)
	req.Equal(256, cfg.SessionBuffer)
	req.Equal(int64(5242880), cfg.MaxUploadBytes)
	req.Equal(int32(25), cfg.DBMaxConns)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	req := require.New(t)
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE", "memory")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("SEND_RATE_PER_SEC", "2.5")
	t.Setenv("SESSION_BUFFER", "16")
	t.Setenv("DB_MAX_CONNS", "10")

	cfg, err := LoadConfig()
	req.NoError(err)
	req.Equal("9090", cfg.Port)
	req.Equal("memory", cfg.Storage)
	req.Equal("redis://cache:6379/1", cfg.RedisURL)
	req.Equal(90*time.Minute, cfg.TokenTTL)
	req.InDelta(2.5, cfg.SendRatePerSec, 0.0001)
	req.Equal(16, cfg.SessionBuffer)
	req.Equal(int32(10), cfg.DBMaxConns)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad ttl", "TOKEN_TTL", "soon"},
		{"bad burst", "SEND_RATE_BURST", "many"},
		{"bad storage", "STORAGE", "mongo"},
		{"bad upload size", "MAX_UPLOAD_BYTES", "5MB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_ProductionNeedsSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "dev-secret-change-me")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "a-real-secret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "production", cfg.Env)
}

func TestGetEnv(t *testing.T) {
	t.Setenv("PULSECHAT_TEST_KEY", "value")
	require.Equal(t, "value", GetEnv("PULSECHAT_TEST_KEY", "fallback"))
	require.Equal(t, "fallback", GetEnv("PULSECHAT_MISSING_KEY", "fallback"))
}
