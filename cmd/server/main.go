package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lalith-99/pulsechat/internal/api"
	"github.com/lalith-99/pulsechat/internal/chat"
	"github.com/lalith-99/pulsechat/internal/config"
	"github.com/lalith-99/pulsechat/internal/db"
	"github.com/lalith-99/pulsechat/internal/media"
	"github.com/lalith-99/pulsechat/internal/middleware"
	"github.com/lalith-99/pulsechat/internal/observ"
	"github.com/lalith-99/pulsechat/internal/realtime"
	"github.com/lalith-99/pulsechat/internal/repository"
	"github.com/lalith-99/pulsechat/internal/repository/memory"
	"github.com/lalith-99/pulsechat/internal/repository/postgres"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	// ---------------------------------------------------------------
	// 1. Load config
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ---------------------------------------------------------------
	// 2. Create logger
	// ---------------------------------------------------------------
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 3. Storage
	// ---------------------------------------------------------------
	store, database, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	var health api.HealthChecker
	if database != nil {
		defer database.Close()
		health = database
	}

	// ---------------------------------------------------------------
	// 4. Realtime: registry, fan-out broker and presence.
	//
	// Without Redis every instance is an island: emits reach only local
	// sessions and presence counts only local connections.
	// ---------------------------------------------------------------
	registry := realtime.NewRegistry(logger)
	var (
		broker realtime.Broker    = realtime.NewLocalBroker(registry)
		online realtime.OnlineSet = realtime.NewLocalOnlineSet()
	)
	if cfg.RedisURL != "" {
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()

		redisBroker := realtime.NewRedisBroker(client, registry, logger)
		go redisBroker.Run(ctx)
		broker = redisBroker
		online = realtime.NewRedisOnlineSet(client)
		logger.Info("redis fan-out enabled")
	}
	hub := realtime.NewHub(registry, broker, logger)
	presence := realtime.NewPresence(hub, online, logger)

	// ---------------------------------------------------------------
	// 5. Service and HTTP
	// ---------------------------------------------------------------
	uploader, err := media.NewDiskUploader(cfg.UploadDir, cfg.UploadURLPrefix, cfg.MaxUploadBytes)
	if err != nil {
		return err
	}
	svc := chat.NewService(store, hub, presence, uploader, logger)

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.SendRatePerSec), cfg.SendRateBurst, 2*time.Minute)
	go limiter.Run(ctx, 30*time.Second)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(cfg, store, svc, limiter, health, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting PulseChat",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
		zap.String("storage", cfg.Storage),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openStore picks the persistence backend. The *db.DB is nil for the
// memory backend.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repository.Store, *db.DB, error) {
	if cfg.Storage == "memory" {
		logger.Warn("using in-memory storage; data is lost on restart")
		return memory.New(), nil, nil
	}

	database, err := db.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return postgres.NewStore(database.Pool()), database, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
