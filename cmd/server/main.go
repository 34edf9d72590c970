package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"collab-service/internal/auth"
	"collab-service/internal/config"
	"collab-service/internal/hub"
	"collab-service/internal/presence"
	"collab-service/internal/ratelimit"
	"collab-service/internal/router"
	"collab-service/internal/sink"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting collab-service",
		zap.Int("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Env),
		zap.Duration("heartbeatInterval", cfg.Hub.HeartbeatInterval.Duration),
		zap.Duration("idleTimeout", cfg.Hub.IdleTimeout.Duration))

	// Redis is optional; without it snapshots are discarded and
	// readiness only reflects the process itself.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", zap.Error(err))
		}
		redisClient = redis.NewClient(opt)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis not reachable at startup", zap.Error(err))
		} else {
			logger.Info("Redis connected")
		}
		cancel()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Rate-limit policies: generic API calls, per-connection socket
	// messages, and auth attempts each get an independent limiter.
	apiLimiter := ratelimit.New(cfg.Limits.API.MaxRequests, cfg.Limits.API.Window.Duration)
	msgLimiter := ratelimit.New(cfg.Limits.Socket.MaxRequests, cfg.Limits.Socket.Window.Duration)
	authLimiter := ratelimit.New(cfg.Limits.AuthTry.MaxRequests, cfg.Limits.AuthTry.Window.Duration)
	for _, l := range []*ratelimit.Limiter{apiLimiter, msgLimiter, authLimiter} {
		l.StartSweeper(ctx, cfg.Limits.Sweep.Duration)
	}

	verifier := auth.NewServiceVerifier(cfg.Auth.ServiceURL, cfg.Auth.SecretKey, logger)
	snapshots := sink.For(redisClient, cfg.Redis.SnapshotTTL.Duration, logger)

	registry := hub.NewRegistry(logger)
	tracker := presence.NewTracker(registry, cfg.Hub.IdleTimeout.Duration, logger)
	registry.SetDisconnectNotifier(tracker)

	collabHub := hub.New(registry, tracker, verifier, snapshots, msgLimiter, cfg.Hub, logger)

	heartbeat := hub.NewHeartbeat(registry, cfg.Hub.HeartbeatInterval.Duration, logger)
	go heartbeat.Run(ctx)

	r := router.Setup(cfg, collabHub, tracker, snapshots, apiLimiter, authLimiter, redisClient, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	// Stop accepting, then close live sockets, then stop the timers.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown error", zap.Error(err))
	}
	if err := collabHub.Shutdown(10 * time.Second); err != nil {
		logger.Warn("Hub shutdown incomplete", zap.Error(err))
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logger.Info("Bye")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
