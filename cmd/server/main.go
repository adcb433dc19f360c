// Command server runs the terminal broker HTTP and WebSocket API.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"termbroker/internal/api"
	"termbroker/internal/auth"
	"termbroker/internal/cache"
	"termbroker/internal/config"
	"termbroker/internal/db"
	"termbroker/internal/logging"
	"termbroker/internal/metrics"
	"termbroker/internal/store"
	"termbroker/internal/terminal"
	"termbroker/internal/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	logging.Init()
	defer logging.Sync()

	secretsConfig := config.MustValidateSecrets()

	databaseURL := getEnv("DATABASE_URL", "termbroker.db")
	database, err := db.NewDatabase(databaseURL)
	if err != nil {
		logging.S().Fatalw("failed to connect to database", "err", err)
	}
	defer database.Close()

	userRepo := db.NewGormUserRepository(database.GetDB())
	authService := auth.NewAuthService(secretsConfig.JWTSecret, "termbroker", userRepo)

	redisURL := os.Getenv("REDIS_URL")
	var redisCache *cache.RedisCache
	if redisURL != "" {
		redisCache, err = cache.NewRedisCacheFromURL(redisURL, cache.DefaultCacheConfig())
		if err != nil {
			logging.S().Warnw("redis connection failed, falling back to in-memory cache", "err", err)
			redisCache = cache.NewRedisCache(cache.DefaultCacheConfig())
		}
	} else {
		logging.S().Warn("REDIS_URL not set, using in-memory cache")
		redisCache = cache.NewRedisCache(cache.DefaultCacheConfig())
	}
	defer redisCache.Close()

	runtimeStore := config.NewRuntimeStore(redisCache)
	persistence := store.New(database.GetDB())
	manager := terminal.NewManager(persistence, runtimeStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewSystemMetricsCollector(database.GetDB(), manager, 15*time.Second)
	collector.Start(ctx)
	defer collector.Stop()

	cleanupInterval := getEnvDuration("CLEANUP_INTERVAL", 5*time.Minute)
	go runCleanupLoop(ctx, manager, cleanupInterval)

	server := api.NewServer(database, authService, manager, runtimeStore)
	wsHandler := transport.NewHandler(manager, authService)

	routerCfg := api.RouterConfig{
		AllowedOrigins:    getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		RequestsPerMinute: getEnvInt("RATE_LIMIT_RPM", 1000),
		Burst:             getEnvInt("RATE_LIMIT_BURST", 50),
	}
	router := api.NewRouter(server, wsHandler, routerCfg)

	port := getEnv("PORT", "8080")
	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logging.S().Infow("server listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logging.S().Fatalw("server failed to start", "err", err)
	case sig := <-quit:
		logging.S().Infow("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.S().Warnw("http server shutdown error", "err", err)
	}
	cancel()
	logging.S().Info("shutdown complete")
}

func runCleanupLoop(ctx context.Context, manager *terminal.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			manager.Cleanup(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	start := 0
	for i := 0; i <= len(value); i++ {
		if i == len(value) || value[i] == ',' {
			if i > start {
				out = append(out, value[start:i])
			}
			start = i + 1
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
