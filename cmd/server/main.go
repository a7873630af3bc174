package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/api"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/config"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/driver"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/metrics"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/pool"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/storage"
)

// setupLogger builds the JSON logger for production and a readable text
// logger otherwise.
func setupLogger(production bool) *slog.Logger {
	var handler slog.Handler

	if production {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:     slog.LevelDebug,
			AddSource: false,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					t := a.Value.Time()
					return slog.String("time", t.Format(time.DateTime))
				}
				return a
			},
		})
	}

	return slog.New(handler)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(setupLogger(cfg.Production()))
	slog.Info("Remote driver gateway starting",
		"server_port", cfg.ServerPort,
		"remote_urls", cfg.RemoteURLs,
		"max_sessions", cfg.MaxSessions)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	endpointPool, err := pool.NewEndpointPool(cfg.RemoteURLs, nil)
	if err != nil {
		slog.Error("failed to create endpoint pool", "error", err)
		os.Exit(1)
	}
	endpointPool.CheckHealth(ctx)
	endpointPool.StartHealthChecks(ctx, cfg.HealthCheckInterval)
	balancer := pool.NewLoadBalancer(endpointPool)

	managerCfg := driver.ManagerConfig{
		Driver: driver.Options{
			CommandTimeout: cfg.CommandTimeout,
			DebugURL:       cfg.DebugURL,
			HTTPClient:     &http.Client{},
			Metrics:        m,
		},
		MaxSessions: cfg.MaxSessions,
		Balancer:    balancer,
	}

	var redisClient *storage.RedisClient
	if cfg.RedisAddr != "" {
		redisClient, err = storage.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Error("failed to connect to Redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		managerCfg.Store = storage.NewSessionRepository(redisClient, cfg.SessionTTL)
	} else {
		slog.Warn("REDIS_ADDR not set, sessions will not survive a restart")
	}

	manager := driver.NewManager(managerCfg)
	manager.StartCleanupWorker(cfg.CleanupInterval, cfg.SessionIdleTimeout)

	server := api.NewServer(cfg.ServerPort, manager, balancer, m)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Ctrl+C is SIGINT, kill signal is SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	slog.Info("Service ready", "status", "awaiting shutdown signal")

	select {
	case sig := <-quit:
		slog.Info("shutdown initiated", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			slog.Error("server stopped unexpectedly", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shut down HTTP server", "error", err)
	}
	if err := manager.Close(shutdownCtx); err != nil {
		slog.Error("failed to close sessions", "error", err)
	}
	cancel()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Error("failed to close Redis client", "error", err)
		}
	}

	slog.Info("shutdown complete")
}
