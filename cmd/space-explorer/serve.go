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

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/vnmchuo/space-explorer/config"
	"github.com/vnmchuo/space-explorer/internal/dispatch"
	"github.com/vnmchuo/space-explorer/internal/governor"
	"github.com/vnmchuo/space-explorer/internal/observability"
	"github.com/vnmchuo/space-explorer/internal/provider"
	"github.com/vnmchuo/space-explorer/internal/telemetry"
	"github.com/vnmchuo/space-explorer/pkg/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

SIGINT or SIGTERM drains in-flight requests for up to 10 seconds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return serve(cfg)
	},
}

func serve(cfg *config.Config) error {
	logger, err := observability.NewLogger(serviceName, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracer, err := telemetry.InitTracer(serviceName, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to init tracer: %w", err)
	}
	defer shutdownTracer()

	ctx := context.Background()
	ledger, quota, err := connectStores(ctx, cfg, logger)
	if err != nil {
		return err
	}

	gov := governor.New(ledger, cfg.RatePolicy, governor.WithLogger(logger.Named("governor")))
	defer func() { _ = gov.Close() }()

	c := newClients(cfg, logger, quota)

	status := dispatch.StatusInfo{
		MockMode:       cfg.MockMode,
		RateLimitStore: cfg.RateLimitStore(),
	}
	tracer := otel.GetTracerProvider().Tracer(serviceName)
	handler := dispatch.NewHandler(gov, c.position, c.chat, c.speech, status, tracer, logger.Named("dispatch"),
		dispatch.WithTrustedProxies(cfg.TrustedProxies),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Space Explorer starting",
			zap.String("port", cfg.Port),
			zap.Bool("mock_mode", cfg.MockMode),
			zap.String("rate_limit_store", cfg.RateLimitStore()),
			zap.Int("trusted_proxies", len(cfg.TrustedProxies)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}
	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// connectStores picks the governor ledger and, when Redis is available, the
// provider-wide quota. The returned quota is a nil interface when disabled.
func connectStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (governor.Ledger, provider.Quota, error) {
	if cfg.RedisURL == "" {
		if cfg.ProviderQuotaPerMinute > 0 {
			logger.Warn("PROVIDER_QUOTA_PER_MINUTE requires REDIS_URL, provider quota disabled")
		}
		return governor.NewMemoryLedger(), nil, nil
	}

	rdb, err := dialRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Redis connected")

	var quota provider.Quota
	if cfg.ProviderQuotaPerMinute > 0 {
		quota = ratelimit.NewQuota(rdb, cfg.ProviderQuotaPerMinute)
	}
	return governor.NewRedisLedger(rdb), quota, nil
}

func dialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}
