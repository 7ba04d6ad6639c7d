// Package application assembles the service: configuration in, wired
// components out, with one place owning startup order and graceful shutdown.
package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/veranda-social/pushgate/internal/config"
	"github.com/veranda-social/pushgate/internal/constants"
	"github.com/veranda-social/pushgate/internal/health"
	"github.com/veranda-social/pushgate/internal/hub"
	"github.com/veranda-social/pushgate/internal/limiter"
	"github.com/veranda-social/pushgate/internal/logger"
	"github.com/veranda-social/pushgate/internal/metrics"
	"github.com/veranda-social/pushgate/internal/notification"
	"github.com/veranda-social/pushgate/internal/storage"
	"github.com/veranda-social/pushgate/internal/web"
	"github.com/veranda-social/pushgate/internal/workers"
)

// App is the running service.
type App struct {
	cfg *config.Config

	db       *storage.DB
	redis    *redis.Client
	fallback *limiter.FallbackStore
	registry *hub.Registry
	pool     *workers.Pool

	server        *http.Server
	metricsServer *http.Server

	log *zap.Logger
}

// New wires the service from cfg. Postgres must be reachable; Redis is probed
// but allowed to be down, rate limiting then runs on the in-process fallback
// until it recovers.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.New("application")
	metrics.Register()

	db, err := storage.Connect(ctx, cfg.Database.ConnString(), constants.ExpectedStreamConnections)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	var (
		redisClient *redis.Client
		primary     *limiter.RedisStore
	)
	if cfg.RateLimit.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		primary = limiter.NewRedisStore(redisClient, cfg.Redis.Timeout)
		if err := primary.Ping(ctx); err != nil {
			log.Warn("shared rate-limit store unreachable at startup, counting in process until it recovers",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err))
		}
	}

	fallback := limiter.NewFallbackStore()
	fallback.StartSweeper(constants.FallbackSweepInterval)

	var lim *limiter.Limiter
	if cfg.RateLimit.Enabled {
		lim = limiter.New(primary, fallback)
	}

	registry := hub.NewRegistry(cfg.Push.MaxConnectionsPerUser)
	pool := workers.NewPool(constants.FanoutWorkers, constants.FanoutJobBuffer)
	service := notification.NewService(storage.NewNotificationStore(db), registry, pool)

	checker := health.NewChecker(db, primaryOrNil(primary), config.Version)

	handler := web.NewHandler(web.Options{
		Service:           service,
		Registry:          registry,
		Limiter:           lim,
		Health:            checker.Handler(),
		NotifyPolicy:      policyFrom(cfg.RateLimit.Notify),
		StreamPolicy:      policyFrom(cfg.RateLimit.Stream),
		HeartbeatInterval: cfg.Push.HeartbeatInterval,
		HandshakeBurst:    cfg.Push.HandshakeBurst,
	})

	app := &App{
		cfg:      cfg,
		db:       db,
		redis:    redisClient,
		fallback: fallback,
		registry: registry,
		pool:     pool,
		log:      log,
		server: &http.Server{
			Addr:    cfg.Push.ListenAddr,
			Handler: handler.Routes(),
			// No WriteTimeout: stream responses are held open indefinitely.
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		app.metricsServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return app, nil
}

// policyFrom converts the config policy to the limiter's.
func policyFrom(p config.RatePolicyConfig) limiter.Policy {
	return limiter.Policy{Prefix: p.Prefix, Window: p.Window, Max: p.Max}
}

// primaryOrNil keeps a nil *RedisStore from becoming a non-nil health.Pinger.
func primaryOrNil(s *limiter.RedisStore) health.Pinger {
	if s == nil {
		return nil
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully. The error of
// whichever listener fails first is returned; a clean shutdown returns nil.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	// Stream handlers watch their request context; tying it to the run
	// context lets cancellation end open streams so Shutdown can finish.
	a.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		a.log.Info("listening",
			zap.String("addr", a.cfg.Push.ListenAddr),
			zap.Int("max_connections_per_user", a.cfg.Push.MaxConnectionsPerUser))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api listener: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			a.log.Info("metrics listening", zap.String("addr", a.cfg.Metrics.Addr))
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics listener: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

// shutdown tears the service down in dependency order: stop accepting
// requests, tell live streams the service is going away, drain the fan-out
// pool, then release the stores.
func (a *App) shutdown() {
	a.log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Tell live streams the service is going away before closing the
	// listener; their handler loops are already unwinding on the cancelled
	// base context.
	a.registry.CloseAll("Server shutting down")

	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Warn("api listener shutdown", zap.Error(err))
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.log.Warn("metrics listener shutdown", zap.Error(err))
		}
	}

	a.pool.Stop()
	a.fallback.Stop()

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis close", zap.Error(err))
		}
	}
	a.db.Close()

	a.log.Info("shutdown complete")
}
