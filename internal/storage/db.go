// Package storage owns the Postgres side of the service: the pooled
// connection, schema bootstrap, and the notification queries.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/veranda-social/pushgate/internal/constants"
	"github.com/veranda-social/pushgate/internal/logger"
	"github.com/veranda-social/pushgate/internal/metrics"
)

// DB wraps the pgx pool.
type DB struct {
	Pool *pgxpool.Pool

	log *zap.Logger
}

// poolConfig sizes the pool from the expected live-stream load. Stream
// connections themselves hold no database connection; the pool only serves
// notify/read traffic.
func poolConfig(connString string, maxStreamConns int) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database connection string: %w", err)
	}

	var maxConns, minConns int32
	switch {
	case maxStreamConns <= 200:
		maxConns, minConns = constants.DBPoolSmallMaxConns, constants.DBPoolSmallMinConns
	case maxStreamConns <= 2000:
		maxConns, minConns = constants.DBPoolMediumMaxConns, constants.DBPoolMediumMinConns
	default:
		maxConns, minConns = constants.DBPoolLargeMaxConns, constants.DBPoolLargeMinConns
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnLifetime = constants.DBConnMaxLifetime
	cfg.MaxConnIdleTime = constants.DBConnMaxIdleTime
	cfg.ConnConfig.ConnectTimeout = constants.DBConnAcquireTimeout
	cfg.HealthCheckPeriod = 30 * time.Second
	return cfg, nil
}

// Connect opens the pool with retries and exponential backoff, then ensures
// the schema exists.
func Connect(ctx context.Context, connString string, maxStreamConns int) (*DB, error) {
	log := logger.New("storage")

	var lastErr error
	backoff := 2 * time.Second
	for attempt := 1; attempt <= 5; attempt++ {
		cfg, err := poolConfig(connString, maxStreamConns)
		if err != nil {
			return nil, err
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				db := &DB{Pool: pool, log: log}
				if err := db.ensureSchema(ctx); err != nil {
					pool.Close()
					return nil, err
				}
				stat := pool.Stat()
				log.Info("database connected",
					zap.Int("attempts", attempt),
					zap.Int32("max_conns", stat.MaxConns()))
				metrics.DBConnections.WithLabelValues("success").Inc()
				return db, nil
			}
			pool.Close()
		}
		lastErr = err

		log.Warn("database connection failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))
		metrics.DBConnections.WithLabelValues("failure").Inc()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("connect to database after 5 attempts: %w", lastErr)
}

// Ping verifies the pool is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close shuts the pool down.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		metrics.DBConnections.WithLabelValues("closed").Inc()
		db.log.Debug("database pool closed")
	}
}
