package constants

import "time"

// Service identity
const (
	ServiceName = "pushgate"
)

// Stream connection policy
const (
	// MaxConnectionsPerUser caps concurrent live stream connections held by
	// one user identity. Registration past the cap is rejected, never evicted.
	MaxConnectionsPerUser = 5

	// HeartbeatInterval is how often an idle stream emits a comment frame so
	// proxies and load balancers keep the connection open.
	HeartbeatInterval = 30 * time.Second

	// WriterBufferSize is the per-connection outbound frame buffer. A full
	// buffer fails the write immediately; the registry then drops the writer.
	WriterBufferSize = 32

	// StreamWriteTimeout bounds a single WebSocket frame write.
	StreamWriteTimeout = 10 * time.Second
)

// Database connection pool sizing, keyed to the expected live-stream load.
const (
	// ExpectedStreamConnections is the planning figure used to size the pool.
	// Streams hold no pool connection, so this only scales notify/read
	// throughput expectations.
	ExpectedStreamConnections = 1000

	DBPoolSmallMaxConns  = 8  // up to 200 live connections
	DBPoolSmallMinConns  = 2
	DBPoolMediumMaxConns = 25 // 200-2000 live connections
	DBPoolMediumMinConns = 5
	DBPoolLargeMaxConns  = 50 // beyond 2000 live connections
	DBPoolLargeMinConns  = 10

	DBConnMaxLifetime    = 60 * time.Minute
	DBConnMaxIdleTime    = 15 * time.Minute
	DBConnAcquireTimeout = 10 * time.Second
)

// Rate limiter
const (
	// FallbackSweepInterval is how often the in-process fallback store
	// removes expired counters.
	FallbackSweepInterval = 5 * time.Minute

	// UnknownClientID is used when no client address can be determined.
	UnknownClientID = "unknown"
)

// Worker pool defaults for fan-out jobs.
const (
	FanoutWorkers   = 8
	FanoutJobBuffer = 1024
)
