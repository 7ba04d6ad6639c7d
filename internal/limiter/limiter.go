// Package limiter counts requests per client identity inside fixed policy
// windows. The shared Redis store is the primary counter; when it is
// unreachable the check falls back to an in-process map for that call only,
// so the service degrades instead of rejecting traffic because its
// dependency is down.
package limiter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/veranda-social/pushgate/internal/logger"
	"github.com/veranda-social/pushgate/internal/metrics"
)

// Policy is one fixed-window rate bucket.
type Policy struct {
	Prefix string
	Window time.Duration
	Max    int
}

// Decision is the outcome of one check. Remaining is informational only; the
// allow decision compares the post-increment value against Max directly, so
// Remaining legitimately reads 0 on the boundary-accepted request.
type Decision struct {
	Allowed   bool
	Remaining int
}

// CounterStore atomically increments a windowed counter and returns the
// post-increment value.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter runs each check against the primary store, falling back to the
// local store on any primary error. The choice is made per call; once the
// primary recovers the very next check uses it again.
type Limiter struct {
	primary  CounterStore
	fallback CounterStore

	log *zap.Logger
}

// New builds a limiter. primary may be nil (no shared store configured), in
// which case every check uses the fallback.
func New(primary CounterStore, fallback CounterStore) *Limiter {
	return &Limiter{
		primary:  primary,
		fallback: fallback,
		log:      logger.New("limiter"),
	}
}

// Check counts one request for clientID under policy and decides whether it
// is allowed. Exactly one store serves the call: a primary failure falls
// back for this call only, never splitting a window's count across stores.
func (l *Limiter) Check(ctx context.Context, policy Policy, clientID string) Decision {
	key := fmt.Sprintf("%s:%s", policy.Prefix, clientID)

	path := "primary"
	var value int64
	var err error
	if l.primary != nil {
		value, err = l.primary.Incr(ctx, key, policy.Window)
	}
	if l.primary == nil || err != nil {
		if err != nil {
			l.log.Warn("shared rate-limit store unreachable, using in-process fallback",
				zap.String("key", key),
				zap.Error(err))
			metrics.RateLimitFallbacks.Inc()
		}
		path = "fallback"
		value, err = l.fallback.Incr(ctx, key, policy.Window)
		if err != nil {
			// The fallback is in-process and cannot realistically fail;
			// never reject solely because counting did.
			l.log.Error("fallback rate-limit store failed", zap.String("key", key), zap.Error(err))
			return Decision{Allowed: true, Remaining: 0}
		}
	}

	allowed := value <= int64(policy.Max)
	remaining := policy.Max - int(value)
	if remaining < 0 {
		remaining = 0
	}

	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	metrics.RateLimitDecisions.WithLabelValues(policy.Prefix, path, outcome).Inc()

	return Decision{Allowed: allowed, Remaining: remaining}
}
