// Package health reports service liveness and dependency state. Postgres is
// load-bearing and marks the service down; Redis only degrades rate limiting,
// so its outage reports as degraded while the service keeps serving.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/veranda-social/pushgate/internal/logger"
	"github.com/veranda-social/pushgate/internal/metrics"
)

// Pinger is the reachability probe a dependency exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is the health endpoint's response body.
type Status struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptimeSeconds"`

	Database  string `json:"database"`
	RateStore string `json:"rateStore"`

	ActiveStreams int64 `json:"activeStreams"`
	FramesPushed  int64 `json:"framesPushed"`
	FramesDropped int64 `json:"framesDropped"`
}

// Checker aggregates dependency probes into one status.
type Checker struct {
	db        Pinger
	rateStore Pinger
	version   string
	startedAt time.Time

	log *zap.Logger
}

// NewChecker builds a checker. rateStore may be nil when no shared rate-limit
// store is configured; it then reports as "disabled".
func NewChecker(db Pinger, rateStore Pinger, version string) *Checker {
	return &Checker{
		db:        db,
		rateStore: rateStore,
		version:   version,
		startedAt: time.Now(),
		log:       logger.New("health"),
	}
}

// Check probes every dependency and derives the overall status: "ok" when all
// are reachable, "degraded" when only the shared rate-limit store is not, and
// "down" when the database is unreachable.
func (c *Checker) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	s := Status{
		Status:        "ok",
		Version:       c.version,
		UptimeSeconds: int64(time.Since(c.startedAt).Seconds()),
		Database:      "ok",
		RateStore:     "ok",
		ActiveStreams: metrics.GetActiveStreamCount(),
		FramesPushed:  metrics.GetFramesPushedCount(),
		FramesDropped: metrics.GetFramesDroppedCount(),
	}

	if err := c.db.Ping(ctx); err != nil {
		c.log.Warn("database unreachable", zap.Error(err))
		s.Database = "unreachable"
		s.Status = "down"
	}

	switch {
	case c.rateStore == nil:
		s.RateStore = "disabled"
	default:
		if err := c.rateStore.Ping(ctx); err != nil {
			s.RateStore = "unreachable"
			if s.Status == "ok" {
				s.Status = "degraded"
			}
		}
	}

	return s
}

// Handler serves the status as JSON. Only a down database turns the response
// into a 503; degraded still reports 200 so load balancers keep routing.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := c.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if s.Status == "down" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(s)
	})
}
