// Package hub tracks the live push channels registered per user and fans
// frames out to them. The registry is a single-process, in-memory structure;
// durable state always outlives it, so a restart only costs open streams.
package hub

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veranda-social/pushgate/internal/logger"
	"github.com/veranda-social/pushgate/internal/metrics"
)

// Writer is an opaque capability to push one framed record to a remote peer.
// Implementations must not block: a full buffer or closed connection returns
// an error immediately.
type Writer interface {
	WriteFrame(f Frame) error
}

// connection pairs a writer with its registration metadata.
type connection struct {
	writer    Writer
	createdAt time.Time
}

// Registry holds one bucket of connections per user identity.
//
// All bucket mutation (register, unregister, broadcast's self-healing
// removal) goes through the same mutex; actual frame writes happen outside
// the lock so one slow peer never stalls the registry.
type Registry struct {
	mu         sync.Mutex
	buckets    map[string][]connection
	maxPerUser int

	log *zap.Logger
}

// NewRegistry creates a registry enforcing maxPerUser concurrent connections
// per user identity.
func NewRegistry(maxPerUser int) *Registry {
	return &Registry{
		buckets:    make(map[string][]connection),
		maxPerUser: maxPerUser,
		log:        logger.New("hub"),
	}
}

// Register adds writer to the user's bucket. It returns false, without
// mutating state, when the bucket already holds the maximum number of
// connections. The check and the insert are a single critical section, so
// racing registrations for one user cannot both pass the cap.
func (r *Registry) Register(userID string, w Writer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.buckets[userID]
	if len(bucket) >= r.maxPerUser {
		metrics.StreamsRejected.Inc()
		r.log.Debug("registration rejected at connection cap",
			zap.String("user_id", userID),
			zap.Int("connections", len(bucket)))
		return false
	}
	r.buckets[userID] = append(bucket, connection{writer: w, createdAt: time.Now()})
	return true
}

// Unregister removes exactly that writer from the user's bucket. Absent
// users and writers are a no-op, so racing disconnect paths may both call it.
func (r *Registry) Unregister(userID string, w Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(userID, w)
}

func (r *Registry) removeLocked(userID string, w Writer) {
	bucket, ok := r.buckets[userID]
	if !ok {
		return
	}
	for i, conn := range bucket {
		if conn.writer == w {
			bucket[i] = bucket[len(bucket)-1]
			bucket = bucket[:len(bucket)-1]
			break
		}
	}
	if len(bucket) == 0 {
		delete(r.buckets, userID)
	} else {
		r.buckets[userID] = bucket
	}
}

// Broadcast delivers frame to every writer currently registered for userID.
// Writers are snapshotted under the lock and written outside it; a failed
// write evicts that writer (self-healing) and never affects the others or
// the caller.
func (r *Registry) Broadcast(userID string, f Frame) {
	r.mu.Lock()
	bucket := r.buckets[userID]
	writers := make([]Writer, len(bucket))
	for i, conn := range bucket {
		writers[i] = conn.writer
	}
	r.mu.Unlock()

	for _, w := range writers {
		if err := w.WriteFrame(f); err != nil {
			r.evict(userID, w, err)
			continue
		}
		metrics.IncrementFramesPushed(f.Label())
	}
}

// Heartbeat sends the keepalive comment frame to one writer. A failure is
// handled exactly like a broadcast failure and reported to the caller so the
// owning endpoint can tear down.
func (r *Registry) Heartbeat(userID string, w Writer) error {
	if err := w.WriteFrame(Heartbeat()); err != nil {
		r.evict(userID, w, err)
		return err
	}
	metrics.IncrementFramesPushed("heartbeat")
	return nil
}

func (r *Registry) evict(userID string, w Writer, err error) {
	r.mu.Lock()
	r.removeLocked(userID, w)
	r.mu.Unlock()

	metrics.IncrementFramesDropped()
	r.log.Debug("writer evicted after failed write",
		zap.String("user_id", userID),
		zap.Error(err))
}

// ConnectionCount returns the number of live connections for one user.
func (r *Registry) ConnectionCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets[userID])
}

// TotalConnections returns the number of live connections across all users.
func (r *Registry) TotalConnections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, bucket := range r.buckets {
		total += len(bucket)
	}
	return total
}

// CloseAll sends a terminal error frame to every writer, for graceful
// shutdown. Write failures are ignored; the process is going away.
func (r *Registry) CloseAll(message string) {
	r.mu.Lock()
	writers := make([]Writer, 0)
	for _, bucket := range r.buckets {
		for _, conn := range bucket {
			writers = append(writers, conn.writer)
		}
	}
	r.buckets = make(map[string][]connection)
	r.mu.Unlock()

	f := ErrorFrame(message)
	for _, w := range writers {
		_ = w.WriteFrame(f)
	}
}
