package limiter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veranda-social/pushgate/internal/logger"
)

// counter is one window's state in the fallback store.
type counter struct {
	count     int64
	expiresAt time.Time
}

// FallbackStore is the process-local counter map used when the shared store
// is unreachable. Expired entries are reset lazily on read; a janitor sweep
// bounds memory against the one-entry-per-client-ever-seen growth.
type FallbackStore struct {
	mu       sync.Mutex
	counters map[string]*counter

	now  func() time.Time
	stop chan struct{}
	once sync.Once
	log  *zap.Logger
}

// NewFallbackStore creates the store. Start the janitor separately with
// StartSweeper; tests drive expiry through the clock instead.
func NewFallbackStore() *FallbackStore {
	return &FallbackStore{
		counters: make(map[string]*counter),
		now:      time.Now,
		stop:     make(chan struct{}),
		log:      logger.New("limiter"),
	}
}

// Incr implements CounterStore. A missing or expired entry starts a fresh
// window at count 1; otherwise the existing window is incremented.
func (s *FallbackStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || now.After(c.expiresAt) {
		s.counters[key] = &counter{count: 1, expiresAt: now.Add(window)}
		return 1, nil
	}
	c.count++
	return c.count, nil
}

// StartSweeper runs the janitor until Stop is called.
func (s *FallbackStore) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the janitor. Safe to call twice.
func (s *FallbackStore) Stop() {
	s.once.Do(func() { close(s.stop) })
}

func (s *FallbackStore) sweep() {
	now := s.now()

	s.mu.Lock()
	removed := 0
	for key, c := range s.counters {
		if now.After(c.expiresAt) {
			delete(s.counters, key)
			removed++
		}
	}
	remaining := len(s.counters)
	s.mu.Unlock()

	if removed > 0 {
		s.log.Debug("swept expired fallback counters",
			zap.Int("removed", removed),
			zap.Int("remaining", remaining))
	}
}

// size is a test hook.
func (s *FallbackStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}
