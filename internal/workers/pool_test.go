package workers

import (
	"sync/atomic"
	"testing"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	p := NewPool(4, 64)
	defer p.Stop()

	var ran int64
	for i := 0; i < 32; i++ {
		if !p.Submit(func() { atomic.AddInt64(&ran, 1) }) {
			t.Fatal("submit should succeed with free buffer space")
		}
	}
	p.Wait()

	if got := atomic.LoadInt64(&ran); got != 32 {
		t.Fatalf("ran %d jobs, want 32", got)
	}
}

func TestPoolDropsWhenQueueFull(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Stop()

	block := make(chan struct{})
	p.Submit(func() { <-block }) // occupies the single worker

	// Fill the buffer, then overflow it.
	dropped := false
	for i := 0; i < 8; i++ {
		if !p.Submit(func() {}) {
			dropped = true
			break
		}
	}
	close(block)
	p.Wait()

	if !dropped {
		t.Fatal("pool should report a drop once the queue is full")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	p := NewPool(2, 8)
	p.Submit(func() {})
	p.Stop()
	p.Stop() // must not panic on the closed queue
}
