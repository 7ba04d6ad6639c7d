// Package workers provides the fixed-size pool that runs fan-out jobs so a
// burst of notifies never blocks ingress handlers.
package workers

import (
	"sync"
)

// Pool executes queued jobs on a fixed number of workers.
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup

	stopOnce sync.Once
}

// NewPool starts workerCount workers consuming from a queue of bufferSize.
func NewPool(workerCount, bufferSize int) *Pool {
	p := &Pool{jobs: make(chan func(), bufferSize)}
	for i := 0; i < workerCount; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for job := range p.jobs {
		job()
	}
}

// Submit enqueues a job without blocking. It returns false when the queue is
// full and the job was dropped; callers treat that like any other push
// failure, the durable state is already written.
func (p *Pool) Submit(job func()) bool {
	p.wg.Add(1)
	wrapped := func() {
		defer p.wg.Done()
		job()
	}
	select {
	case p.jobs <- wrapped:
		return true
	default:
		p.wg.Done()
		return false
	}
}

// Wait blocks until every accepted job has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Stop closes the queue and waits for in-flight jobs. Safe to call twice.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobs)
		p.wg.Wait()
	})
}
