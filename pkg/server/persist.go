package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// persistJob is one deferred gateway write.
type persistJob struct {
	name string
	run  func(ctx context.Context) error
	done chan struct{} // closed after run when non-nil
}

// persister runs gateway writes on a single background goroutine in the
// order they were enqueued. A full queue blocks the enqueuing session.
type persister struct {
	jobs    chan persistJob
	timeout time.Duration
	metrics *Metrics

	mu     sync.RWMutex // guards closed against concurrent enqueue
	closed bool
	wg     sync.WaitGroup
}

func newPersister(metrics *Metrics, queue int, timeout time.Duration) *persister {
	p := &persister{
		jobs:    make(chan persistJob, queue),
		timeout: timeout,
		metrics: metrics,
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

func (p *persister) loop() {
	defer p.wg.Done()
	for job := range p.jobs {
		if job.run != nil {
			ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
			if err := job.run(ctx); err != nil {
				p.metrics.StorageErrors.Add(1)
				slog.Warn("async persist failed", "op", job.name, "err", err)
			}
			cancel()
		}
		if job.done != nil {
			close(job.done)
		}
	}
}

// enqueue schedules fn. It reports false once the persister is closed.
func (p *persister) enqueue(name string, fn func(ctx context.Context) error) bool {
	return p.submit(persistJob{name: name, run: fn})
}

func (p *persister) submit(job persistJob) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		slog.Warn("persist queue closed, dropping write", "op", job.name)
		return false
	}
	p.jobs <- job
	return true
}

// flush blocks until every job enqueued before the call has run.
func (p *persister) flush() {
	done := make(chan struct{})
	if !p.submit(persistJob{name: "flush", done: done}) {
		return
	}
	<-done
}

// close stops accepting jobs and waits for the queue to drain.
func (p *persister) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
