package deferred

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// loader runs CPU-side jobs (image decoding) with bounded concurrency.
// Jobs are queued without blocking the caller; a single dispatcher
// goroutine waits on the semaphore for a free slot before starting each
// one.
type loader struct {
	sem  *semaphore.Weighted
	jobs chan func()
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newLoader(workers, queue int) *loader {
	if workers < 1 {
		workers = 1
	}
	if queue < 1 {
		queue = 1
	}
	l := &loader{
		sem:  semaphore.NewWeighted(int64(workers)),
		jobs: make(chan func(), queue),
	}
	go l.dispatch()
	return l
}

func (l *loader) dispatch() {
	ctx := context.Background()
	for job := range l.jobs {
		// Acquire only fails on a cancelled context.
		_ = l.sem.Acquire(ctx, 1)
		go func(job func()) {
			defer l.wg.Done()
			defer l.sem.Release(1)
			job()
		}(job)
	}
}

// submit queues job and reports whether it was accepted. It never blocks;
// a full queue or a closed loader rejects the job.
func (l *loader) submit(job func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.wg.Add(1)
	select {
	case l.jobs <- job:
		return true
	default:
		l.wg.Done()
		return false
	}
}

// Wait blocks until every accepted job has finished.
func (l *loader) Wait() {
	l.wg.Wait()
}

// close stops accepting jobs and waits for the running ones.
func (l *loader) close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.jobs)
	}
	l.mu.Unlock()
	l.wg.Wait()
}
