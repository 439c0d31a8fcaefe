package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the default number of concurrent store calls.
const DefaultWorkers = 4

// workerPool runs store calls off the loop, at most size at a time.
//
// Go never blocks the caller: a task acquires its slot in its own goroutine,
// so a stuck store call delays queued tasks but not the loop. A task whose
// context ends before a slot frees is skipped.
//
// Thread-safety: all methods may be called concurrently.
type workerPool struct {
	sem *semaphore.Weighted

	mu        sync.Mutex
	active    int
	scheduled uint64
	idle      chan struct{} // closed while active == 0
}

func newWorkerPool(size int) *workerPool {
	if size < 1 {
		size = 1
	}
	idle := make(chan struct{})
	close(idle)
	return &workerPool{sem: semaphore.NewWeighted(int64(size)), idle: idle}
}

// Go schedules fn. fn receives ctx.
func (p *workerPool) Go(ctx context.Context, fn func(context.Context)) {
	p.mu.Lock()
	if p.active == 0 {
		p.idle = make(chan struct{})
	}
	p.active++
	p.scheduled++
	p.mu.Unlock()

	go func() {
		defer p.done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		fn(ctx)
	}()
}

func (p *workerPool) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
	if p.active == 0 {
		close(p.idle)
	}
}

// Scheduled returns how many tasks have been scheduled so far.
func (p *workerPool) Scheduled() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scheduled
}

// Wait blocks until no task is scheduled or running, or ctx is done.
// It returns Scheduled as of the moment the pool went idle.
func (p *workerPool) Wait(ctx context.Context) (uint64, error) {
	for {
		p.mu.Lock()
		idle, n := p.idle, p.scheduled
		active := p.active
		p.mu.Unlock()

		if active == 0 {
			return n, nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}
