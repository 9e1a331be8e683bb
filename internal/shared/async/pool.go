package async

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type task func(ctx context.Context)

// Pool is a fixed set of goroutines fed from a bounded queue.
type Pool struct {
	workers   int
	queueSize int
	tasks     chan task
	onDrop    func()

	wg  sync.WaitGroup
	ctx context.Context

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted int64
	processed int64
	dropped   int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithDropHook registers a callback invoked every time work is rejected
// because the queue is full.
func WithDropHook(fn func()) Option {
	return func(p *Pool) {
		p.onDrop = fn
	}
}

// NewPool creates a pool. Non-positive sizes fall back to one worker and a
// queue as deep as the worker count.
func NewPool(workers, queueSize int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}

	p := &Pool{
		workers:   workers,
		queueSize: queueSize,
		tasks:     make(chan task, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Work already queued runs with ctx.
func (p *Pool) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}

	p.ctx = ctx
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.started = true
	return nil
}

// Stop closes the queue and waits up to timeout for queued work to drain.
// Safe to call more than once.
func (p *Pool) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started || p.stopped {
		return nil
	}
	p.stopped = true
	close(p.tasks)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.tasks),
		Submitted:  atomic.LoadInt64(&p.submitted),
		Processed:  atomic.LoadInt64(&p.processed),
		Dropped:    atomic.LoadInt64(&p.dropped),
	}
}

// PoolStats represents worker pool statistics.
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Dropped    int64 `json:"dropped"`
}

func (p *Pool) submit(t task) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.tasks <- t:
		atomic.AddInt64(&p.submitted, 1)
		return nil
	default:
		atomic.AddInt64(&p.dropped, 1)
		if p.onDrop != nil {
			p.onDrop()
		}
		return ErrQueueFull
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			// Complete whatever is still queued so no future is left pending.
			for {
				select {
				case t, ok := <-p.tasks:
					if !ok {
						return
					}
					t(ctx)
					atomic.AddInt64(&p.processed, 1)
				default:
					return
				}
			}
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			t(ctx)
			atomic.AddInt64(&p.processed, 1)
		}
	}
}

// Submit queues fn and returns a pending future for its result.
func Submit[T any](p *Pool, fn func(context.Context) (T, error)) (*Future[T], error) {
	f := pending[T]()
	if err := p.submit(func(ctx context.Context) { f.run(ctx, fn) }); err != nil {
		return nil, err
	}
	return f, nil
}

// SubmitOr queues fn, or returns a ready future holding fallback when the
// pool cannot take the work. It never blocks the caller.
func SubmitOr[T any](p *Pool, fn func(context.Context) (T, error), fallback T) *Future[T] {
	f, err := Submit(p, fn)
	if err != nil {
		return Ready(fallback)
	}
	return f
}
