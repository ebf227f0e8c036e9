package worker

import "sync"

// Task represents a unit of work executed by the pool.
type Task func()

// Pool defines a simple worker pool.
type Pool interface {
	// Submit blocks until a worker or a queue slot accepts t.
	Submit(Task)
	// TrySubmit enqueues t without blocking and reports whether it was accepted.
	TrySubmit(Task) bool
	Stop()
}

// Option configures a pool created by NewPool.
type Option func(*pool)

// WithQueueSize lets up to n tasks wait for a free worker.
func WithQueueSize(n int) Option {
	return func(p *pool) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithPanicHandler receives the value recovered from a panicking task.
// Without it a panicking task crashes the process.
func WithPanicHandler(fn func(any)) Option {
	return func(p *pool) { p.onPanic = fn }
}

// NewPool creates a pool with n workers. n<=0 defaults to 1.
func NewPool(n int, opts ...Option) Pool {
	if n <= 0 {
		n = 1
	}
	p := &pool{}
	for _, opt := range opts {
		opt(p)
	}
	p.jobs = make(chan Task, p.queueSize)
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				if job != nil {
					p.run(job)
				}
			}
		}()
	}
	return p
}

type pool struct {
	jobs      chan Task
	queueSize int
	onPanic   func(any)
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func (p *pool) run(job Task) {
	if p.onPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				p.onPanic(r)
			}
		}()
	}
	job()
}

func (p *pool) Submit(t Task) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	p.jobs <- t
}

func (p *pool) TrySubmit(t Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- t:
		return true
	default:
		return false
	}
}

// Stop rejects new tasks, runs everything already queued and waits for the
// workers to exit. Calling Stop more than once is a no-op.
func (p *pool) Stop() {
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
