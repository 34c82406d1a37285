package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskError carries the name of the task that failed.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string { return fmt.Sprintf("task %s: %v", e.Task, e.Err) }

func (e *TaskError) Unwrap() error { return e.Err }

type task struct {
	name string
	run  func(context.Context) error
}

// Pool runs fire-and-forget tasks on a fixed number of goroutines with a bounded
// queue. Task failures go to Errors and never back to the submitter.
type Pool struct {
	workers     int
	taskTimeout time.Duration
	logger      *zap.Logger

	mu      sync.RWMutex
	stopped bool
	tasks   chan task
	errs    chan error

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewPool builds a pool. Non-positive sizes fall back to one worker and a queue of one.
func NewPool(workers, queueSize int, taskTimeout time.Duration, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		workers:     workers,
		taskTimeout: taskTimeout,
		logger:      logger,
		tasks:       make(chan task, queueSize),
		errs:        make(chan error, queueSize),
	}
}

// Start launches the workers. Task contexts derive from ctx.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.loop(ctx)
		}
	})
}

// Submit enqueues run without blocking. It returns false when the queue is full
// or the pool is stopped.
func (p *Pool) Submit(name string, run func(context.Context) error) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.tasks <- task{name: name, run: run}:
		return true
	default:
		return false
	}
}

// Errors exposes task failures. It is closed after Stop drains the queue.
func (p *Pool) Errors() <-chan error {
	return p.errs
}

// Stop refuses new tasks, waits for queued ones to finish and closes Errors.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.tasks)
		p.mu.Unlock()

		p.wg.Wait()
		close(p.errs)
	})
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()
	for t := range p.tasks {
		if err := p.execute(ctx, t); err != nil {
			p.report(&TaskError{Task: t.name, Err: err})
		}
	}
}

func (p *Pool) execute(ctx context.Context, t task) (err error) {
	runCtx := ctx
	if p.taskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.taskTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.run(runCtx)
}

func (p *Pool) report(err error) {
	select {
	case p.errs <- err:
	default:
		p.logger.Warn("worker error channel full; dropping error", zap.Error(err))
	}
}
