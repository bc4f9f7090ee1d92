package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantdb/pkg/logger"
	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// Task is a unit of work run by a Pool.
type Task func(ctx context.Context) error

type job struct {
	ctx      context.Context
	tenantID string
	task     Task
	future   *Future[struct{}]
}

// Pool runs tasks on a fixed set of long-lived workers. Each worker owns one
// tenant scope for its whole life; a task runs with the tenant that was
// current when it was submitted, and the scope is cleared when the task
// returns, so nothing leaks into the next task on the same worker.
type Pool struct {
	jobs    chan job
	wg      sync.WaitGroup
	logger  *slog.Logger
	workers int

	mu     sync.RWMutex
	closed bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkers sets the number of workers. Defaults to 4.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithPoolLogger sets the logger. Defaults to slog.Default().
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPool starts the workers.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		workers: 4,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.jobs = make(chan job, p.workers)

	for range p.workers {
		p.wg.Add(1)
		go p.work(uuid.New())
	}
	return p
}

// Submit queues task. It blocks while all workers are busy and the queue is
// full, until ctx is done.
func (p *Pool) Submit(ctx context.Context, task Task) (*Future[struct{}], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	id, _ := tenant.Current(ctx)
	j := job{ctx: ctx, tenantID: id, task: task, future: newFuture[struct{}]()}

	select {
	case p.jobs <- j:
		return j.future, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (p *Pool) Close() {
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

func (p *Pool) work(id uuid.UUID) {
	defer p.wg.Done()

	scope := tenant.NewContext(context.Background())
	log := p.logger.With(logger.Component("async"), slog.String("worker_id", id.String()))

	for j := range p.jobs {
		err := p.run(scope, j)
		if err != nil {
			log.Debug("task failed", logger.TenantID(j.tenantID), logger.Error(err))
		}
		j.future.complete(struct{}{}, err)
	}
}

func (p *Pool) run(scope context.Context, j job) (err error) {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	if j.tenantID != "" {
		_ = tenant.Set(scope, j.tenantID)
	}
	defer tenant.Clear(scope)

	ctx, cancel := context.WithCancel(scope)
	defer cancel()
	stop := context.AfterFunc(j.ctx, cancel)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return j.task(ctx)
}
