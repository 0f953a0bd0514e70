package work

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrInvalidQueueSize   = errors.New("invalid queue size")
	ErrPoolStopped        = errors.New("worker pool has been stopped")
	ErrQueueFull          = errors.New("task queue is full")
	ErrTaskTimeout        = errors.New("task execution timeout")
)

// Result is the outcome of one task.
type Result[T any] struct {
	TaskID   string
	Value    T
	Err      error
	Started  time.Time
	Duration time.Duration
}

// PoolConfig holds configuration for the worker pool
type PoolConfig struct {
	Workers         int
	QueueSize       int
	ResultBuffer    int
	TaskTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// RunQueueConfig is a single worker that executes one run at a time.
func RunQueueConfig(queueSize int, runTimeout time.Duration) PoolConfig {
	return PoolConfig{
		Workers:         1,
		QueueSize:       queueSize,
		ResultBuffer:    queueSize + 1,
		TaskTimeout:     runTimeout,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Pool executes tasks on a fixed number of workers and publishes results.
type Pool[T any] struct {
	cfg     PoolConfig
	tasks   chan Task[T]
	results chan Result[T]
	quit    chan struct{}
	wg      sync.WaitGroup

	running   int64
	queued    int64
	completed int64

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewPool validates cfg and creates a stopped pool.
func NewPool[T any](cfg PoolConfig) (*Pool[T], error) {
	if cfg.Workers <= 0 {
		return nil, ErrInvalidWorkerCount
	}
	if cfg.QueueSize < 0 {
		return nil, ErrInvalidQueueSize
	}
	if cfg.ResultBuffer <= 0 {
		cfg.ResultBuffer = cfg.Workers * 2
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = time.Hour
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	return &Pool[T]{
		cfg:     cfg,
		tasks:   make(chan Task[T], cfg.QueueSize),
		results: make(chan Result[T], cfg.ResultBuffer),
		quit:    make(chan struct{}),
	}, nil
}

// Start launches the workers. Tasks run with contexts derived from ctx.
func (p *Pool[T]) Start(ctx context.Context, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, name, i)
	}
	log.Info().Str("pool", name).Int("workers", p.cfg.Workers).Msg("Worker pool started")
}

// Stop refuses new tasks, waits for in-flight ones up to the shutdown
// timeout and closes the results channel.
func (p *Pool[T]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.quit)
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("All workers stopped gracefully")
		close(p.results)
	case <-time.After(p.cfg.ShutdownTimeout):
		log.Warn().Dur("timeout", p.cfg.ShutdownTimeout).Msg("Shutdown timeout exceeded")
	}
}

// Submit enqueues t, blocking while the queue is full.
func (p *Pool[T]) Submit(ctx context.Context, t Task[T]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.tasks <- t:
		atomic.AddInt64(&p.queued, 1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit enqueues t or fails with ErrQueueFull.
func (p *Pool[T]) TrySubmit(t Task[T]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.tasks <- t:
		atomic.AddInt64(&p.queued, 1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Results streams task outcomes. It is closed by Stop.
func (p *Pool[T]) Results() <-chan Result[T] {
	return p.results
}

// PoolStats holds statistics about the pool
type PoolStats struct {
	Running   int64 `json:"running"`
	Queued    int64 `json:"queued"`
	Completed int64 `json:"completed"`
	InQueue   int64 `json:"in_queue"`
}

func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Running:   atomic.LoadInt64(&p.running),
		Queued:    atomic.LoadInt64(&p.queued),
		Completed: atomic.LoadInt64(&p.completed),
		InQueue:   int64(len(p.tasks)),
	}
}

func (p *Pool[T]) worker(ctx context.Context, name string, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("pool", name).Int("workerID", id).Msg("Worker stopped due to context cancellation")
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			p.execute(ctx, name, id, t)
		}
	}
}

func (p *Pool[T]) execute(ctx context.Context, name string, workerID int, t Task[T]) {
	atomic.AddInt64(&p.running, 1)
	defer atomic.AddInt64(&p.running, -1)

	timeout := p.cfg.TaskTimeout
	if d := t.Timeout(); d > 0 {
		timeout = d
	}
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	log.Debug().Str("pool", name).Int("workerID", workerID).Str("taskID", t.ID()).Dur("timeout", timeout).Msg("Executing task")

	value, err := t.Execute(taskCtx)
	if err != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = ErrTaskTimeout
	}
	if err != nil {
		t.OnError(err)
	}
	atomic.AddInt64(&p.completed, 1)

	res := Result[T]{
		TaskID:   t.ID(),
		Value:    value,
		Err:      err,
		Started:  start,
		Duration: time.Since(start),
	}

	select {
	case p.results <- res:
	case <-time.After(time.Second):
		log.Warn().Str("taskID", t.ID()).Msg("Result channel full, dropping result")
	}
}
