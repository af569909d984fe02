package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/agentflow/internal/observability"
	"github.com/harun/agentflow/internal/tracing"
	"github.com/harun/agentflow/pkg/execctx"
	"github.com/harun/agentflow/pkg/flowerr"
	"github.com/harun/agentflow/pkg/oneshot"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultCapacity is the queue size used when New is given capacity <= 0.
	DefaultCapacity = 100

	tracerName = "agentflow.workerpool"
)

// Option configures a Pool.
type Option func(*Pool)

// WithName labels the pool in logs and metrics.
func WithName(name string) Option {
	return func(p *Pool) {
		if name != "" {
			p.name = name
		}
	}
}

// WithTaskTimeout bounds each task's execution. Zero disables the bound.
func WithTaskTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.taskTimeout = d
		}
	}
}

type job struct {
	ctx      context.Context
	task     Task
	reply    *oneshot.Reply[Result]
	queuedAt time.Time
}

// Pool runs tasks on a fixed number of workers.
type Pool struct {
	name        string
	exec        Executor
	workers     int
	capacity    int
	taskTimeout time.Duration

	queue chan job
	state atomic.Int32

	// mu orders sends against the queue close: Submit holds the read side
	// while sending, Shutdown holds the write side while closing. quit is
	// closed first so senders blocked on a full queue give up the read side.
	mu        sync.RWMutex
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	done      chan struct{}
}

// New starts workers goroutines reading from a queue of the given capacity.
func New(workers, capacity int, exec Executor, opts ...Option) *Pool {
	observability.EnsureRegistered()

	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	p := &Pool{
		name:     "default",
		exec:     exec,
		workers:  workers,
		capacity: capacity,
		queue:    make(chan job, capacity),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	go func() {
		p.wg.Wait()
		p.state.Store(int32(StateStopped))
		close(p.done)
	}()

	log.Info().
		Str("pool", p.name).
		Int("workers", workers).
		Int("capacity", capacity).
		Msg("Worker pool started")

	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int { return p.workers }

// Capacity returns the queue capacity.
func (p *Pool) Capacity() int { return p.capacity }

// State returns the current lifecycle stage.
func (p *Pool) State() State { return State(p.state.Load()) }

// Active reports whether the pool accepts new tasks.
func (p *Pool) Active() bool { return p.State() == StateActive }

// Submit queues task and waits for its result. The returned error is a
// pool-level failure; handler errors are reported in Result.Err.
func (p *Pool) Submit(ctx context.Context, task Task) (Result, error) {
	if task.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return Result{}, flowerr.Execution("workerpool.submit", "failed to generate task id", err)
		}
		task.ID = id
	}

	reply := oneshot.New[Result]()
	if err := p.enqueue(ctx, job{ctx: ctx, task: task, reply: reply, queuedAt: time.Now()}); err != nil {
		return Result{}, err
	}

	res, err := reply.Wait(ctx)
	if errors.Is(err, flowerr.ErrReplyDropped) {
		return Result{}, flowerr.Execution("workerpool.submit",
			fmt.Sprintf("task %s (%s)", task.ID, task.ToolName), flowerr.ErrWorkerDisconnected)
	}
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (p *Pool) enqueue(ctx context.Context, j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.State() != StateActive {
		return flowerr.Execution("workerpool.submit", "", flowerr.ErrPoolShutDown)
	}

	select {
	case p.queue <- j:
		observability.SetPoolQueueDepth(p.name, len(p.queue))
		return nil
	case <-p.quit:
		return flowerr.Execution("workerpool.submit", "", flowerr.ErrPoolShutDown)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitMany submits every task concurrently and returns results in input
// order. A pool-level failure is stored in the failing task's Result.Err.
func (p *Pool) SubmitMany(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			res, err := p.Submit(ctx, task)
			if err != nil {
				res = Result{TaskID: task.ID, ToolName: task.ToolName, Err: err}
			}
			results[i] = res
		}(i, task)
	}
	wg.Wait()

	return results
}

// Shutdown stops intake, lets queued tasks finish, and waits for every
// worker to exit or ctx to end. Repeated calls are safe.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.closeOnce.Do(func() {
		p.state.CompareAndSwap(int32(StateActive), int32(StateDraining))
		close(p.quit)
		p.mu.Lock()
		close(p.queue)
		p.mu.Unlock()
		log.Info().Str("pool", p.name).Msg("Worker pool draining")
	})

	select {
	case <-p.done:
		log.Info().Str("pool", p.name).Msg("Worker pool stopped")
		return nil
	case <-ctx.Done():
		return flowerr.Execution("workerpool.shutdown", "waiting for workers", ctx.Err())
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log.Debug().Str("pool", p.name).Int("worker", id).Msg("Worker started")
	for j := range p.queue {
		observability.SetPoolQueueDepth(p.name, len(p.queue))
		p.run(id, j)
	}
	log.Debug().Str("pool", p.name).Int("worker", id).Msg("Worker exiting")
}

func (p *Pool) run(workerID int, j job) {
	defer j.reply.Drop()

	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithTaskID(ctx, j.task.ID)
	if p.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.taskTimeout)
		defer cancel()
	}
	ctx, span := tracing.StartSpan(ctx, tracerName, "workerpool.task",
		attribute.String("pool", p.name),
		attribute.String("task_id", j.task.ID),
		attribute.String("tool", j.task.ToolName),
	)
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	start := time.Now()
	var err error
	status := "error"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			err = fmt.Errorf("worker panic: %v", r)
			logger.Error().
				Str("pool", p.name).
				Int("worker", workerID).
				Str("tool", j.task.ToolName).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Worker task panicked")
		}
		tracing.EndSpan(span, err)
		observability.RecordPoolTask(p.name, time.Since(start), status)
	}()

	ec := j.task.Context
	if ec == nil {
		ec = execctx.New()
	}

	logger.Debug().
		Int("worker", workerID).
		Str("tool", j.task.ToolName).
		Dur("queued", start.Sub(j.queuedAt)).
		Msg("Worker executing task")

	var value any
	value, err = p.exec.Execute(ctx, j.task.ToolName, j.task.Params, ec)
	if err == nil {
		status = "success"
	}

	j.reply.Send(Result{
		TaskID:   j.task.ID,
		ToolName: j.task.ToolName,
		Value:    value,
		Err:      err,
		Duration: time.Since(start),
	})
}
