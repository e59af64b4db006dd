package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned by Submit when the bounded queue is saturated;
// callers should reject the submission rather than block.
var ErrQueueFull = errors.New("job queue is full")

// Task is one queued batch.
type Task struct {
	JobID    string
	Inputs   []Input
	Scale    float64
	TargetMB float64
	WorkDir  string
}

// Pool runs batches on a fixed set of workers over a bounded queue, keeping
// submissions fire-and-forget for the caller while capping concurrency.
// Each job gets its own cancelable context, created at admission so a job
// can be canceled while still queued.
type Pool struct {
	runner *Runner
	queue  chan queuedTask
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	base    context.Context
}

type queuedTask struct {
	Task
	ctx context.Context
}

func NewPool(ctx context.Context, runner *Runner, workers, queueSize int, logger *slog.Logger) *Pool {
	p := &Pool{
		runner:  runner,
		queue:   make(chan queuedTask, queueSize),
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
		base:    ctx,
	}
	for i := 0; i < workers; i++ {
		go p.work(i)
	}
	return p
}

// Submit enqueues a task without blocking. The task is rejected with
// ErrQueueFull when every worker is busy and the queue is at capacity.
func (p *Pool) Submit(t Task) error {
	jobCtx, cancel := context.WithCancel(p.base)

	p.mu.Lock()
	p.cancels[t.JobID] = cancel
	p.mu.Unlock()

	select {
	case p.queue <- queuedTask{Task: t, ctx: jobCtx}:
		return nil
	default:
		p.drop(t.JobID)
		return ErrQueueFull
	}
}

// Cancel stops a queued or running job between items. It reports whether
// the job was known to the pool.
func (p *Pool) Cancel(jobID string) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[jobID]
	p.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (p *Pool) work(id int) {
	for {
		select {
		case <-p.base.Done():
			return
		case t := <-p.queue:
			p.logger.Info("worker picked up batch", "worker", id, "job_id", t.JobID)
			p.runner.Run(t.ctx, t.JobID, t.Inputs, t.Scale, t.TargetMB, t.WorkDir)
			p.drop(t.JobID)
		}
	}
}

func (p *Pool) drop(jobID string) {
	p.mu.Lock()
	cancel, ok := p.cancels[jobID]
	delete(p.cancels, jobID)
	p.mu.Unlock()
	if ok {
		cancel()
	}
}
