package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/w2-reporter/internal/common"
	"github.com/joseph-ayodele/w2-reporter/internal/entity"
	"github.com/joseph-ayodele/w2-reporter/internal/pipeline"
)

// Processor is the work the queue runs.
type Processor interface {
	Process(ctx context.Context, doc entity.RawDocument) pipeline.Envelope
}

// ProcessorQueue runs documents on a fixed set of workers so that a burst
// of uploads cannot start an unbounded number of pdftotext processes.
type ProcessorQueue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(proc Processor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	if err := job.ctx.Err(); err != nil {
		q.logger.Info("queue.job.abandoned", "worker_id", workerID, "request_id", job.RequestID, "error", err)
		job.result <- pipeline.Envelope{}
		return
	}
	ctx, cancel := context.WithTimeout(job.ctx, q.timeout)
	defer cancel()

	waited := time.Since(job.SubmittedAt)
	env := q.proc.Process(ctx, job.Doc)
	q.logger.Debug("queue.job.done",
		"worker_id", workerID,
		"request_id", job.RequestID,
		"success", env.Success,
		"code", env.ErrorCode(),
		"queued_ms", waited.Milliseconds(),
	)
	// result is buffered; the caller may have gone away.
	job.result <- env
}

// Do queues doc and waits for its envelope. When the queue is full it blocks
// until a slot frees up or ctx is done (backpressure).
func (q *ProcessorQueue) Do(ctx context.Context, doc entity.RawDocument) (pipeline.Envelope, error) {
	job := Job{
		Doc:         doc,
		SubmittedAt: time.Now(),
		RequestID:   common.RequestIDFromContext(ctx),
		ctx:         ctx,
		result:      make(chan pipeline.Envelope, 1),
	}

	if err := q.enqueue(ctx, job); err != nil {
		return pipeline.Envelope{}, err
	}

	select {
	case env := <-job.result:
		return env, nil
	case <-ctx.Done():
		return pipeline.Envelope{}, ctx.Err()
	}
}

func (q *ProcessorQueue) enqueue(ctx context.Context, job Job) error {
	// Read lock: many producers may send, Shutdown takes the write lock
	// before closing the channel.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "request_id", job.RequestID)
		return ErrClosed
	}
	select {
	case q.ch <- job:
		return nil
	default:
	}

	q.logger.Warn("queue full, applying backpressure", "request_id", job.RequestID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
