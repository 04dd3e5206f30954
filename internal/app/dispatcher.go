package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/certs/internal/ctxutil"
	"github.com/example/certs/internal/ports/secondary"
)

// Task kinds.
const (
	TaskGenerateCertificate       = "certificates.generate"
	TaskSendGrade                 = "credentials.send_grade"
	TaskUpdateCredential          = "credentials.update_certificate"
	TaskModifyCertificateTemplate = "certificates.modify_template"
)

// TaskHandler executes one claimed task.
type TaskHandler func(ctx context.Context, task *secondary.QueuedTask) error

// TaskEnqueuer schedules asynchronous work.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any, orderingKey string, delay time.Duration) (int64, error)
}

// RetryableError asks the dispatcher to re-queue the task with its original
// payload. It consumes an attempt.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return "retryable: " + e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as a RetryableError.
func Retryable(err error) error { return &RetryableError{Err: err} }

// PermanentError fails the task without further attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError.
func Permanent(err error) error { return &PermanentError{Err: err} }

// DispatcherOptions configures the worker pool.
type DispatcherOptions struct {
	Concurrency  int
	MaxRetries   int
	RetryBackoff time.Duration
	PollInterval time.Duration
}

// Dispatcher runs queued tasks through registered handlers.
type Dispatcher struct {
	queue    secondary.TaskQueue
	opts     DispatcherOptions
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
	mu       sync.RWMutex
	handlers map[string]TaskHandler
}

// NewDispatcher creates a dispatcher over the queue.
func NewDispatcher(queue secondary.TaskQueue, opts DispatcherOptions, metrics *Metrics, logger *slog.Logger) *Dispatcher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:    queue,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		handlers: make(map[string]TaskHandler),
	}
}

// Register binds a handler to a task kind.
func (d *Dispatcher) Register(kind string, h TaskHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = h
}

// Enqueue persists a task whose payload is JSON-encoded. Tasks sharing an
// ordering key run one at a time in enqueue order.
func (d *Dispatcher) Enqueue(ctx context.Context, kind string, payload any, orderingKey string, delay time.Duration) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	id, err := d.queue.Enqueue(ctx, &secondary.QueuedTask{
		Kind:        kind,
		Payload:     body,
		OrderingKey: orderingKey,
		RunAt:       d.now().UTC().Add(delay),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s: %w", kind, err)
	}
	d.logger.Debug("task enqueued", "task_id", id, "kind", kind, "ordering_key", orderingKey, "delay", delay)
	return id, nil
}

// RunOnce claims and executes at most one task. It reports whether a task ran.
func (d *Dispatcher) RunOnce(ctx context.Context) (bool, error) {
	task, err := d.queue.Claim(ctx, d.now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to claim task: %w", err)
	}
	if task == nil {
		return false, nil
	}
	return true, d.execute(ctx, task)
}

// Drain runs tasks until none is runnable and returns how many ran.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ran, err := d.RunOnce(ctx)
		if err != nil {
			return n, err
		}
		if !ran {
			return n, nil
		}
		n++
	}
}

// Run starts the configured worker pool and blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.RunWorkers(ctx, d.opts.Concurrency)
}

// RunWorkers starts n workers and blocks until ctx is cancelled.
func (d *Dispatcher) RunWorkers(ctx context.Context, n int) error {
	if n < 1 {
		n = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		worker := i
		g.Go(func() error {
			return d.work(ctx, worker)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Dispatcher) work(ctx context.Context, worker int) error {
	d.logger.Debug("worker started", "worker", worker)
	for {
		ran, err := d.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("worker claim failed", "worker", worker, "error", err)
		}
		if ran {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.opts.PollInterval):
		}
	}
}

// RecoverStale re-queues tasks that have been running for longer than age.
func (d *Dispatcher) RecoverStale(ctx context.Context, age time.Duration) (int64, error) {
	n, err := d.queue.RecoverStale(ctx, d.now().UTC().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale tasks: %w", err)
	}
	if n > 0 {
		d.logger.Warn("recovered stale tasks", "count", n)
	}
	return n, nil
}

// execute runs the handler and records the outcome. Only storage failures
// while recording the outcome are returned.
func (d *Dispatcher) execute(ctx context.Context, task *secondary.QueuedTask) error {
	d.mu.RLock()
	h, ok := d.handlers[task.Kind]
	d.mu.RUnlock()

	var runErr error
	if !ok {
		runErr = Permanent(fmt.Errorf("no handler registered for task kind %q", task.Kind))
	} else {
		runErr = d.invoke(ctxutil.WithSource(ctx, "task:"+task.Kind), h, task)
	}

	log := d.logger.With("task_id", task.ID, "kind", task.Kind, "attempt", task.Attempts)
	if runErr == nil {
		d.metrics.Task(task.Kind, TaskOutcomeDone)
		log.Debug("task done")
		return d.queue.Complete(ctx, task.ID)
	}

	var permanent *PermanentError
	if !errors.As(runErr, &permanent) && task.Attempts <= d.opts.MaxRetries {
		d.metrics.Task(task.Kind, TaskOutcomeRetried)
		log.Warn("task failed, retrying", "error", runErr, "backoff", d.opts.RetryBackoff)
		return d.queue.Retry(ctx, task.ID, d.now().UTC().Add(d.opts.RetryBackoff), runErr.Error())
	}

	d.metrics.Task(task.Kind, TaskOutcomeFailed)
	log.Error("task failed permanently", "error", runErr)
	return d.queue.Fail(ctx, task.ID, runErr.Error())
}

func (d *Dispatcher) invoke(ctx context.Context, h TaskHandler, task *secondary.QueuedTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panicked: %v", r)
		}
	}()
	return h(ctx, task)
}

// decodePayload unmarshals a task payload; malformed payloads are permanent failures.
func decodePayload(task *secondary.QueuedTask, v any) error {
	if err := json.Unmarshal(task.Payload, v); err != nil {
		return Permanent(fmt.Errorf("failed to decode %s payload: %w", task.Kind, err))
	}
	return nil
}

var _ TaskEnqueuer = (*Dispatcher)(nil)
