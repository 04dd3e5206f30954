package secondary

import (
	"context"
	"time"
)

// Task statuses.
const (
	TaskQueued  = "queued"
	TaskRunning = "running"
	TaskDone    = "done"
	TaskFailed  = "failed"
)

// TaskQueue defines the secondary port for the persistent task queue.
// Tasks sharing an ordering key are claimed strictly in enqueue order and
// never run concurrently.
type TaskQueue interface {
	// Enqueue persists a new task and returns its ID.
	Enqueue(ctx context.Context, task *QueuedTask) (int64, error)

	// Claim marks the next runnable task as running and returns it.
	// Returns nil when nothing is runnable at now.
	Claim(ctx context.Context, now time.Time) (*QueuedTask, error)

	// Complete marks a running task done.
	Complete(ctx context.Context, id int64) error

	// Retry puts a running task back in the queue to run at runAt.
	Retry(ctx context.Context, id int64, runAt time.Time, lastError string) error

	// Fail marks a running task failed permanently.
	Fail(ctx context.Context, id int64, lastError string) error

	// List returns tasks matching the filters, newest first.
	List(ctx context.Context, filters TaskFilters) ([]*QueuedTask, error)

	// RecoverStale re-queues running tasks claimed before the cutoff.
	// This handles workers that died mid-task.
	RecoverStale(ctx context.Context, claimedBefore time.Time) (int64, error)
}

// QueuedTask is a unit of asynchronous work.
type QueuedTask struct {
	ID          int64
	Kind        string
	Payload     []byte // JSON
	OrderingKey string
	Status      string
	Attempts    int // Incremented on every claim
	RunAt       time.Time
	ClaimedAt   time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskFilters contains filter options for listing tasks.
type TaskFilters struct {
	Kind   string
	Status string
	Limit  int
}
