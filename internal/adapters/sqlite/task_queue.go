package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/certs/internal/ports/secondary"
)

// TaskQueue implements secondary.TaskQueue on the tasks table.
type TaskQueue struct {
	db *sqlx.DB
}

// NewTaskQueue creates a new persistent task queue.
func NewTaskQueue(db *sqlx.DB) *TaskQueue {
	return &TaskQueue{db: db}
}

const taskSelectCols = "id, kind, payload, ordering_key, status, attempts, run_at, claimed_at, last_error, created_at, updated_at"

func scanTask(scanner interface {
	Scan(dest ...any) error
}) (*secondary.QueuedTask, error) {
	var (
		payload   string
		claimedAt sql.NullTime
	)
	task := &secondary.QueuedTask{}
	err := scanner.Scan(
		&task.ID, &task.Kind, &payload, &task.OrderingKey, &task.Status, &task.Attempts,
		&task.RunAt, &claimedAt, &task.LastError, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Payload = []byte(payload)
	if claimedAt.Valid {
		task.ClaimedAt = claimedAt.Time
	}
	return task, nil
}

// Enqueue persists a new task and returns its ID.
func (q *TaskQueue) Enqueue(ctx context.Context, task *secondary.QueuedTask) (int64, error) {
	now := time.Now().UTC()
	runAt := task.RunAt
	if runAt.IsZero() {
		runAt = now
	}

	var id int64
	err := q.db.QueryRowContext(ctx,
		q.db.Rebind(`INSERT INTO tasks (kind, payload, ordering_key, status, attempts, run_at, last_error, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, ?, '', ?, ?) RETURNING id`),
		task.Kind, string(task.Payload), task.OrderingKey, secondary.TaskQueued, runAt.UTC(), now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue task: %w", classify(err))
	}

	task.ID = id
	task.Status = secondary.TaskQueued
	task.RunAt = runAt.UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	return id, nil
}

// claimCandidateSQL selects the oldest runnable task whose ordering key has
// no running task and no earlier queued task.
const claimCandidateSQL = `
	SELECT t.id FROM tasks t
	WHERE t.status = 'queued' AND t.run_at <= ?
	  AND (t.ordering_key = '' OR NOT EXISTS (
		SELECT 1 FROM tasks r WHERE r.ordering_key = t.ordering_key AND r.status = 'running'))
	  AND (t.ordering_key = '' OR NOT EXISTS (
		SELECT 1 FROM tasks e WHERE e.ordering_key = t.ordering_key AND e.status = 'queued' AND e.id < t.id))
	ORDER BY t.run_at ASC, t.id ASC
	LIMIT 1`

// claimUpdateSQL re-checks the running guard so two claimers never hold the same key.
const claimUpdateSQL = `
	UPDATE tasks SET status = 'running', attempts = attempts + 1, claimed_at = ?, updated_at = ?
	WHERE id = ? AND status = 'queued'
	  AND (ordering_key = '' OR NOT EXISTS (
		SELECT 1 FROM tasks r WHERE r.ordering_key = tasks.ordering_key AND r.status = 'running'))`

// Claim marks the next runnable task as running and returns it, or nil.
func (q *TaskQueue) Claim(ctx context.Context, now time.Time) (*secondary.QueuedTask, error) {
	now = now.UTC()
	for attempt := 0; attempt < maxConflictAttempts; attempt++ {
		var id int64
		err := q.db.QueryRowContext(ctx, q.db.Rebind(claimCandidateSQL), now).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find runnable task: %w", classify(err))
		}

		res, err := q.db.ExecContext(ctx, q.db.Rebind(claimUpdateSQL), now, now, id)
		if err != nil {
			return nil, fmt.Errorf("failed to claim task: %w", classify(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			// Another worker claimed it first.
			continue
		}

		row := q.db.QueryRowContext(ctx, q.db.Rebind("SELECT "+taskSelectCols+" FROM tasks WHERE id = ?"), id)
		task, err := scanTask(row)
		if err != nil {
			return nil, fmt.Errorf("failed to load claimed task: %w", err)
		}
		return task, nil
	}
	return nil, nil
}

// Complete marks a running task done.
func (q *TaskQueue) Complete(ctx context.Context, id int64) error {
	return q.finish(ctx, id, secondary.TaskDone, "")
}

// Fail marks a running task failed permanently.
func (q *TaskQueue) Fail(ctx context.Context, id int64, lastError string) error {
	return q.finish(ctx, id, secondary.TaskFailed, lastError)
}

func (q *TaskQueue) finish(ctx context.Context, id int64, newStatus, lastError string) error {
	res, err := q.db.ExecContext(ctx,
		q.db.Rebind("UPDATE tasks SET status = ?, last_error = ?, updated_at = ? WHERE id = ? AND status = 'running'"),
		newStatus, lastError, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark task %s: %w", newStatus, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("running task %d: %w", id, secondary.ErrNotFound)
	}
	return nil
}

// Retry puts a running task back in the queue to run at runAt.
func (q *TaskQueue) Retry(ctx context.Context, id int64, runAt time.Time, lastError string) error {
	res, err := q.db.ExecContext(ctx,
		q.db.Rebind("UPDATE tasks SET status = 'queued', run_at = ?, last_error = ?, updated_at = ? WHERE id = ? AND status = 'running'"),
		runAt.UTC(), lastError, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to retry task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("running task %d: %w", id, secondary.ErrNotFound)
	}
	return nil
}

// List returns tasks matching the filters, newest first.
func (q *TaskQueue) List(ctx context.Context, filters secondary.TaskFilters) ([]*secondary.QueuedTask, error) {
	query := "SELECT " + taskSelectCols + " FROM tasks WHERE 1=1"
	args := []any{}

	if filters.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filters.Kind)
	}
	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}

	query += " ORDER BY id DESC"

	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := q.db.QueryContext(ctx, q.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*secondary.QueuedTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// RecoverStale re-queues running tasks claimed before the cutoff.
func (q *TaskQueue) RecoverStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		q.db.Rebind("UPDATE tasks SET status = 'queued', updated_at = ? WHERE status = 'running' AND claimed_at < ?"),
		time.Now().UTC(), claimedBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale tasks: %w", err)
	}
	return res.RowsAffected()
}

var _ secondary.TaskQueue = (*TaskQueue)(nil)
