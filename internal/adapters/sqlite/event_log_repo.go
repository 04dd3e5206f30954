package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/certs/internal/ports/secondary"
)

// EventLogRepository implements secondary.EventLogRepository.
type EventLogRepository struct {
	db *sqlx.DB
}

// NewEventLogRepository creates a new event log repository.
func NewEventLogRepository(db *sqlx.DB) *EventLogRepository {
	return &EventLogRepository{db: db}
}

// Append stores an event with its JSON payload.
func (r *EventLogRepository) Append(ctx context.Context, event secondary.CertificateEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	at := event.Time
	if at.IsZero() {
		at = time.Now()
	}
	_, err = r.db.ExecContext(ctx,
		r.db.Rebind("INSERT INTO certificate_events (signal_name, user_id, course_key, status, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)"),
		event.SignalName, event.User.ID, event.Course.CourseKey, event.CurrentStatus, string(payload), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// List returns stored events, newest first. Empty courseKey lists all courses.
func (r *EventLogRepository) List(ctx context.Context, courseKey string, limit int) ([]*secondary.EventLogRecord, error) {
	query := "SELECT id, signal_name, user_id, course_key, status, payload, created_at FROM certificate_events WHERE 1=1"
	args := []any{}
	if courseKey != "" {
		query += " AND course_key = ?"
		args = append(args, courseKey)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*secondary.EventLogRecord
	for rows.Next() {
		e := &secondary.EventLogRecord{}
		var payload string
		if err := rows.Scan(&e.ID, &e.SignalName, &e.UserID, &e.CourseKey, &e.Status, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Payload = []byte(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountBySignal returns the number of stored events per signal name.
func (r *EventLogRepository) CountBySignal(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT signal_name, COUNT(*) FROM certificate_events GROUP BY signal_name")
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

var _ secondary.EventLogRepository = (*EventLogRepository)(nil)
