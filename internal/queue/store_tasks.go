package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"semefo/internal/media"
)

// ErrNotFound is returned when a task id does not exist.
var ErrNotFound = errors.New("queue task not found")

// Enqueue records a pending task for the session and kind. When the same key
// is already pending or processing the existing task is returned and created
// is false.
func (s *Store) Enqueue(ctx context.Context, session media.Session, kind media.Kind, maxAttempts int) (task *Task, created bool, err error) {
	ctx = ensureContext(ctx)
	if err := session.Validate(); err != nil {
		return nil, false, fmt.Errorf("enqueue: %w", err)
	}
	if !kind.Runnable() {
		return nil, false, fmt.Errorf("enqueue: kind %q cannot be queued", kind)
	}
	if maxAttempts < 0 {
		maxAttempts = 0
	}

	var id int64
	err = retryOnBusy(ctx, func() error {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return txErr
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx,
			`SELECT id FROM tasks
             WHERE expediente = ? AND session_id = ? AND kind = ? AND status IN (?, ?)
             LIMIT 1`,
			session.Expediente, session.ID, kind, StatusPending, StatusProcessing,
		)
		switch scanErr := row.Scan(&id); {
		case scanErr == nil:
			created = false
			return tx.Commit()
		case !errors.Is(scanErr, sql.ErrNoRows):
			return scanErr
		}

		now := s.timestamp()
		res, execErr := tx.ExecContext(ctx,
			`INSERT INTO tasks (expediente, session_id, kind, status, attempts, max_attempts, next_attempt_at, created_at, updated_at)
             VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
			session.Expediente, session.ID, kind, StatusPending, maxAttempts, now, now, now,
		)
		if execErr != nil {
			return execErr
		}
		if id, execErr = res.LastInsertId(); execErr != nil {
			return execErr
		}
		created = true
		return tx.Commit()
	})
	if err != nil {
		return nil, false, fmt.Errorf("enqueue %s %s: %w", session, kind, err)
	}
	task, err = s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return task, created, nil
}

// GetByID fetches a task by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return task, nil
}

// List returns tasks filtered by status, newest first. No statuses means all.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		args = statusArgs(statuses)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ClaimNext atomically moves the oldest due pending task to processing and
// stamps it with correlationID. It returns nil when nothing is due.
func (s *Store) ClaimNext(ctx context.Context, correlationID string) (*Task, error) {
	ctx = ensureContext(ctx)
	now := s.timestamp()
	var id int64
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE tasks
             SET status = ?, attempts = attempts + 1, started_at = ?, last_heartbeat = ?,
                 updated_at = ?, correlation_id = ?, finished_at = NULL
             WHERE id = (
                 SELECT id FROM tasks
                 WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
                 ORDER BY next_attempt_at, id
                 LIMIT 1
             )
             RETURNING id`,
			StatusProcessing, now, now, now, nullableString(strings.TrimSpace(correlationID)),
			StatusPending, now,
		)
		return row.Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next task: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Remove deletes a task that is not currently processing.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks WHERE id = ? AND status != ?`, id, StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("remove task %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
