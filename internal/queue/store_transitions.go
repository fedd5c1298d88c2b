package queue

import (
	"context"
	"fmt"
	"time"
)

// Complete records a successful run.
func (s *Store) Complete(ctx context.Context, id int64, outcome Outcome) error {
	now := s.timestamp()
	_, err := s.execWithRetry(ctx,
		`UPDATE tasks
         SET status = ?, last_state = ?, job_id = COALESCE(?, job_id), artifact_path = ?,
             error_kind = NULL, error_message = NULL, next_attempt_at = NULL,
             finished_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		StatusCompleted, nullableString(outcome.LastState), nullableInt(outcome.JobID),
		nullableString(outcome.ArtifactPath), now, now, id,
	)
	if err != nil {
		return fmt.Errorf("complete task %d: %w", id, err)
	}
	return nil
}

// Fail records a terminal failure.
func (s *Store) Fail(ctx context.Context, id int64, outcome Outcome) error {
	now := s.timestamp()
	_, err := s.execWithRetry(ctx,
		`UPDATE tasks
         SET status = ?, last_state = ?, job_id = COALESCE(?, job_id),
             error_kind = ?, error_message = ?, next_attempt_at = NULL,
             finished_at = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		StatusFailed, nullableString(outcome.LastState), nullableInt(outcome.JobID),
		nullableString(outcome.ErrorKind), nullableString(outcome.ErrorMessage), now, now, id,
	)
	if err != nil {
		return fmt.Errorf("fail task %d: %w", id, err)
	}
	return nil
}

// Reschedule returns a processing task to pending, due at next. When
// countAttempt is false the claim that started this run is not charged
// against the attempt budget.
func (s *Store) Reschedule(ctx context.Context, id int64, next time.Time, countAttempt bool, outcome Outcome) error {
	refund := 0
	if !countAttempt {
		refund = 1
	}
	now := s.timestamp()
	_, err := s.execWithRetry(ctx,
		`UPDATE tasks
         SET status = ?, attempts = MAX(attempts - ?, 0), next_attempt_at = ?,
             last_state = ?, job_id = COALESCE(?, job_id),
             error_kind = ?, error_message = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ?`,
		StatusPending, refund, formatTime(next),
		nullableString(outcome.LastState), nullableInt(outcome.JobID),
		nullableString(outcome.ErrorKind), nullableString(outcome.ErrorMessage), now, id,
	)
	if err != nil {
		return fmt.Errorf("reschedule task %d: %w", id, err)
	}
	return nil
}

// ResetStuckProcessing returns every processing task to pending. The daemon
// calls it at startup since no worker can own a task yet.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks
         SET status = ?, attempts = MAX(attempts - 1, 0), next_attempt_at = ?,
             last_heartbeat = NULL, error_message = ?, updated_at = ?
         WHERE status = ?`,
		StatusPending, now, DaemonStopReason, now, StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck tasks: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight task.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`UPDATE tasks SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now, now, id, StatusProcessing,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns processing tasks whose heartbeat is older than
// cutoff back to pending so another worker can pick them up.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks
         SET status = ?, next_attempt_at = ?, last_heartbeat = NULL,
             error_message = 'Reclaimed from stale processing', updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending, now, now, StatusProcessing, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed tasks back to pending with a fresh attempt budget.
// No ids means every failed task. Only the newest failed task of a key is
// revived, and not while the key already has an active task.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := s.timestamp()
	query := `UPDATE tasks
        SET status = ?, attempts = 0, next_attempt_at = ?, error_kind = NULL,
            error_message = NULL, finished_at = NULL, updated_at = ?
        WHERE status = ?
          AND NOT EXISTS (
              SELECT 1 FROM tasks active
              WHERE active.expediente = tasks.expediente
                AND active.session_id = tasks.session_id
                AND active.kind = tasks.kind
                AND active.status IN (?, ?)
          )
          AND id = (
              SELECT MAX(latest.id) FROM tasks latest
              WHERE latest.expediente = tasks.expediente
                AND latest.session_id = tasks.session_id
                AND latest.kind = tasks.kind
                AND latest.status = ?
          )`
	args := []any{StatusPending, now, now, StatusFailed, StatusPending, StatusProcessing, StatusFailed}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed tasks: %w", err)
	}
	return res.RowsAffected()
}
