package queue

import (
	"database/sql"
	"errors"
	"time"

	"semefo/internal/media"
)

const taskColumns = "id, expediente, session_id, kind, status, attempts, max_attempts, next_attempt_at, last_state, job_id, artifact_path, error_kind, error_message, correlation_id, created_at, updated_at, started_at, finished_at, last_heartbeat"

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id            int64
		expediente    string
		sessionID     int64
		kind          string
		statusStr     string
		attempts      int
		maxAttempts   int
		nextAttemptAt sql.NullString
		lastState     sql.NullString
		jobID         sql.NullInt64
		artifactPath  sql.NullString
		errorKind     sql.NullString
		errorMessage  sql.NullString
		correlationID sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		startedRaw    sql.NullString
		finishedRaw   sql.NullString
		heartbeatRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&expediente,
		&sessionID,
		&kind,
		&statusStr,
		&attempts,
		&maxAttempts,
		&nextAttemptAt,
		&lastState,
		&jobID,
		&artifactPath,
		&errorKind,
		&errorMessage,
		&correlationID,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:            id,
		Session:       media.Session{Expediente: expediente, ID: sessionID},
		Kind:          media.Kind(kind),
		Status:        Status(statusStr),
		Attempts:      attempts,
		MaxAttempts:   maxAttempts,
		LastState:     lastState.String,
		JobID:         jobID.Int64,
		ArtifactPath:  artifactPath.String,
		ErrorKind:     errorKind.String,
		ErrorMessage:  errorMessage.String,
		CorrelationID: correlationID.String,
		NextAttemptAt: parseNullableTime(nextAttemptAt),
		StartedAt:     parseNullableTime(startedRaw),
		FinishedAt:    parseNullableTime(finishedRaw),
		LastHeartbeat: parseNullableTime(heartbeatRaw),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int64) any {
	if value <= 0 {
		return nil
	}
	return value
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := range count {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return args
}
