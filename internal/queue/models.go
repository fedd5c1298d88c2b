package queue

import (
	"strings"
	"time"

	"semefo/internal/media"
)

// Status represents the lifecycle of a queue task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DaemonStopReason is the error message recorded when shutdown interrupts a task.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalTasks       int
	Error            string
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}

// Task is one persisted assembly request.
type Task struct {
	ID            int64
	Session       media.Session
	Kind          media.Kind
	Status        Status
	Attempts      int
	MaxAttempts   int
	NextAttemptAt *time.Time
	LastState     string
	JobID         int64
	ArtifactPath  string
	ErrorKind     string
	ErrorMessage  string
	CorrelationID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	LastHeartbeat *time.Time
}

// Key returns the deduplication key of the task.
func (t *Task) Key() string {
	return t.Session.String() + "/" + string(t.Kind)
}

// Outcome is what a worker reports back when a task finishes.
type Outcome struct {
	LastState    string
	JobID        int64
	ArtifactPath string
	ErrorKind    string
	ErrorMessage string
}
