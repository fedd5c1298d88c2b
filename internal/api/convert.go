package api

import (
	"time"

	"semefo/internal/queue"
	"semefo/internal/workflow"
)

// FromQueueTask converts a queue record to its API representation.
func FromQueueTask(task *queue.Task) QueueTask {
	if task == nil {
		return QueueTask{}
	}
	return QueueTask{
		ID:            task.ID,
		Expediente:    task.Session.Expediente,
		SessionID:     task.Session.ID,
		Kind:          string(task.Kind),
		Status:        string(task.Status),
		Attempts:      task.Attempts,
		MaxAttempts:   task.MaxAttempts,
		LastState:     task.LastState,
		JobID:         task.JobID,
		ArtifactPath:  task.ArtifactPath,
		ErrorKind:     task.ErrorKind,
		ErrorMessage:  task.ErrorMessage,
		CorrelationID: task.CorrelationID,
		NextAttemptAt: formatOptional(task.NextAttemptAt),
		CreatedAt:     formatTime(task.CreatedAt),
		UpdatedAt:     formatTime(task.UpdatedAt),
		StartedAt:     formatOptional(task.StartedAt),
		FinishedAt:    formatOptional(task.FinishedAt),
	}
}

// FromQueueTasks converts a slice of queue records into API DTOs.
func FromQueueTasks(tasks []*queue.Task) []QueueTask {
	if len(tasks) == 0 {
		return nil
	}
	out := make([]QueueTask, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, FromQueueTask(task))
	}
	return out
}

// FromStatusSummary converts workflow diagnostics into the API shape.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:     summary.Running,
		Workers:     summary.Workers,
		BusyWorkers: summary.BusyWorkers,
		QueueStats:  MergeQueueStats(summary.QueueStats),
		LastError:   summary.LastError,
	}
	if summary.LastTask != nil {
		task := FromQueueTask(summary.LastTask)
		status.LastTask = &task
	}
	return status
}

// MergeQueueStats returns counts for every known status, zero filled.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
