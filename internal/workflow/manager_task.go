package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"semefo/internal/logging"
	"semefo/internal/metrics"
	"semefo/internal/pipeline"
	"semefo/internal/queue"
	"semefo/internal/services"
)

// RunOnce claims and processes a single due task. It reports false when the
// queue had nothing due.
func (m *Manager) RunOnce(ctx context.Context) (bool, error) {
	requestID := uuid.NewString()
	task, err := m.store.ClaimNext(ctx, requestID)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	m.processTask(ctx, task, requestID)
	return true, nil
}

func (m *Manager) processTask(ctx context.Context, task *queue.Task, requestID string) {
	m.adjustBusy(1)
	defer m.adjustBusy(-1)

	taskCtx := services.WithTaskID(ctx, task.ID)
	taskCtx = services.WithRequestID(taskCtx, requestID)
	taskCtx = services.WithKind(taskCtx, string(task.Kind))
	logger := logging.WithContext(taskCtx, m.logger).With(
		logging.Session(task.Session.Expediente, task.Session.ID),
		logging.Int("attempt", task.Attempts),
	)
	logger.Info("task claimed", logging.String(logging.FieldEventType, "task_claimed"))

	hbCtx, stopHeartbeat := context.WithCancel(taskCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, task.ID)

	started := m.now()
	outcome := m.runner.Run(taskCtx, pipeline.Request{Session: task.Session, Kind: task.Kind})
	elapsed := m.now().Sub(started)

	stopHeartbeat()
	hbWG.Wait()

	recordOutcome(outcome, elapsed)
	if outcome.Derived != nil {
		recordOutcome(*outcome.Derived, 0)
	}

	settleCtx := context.WithoutCancel(taskCtx)
	if err := m.settle(settleCtx, task, outcome); err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(logger, "failed to persist task outcome", "task_settle_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
	if latest, err := m.store.GetByID(settleCtx, task.ID); err == nil {
		m.setLastTask(latest)
	}
}

func (m *Manager) settle(ctx context.Context, task *queue.Task, outcome pipeline.Outcome) error {
	logger := logging.WithContext(ctx, m.logger)
	result := queue.Outcome{
		LastState:    string(outcome.State),
		JobID:        int64(outcome.JobID),
		ArtifactPath: outcome.Artifact.Path,
	}

	if outcome.Succeeded() {
		logger.Info("task completed",
			logging.String(logging.FieldEventType, "task_completed"),
			logging.Int64(logging.FieldJobID, result.JobID),
			logging.String("artifact", result.ArtifactPath),
		)
		if err := m.store.Complete(ctx, task.ID, result); err != nil {
			return err
		}
		m.followUpDerived(ctx, task, outcome.Derived)
		return nil
	}

	result.ErrorKind = outcome.ErrorKind()
	if outcome.Err != nil {
		result.ErrorMessage = outcome.Err.Error()
	}

	switch {
	case errors.Is(outcome.Err, services.ErrBusy):
		next := m.now().Add(m.busyDelay)
		metrics.RecordReschedule("busy")
		logger.Info("task key busy; rescheduled",
			logging.String(logging.FieldEventType, "task_busy"),
			logging.Time("next_attempt_at", next),
		)
		return m.store.Reschedule(ctx, task.ID, next, false, result)
	case m.policy.ShouldRetry(task, outcome.Err):
		delay := m.policy.Backoff(task.Attempts)
		next := m.now().Add(delay)
		metrics.RecordReschedule("retry")
		logging.WarnWithContext(logger, "task failed; retry scheduled", "task_retry_scheduled",
			logging.String(logging.FieldErrorKind, result.ErrorKind),
			logging.Error(outcome.Err),
			logging.Duration("backoff", delay),
			logging.String(logging.FieldImpact, "assembly delayed until the next attempt"),
			logging.String(logging.FieldErrorHint, "no action needed unless retries are exhausted"),
		)
		return m.store.Reschedule(ctx, task.ID, next, true, result)
	default:
		logging.ErrorWithContext(logger, "task failed", "task_failed",
			logging.String(logging.FieldErrorKind, result.ErrorKind),
			logging.Error(outcome.Err),
			logging.String(logging.FieldErrorHint, "inspect the ledger job and run 'semefo queue retry' once fixed"),
		)
		return m.store.Fail(ctx, task.ID, result)
	}
}

// followUpDerived queues a standalone retry for a derived sub-flow that failed
// after its parent succeeded. The parent's fragments are gone, so re-running
// the parent is not a recovery path.
func (m *Manager) followUpDerived(ctx context.Context, task *queue.Task, derived *pipeline.Outcome) {
	if derived == nil || derived.Succeeded() || errors.Is(derived.Err, services.ErrBusy) || !services.Retryable(derived.Err) {
		return
	}
	logger := logging.WithContext(ctx, m.logger)
	queued, created, err := m.store.Enqueue(ctx, task.Session, derived.Kind, task.MaxAttempts)
	if err != nil {
		logging.WarnWithContext(logger, "derived retry not queued", "derived_enqueue_failed",
			logging.String(logging.FieldKind, string(derived.Kind)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the derived artifact stays missing until queued by hand"),
			logging.String(logging.FieldErrorHint, "run 'semefo enqueue' for the derived kind"),
		)
		return
	}
	logger.Info("derived retry queued",
		logging.String(logging.FieldEventType, "derived_retry_queued"),
		logging.String(logging.FieldKind, string(derived.Kind)),
		logging.Int64("task_id", queued.ID),
		logging.Bool("created", created),
	)
}

func recordOutcome(outcome pipeline.Outcome, elapsed time.Duration) {
	errorKind := ""
	if !outcome.Succeeded() {
		errorKind = outcome.ErrorKind()
		if errorKind == "" {
			errorKind = "unknown"
		}
	}
	metrics.RecordRun(string(outcome.Kind), errorKind, elapsed, outcome.Artifact.Size)
}

func (m *Manager) adjustBusy(delta int) {
	m.mu.Lock()
	m.busy += delta
	busy := m.busy
	m.mu.Unlock()
	metrics.WorkersBusy.Set(float64(busy))
}
