package workflow

import (
	"context"
	"errors"
	"time"

	"semefo/internal/logging"
	"semefo/internal/metrics"
	"semefo/internal/queue"
)

const errorRetryInterval = 5 * time.Second

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.runner == nil {
		m.mu.Unlock()
		return errors.New("workflow runner not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers + 1)
	m.mu.Unlock()

	m.logger.Info("workflow started",
		logging.Int("workers", m.workers),
		logging.Duration("poll_interval", m.pollInterval),
		logging.String(logging.FieldEventType, "workflow_start"),
	)
	for i := range m.workers {
		go m.runWorker(runCtx, i+1)
	}
	go m.runMaintenance(runCtx)
	return nil
}

// Stop terminates background processing and waits for in-flight tasks.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stop"))
}

func (m *Manager) runWorker(ctx context.Context, worker int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", worker))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := m.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logging.ErrorWithContext(logger, "failed to fetch next queue task", "queue_fetch_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			m.sleep(ctx, errorRetryInterval)
			continue
		}
		if !processed {
			m.waitForTaskOrShutdown(ctx)
		}
	}
}

func (m *Manager) runMaintenance(ctx context.Context) {
	defer m.wg.Done()
	interval := m.heartbeat.heartbeatInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if reclaimed, err := m.heartbeat.ReclaimStaleTasks(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logging.WarnWithContext(m.logger, "reclaim stale processing failed", "heartbeat_reclaim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "stuck tasks may remain in processing"),
			)
		} else if reclaimed > 0 {
			for range reclaimed {
				metrics.RecordReschedule("reclaimed")
			}
			m.Wake()
		}
		m.refreshQueueGauges(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) refreshQueueGauges(ctx context.Context) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Debug("queue stats unavailable", logging.Error(err))
		return
	}
	statuses := queue.AllStatuses()
	names := make([]string, len(statuses))
	counts := make(map[string]int, len(stats))
	for i, status := range statuses {
		names[i] = string(status)
	}
	for status, count := range stats {
		counts[string(status)] = count
	}
	metrics.SetQueueStats(names, counts)
}

func (m *Manager) waitForTaskOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
