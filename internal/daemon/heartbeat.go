package daemon

import (
	"context"
	"os"
	"time"

	"semefo/internal/ledger"
	"semefo/internal/logging"
	"semefo/internal/metrics"
)

// Heartbeater posts worker liveness to the job ledger.
type Heartbeater interface {
	Heartbeat(ctx context.Context, payload ledger.HeartbeatPayload) error
}

func (d *Daemon) heartbeatLoop(ctx context.Context) {
	defer d.wg.Done()
	if d.opts.Ledger == nil {
		return
	}
	interval := time.Duration(d.cfg.Ledger.HeartbeatIntervalSeconds) * time.Second
	if interval <= 0 {
		return
	}
	host, _ := os.Hostname()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failing := false
	for {
		payload := ledger.HeartbeatPayload{
			Worker: d.cfg.Ledger.WorkerName,
			Host:   host,
			Queue:  d.cfg.Dispatch.Subject,
			PID:    os.Getpid(),
			Status: d.heartbeatStatus(ctx),
		}
		err := d.opts.Ledger.Heartbeat(ctx, payload)
		metrics.RecordHeartbeat(err == nil)
		switch {
		case err != nil && ctx.Err() == nil && !failing:
			failing = true
			d.logger.Warn("ledger heartbeat failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_failed"),
				logging.String(logging.FieldErrorHint, "check ledger.base_url and credentials"),
				logging.String(logging.FieldImpact, "worker shown as offline by the ledger"),
			)
		case err == nil && failing:
			failing = false
			d.logger.Info("ledger heartbeat recovered", logging.String(logging.FieldEventType, "heartbeat_recovered"))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Daemon) heartbeatStatus(ctx context.Context) string {
	if d.workflow.Status(ctx).BusyWorkers > 0 {
		return "busy"
	}
	return "idle"
}
