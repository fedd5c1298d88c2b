package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"semefo/internal/config"
	"semefo/internal/deps"
	"semefo/internal/logging"
	"semefo/internal/media"
	"semefo/internal/preflight"
	"semefo/internal/queue"
	"semefo/internal/staging"
	"semefo/internal/workflow"
)

const sweepInterval = time.Hour

// Options carries the optional collaborators of a daemon.
type Options struct {
	// Ledger receives worker heartbeats. Nil disables them.
	Ledger Heartbeater
	// Probes are pinged during startup preflight.
	Probes preflight.Probes
}

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	opts     Options
	layout   media.Layout

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running   atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	StorageRoot  string
	APIAddress   string
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, opts Options) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	lockPath := cfg.DaemonLockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		opts:     opts,
		layout:   media.NewLayout(cfg.Paths.StorageRoot),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches workers, the API server and
// the maintenance loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another semefo daemon instance is already running")
	}

	if reset, err := d.store.ResetStuckProcessing(ctx); err != nil {
		d.logger.Warn("failed to reset interrupted tasks",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_reset_failed"),
			logging.String(logging.FieldErrorHint, "run semefo queue health"),
			logging.String(logging.FieldImpact, "interrupted tasks stay in processing until reclaimed"),
		)
	} else if reset > 0 {
		d.logger.Info("reset interrupted tasks",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "queue_reset"),
		)
	}
	d.runPreflight(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.workflow.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.startedAt = time.Now()
	d.running.Store(true)

	d.wg.Add(2)
	go d.heartbeatLoop(runCtx)
	go d.sweepLoop(runCtx)

	d.logger.Info("semefo daemon started",
		logging.String("lock", d.lockPath),
		logging.String("storage_root", d.cfg.Paths.StorageRoot),
		logging.String("api", d.api.address()),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.workflow.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
			logging.String(logging.FieldImpact, "next start may report another instance"),
		)
	}
	d.running.Store(false)
	d.logger.Info("semefo daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

func (d *Daemon) runPreflight(ctx context.Context) {
	results := preflight.RunAll(ctx, d.cfg, d.opts.Probes)
	for _, result := range results {
		if result.Passed {
			d.logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String(logging.FieldErrorHint, "run semefo status for details"),
			logging.String(logging.FieldImpact, "tasks may fail until the check passes"),
		)
	}
	if missing := deps.MissingRequired(preflight.CheckSystemDeps(d.cfg)); len(missing) > 0 {
		d.logger.Warn("required tools missing",
			logging.Any("tools", missing),
			logging.String(logging.FieldEventType, "dependency_missing"),
			logging.String(logging.FieldErrorHint, "install ffmpeg or set assembly.ffmpeg_binary"),
			logging.String(logging.FieldImpact, "assembly tasks will fail"),
		)
	}
}

func (d *Daemon) sweepLoop(ctx context.Context) {
	defer d.wg.Done()
	maxAge := time.Duration(d.cfg.Workflow.StaleTempHours) * time.Hour
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		result := staging.CleanStale(ctx, d.layout, maxAge, d.logger)
		if len(result.Removed) > 0 || len(result.Errors) > 0 {
			d.logger.Info("stale leftover sweep finished",
				logging.Int("removed", len(result.Removed)),
				logging.Int("errors", len(result.Errors)),
				logging.String(logging.FieldEventType, "staging_sweep"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Enqueue records a task and wakes an idle worker.
func (d *Daemon) Enqueue(ctx context.Context, session media.Session, kind media.Kind) (*queue.Task, bool, error) {
	task, created, err := d.store.Enqueue(ctx, session, kind, d.cfg.Queue.MaxAttempts)
	if err != nil {
		return nil, false, err
	}
	if created {
		d.workflow.Wake()
	}
	return task, created, nil
}

// ListQueue returns queue tasks filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Task, error) {
	return d.store.List(ctx, statuses...)
}

// ClearQueue removes every task that is not processing.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed tasks.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed tasks.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// RetryFailed resets failed tasks (optionally a subset) back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	count, err := d.store.RetryFailed(ctx, ids...)
	if err == nil && count > 0 {
		d.workflow.Wake()
	}
	return count, err
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    d.startedAt,
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		StorageRoot:  d.cfg.Paths.StorageRoot,
		APIAddress:   d.api.address(),
		Dependencies: preflight.CheckSystemDeps(d.cfg),
	}
}
