package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"semefo/internal/config"
	"semefo/internal/logging"
	"semefo/internal/pipeline"
	"semefo/internal/queue"
)

// Runner executes one pipeline request.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.Outcome
}

// Manager coordinates queue processing across a pool of workers.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	runner       Runner
	logger       *slog.Logger
	policy       queue.RetryPolicy
	pollInterval time.Duration
	busyDelay    time.Duration
	workers      int

	heartbeat *HeartbeatMonitor
	wake      chan struct{}
	now       func() time.Time

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastTask *queue.Task
	busy     int
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, runner Runner, logger *slog.Logger) *Manager {
	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	logger = logging.NewComponentLogger(logger, "workflow")
	poll := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	return &Manager{
		cfg:          cfg,
		store:        store,
		runner:       runner,
		logger:       logger,
		policy:       queue.PolicyFromConfig(cfg),
		pollInterval: poll,
		busyDelay:    poll,
		workers:      workers,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
}

// Wake nudges idle workers to poll the queue immediately.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
