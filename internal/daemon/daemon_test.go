package daemon_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semefo/internal/daemon"
	"semefo/internal/ledger"
	"semefo/internal/logging"
	"semefo/internal/media"
	"semefo/internal/pipeline"
	"semefo/internal/queue"
	"semefo/internal/testsupport"
	"semefo/internal/workflow"
)

type okRunner struct{}

func (okRunner) Run(_ context.Context, req pipeline.Request) pipeline.Outcome {
	return pipeline.Outcome{Kind: req.Kind, State: pipeline.StateDone, JobID: 1}
}

type heartbeatRecorder struct {
	mu       sync.Mutex
	payloads []ledger.HeartbeatPayload
}

func (h *heartbeatRecorder) Heartbeat(_ context.Context, payload ledger.HeartbeatPayload) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payloads = append(h.payloads, payload)
	return nil
}

func (h *heartbeatRecorder) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.payloads)
}

func newDaemon(t *testing.T, hb daemon.Heartbeater) (*daemon.Daemon, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, okRunner{}, logger)
	d, err := daemon.New(cfg, store, logger, mgr, daemon.Options{Ledger: hb})
	require.NoError(t, err)
	t.Cleanup(func() { d.Stop() })
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	hb := &heartbeatRecorder{}
	d, _ := newDaemon(t, hb)
	ctx := context.Background()

	require.NoError(t, d.Start(ctx))
	status := d.Status(ctx)
	assert.True(t, status.Running)
	assert.NotZero(t, status.PID)
	require.NotEmpty(t, status.APIAddress)

	resp, err := http.Get("http://" + status.APIAddress + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Error(t, d.Start(ctx), "second start should fail")

	require.Eventually(t, func() bool { return hb.count() > 0 }, 5*time.Second, 20*time.Millisecond)
	hb.mu.Lock()
	first := hb.payloads[0]
	hb.mu.Unlock()
	assert.Equal(t, "semefo-worker", first.Worker)
	assert.NotZero(t, first.PID)

	d.Stop()
	assert.False(t, d.Status(ctx).Running)
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	ctx := context.Background()

	first, err := daemon.New(cfg, store, logger, workflow.NewManager(cfg, store, okRunner{}, logger), daemon.Options{})
	require.NoError(t, err)
	require.NoError(t, first.Start(ctx))
	t.Cleanup(first.Stop)

	second, err := daemon.New(cfg, store, logger, workflow.NewManager(cfg, store, okRunner{}, logger), daemon.Options{})
	require.NoError(t, err)
	err = second.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestDaemonResetsInterruptedTasksAndDrainsQueue(t *testing.T) {
	d, store := newDaemon(t, nil)
	ctx := context.Background()

	stuck := testsupport.NewTask(t, store, "EXP1", 1, media.KindAudio)
	_, err := store.ClaimNext(ctx, "crashed-run")
	require.NoError(t, err)

	require.NoError(t, d.Start(ctx))

	queued, created, err := d.Enqueue(ctx, media.Session{Expediente: "EXP1", ID: 1}, media.KindVideo)
	require.NoError(t, err)
	assert.True(t, created)

	require.Eventually(t, func() bool {
		for _, id := range []int64{stuck.ID, queued.ID} {
			task, err := store.GetByID(ctx, id)
			if err != nil || task.Status != queue.StatusCompleted {
				return false
			}
		}
		return true
	}, 10*time.Second, 25*time.Millisecond)

	health, err := d.QueueHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, health.Completed)

	completed, err := d.ListQueue(ctx, []queue.Status{queue.StatusCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	removed, err := d.ClearQueue(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)
	remaining, err := d.ListQueue(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
