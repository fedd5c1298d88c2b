package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semefo/internal/assembly"
	"semefo/internal/ledger"
	"semefo/internal/logging"
	"semefo/internal/media"
	"semefo/internal/pipeline"
	"semefo/internal/queue"
	"semefo/internal/services"
	"semefo/internal/testsupport"
	"semefo/internal/workflow"
)

type scriptedRunner struct {
	mu       sync.Mutex
	outcomes []pipeline.Outcome
	requests []pipeline.Request
	taskIDs  []int64
}

func (r *scriptedRunner) Run(ctx context.Context, req pipeline.Request) pipeline.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if id, ok := services.TaskIDFromContext(ctx); ok {
		r.taskIDs = append(r.taskIDs, id)
	}
	if len(r.outcomes) == 0 {
		return done(req.Kind, 1)
	}
	next := r.outcomes[0]
	r.outcomes = r.outcomes[1:]
	if next.Kind == "" {
		next.Kind = req.Kind
	}
	return next
}

func (r *scriptedRunner) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func done(kind media.Kind, job int64) pipeline.Outcome {
	return pipeline.Outcome{
		Kind:     kind,
		State:    pipeline.StateDone,
		JobID:    ledger.JobID(job),
		Artifact: assembly.Artifact{Path: "/storage/archivos/EXP/1/audio/audio.mp4", Size: 2 << 20},
	}
}

func failed(marker error) pipeline.Outcome {
	return pipeline.Outcome{
		State: pipeline.StateFailed,
		JobID: 9,
		Err:   services.Wrap(marker, "pipeline", "test", "scripted failure", nil),
	}
}

func newManager(t *testing.T, runner workflow.Runner, opts ...testsupport.ConfigOption) (*workflow.Manager, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Workflow.QueuePollInterval = 1
	store := testsupport.MustOpenStore(t, cfg)
	return workflow.NewManager(cfg, store, runner, logging.NewNop()), store
}

func TestRunOnceCompletesTask(t *testing.T) {
	runner := &scriptedRunner{outcomes: []pipeline.Outcome{done(media.KindAudio, 42)}}
	mgr, store := newManager(t, runner)
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "EXP09", 3, media.KindAudio)
	processed, err := mgr.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	got, err := store.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, got.Status)
	assert.EqualValues(t, 42, got.JobID)
	assert.Equal(t, "done", got.LastState)
	assert.NotEmpty(t, got.CorrelationID)
	require.Len(t, runner.requests, 1)
	assert.Equal(t, media.Session{Expediente: "EXP09", ID: 3}, runner.requests[0].Session)
	assert.Equal(t, []int64{task.ID}, runner.taskIDs)

	processed, err = mgr.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, processed)

	status := mgr.Status(ctx)
	require.NotNil(t, status.LastTask)
	assert.Equal(t, task.ID, status.LastTask.ID)
	assert.Equal(t, 1, status.QueueStats[queue.StatusCompleted])
}

func TestRetryableFailureIsRescheduled(t *testing.T) {
	runner := &scriptedRunner{outcomes: []pipeline.Outcome{failed(services.ErrNoFragments)}}
	mgr, store := newManager(t, runner)
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "EXP1", 1, media.KindVideo)
	before := time.Now()
	_, err := mgr.RunOnce(ctx)
	require.NoError(t, err)

	got, err := store.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "no_fragments", got.ErrorKind)
	assert.EqualValues(t, 9, got.JobID)
	require.NotNil(t, got.NextAttemptAt)
	assert.True(t, got.NextAttemptAt.After(before.Add(50*time.Second)), "expected backoff, got %s", got.NextAttemptAt)

	processed, err := mgr.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, processed, "task must wait for its backoff window")
}

func TestPermanentFailureIsTerminal(t *testing.T) {
	runner := &scriptedRunner{outcomes: []pipeline.Outcome{failed(services.ErrValidation)}}
	mgr, store := newManager(t, runner)
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "EXP1", 2, media.KindAudio)
	_, err := mgr.RunOnce(ctx)
	require.NoError(t, err)

	got, _ := store.GetByID(ctx, task.ID)
	assert.Equal(t, queue.StatusFailed, got.Status)
	assert.Equal(t, "validation", got.ErrorKind)
	assert.NotNil(t, got.FinishedAt)
}

func TestExhaustedAttemptsFail(t *testing.T) {
	runner := &scriptedRunner{outcomes: []pipeline.Outcome{failed(services.ErrLedger)}}
	mgr, store := newManager(t, runner)
	ctx := context.Background()

	task, _, err := store.Enqueue(ctx, media.Session{Expediente: "EXP2", ID: 1}, media.KindAudio, 1)
	require.NoError(t, err)
	_, err = mgr.RunOnce(ctx)
	require.NoError(t, err)

	got, _ := store.GetByID(ctx, task.ID)
	assert.Equal(t, queue.StatusFailed, got.Status)
	assert.Equal(t, "ledger", got.ErrorKind)
}

func TestBusyKeyDoesNotConsumeAttempt(t *testing.T) {
	runner := &scriptedRunner{outcomes: []pipeline.Outcome{failed(services.ErrBusy)}}
	mgr, store := newManager(t, runner)
	ctx := context.Background()

	task := testsupport.NewTask(t, store, "EXP3", 1, media.KindVideo2)
	_, err := mgr.RunOnce(ctx)
	require.NoError(t, err)

	got, _ := store.GetByID(ctx, task.ID)
	assert.Equal(t, queue.StatusPending, got.Status)
	assert.Equal(t, 0, got.Attempts)
	assert.Equal(t, "busy", got.ErrorKind)
}

func TestStartDrainsQueue(t *testing.T) {
	runner := &scriptedRunner{}
	mgr, store := newManager(t, runner, testsupport.WithWorkers(3))
	ctx := context.Background()

	require.NoError(t, mgr.Start(ctx))
	assert.Equal(t, 3, mgr.Status(ctx).Workers)
	t.Cleanup(mgr.Stop)
	require.Error(t, mgr.Start(ctx), "second start must be rejected")

	testsupport.NewTask(t, store, "EXP4", 1, media.KindAudio)
	testsupport.NewTask(t, store, "EXP4", 1, media.KindVideo)
	mgr.Wake()

	require.Eventually(t, func() bool {
		health, err := store.Health(ctx)
		return err == nil && health.Completed == 2
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, 2, runner.calls())

	mgr.Stop()
	assert.False(t, mgr.Status(ctx).Running)
}

func TestFailedAudio2AfterVideo2IsQueuedOnItsOwn(t *testing.T) {
	video2 := done(media.KindVideo2, 11)
	video2.Derived = &pipeline.Outcome{
		Kind:  media.KindAudio2,
		State: pipeline.StateFailed,
		JobID: 12,
		Err:   services.Wrap(services.ErrVerification, "verified", "size", "audio2.mp4 is 100 bytes", nil),
	}
	runner := &scriptedRunner{outcomes: []pipeline.Outcome{video2}}
	mgr, store := newManager(t, runner)
	ctx := context.Background()

	parent := testsupport.NewTask(t, store, "EXP22", 7, media.KindVideo2)
	processed, err := mgr.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	got, err := store.GetByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusCompleted, got.Status)

	pending, err := store.List(ctx, queue.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, media.KindAudio2, pending[0].Kind)
	assert.Equal(t, parent.Session, pending[0].Session)

	processed, err = mgr.RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	require.Len(t, runner.requests, 2)
	assert.Equal(t, media.KindAudio2, runner.requests[1].Kind)
}

func TestBusyAudio2IsNotQueuedAgain(t *testing.T) {
	video2 := done(media.KindVideo2, 11)
	video2.Derived = &pipeline.Outcome{
		Kind:  media.KindAudio2,
		State: pipeline.StateFailed,
		Err:   services.Wrap(services.ErrBusy, "keylock", "acquire", "audio2 locked", nil),
	}
	mgr, store := newManager(t, &scriptedRunner{outcomes: []pipeline.Outcome{video2}})
	ctx := context.Background()

	testsupport.NewTask(t, store, "EXP22", 8, media.KindVideo2)
	_, err := mgr.RunOnce(ctx)
	require.NoError(t, err)

	pending, err := store.List(ctx, queue.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
