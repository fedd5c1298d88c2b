package queue_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"semefo/internal/media"
	"semefo/internal/queue"
	"semefo/internal/services"
	"semefo/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if store.Path() != cfg.QueueDBPath() {
		t.Fatalf("unexpected db path %q", store.Path())
	}
	if _, err := os.Stat(cfg.QueueDBPath()); err != nil {
		t.Fatalf("expected database file: %v", err)
	}

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if len(health.MissingColumns) != 0 {
		t.Fatalf("unexpected missing columns: %v", health.MissingColumns)
	}
	if health.SchemaVersion != "1" {
		t.Fatalf("unexpected schema version %q", health.SchemaVersion)
	}

	store.Close()
	reopened, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	reopened.Close()
}

func TestEnqueueDeduplicatesActiveKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	session := media.Session{Expediente: "EXP09", ID: 3}

	first, created, err := store.Enqueue(ctx, session, media.KindAudio, 3)
	if err != nil || !created {
		t.Fatalf("first enqueue: created=%v err=%v", created, err)
	}
	second, created, err := store.Enqueue(ctx, session, media.KindAudio, 3)
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected existing task %d, got %d created=%v", first.ID, second.ID, created)
	}

	video, created, err := store.Enqueue(ctx, session, media.KindVideo, 3)
	if err != nil || !created || video.ID == first.ID {
		t.Fatalf("expected distinct task for another kind: %+v created=%v err=%v", video, created, err)
	}

	claimed, err := store.ClaimNext(ctx, "req-1")
	if err != nil || claimed == nil || claimed.ID != first.ID {
		t.Fatalf("claim: %+v %v", claimed, err)
	}
	if _, created, _ := store.Enqueue(ctx, session, media.KindAudio, 3); created {
		t.Fatal("expected processing task to block a duplicate")
	}
	if err := store.Complete(ctx, claimed.ID, queue.Outcome{LastState: "done", JobID: 7, ArtifactPath: "archivos/EXP09/3/audio/audio.mp4"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	again, created, err := store.Enqueue(ctx, session, media.KindAudio, 3)
	if err != nil || !created || again.ID == first.ID {
		t.Fatalf("expected new task after completion: %+v created=%v err=%v", again, created, err)
	}
}

func TestEnqueueRejectsInvalidInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, _, err := store.Enqueue(ctx, media.Session{Expediente: "../x", ID: 1}, media.KindAudio, 1); err == nil {
		t.Fatal("expected invalid expediente to be rejected")
	}
	if _, _, err := store.Enqueue(ctx, media.Session{Expediente: "EXP", ID: 1}, media.KindTranscription, 1); err == nil {
		t.Fatal("expected transcription to be rejected")
	}
	if _, created, err := store.Enqueue(ctx, media.Session{Expediente: "EXP", ID: 1}, media.KindAudio2, 1); err != nil || !created {
		t.Fatalf("audio2 extraction should queue, got created=%v err=%v", created, err)
	}
}

func TestClaimNextLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if task, err := store.ClaimNext(ctx, "none"); err != nil || task != nil {
		t.Fatalf("expected empty queue, got %+v %v", task, err)
	}

	created := testsupport.NewTask(t, store, "EXP1", 1, media.KindAudio)
	claimed, err := store.ClaimNext(ctx, "req-abc")
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if claimed.ID != created.ID || claimed.Status != queue.StatusProcessing {
		t.Fatalf("unexpected claim: %+v", claimed)
	}
	if claimed.Attempts != 1 || claimed.CorrelationID != "req-abc" {
		t.Fatalf("expected attempt and correlation id, got %+v", claimed)
	}
	if claimed.StartedAt == nil || claimed.LastHeartbeat == nil {
		t.Fatalf("expected start and heartbeat stamps: %+v", claimed)
	}
	if next, _ := store.ClaimNext(ctx, "other"); next != nil {
		t.Fatalf("expected no second claim, got %+v", next)
	}

	if err := store.Fail(ctx, claimed.ID, queue.Outcome{LastState: "failed", JobID: 5, ErrorKind: "verification", ErrorMessage: "too small"}); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	failed, err := store.GetByID(ctx, claimed.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if failed.Status != queue.StatusFailed || failed.ErrorKind != "verification" || failed.JobID != 5 || failed.FinishedAt == nil {
		t.Fatalf("unexpected failed task: %+v", failed)
	}
}

func TestRescheduleHonoursBackoffWindow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	testsupport.NewTask(t, store, "EXP2", 4, media.KindVideo)
	claimed, err := store.ClaimNext(ctx, "r1")
	if err != nil || claimed == nil {
		t.Fatalf("claim: %+v %v", claimed, err)
	}
	if err := store.Reschedule(ctx, claimed.ID, now.Add(time.Minute), true, queue.Outcome{ErrorKind: "timeout", ErrorMessage: "slow"}); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	if task, _ := store.ClaimNext(ctx, "r2"); task != nil {
		t.Fatalf("expected task to wait for its backoff window, got %+v", task)
	}
	now = now.Add(2 * time.Minute)
	task, err := store.ClaimNext(ctx, "r3")
	if err != nil || task == nil {
		t.Fatalf("expected task due after backoff: %+v %v", task, err)
	}
	if task.Attempts != 2 || task.ErrorKind != "timeout" {
		t.Fatalf("unexpected task after retry claim: %+v", task)
	}

	if err := store.Reschedule(ctx, task.ID, now, false, queue.Outcome{ErrorKind: "busy"}); err != nil {
		t.Fatalf("Reschedule busy: %v", err)
	}
	busy, _ := store.GetByID(ctx, task.ID)
	if busy.Attempts != 1 || busy.Status != queue.StatusPending {
		t.Fatalf("expected busy run to be refunded, got %+v", busy)
	}
}

func TestHeartbeatReclaimAndReset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	testsupport.NewTask(t, store, "EXP3", 1, media.KindAudio)
	testsupport.NewTask(t, store, "EXP3", 1, media.KindVideo)
	stale, _ := store.ClaimNext(ctx, "a")
	now = now.Add(5 * time.Minute)
	fresh, _ := store.ClaimNext(ctx, "b")
	if err := store.UpdateHeartbeat(ctx, fresh.ID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}

	reclaimed, err := store.ReclaimStaleProcessing(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected one reclaimed task, got %d", reclaimed)
	}
	if task, _ := store.GetByID(ctx, stale.ID); task.Status != queue.StatusPending {
		t.Fatalf("expected stale task pending, got %s", task.Status)
	}
	if task, _ := store.GetByID(ctx, fresh.ID); task.Status != queue.StatusProcessing {
		t.Fatalf("expected fresh task to stay processing, got %s", task.Status)
	}

	reset, err := store.ResetStuckProcessing(ctx)
	if err != nil || reset != 1 {
		t.Fatalf("ResetStuckProcessing: %d %v", reset, err)
	}
	task, _ := store.GetByID(ctx, fresh.ID)
	if task.Status != queue.StatusPending || task.Attempts != 0 || task.ErrorMessage != queue.DaemonStopReason {
		t.Fatalf("unexpected reset task: %+v", task)
	}
}

func TestRetryFailedRevivesNewestOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	failTask := func() int64 {
		t.Helper()
		testsupport.NewTask(t, store, "EXP4", 2, media.KindAudio)
		task, err := store.ClaimNext(ctx, "x")
		if err != nil || task == nil {
			t.Fatalf("claim: %+v %v", task, err)
		}
		if err := store.Fail(ctx, task.ID, queue.Outcome{ErrorKind: "no_fragments"}); err != nil {
			t.Fatalf("Fail: %v", err)
		}
		return task.ID
	}
	older := failTask()
	newer := failTask()

	revived, err := store.RetryFailed(ctx)
	if err != nil || revived != 1 {
		t.Fatalf("RetryFailed: %d %v", revived, err)
	}
	if task, _ := store.GetByID(ctx, newer); task.Status != queue.StatusPending || task.Attempts != 0 {
		t.Fatalf("expected newest failure pending, got %+v", task)
	}
	if task, _ := store.GetByID(ctx, older); task.Status != queue.StatusFailed {
		t.Fatalf("expected older failure to stay failed, got %s", task.Status)
	}

	revived, err = store.RetryFailed(ctx, older)
	if err != nil || revived != 0 {
		t.Fatalf("expected active key to block retry, got %d %v", revived, err)
	}
}

func TestStatsListAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewTask(t, store, "EXP5", 1, media.KindAudio)
	testsupport.NewTask(t, store, "EXP5", 1, media.KindVideo)
	claimed, _ := store.ClaimNext(ctx, "r")
	if claimed.ID != a.ID {
		t.Fatalf("expected oldest task first, got %d", claimed.ID)
	}
	if err := store.Complete(ctx, a.ID, queue.Outcome{LastState: "done"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 2 || health.Completed != 1 || health.Pending != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}

	pending, err := store.List(ctx, queue.StatusPending)
	if err != nil || len(pending) != 1 || pending[0].Kind != media.KindVideo {
		t.Fatalf("unexpected pending list: %+v %v", pending, err)
	}
	all, _ := store.List(ctx)
	if len(all) != 2 || all[0].ID < all[1].ID {
		t.Fatalf("expected newest first, got %+v", all)
	}

	removed, err := store.ClearCompleted(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("ClearCompleted: %d %v", removed, err)
	}
	if _, err := store.GetByID(ctx, a.ID); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	removed, err = store.Clear(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("Clear: %d %v", removed, err)
	}
}

func TestRetryPolicy(t *testing.T) {
	policy := queue.RetryPolicy{MaxAttempts: 3, Base: time.Minute, Max: 5 * time.Minute}

	for attempt, want := range map[int]time.Duration{
		1: time.Minute,
		2: 2 * time.Minute,
		3: 4 * time.Minute,
		4: 5 * time.Minute,
		9: 5 * time.Minute,
	} {
		if got := policy.Backoff(attempt); got != want {
			t.Fatalf("Backoff(%d) = %s, want %s", attempt, got, want)
		}
	}

	transient := services.Wrap(services.ErrLedger, "assembling", "create job", "", nil)
	if !policy.ShouldRetry(&queue.Task{Attempts: 1}, transient) {
		t.Fatal("expected ledger failure to retry")
	}
	if policy.ShouldRetry(&queue.Task{Attempts: 3}, transient) {
		t.Fatal("expected exhausted budget to stop retrying")
	}
	if !policy.ShouldRetry(&queue.Task{Attempts: 3, MaxAttempts: 5}, transient) {
		t.Fatal("expected task budget to override policy budget")
	}
	invalid := services.Wrap(services.ErrValidation, "", "", "bad session", nil)
	if policy.ShouldRetry(&queue.Task{Attempts: 1}, invalid) {
		t.Fatal("expected validation failure to be final")
	}
}
