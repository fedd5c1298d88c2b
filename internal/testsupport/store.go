package testsupport

import (
	"context"
	"testing"

	"semefo/internal/config"
	"semefo/internal/media"
	"semefo/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTask enqueues a task for tests using the provided store.
func NewTask(t testing.TB, store *queue.Store, expediente string, sessionID int64, kind media.Kind) *queue.Task {
	t.Helper()

	task, _, err := store.Enqueue(context.Background(), media.Session{Expediente: expediente, ID: sessionID}, kind, 3)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return task
}
