package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestRetryOnBusyRetriesLockedDatabase(t *testing.T) {
	calls := 0
	err := retryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retryOnBusy: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryOnBusyGivesUp(t *testing.T) {
	calls := 0
	err := retryOnBusy(context.Background(), func() error {
		calls++
		return fmt.Errorf("insert: %w", errors.New("database is locked"))
	})
	if !isSQLiteBusy(err) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if calls != busyPolicy.MaxAttempts {
		t.Fatalf("expected %d calls, got %d", busyPolicy.MaxAttempts, calls)
	}
}

func TestRetryOnBusyPassesOtherErrors(t *testing.T) {
	calls := 0
	boom := errors.New("constraint failed")
	err := retryOnBusy(context.Background(), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("expected single call returning boom, got %d calls, %v", calls, err)
	}
}

func TestRetryOnBusyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retryOnBusy(ctx, func() error { return errors.New("SQLITE_BUSY") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
