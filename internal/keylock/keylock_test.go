package keylock_test

import (
	"errors"
	"path/filepath"
	"testing"

	"semefo/internal/keylock"
	"semefo/internal/media"
	"semefo/internal/services"
)

func TestTryAcquireIsExclusivePerKey(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "locks")
	first := keylock.New(dir)
	second := keylock.New(dir)
	session := media.Session{Expediente: "EXP-09", ID: 1}

	release, err := first.TryAcquire(session, media.KindAudio)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := second.TryAcquire(session, media.KindAudio); !errors.Is(err, services.ErrBusy) {
		t.Fatalf("expected busy, got %v", err)
	}

	otherRelease, err := second.TryAcquire(session, media.KindVideo)
	if err != nil {
		t.Fatalf("distinct kind should not contend: %v", err)
	}
	otherRelease()

	release()
	again, err := second.TryAcquire(session, media.KindAudio)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()
}

func TestPath(t *testing.T) {
	l := keylock.New("/state/locks")
	got := l.Path(media.Session{Expediente: "EXP-09", ID: 12}, media.KindVideo2)
	if got != "/state/locks/EXP-09_12_video2.lock" {
		t.Fatalf("unexpected path %q", got)
	}
}
