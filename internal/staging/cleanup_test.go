package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"semefo/internal/logging"
	"semefo/internal/media"
)

func age(t *testing.T, path string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func write(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCleanStaleMissingRoot(t *testing.T) {
	layout := media.NewLayout(filepath.Join(t.TempDir(), "missing"))
	result := CleanStale(context.Background(), layout, time.Hour, logging.NewNop())
	if len(result.Removed) != 0 || len(result.Errors) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestCleanStaleRemovesOnlyOldLeftovers(t *testing.T) {
	layout := media.NewLayout(t.TempDir())
	session := media.Session{Expediente: "EXP1", ID: 2}

	stagingDir := layout.Video2StagingDir(session)
	write(t, filepath.Join(stagingDir, "000.mp4"), 10)
	age(t, stagingDir, 48*time.Hour)

	oldManifest := layout.ManifestPath(session, media.KindAudio)
	write(t, oldManifest, 5)
	age(t, oldManifest, 48*time.Hour)

	oldPartial := filepath.Join(layout.OutputDir(session, media.KindAudio), partialPrefix+"audio.mp4")
	write(t, oldPartial, 5)
	age(t, oldPartial, 48*time.Hour)

	freshPartial := filepath.Join(layout.OutputDir(session, media.KindVideo), partialPrefix+"video.webm")
	write(t, freshPartial, 5)

	artifact := layout.OutputPath(session, media.KindAudio)
	write(t, artifact, 100)
	age(t, artifact, 48*time.Hour)

	leftovers, err := ListLeftovers(context.Background(), layout)
	if err != nil {
		t.Fatalf("ListLeftovers: %v", err)
	}
	if len(leftovers) != 4 {
		t.Fatalf("expected 4 leftovers, got %+v", leftovers)
	}

	result := CleanStale(context.Background(), layout, 24*time.Hour, logging.NewNop())
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Removed) != 3 {
		t.Fatalf("expected 3 removals, got %v", result.Removed)
	}
	for _, gone := range []string{stagingDir, oldManifest, oldPartial} {
		if _, err := os.Stat(gone); !os.IsNotExist(err) {
			t.Errorf("expected %s removed", gone)
		}
	}
	for _, kept := range []string{freshPartial, artifact} {
		if _, err := os.Stat(kept); err != nil {
			t.Errorf("expected %s kept: %v", kept, err)
		}
	}
}

func TestListLeftoversReportsStagingSize(t *testing.T) {
	layout := media.NewLayout(t.TempDir())
	session := media.Session{Expediente: "EXP3", ID: 1}
	dir := layout.Video2StagingDir(session)
	write(t, filepath.Join(dir, "a.mp4"), 100)
	write(t, filepath.Join(dir, "b.mp4"), 50)

	leftovers, err := ListLeftovers(context.Background(), layout)
	if err != nil {
		t.Fatalf("ListLeftovers: %v", err)
	}
	if len(leftovers) != 1 || leftovers[0].Kind != "video2_staging" || leftovers[0].Size != 150 {
		t.Fatalf("unexpected leftovers: %+v", leftovers)
	}
}
