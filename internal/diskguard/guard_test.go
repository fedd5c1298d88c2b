package diskguard

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestCheckSufficientAndInsufficient(t *testing.T) {
	dir := t.TempDir()
	const gb = uint64(1024 * 1024 * 1024)

	low := New(5*gb, WithFreeSpaceFunc(func(string) (uint64, error) { return 2 * gb, nil }))
	report, err := low.Check(dir)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if report.Sufficient {
		t.Fatalf("expected insufficient report, got %+v", report)
	}
	if report.RequiredBytes != 5*gb || report.FreeBytes != 2*gb {
		t.Fatalf("unexpected report %+v", report)
	}

	high := New(5*gb, WithFreeSpaceFunc(func(string) (uint64, error) { return 5 * gb, nil }))
	report, err = high.Check(dir)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !report.Sufficient {
		t.Fatalf("expected exactly-at-threshold to pass, got %+v", report)
	}
}

func TestCheckResolvesMissingPathToAncestor(t *testing.T) {
	dir := t.TempDir()
	var probed string
	guard := New(1, WithFreeSpaceFunc(func(path string) (uint64, error) {
		probed = path
		return 10, nil
	}))
	report, err := guard.Check(filepath.Join(dir, "archivos", "EXP-1", "1"))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if probed != dir || report.Path != dir {
		t.Fatalf("expected probe at %q, got %q", dir, probed)
	}
}

func TestCheckPropagatesProbeErrors(t *testing.T) {
	guard := New(1, WithFreeSpaceFunc(func(string) (uint64, error) { return 0, errors.New("statfs failed") }))
	if _, err := guard.Check(t.TempDir()); err == nil {
		t.Fatal("expected probe error")
	}
}

func TestFreeBytesOnRealFilesystem(t *testing.T) {
	free, err := FreeBytes(t.TempDir())
	if err != nil {
		t.Fatalf("FreeBytes: %v", err)
	}
	if free == 0 {
		t.Fatal("expected some free space on the test filesystem")
	}
}
