package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// StubFFmpeg writes an executable that ignores its inputs and writes size
// zero bytes to its last argument, which is where ffmpeg takes the output.
// It returns the script path.
func StubFFmpeg(t testing.TB, size int64) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "ffmpeg")
	script := fmt.Sprintf("#!/bin/sh\nfor last; do :; done\nhead -c %d /dev/zero > \"$last\"\n", size)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	return path
}
