package deps

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"semefo/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Optional", Command: "another-missing-binary", Optional: true},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[3].Detail != "command not configured" {
		t.Fatalf("unexpected blank detail: %q", results[3].Detail)
	}

	missing := MissingRequired(results)
	if len(missing) != 2 || missing[0] != "Missing" || missing[1] != "Blank" {
		t.Fatalf("unexpected missing list: %v", missing)
	}
}

func TestAssemblyRequirementsFollowProbeSetting(t *testing.T) {
	cfg := config.Default()
	reqs := AssemblyRequirements(&cfg)
	if reqs[0].Command != "ffmpeg" || reqs[0].Optional {
		t.Fatalf("unexpected ffmpeg requirement: %#v", reqs[0])
	}
	if !reqs[1].Optional {
		t.Fatal("expected ffprobe optional when probing is disabled")
	}
	cfg.Assembly.ProbeOutput = true
	if AssemblyRequirements(&cfg)[1].Optional {
		t.Fatal("expected ffprobe required when probing is enabled")
	}
}

func TestCheckFFmpegVersion(t *testing.T) {
	stub := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\necho 'ffmpeg version 6.1.1 Copyright (c) 2000-2023'\necho 'built with gcc'\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	line, err := CheckFFmpegVersion(context.Background(), stub)
	if err != nil {
		t.Fatalf("CheckFFmpegVersion: %v", err)
	}
	if !strings.HasPrefix(line, "ffmpeg version 6.1.1") {
		t.Fatalf("unexpected version line %q", line)
	}

	if _, err := CheckFFmpegVersion(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing binary")
	}
}
