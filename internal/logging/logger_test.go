package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"semefo/internal/config"
	"semefo/internal/logging"
	"semefo/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("worker ready")

	content := readLog(t, filepath.Join(cfg.Paths.LogDir, "semefo.log"))
	if !strings.Contains(content, "worker ready") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger = logging.NewComponentLogger(logger, "pipeline")
	logger.Info("assembly finished", logging.String(logging.FieldKind, "audio"), logging.Int64("bytes", 2048))
	logger.Debug("hidden")

	content := readLog(t, logPath)
	if !strings.Contains(content, "INFO pipeline: assembly finished [audio] bytes=2048") {
		t.Fatalf("unexpected console line %q", content)
	}
	if strings.Contains(content, "hidden") {
		t.Fatal("debug line should be filtered at info level")
	}
	if strings.Contains(content, "\x1b[") {
		t.Fatal("file output must not carry ANSI colour codes")
	}
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerQuotesValuesWithSpaces(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "quoted.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("ledger call failed", logging.Error(errors.New("connection refused by peer")))

	content := readLog(t, logPath)
	if !strings.Contains(content, `error="connection refused by peer"`) {
		t.Fatalf("expected quoted error, got %q", content)
	}
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithTaskID(context.Background(), 7)
	ctx = services.WithStage(ctx, "scanning")
	ctx = services.WithKind(ctx, "video2")
	ctx = services.WithRequestID(ctx, "req-1")
	logging.WithContext(ctx, logger).Info("scan started")

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry["msg"] != "scan started" || entry["level"] != "info" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry[logging.FieldTaskID] != float64(7) {
		t.Fatalf("expected task id, got %v", entry[logging.FieldTaskID])
	}
	if entry[logging.FieldStage] != "scanning" || entry[logging.FieldKind] != "video2" {
		t.Fatalf("expected stage and kind, got %v", entry)
	}
	if entry[logging.FieldCorrelationID] != "req-1" {
		t.Fatalf("expected correlation id, got %v", entry)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "dispatch skipped", "dispatch_skipped", logging.String(logging.FieldImpact, "transcription delayed"))

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry[logging.FieldEventType] != "dispatch_skipped" {
		t.Fatalf("missing event type: %v", entry)
	}
	if entry[logging.FieldImpact] != "transcription delayed" {
		t.Fatalf("caller impact should win: %v", entry)
	}
	if entry[logging.FieldErrorHint] == nil {
		t.Fatalf("expected default error hint: %v", entry)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleLoggerTagsSession(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "session.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.With(logging.Session("EXP-1", 4)).Info("task claimed", logging.String(logging.FieldKind, "video2"), logging.Int("attempt", 2))

	content := readLog(t, logPath)
	if !strings.Contains(content, "task claimed [EXP-1/4 video2] attempt=2") {
		t.Fatalf("expected session tag, got %q", content)
	}
}

func TestWithContextFeedsConsoleTag(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if got := logging.WithContext(context.Background(), logger); got != logger {
		t.Fatal("a context without fields should return the logger unchanged")
	}

	ctx := services.WithKind(services.WithTaskID(context.Background(), 12), "audio2")
	logging.WithContext(ctx, logger).With(logging.Session("EXP-5", 9)).Info("extraction started")

	content := readLog(t, logPath)
	if !strings.Contains(content, "extraction started [EXP-5/9 audio2] task_id=12") {
		t.Fatalf("expected context fields on the console line, got %q", content)
	}
}
