package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"semefo/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STORAGE_ROOT", "IS_DOCKER", "MIN_DISK_SPACE_GB", "MODO_PRUEBA_VIDEO",
		"FFMPEG_THREADS", "API_SERVER_URL", "WORKER_CLIENT_ID", "WORKER_CLIENT_SECRET",
		"NATS_URL", "QUEUE_NAME",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantRoot := filepath.Join(tempHome, "semefo", "storage")
	if cfg.Paths.StorageRoot != wantRoot {
		t.Fatalf("unexpected storage root: got %q want %q", cfg.Paths.StorageRoot, wantRoot)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, ".local", "share", "semefo") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.Assembly.Profile != config.ProfileProduction {
		t.Fatalf("expected production profile by default, got %q", cfg.Assembly.Profile)
	}
	if cfg.Disk.MinFreeGB != 5 {
		t.Fatalf("unexpected disk budget: %v", cfg.Disk.MinFreeGB)
	}
	if cfg.MinFreeBytes() != 5*1024*1024*1024 {
		t.Fatalf("unexpected min free bytes: %d", cfg.MinFreeBytes())
	}
	if cfg.Assembly.VideoMinBytes != 500*1024 || cfg.Assembly.Video2MinBytes != 1024*1024 {
		t.Fatalf("unexpected video thresholds: %d %d", cfg.Assembly.VideoMinBytes, cfg.Assembly.Video2MinBytes)
	}
	if cfg.Dispatch.Subject != "transcripciones" {
		t.Fatalf("unexpected dispatch subject: %q", cfg.Dispatch.Subject)
	}
	if cfg.Dispatch.URL != "" {
		t.Fatalf("expected dispatch disabled by default, got %q", cfg.Dispatch.URL)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir, cfg.LockDir(), cfg.Paths.StorageRoot} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "semefo.toml")

	type payload struct {
		Paths struct {
			StorageRoot string `toml:"storage_root"`
			StateDir    string `toml:"state_dir"`
		} `toml:"paths"`
		Ledger struct {
			BaseURL string `toml:"base_url"`
		} `toml:"ledger"`
		Workflow struct {
			Workers int `toml:"workers"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Paths.StorageRoot = filepath.Join(tempDir, "storage")
	custom.Paths.StateDir = filepath.Join(tempDir, "state")
	custom.Ledger.BaseURL = "ledger.local:8000/"
	custom.Workflow.Workers = 4

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config file at %q, got %q exists=%v", configPath, resolved, exists)
	}
	if cfg.Paths.StorageRoot != custom.Paths.StorageRoot {
		t.Fatalf("unexpected storage root: %q", cfg.Paths.StorageRoot)
	}
	if cfg.Ledger.BaseURL != "http://ledger.local:8000" {
		t.Fatalf("expected scheme added and slash trimmed, got %q", cfg.Ledger.BaseURL)
	}
	if cfg.Workflow.Workers != 4 {
		t.Fatalf("unexpected workers: %d", cfg.Workflow.Workers)
	}
	if cfg.QueueDBPath() != filepath.Join(custom.Paths.StateDir, "queue.db") {
		t.Fatalf("unexpected queue path: %q", cfg.QueueDBPath())
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	root := t.TempDir()
	t.Setenv("STORAGE_ROOT", root)
	t.Setenv("MIN_DISK_SPACE_GB", "12.5")
	t.Setenv("MODO_PRUEBA_VIDEO", "1")
	t.Setenv("FFMPEG_THREADS", "3")
	t.Setenv("API_SERVER_URL", "https://api.example.org/")
	t.Setenv("WORKER_CLIENT_ID", "worker")
	t.Setenv("WORKER_CLIENT_SECRET", "secret")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("QUEUE_NAME", "whisper")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.StorageRoot != root {
		t.Fatalf("expected STORAGE_ROOT override, got %q", cfg.Paths.StorageRoot)
	}
	if cfg.Disk.MinFreeGB != 12.5 {
		t.Fatalf("expected disk override, got %v", cfg.Disk.MinFreeGB)
	}
	if !cfg.TestProfile() {
		t.Fatal("expected MODO_PRUEBA_VIDEO to select test profile")
	}
	if cfg.Assembly.Threads != 3 {
		t.Fatalf("expected thread override, got %d", cfg.Assembly.Threads)
	}
	if cfg.Ledger.BaseURL != "https://api.example.org" {
		t.Fatalf("unexpected base url: %q", cfg.Ledger.BaseURL)
	}
	if cfg.Ledger.ClientID != "worker" || cfg.Ledger.ClientSecret != "secret" {
		t.Fatalf("unexpected credentials: %q/%q", cfg.Ledger.ClientID, cfg.Ledger.ClientSecret)
	}
	if cfg.Dispatch.URL != "nats://broker:4222" || cfg.Dispatch.Subject != "whisper" {
		t.Fatalf("unexpected dispatch config: %+v", cfg.Dispatch)
	}
}

func TestDockerStorageRoot(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("IS_DOCKER", "1")
	t.Setenv("STORAGE_ROOT", "/somewhere/else")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.StorageRoot != "/storage" {
		t.Fatalf("expected docker storage root, got %q", cfg.Paths.StorageRoot)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"profile", func(c *config.Config) { c.Assembly.Profile = "fast" }, "assembly.profile"},
		{"scanner attempts", func(c *config.Config) { c.Scanner.MaxAttempts = 0 }, "scanner.max_attempts"},
		{"scanner poll cap", func(c *config.Config) { c.Scanner.MaxPollIntervalSeconds = -1 }, "scanner.max_poll_interval_seconds"},
		{"half credentials", func(c *config.Config) { c.Ledger.ClientID = "only-id" }, "client_secret"},
		{"heartbeat order", func(c *config.Config) { c.Workflow.HeartbeatTimeout = c.Workflow.HeartbeatInterval }, "heartbeat_timeout"},
		{"retry window", func(c *config.Config) { c.Queue.RetryMaxSeconds = 1 }, "retry_max_seconds"},
		{"thresholds", func(c *config.Config) { c.Assembly.AudioMinBytes = 0 }, "audio_min_bytes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.StorageRoot = t.TempDir()
			cfg.Paths.StateDir = t.TempDir()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Fatalf("unexpected sample queue attempts: %d", cfg.Queue.MaxAttempts)
	}
}
