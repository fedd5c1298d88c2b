package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StorageRoot string `toml:"storage_root"`
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// Disk contains the free space budget enforced before assembly.
type Disk struct {
	MinFreeGB float64 `toml:"min_free_gb"`
}

// Scanner contains fragment stability polling settings.
type Scanner struct {
	MinStableBytes         int64 `toml:"min_stable_bytes"`
	MaxAttempts            int   `toml:"max_attempts"`
	PollIntervalSeconds    int   `toml:"poll_interval_seconds"`
	MaxPollIntervalSeconds int   `toml:"max_poll_interval_seconds"`
}

// Assembly contains ffmpeg invocation settings and per-kind thresholds.
type Assembly struct {
	Profile               string `toml:"profile"`
	FFmpegBinary          string `toml:"ffmpeg_binary"`
	FFprobeBinary         string `toml:"ffprobe_binary"`
	Threads               int    `toml:"threads"`
	ProbeOutput           bool   `toml:"probe_output"`
	AudioTimeoutSeconds   int    `toml:"audio_timeout_seconds"`
	VideoTimeoutSeconds   int    `toml:"video_timeout_seconds"`
	ExtractTimeoutSeconds int    `toml:"extract_timeout_seconds"`
	AudioMinBytes         int64  `toml:"audio_min_bytes"`
	VideoMinBytes         int64  `toml:"video_min_bytes"`
	Video2MinBytes        int64  `toml:"video2_min_bytes"`
	Audio2MinBytes        int64  `toml:"audio2_min_bytes"`
}

// Ledger contains the job/file tracking API settings.
type Ledger struct {
	BaseURL                  string  `toml:"base_url"`
	ClientID                 string  `toml:"client_id"`
	ClientSecret             string  `toml:"client_secret"`
	RequestTimeoutSeconds    int     `toml:"request_timeout_seconds"`
	RequestsPerSecond        float64 `toml:"requests_per_second"`
	HeartbeatIntervalSeconds int     `toml:"heartbeat_interval_seconds"`
	WorkerName               string  `toml:"worker_name"`
}

// Dispatch contains the transcription broker settings.
type Dispatch struct {
	URL            string `toml:"url"`
	Stream         string `toml:"stream"`
	Subject        string `toml:"subject"`
	Filename       string `toml:"filename"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Queue contains the local task queue retry policy.
type Queue struct {
	MaxAttempts      int `toml:"max_attempts"`
	RetryBaseSeconds int `toml:"retry_base_seconds"`
	RetryMaxSeconds  int `toml:"retry_max_seconds"`
}

// Workflow contains configuration for daemon timing and concurrency.
type Workflow struct {
	Workers           int `toml:"workers"`
	QueuePollInterval int `toml:"queue_poll_interval"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
	HeartbeatTimeout  int `toml:"heartbeat_timeout"`
	StaleTempHours    int `toml:"stale_temp_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the assembly worker.
//
// Configuration sections by subsystem:
//   - Paths: storage root, state directory and API bind address
//   - Disk: minimum free space required before assembly
//   - Scanner: fragment size-stability polling
//   - Assembly: ffmpeg profile, timeouts and artifact thresholds
//   - Ledger: job ledger API endpoint and service credentials
//   - Dispatch: transcription broker
//   - Queue: retry count and backoff for failed tasks
//   - Workflow: worker count, polling and heartbeats
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Disk     Disk     `toml:"disk"`
	Scanner  Scanner  `toml:"scanner"`
	Assembly Assembly `toml:"assembly"`
	Ledger   Ledger   `toml:"ledger"`
	Dispatch Dispatch `toml:"dispatch"`
	Queue    Queue    `toml:"queue"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("semefo.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The storage root is created on a best-effort basis so the daemon can start
// while a network share is still being mounted.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.LockDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.StorageRoot) != "" {
		_ = os.MkdirAll(c.Paths.StorageRoot, 0o755)
	}
	return nil
}

// LockDir returns the directory holding per-task lock files.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.StateDir, "locks")
}

// QueueDBPath returns the sqlite path backing the local task queue.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// DaemonLockPath returns the single-instance lock file for the daemon.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.StateDir, "semefod.lock")
}

// MinFreeBytes converts the configured minimum free disk budget to bytes.
func (c *Config) MinFreeBytes() uint64 {
	if c.Disk.MinFreeGB <= 0 {
		return 0
	}
	return uint64(c.Disk.MinFreeGB * 1024 * 1024 * 1024)
}

// ScannerPollInterval returns the delay before the first fragment size poll.
func (c *Config) ScannerPollInterval() time.Duration {
	return time.Duration(c.Scanner.PollIntervalSeconds) * time.Second
}

// ScannerMaxPollInterval caps the doubling delay between later polls.
func (c *Config) ScannerMaxPollInterval() time.Duration {
	return time.Duration(c.Scanner.MaxPollIntervalSeconds) * time.Second
}

// LedgerTimeout returns the per-request timeout for ledger calls.
func (c *Config) LedgerTimeout() time.Duration {
	return time.Duration(c.Ledger.RequestTimeoutSeconds) * time.Second
}

// TestProfile reports whether the fast test encoding profile is selected.
func (c *Config) TestProfile() bool {
	return c.Assembly.Profile == ProfileTest
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
