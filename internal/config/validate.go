package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateScanner(); err != nil {
		return err
	}
	if err := c.validateAssembly(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StorageRoot) == "" {
		return errors.New("paths.storage_root must be set (or STORAGE_ROOT)")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Disk.MinFreeGB < 0 {
		return errors.New("disk.min_free_gb must be >= 0")
	}
	return nil
}

func (c *Config) validateScanner() error {
	if c.Scanner.MinStableBytes < 0 {
		return errors.New("scanner.min_stable_bytes must be >= 0")
	}
	if c.Scanner.MaxAttempts <= 0 {
		return errors.New("scanner.max_attempts must be positive")
	}
	if c.Scanner.PollIntervalSeconds < 0 {
		return errors.New("scanner.poll_interval_seconds must be >= 0")
	}
	if c.Scanner.MaxPollIntervalSeconds < 0 {
		return errors.New("scanner.max_poll_interval_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateAssembly() error {
	switch c.Assembly.Profile {
	case ProfileProduction, ProfileTest:
	default:
		return fmt.Errorf("assembly.profile must be %q or %q, got %q", ProfileProduction, ProfileTest, c.Assembly.Profile)
	}
	if c.Assembly.Threads < 0 {
		return errors.New("assembly.threads must be >= 0")
	}
	if err := ensurePositiveMap(map[string]int{
		"assembly.audio_timeout_seconds":   c.Assembly.AudioTimeoutSeconds,
		"assembly.video_timeout_seconds":   c.Assembly.VideoTimeoutSeconds,
		"assembly.extract_timeout_seconds": c.Assembly.ExtractTimeoutSeconds,
	}); err != nil {
		return err
	}
	for key, value := range map[string]int64{
		"assembly.audio_min_bytes":  c.Assembly.AudioMinBytes,
		"assembly.video_min_bytes":  c.Assembly.VideoMinBytes,
		"assembly.video2_min_bytes": c.Assembly.Video2MinBytes,
		"assembly.audio2_min_bytes": c.Assembly.Audio2MinBytes,
	} {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func (c *Config) validateLedger() error {
	if c.Ledger.BaseURL == "" {
		return errors.New("ledger.base_url must be set (or API_SERVER_URL)")
	}
	parsed, err := url.Parse(c.Ledger.BaseURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("ledger.base_url %q is not a valid URL", c.Ledger.BaseURL)
	}
	if (c.Ledger.ClientID == "") != (c.Ledger.ClientSecret == "") {
		return errors.New("ledger.client_id and ledger.client_secret must be set together")
	}
	if c.Ledger.RequestsPerSecond < 0 {
		return errors.New("ledger.requests_per_second must be >= 0")
	}
	return ensurePositiveMap(map[string]int{
		"ledger.request_timeout_seconds":    c.Ledger.RequestTimeoutSeconds,
		"ledger.heartbeat_interval_seconds": c.Ledger.HeartbeatIntervalSeconds,
		"dispatch.timeout_seconds":          c.Dispatch.TimeoutSeconds,
	})
}

func (c *Config) validateQueue() error {
	if c.Queue.MaxAttempts < 0 {
		return errors.New("queue.max_attempts must be >= 0")
	}
	if err := ensurePositiveMap(map[string]int{
		"queue.retry_base_seconds": c.Queue.RetryBaseSeconds,
		"queue.retry_max_seconds":  c.Queue.RetryMaxSeconds,
	}); err != nil {
		return err
	}
	if c.Queue.RetryMaxSeconds < c.Queue.RetryBaseSeconds {
		return errors.New("queue.retry_max_seconds must be >= queue.retry_base_seconds")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":             c.Workflow.Workers,
		"workflow.queue_poll_interval": c.Workflow.QueuePollInterval,
		"workflow.stale_temp_hours":    c.Workflow.StaleTempHours,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
