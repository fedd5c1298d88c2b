package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDisk(); err != nil {
		return err
	}
	if err := c.normalizeAssembly(); err != nil {
		return err
	}
	c.normalizeLedger()
	c.normalizeDispatch()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if envBool("IS_DOCKER") {
		c.Paths.StorageRoot = defaultDockerStorageRoot
	} else if value, ok := os.LookupEnv("STORAGE_ROOT"); ok && strings.TrimSpace(value) != "" {
		c.Paths.StorageRoot = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.StorageRoot) == "" {
		c.Paths.StorageRoot = defaultStorageRoot
	}
	var err error
	if c.Paths.StorageRoot, err = expandPath(c.Paths.StorageRoot); err != nil {
		return fmt.Errorf("paths.storage_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeDisk() error {
	value, ok := os.LookupEnv("MIN_DISK_SPACE_GB")
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fmt.Errorf("MIN_DISK_SPACE_GB: %w", err)
	}
	c.Disk.MinFreeGB = parsed
	return nil
}

func (c *Config) normalizeAssembly() error {
	c.Assembly.Profile = strings.ToLower(strings.TrimSpace(c.Assembly.Profile))
	if c.Assembly.Profile == "" {
		c.Assembly.Profile = ProfileProduction
	}
	if envBool("MODO_PRUEBA_VIDEO") {
		c.Assembly.Profile = ProfileTest
	}
	if value, ok := os.LookupEnv("FFMPEG_THREADS"); ok && strings.TrimSpace(value) != "" {
		threads, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("FFMPEG_THREADS: %w", err)
		}
		c.Assembly.Threads = threads
	}
	c.Assembly.FFmpegBinary = strings.TrimSpace(c.Assembly.FFmpegBinary)
	if c.Assembly.FFmpegBinary == "" {
		c.Assembly.FFmpegBinary = defaultFFmpegBinary
	}
	c.Assembly.FFprobeBinary = strings.TrimSpace(c.Assembly.FFprobeBinary)
	if c.Assembly.FFprobeBinary == "" {
		c.Assembly.FFprobeBinary = defaultFFprobeBinary
	}
	return nil
}

func (c *Config) normalizeLedger() {
	if value, ok := os.LookupEnv("API_SERVER_URL"); ok && strings.TrimSpace(value) != "" {
		c.Ledger.BaseURL = value
	}
	c.Ledger.BaseURL = normalizeBaseURL(c.Ledger.BaseURL)
	if c.Ledger.ClientID == "" {
		if value, ok := os.LookupEnv("WORKER_CLIENT_ID"); ok {
			c.Ledger.ClientID = value
		}
	}
	if c.Ledger.ClientSecret == "" {
		if value, ok := os.LookupEnv("WORKER_CLIENT_SECRET"); ok {
			c.Ledger.ClientSecret = value
		}
	}
	c.Ledger.ClientID = strings.TrimSpace(c.Ledger.ClientID)
	c.Ledger.ClientSecret = strings.TrimSpace(c.Ledger.ClientSecret)
	c.Ledger.WorkerName = strings.TrimSpace(c.Ledger.WorkerName)
	if c.Ledger.WorkerName == "" {
		c.Ledger.WorkerName = defaultWorkerName
	}
}

func (c *Config) normalizeDispatch() {
	if c.Dispatch.URL == "" {
		if value, ok := os.LookupEnv("NATS_URL"); ok {
			c.Dispatch.URL = value
		}
	}
	c.Dispatch.URL = strings.TrimSpace(c.Dispatch.URL)
	if value, ok := os.LookupEnv("QUEUE_NAME"); ok && strings.TrimSpace(value) != "" {
		c.Dispatch.Subject = strings.TrimSpace(value)
	}
	c.Dispatch.Subject = strings.TrimSpace(c.Dispatch.Subject)
	if c.Dispatch.Subject == "" {
		c.Dispatch.Subject = defaultDispatchSubject
	}
	c.Dispatch.Stream = strings.ToUpper(strings.TrimSpace(c.Dispatch.Stream))
	if c.Dispatch.Stream == "" {
		c.Dispatch.Stream = defaultDispatchStream
	}
	c.Dispatch.Filename = strings.TrimSpace(c.Dispatch.Filename)
	if c.Dispatch.Filename == "" {
		c.Dispatch.Filename = defaultDispatchFilename
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// normalizeBaseURL trims trailing slashes and assumes http when no scheme is given.
func normalizeBaseURL(raw string) string {
	value := strings.TrimRight(strings.TrimSpace(raw), "/")
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		value = "http://" + value
	}
	return value
}

func envBool(key string) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
