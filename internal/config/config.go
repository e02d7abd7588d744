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

// Paths contains directory configuration.
type Paths struct {
	StagingDir  string `toml:"staging_dir"`
	DownloadDir string `toml:"download_dir"`
	LogDir      string `toml:"log_dir"`
}

// Redis contains connection settings for the queue store backend.
type Redis struct {
	Addr         string `toml:"addr"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	KeyPrefix    string `toml:"key_prefix"`
	DialTimeout  int    `toml:"dial_timeout"`
	ReadTimeout  int    `toml:"read_timeout"`
	WriteTimeout int    `toml:"write_timeout"`
}

// Separation contains settings for the demucs transformation engine.
type Separation struct {
	Binary       string `toml:"binary"`
	DefaultModel string `toml:"default_model"`
	OutputFormat string `toml:"output_format"`
	Normalize    bool   `toml:"normalize"`
	GPUEnabled   bool   `toml:"gpu_enabled"`
}

// Download contains settings for the yt-dlp remote source downloader.
type Download struct {
	Binary             string `toml:"binary"`
	Format             string `toml:"format"`
	MaxDurationSeconds int    `toml:"max_duration_seconds"`
}

// Limits contains input validation thresholds.
type Limits struct {
	MaxFileSizeBytes   int64    `toml:"max_file_size_bytes"`
	MaxDurationSeconds int      `toml:"max_duration_seconds"`
	Formats            []string `toml:"formats"`
}

// Workflow contains worker loop intervals and retention settings.
type Workflow struct {
	Workers                  int `toml:"workers"`
	QueuePollInterval        int `toml:"queue_poll_interval"`
	ErrorRetryInterval       int `toml:"error_retry_interval"`
	HeartbeatInterval        int `toml:"heartbeat_interval"`
	HeartbeatTimeout         int `toml:"heartbeat_timeout"`
	RetentionDays            int `toml:"retention_days"`
	CleanupSweepIntervalMins int `toml:"cleanup_sweep_interval_minutes"`
}

// Config encapsulates all configuration values for stemd.
//
// Configuration sections by subsystem:
//   - Paths: staging, download, and log directories
//   - Redis: queue store connection
//   - Separation: demucs model and invocation settings
//   - Download: yt-dlp invocation settings
//   - Limits: input size/duration/format validation thresholds
//   - Workflow: worker counts, polling intervals, heartbeat lease, retention
type Config struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	Paths      Paths      `toml:"paths"`
	Redis      Redis      `toml:"redis"`
	Separation Separation `toml:"separation"`
	Download   Download   `toml:"download"`
	Limits     Limits     `toml:"limits"`
	Workflow   Workflow   `toml:"workflow"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/stemd/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. When no file exists the
// repository defaults are returned.
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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("stemd.toml")
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
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.DownloadDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFprobeBinary returns the ffprobe executable name used for audio validation.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// PollInterval returns the worker idle poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Workflow.QueuePollInterval) * time.Second
}

// ErrorRetryInterval returns the worker backoff after repository failures.
func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Workflow.ErrorRetryInterval) * time.Second
}

// Retention returns the record retention window used by cleanup sweeps.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Workflow.RetentionDays) * 24 * time.Hour
}

// HeartbeatInterval returns how often an in-flight job's lease is refreshed.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Workflow.HeartbeatInterval) * time.Second
}

// HeartbeatTimeout returns how stale a lease must be before the job is
// reclaimed.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Workflow.HeartbeatTimeout) * time.Second
}

// CleanupSweepInterval returns the period between retention sweeps.
func (c *Config) CleanupSweepInterval() time.Duration {
	return time.Duration(c.Workflow.CleanupSweepIntervalMins) * time.Minute
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
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
