package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRedis(); err != nil {
		return err
	}
	if err := c.validateSeparation(); err != nil {
		return err
	}
	if err := c.validateLimits(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRedis() error {
	if strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("redis.addr must be set")
	}
	if c.Redis.DB < 0 {
		return errors.New("redis.db must not be negative")
	}
	if strings.TrimSpace(c.Redis.KeyPrefix) == "" {
		return errors.New("redis.key_prefix must be set")
	}
	return nil
}

func (c *Config) validateSeparation() error {
	if strings.TrimSpace(c.Separation.Binary) == "" {
		return errors.New("separation.binary must be set")
	}
	if strings.TrimSpace(c.Separation.DefaultModel) == "" {
		return errors.New("separation.default_model must be set")
	}
	for _, model := range KnownModels() {
		if c.Separation.DefaultModel == model {
			return nil
		}
	}
	return fmt.Errorf("separation.default_model %q is not a known model", c.Separation.DefaultModel)
}

func (c *Config) validateLimits() error {
	if c.Limits.MaxFileSizeBytes <= 0 {
		return errors.New("limits.max_file_size_bytes must be positive")
	}
	if c.Limits.MaxDurationSeconds <= 0 {
		return errors.New("limits.max_duration_seconds must be positive")
	}
	if len(c.Limits.Formats) == 0 {
		return errors.New("limits.formats must list at least one extension")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers < 1 {
		return errors.New("workflow.workers must be at least 1")
	}
	if c.Workflow.QueuePollInterval < 1 {
		return errors.New("workflow.queue_poll_interval must be at least 1 second")
	}
	if c.Workflow.ErrorRetryInterval < 1 {
		return errors.New("workflow.error_retry_interval must be at least 1 second")
	}
	if c.Workflow.HeartbeatTimeout != 0 && c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	if c.Workflow.RetentionDays < 0 {
		return errors.New("workflow.retention_days must not be negative")
	}
	return nil
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeFormats()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
}

func (c *Config) normalizeFormats() {
	normalized := make([]string, 0, len(c.Limits.Formats))
	for _, format := range c.Limits.Formats {
		format = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(format, ".")))
		if format != "" {
			normalized = append(normalized, format)
		}
	}
	c.Limits.Formats = normalized
}
