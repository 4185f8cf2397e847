package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateTransform(); err != nil {
		return err
	}
	if err := c.validateGates(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Ingest.InboxEnabled && strings.TrimSpace(c.Paths.InboxDir) == "" {
		return errors.New("paths.inbox_dir must be set when ingest.inbox_enabled is true")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval <= 0 {
		return errors.New("workflow.poll_interval must be positive")
	}
	if c.Workflow.MaxPollInterval < c.Workflow.PollInterval {
		return errors.New("workflow.max_poll_interval must be >= workflow.poll_interval")
	}
	if c.Workflow.IdleBackoffFactor <= 1.0 {
		return errors.New("workflow.idle_backoff_factor must be greater than 1")
	}
	for name, value := range map[string]int{
		"workflow.pipeline_batch":  c.Workflow.PipelineBatch,
		"workflow.rescan_batch":    c.Workflow.RescanBatch,
		"workflow.start_batch":     c.Workflow.StartBatch,
		"workflow.promotion_batch": c.Workflow.PromotionBatch,
		"workflow.document_batch":  c.Workflow.DocumentBatch,
	} {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Workflow.CheckpointHeartbeat <= 0 {
		return errors.New("workflow.checkpoint_heartbeat must be positive")
	}
	if c.Workflow.ShutdownTimeout <= 0 {
		return errors.New("workflow.shutdown_timeout must be positive")
	}
	return nil
}

func (c *Config) validateTransform() error {
	if c.Transform.MaxItemsPerMapping <= 0 {
		return errors.New("transform.max_items_per_mapping must be positive")
	}
	if c.Transform.RetryAttempts < 1 {
		return errors.New("transform.retry_attempts must be at least 1")
	}
	if c.Transform.Temperature < 0 || c.Transform.Temperature > 2 {
		return errors.New("transform.temperature must be between 0 and 2")
	}
	if c.Mapping.MinConfidence < 0 || c.Mapping.MinConfidence > 1 {
		return errors.New("mapping.min_confidence must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateGates() error {
	if c.Gates.DuplicateThreshold < 0 || c.Gates.DuplicateThreshold > 1 {
		return errors.New("gates.duplicate_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
