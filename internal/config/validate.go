package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateConcurrency(); err != nil {
		return err
	}
	if err := c.validateDisk(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.TempDir == "" {
		return errors.New("paths.temp_dir must be set")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.Host == "" {
		return errors.New("upload.host must be set")
	}
	if c.Upload.MaxRetries < 0 {
		return errors.New("upload.max_retries must not be negative")
	}
	if c.Upload.ParallelBatchSize < 1 {
		return errors.New("upload.parallel_batch_size must be at least 1")
	}
	return nil
}

func (c *Config) validateConcurrency() error {
	if c.Concurrency.GlobalLimit < 1 {
		return errors.New("concurrency.global_concurrency_limit must be at least 1")
	}
	if c.Concurrency.PerHostLimit < 1 {
		return errors.New("concurrency.per_host_concurrency_limit must be at least 1")
	}
	if c.Concurrency.SlotAcquireTimeout < 1 {
		return errors.New("concurrency.slot_acquire_timeout must be at least 1 second")
	}
	if c.Concurrency.Workers < 1 {
		return errors.New("concurrency.workers must be at least 1")
	}
	return nil
}

func (c *Config) validateDisk() error {
	if c.Disk.EmergencyMB < 1 {
		return errors.New("disk.disk_emergency_mb must be at least 1")
	}
	if c.Disk.EmergencyMB >= c.Disk.CriticalMB {
		return fmt.Errorf("disk.disk_emergency_mb (%d) must be below disk.disk_critical_mb (%d)", c.Disk.EmergencyMB, c.Disk.CriticalMB)
	}
	if c.Disk.CriticalMB >= c.Disk.WarningMB {
		return fmt.Errorf("disk.disk_critical_mb (%d) must be below disk.disk_warning_mb (%d)", c.Disk.CriticalMB, c.Disk.WarningMB)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval < 1 {
		return errors.New("workflow.queue_poll_interval must be at least 1 second")
	}
	if c.Workflow.ErrorRetryInterval < 1 {
		return errors.New("workflow.error_retry_interval must be at least 1 second")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
