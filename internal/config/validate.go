package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSupervisor(); err != nil {
		return err
	}
	if err := c.validateLocation(); err != nil {
		return err
	}
	if err := c.validateRoles(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validateOTel(); err != nil {
		return err
	}
	return c.validateLogging()
}

type namedValue struct {
	key   string
	value int
}

func (c *Config) validateSupervisor() error {
	if err := ensurePositive(
		namedValue{"supervisor.poll_interval", c.Supervisor.PollInterval},
		namedValue{"supervisor.periodic_interval", c.Supervisor.PeriodicInterval},
		namedValue{"supervisor.cleanup_interval", c.Supervisor.CleanupInterval},
		namedValue{"supervisor.task_retention_hours", c.Supervisor.TaskRetentionHours},
		namedValue{"supervisor.restart_notify_every", c.Supervisor.RestartNotifyEvery},
		namedValue{"supervisor.script_timeout", c.Supervisor.ScriptTimeout},
		namedValue{"workers.upload_workers", c.Workers.UploadWorkers},
		namedValue{"notifications.request_timeout", c.Notifications.RequestTimeout},
	); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLocation() error {
	if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
		return errors.New("location.latitude must be between -90 and 90")
	}
	if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
		return errors.New("location.longitude must be between -180 and 180")
	}
	return nil
}

func (c *Config) validateRoles() error {
	if err := ensurePositive(
		namedValue{"capture.interval", c.Capture.Interval},
		namedValue{"capture.timeout", c.Capture.Timeout},
		namedValue{"image.timeout", c.Image.Timeout},
		namedValue{"video.timeout", c.Video.Timeout},
	); err != nil {
		return err
	}
	if c.Capture.Bin < 1 {
		return errors.New("capture.bin must be >= 1")
	}
	if c.Video.ImageRetentionDays < 0 {
		return errors.New("video.image_retention_days must be >= 0")
	}
	if schedule := strings.TrimSpace(c.Video.TimelapseSchedule); schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return fmt.Errorf("video.timelapse_schedule: %w", err)
		}
	}
	return nil
}

func (c *Config) validateUpload() error {
	switch c.Upload.Backend {
	case UploadBackendNone:
	case UploadBackendLocal:
		if strings.TrimSpace(c.Upload.Local.Dir) == "" {
			return errors.New("upload.local.dir must be set when upload.backend is local")
		}
	case UploadBackendMQTT:
		if c.Upload.MQTT.Host == "" {
			return errors.New("upload.mqtt.host must be set when upload.backend is mqtt")
		}
		if c.Upload.MQTT.Port <= 0 || c.Upload.MQTT.Port > 65535 {
			return errors.New("upload.mqtt.port must be between 1 and 65535")
		}
		if c.Upload.MQTT.QoS < 0 || c.Upload.MQTT.QoS > 2 {
			return errors.New("upload.mqtt.qos must be 0, 1, or 2")
		}
	default:
		return fmt.Errorf("upload.backend: unsupported value %q (expected none, local, or mqtt)", c.Upload.Backend)
	}
	if c.Upload.Timeout <= 0 {
		return errors.New("upload.timeout must be positive")
	}
	return nil
}

func (c *Config) validateOTel() error {
	switch c.OTel.Exporter {
	case "none", "stdout", "otlp-http":
	default:
		return fmt.Errorf("otel.exporter: unsupported value %q (expected none, stdout, or otlp-http)", c.OTel.Exporter)
	}
	if c.OTel.SampleRate > 1 {
		return errors.New("otel.sample_rate must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositive(values ...namedValue) error {
	for _, entry := range values {
		if entry.value <= 0 {
			return fmt.Errorf("%s must be positive", entry.key)
		}
	}
	return nil
}
