package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	c.ConfigLevel = strings.TrimSpace(c.ConfigLevel)
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeUpload()
	c.normalizeNotifications()
	c.normalizeHotplug()
	c.normalizeOTel()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}

	derived := []struct {
		field    *string
		key      string
		fallback string
	}{
		{&c.Paths.ImageDir, "paths.image_dir", filepath.Join(c.Paths.DataDir, "images")},
		{&c.Paths.LogDir, "paths.log_dir", filepath.Join(c.Paths.DataDir, "logs")},
		{&c.Paths.PIDFile, "paths.pid_file", filepath.Join(c.Paths.DataDir, "allsky.pid")},
		{&c.Paths.Database, "paths.database", filepath.Join(c.Paths.DataDir, "allsky.db")},
	}
	for _, entry := range derived {
		if strings.TrimSpace(*entry.field) == "" {
			*entry.field = entry.fallback
		}
		if *entry.field, err = expandPath(*entry.field); err != nil {
			return fmt.Errorf("%s: %w", entry.key, err)
		}
	}

	if dir := strings.TrimSpace(c.Upload.Local.Dir); dir != "" {
		if c.Upload.Local.Dir, err = expandPath(dir); err != nil {
			return fmt.Errorf("upload.local.dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeUpload() {
	c.Upload.Backend = strings.ToLower(strings.TrimSpace(c.Upload.Backend))
	if c.Upload.Backend == "" {
		c.Upload.Backend = UploadBackendNone
	}
	c.Upload.MQTT.Host = strings.TrimSpace(c.Upload.MQTT.Host)
	c.Upload.MQTT.BaseTopic = strings.Trim(strings.TrimSpace(c.Upload.MQTT.BaseTopic), "/")
	if c.Upload.MQTT.BaseTopic == "" {
		c.Upload.MQTT.BaseTopic = defaultMQTTBaseTopic
	}
	if c.Upload.MQTT.Port == 0 {
		c.Upload.MQTT.Port = defaultMQTTPort
	}
	if c.Upload.MQTT.Password == "" {
		if value, ok := os.LookupEnv("ALLSKY_MQTT_PASSWORD"); ok {
			c.Upload.MQTT.Password = value
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("ALLSKY_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeHotplug() {
	subsystems := make([]string, 0, len(c.Hotplug.Subsystems))
	seen := make(map[string]struct{}, len(c.Hotplug.Subsystems))
	for _, value := range c.Hotplug.Subsystems {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		subsystems = append(subsystems, value)
	}
	c.Hotplug.Subsystems = subsystems
}

func (c *Config) normalizeOTel() {
	c.OTel.Exporter = strings.ToLower(strings.TrimSpace(c.OTel.Exporter))
	if c.OTel.Exporter == "" {
		c.OTel.Exporter = defaultOTelExporter
	}
	c.OTel.ServiceName = strings.TrimSpace(c.OTel.ServiceName)
	if c.OTel.ServiceName == "" {
		c.OTel.ServiceName = defaultOTelServiceName
	}
	if c.OTel.SampleRate <= 0 {
		c.OTel.SampleRate = defaultOTelSampleRate
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
