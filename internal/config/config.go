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

// Level is the configuration level this build understands. A config file
// carrying a different level was written for another release.
const Level = "20260915.0"

// Paths contains directory and file locations.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	ImageDir string `toml:"image_dir"`
	LogDir   string `toml:"log_dir"`
	PIDFile  string `toml:"pid_file"`
	Database string `toml:"database"`
}

// Location seeds the coordinate telemetry registers.
type Location struct {
	Latitude  float64 `toml:"latitude"`
	Longitude float64 `toml:"longitude"`
}

// Supervisor contains control loop timing.
type Supervisor struct {
	PollInterval       int  `toml:"poll_interval"`
	PeriodicInterval   int  `toml:"periodic_interval"`
	CleanupInterval    int  `toml:"cleanup_interval"`
	TaskRetentionHours int  `toml:"task_retention_hours"`
	RestartNotifyEvery int  `toml:"restart_notify_every"`
	WatchConfig        bool `toml:"watch_config"`
	ScriptTimeout      int  `toml:"script_timeout"`
}

// Workers sizes the worker pools.
type Workers struct {
	UploadWorkers int `toml:"upload_workers"`
}

// Capture configures the capture role.
type Capture struct {
	Command  string  `toml:"command"`
	Interval int     `toml:"interval"`
	Timeout  int     `toml:"timeout"`
	Exposure float64 `toml:"exposure"`
	Gain     int     `toml:"gain"`
	Bin      int     `toml:"bin"`
}

// Image configures the image post-processing role.
type Image struct {
	Command string `toml:"command"`
	Timeout int    `toml:"timeout"`
	Upload  bool   `toml:"upload"`
}

// Video configures the video role and its housekeeping sweeps.
type Video struct {
	TimelapseCommand   string `toml:"timelapse_command"`
	Timeout            int    `toml:"timeout"`
	TimelapseSchedule  string `toml:"timelapse_schedule"`
	ImageRetentionDays int    `toml:"image_retention_days"`
}

// UploadLocal configures the local directory transfer backend.
type UploadLocal struct {
	Dir string `toml:"dir"`
}

// UploadMQTT configures the MQTT transfer backend.
type UploadMQTT struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	TLS       bool   `toml:"tls"`
	BaseTopic string `toml:"base_topic"`
	ClientID  string `toml:"client_id"`
	QoS       int    `toml:"qos"`
	Retain    bool   `toml:"retain"`
}

// Upload configures the upload role.
type Upload struct {
	Backend string      `toml:"backend"`
	Timeout int         `toml:"timeout"`
	Local   UploadLocal `toml:"local"`
	MQTT    UploadMQTT  `toml:"mqtt"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Hotplug configures the udev device monitor.
type Hotplug struct {
	Enabled    bool     `toml:"enabled"`
	Subsystems []string `toml:"subsystems"`
}

// OTel configures tracing and metrics export.
type OTel struct {
	Enabled     bool    `toml:"enabled"`
	Exporter    string  `toml:"exporter"`
	Endpoint    string  `toml:"endpoint"`
	ServiceName string  `toml:"service_name"`
	SampleRate  float64 `toml:"sample_rate"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for the allsky daemon.
//
// Configuration sections by subsystem:
//   - Paths: data, image, and log directories plus pid file and database
//   - Location: site coordinates
//   - Supervisor: control loop cadence and housekeeping windows
//   - Workers: upload pool size
//   - Capture, Image, Video, Upload: per-role settings
//   - Notifications: ntfy push settings
//   - Hotplug: udev device monitor
//   - OTel: tracing and metrics export
//   - Logging: log format, level, and retention
type Config struct {
	ConfigLevel   string        `toml:"config_level"`
	Paths         Paths         `toml:"paths"`
	Location      Location      `toml:"location"`
	Supervisor    Supervisor    `toml:"supervisor"`
	Workers       Workers       `toml:"workers"`
	Capture       Capture       `toml:"capture"`
	Image         Image         `toml:"image"`
	Video         Video         `toml:"video"`
	Upload        Upload        `toml:"upload"`
	Notifications Notifications `toml:"notifications"`
	Hotplug       Hotplug       `toml:"hotplug"`
	OTel          OTel          `toml:"otel"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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

	projectPath, err := filepath.Abs("allsky.toml")
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
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.ImageDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.PIDFile),
		filepath.Dir(c.Paths.Database),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Upload.Backend == UploadBackendLocal && strings.TrimSpace(c.Upload.Local.Dir) != "" {
		if err := os.MkdirAll(c.Upload.Local.Dir, 0o755); err != nil {
			return fmt.Errorf("create upload directory %q: %w", c.Upload.Local.Dir, err)
		}
	}
	return nil
}

// PollInterval returns the control loop period.
func (c *Config) PollInterval() time.Duration {
	return seconds(c.Supervisor.PollInterval)
}

// PeriodicInterval returns the spacing between periodic task runs.
func (c *Config) PeriodicInterval() time.Duration {
	return seconds(c.Supervisor.PeriodicInterval)
}

// CleanupInterval returns the spacing between cleanup runs.
func (c *Config) CleanupInterval() time.Duration {
	return seconds(c.Supervisor.CleanupInterval)
}

// TaskRetention returns how long task rows are kept regardless of state.
func (c *Config) TaskRetention() time.Duration {
	return time.Duration(c.Supervisor.TaskRetentionHours) * time.Hour
}

// ScriptTimeout returns the default alarm interval for external scripts.
func (c *Config) ScriptTimeout() time.Duration {
	return seconds(c.Supervisor.ScriptTimeout)
}

// CaptureInterval returns the spacing between capture command runs.
func (c *Config) CaptureInterval() time.Duration {
	return seconds(c.Capture.Interval)
}

// CaptureTimeout bounds one capture command run.
func (c *Config) CaptureTimeout() time.Duration {
	return seconds(c.Capture.Timeout)
}

// ImageTimeout bounds one image post-processing run.
func (c *Config) ImageTimeout() time.Duration {
	return seconds(c.Image.Timeout)
}

// VideoTimeout bounds one timelapse command run.
func (c *Config) VideoTimeout() time.Duration {
	return seconds(c.Video.Timeout)
}

// UploadTimeout bounds one transfer.
func (c *Config) UploadTimeout() time.Duration {
	return seconds(c.Upload.Timeout)
}

// NotifyTimeout bounds one ntfy request.
func (c *Config) NotifyTimeout() time.Duration {
	return seconds(c.Notifications.RequestTimeout)
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
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
