package config_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"allsky/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("ALLSKY_NTFY_TOPIC", " allsky-alerts ")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	dataDir := filepath.Join(tempHome, ".local", "share", "allsky")
	if cfg.Paths.DataDir != dataDir {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, dataDir)
	}
	if cfg.Paths.ImageDir != filepath.Join(dataDir, "images") {
		t.Fatalf("unexpected image dir: %q", cfg.Paths.ImageDir)
	}
	if cfg.Paths.PIDFile != filepath.Join(dataDir, "allsky.pid") {
		t.Fatalf("unexpected pid file: %q", cfg.Paths.PIDFile)
	}
	if cfg.Paths.Database != filepath.Join(dataDir, "allsky.db") {
		t.Fatalf("unexpected database path: %q", cfg.Paths.Database)
	}
	if cfg.ConfigLevel != config.Level {
		t.Fatalf("expected default config level %q, got %q", config.Level, cfg.ConfigLevel)
	}
	if cfg.Notifications.NtfyTopic != "allsky-alerts" {
		t.Fatalf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.PollInterval() != 15*time.Second {
		t.Fatalf("unexpected poll interval: %s", cfg.PollInterval())
	}
	if cfg.CleanupInterval() != 12*time.Hour {
		t.Fatalf("unexpected cleanup interval: %s", cfg.CleanupInterval())
	}
	if cfg.TaskRetention() != 72*time.Hour {
		t.Fatalf("unexpected task retention: %s", cfg.TaskRetention())
	}
	if cfg.Upload.Backend != config.UploadBackendNone {
		t.Fatalf("expected upload backend none, got %q", cfg.Upload.Backend)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.ImageDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "allsky.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Supervisor struct {
			PollInterval int `toml:"poll_interval"`
		} `toml:"supervisor"`
		Workers struct {
			UploadWorkers int `toml:"upload_workers"`
		} `toml:"workers"`
		Upload struct {
			Backend string `toml:"backend"`
			MQTT    struct {
				Host      string `toml:"host"`
				BaseTopic string `toml:"base_topic"`
			} `toml:"mqtt"`
		} `toml:"upload"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Supervisor.PollInterval = 5
	custom.Workers.UploadWorkers = 3
	custom.Upload.Backend = "MQTT"
	custom.Upload.MQTT.Host = "broker.local"
	custom.Upload.MQTT.BaseTopic = "/observatory/sky/"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Supervisor.PollInterval != 5 {
		t.Fatalf("expected poll interval 5, got %d", cfg.Supervisor.PollInterval)
	}
	if cfg.Workers.UploadWorkers != 3 {
		t.Fatalf("expected 3 upload workers, got %d", cfg.Workers.UploadWorkers)
	}
	if cfg.Upload.Backend != config.UploadBackendMQTT {
		t.Fatalf("expected backend to normalize to mqtt, got %q", cfg.Upload.Backend)
	}
	if cfg.Upload.MQTT.BaseTopic != "observatory/sky" {
		t.Fatalf("expected trimmed base topic, got %q", cfg.Upload.MQTT.BaseTopic)
	}
	if cfg.Upload.MQTT.Port != 1883 {
		t.Fatalf("expected default mqtt port, got %d", cfg.Upload.MQTT.Port)
	}
	if cfg.Paths.LogDir != filepath.Join(tempDir, "data", "logs") {
		t.Fatalf("expected log dir under custom data dir, got %q", cfg.Paths.LogDir)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "allsky.toml")
	if err := os.WriteFile(configPath, []byte("[supervisor\npoll_interval = "), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "config_level") {
		t.Fatalf("sample config missing config_level: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.ConfigLevel != config.Level {
		t.Fatalf("sample config level %q does not match %q", cfg.ConfigLevel, config.Level)
	}
	if !strings.Contains(cfg.Paths.DataDir, "allsky") {
		t.Fatalf("expected data dir to contain allsky, got %q", cfg.Paths.DataDir)
	}

	t.Setenv("HOME", t.TempDir())
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"poll interval", func(c *config.Config) { c.Supervisor.PollInterval = 0 }},
		{"restart notify", func(c *config.Config) { c.Supervisor.RestartNotifyEvery = -1 }},
		{"upload workers", func(c *config.Config) { c.Workers.UploadWorkers = 0 }},
		{"capture timeout", func(c *config.Config) { c.Capture.Timeout = 0 }},
		{"latitude", func(c *config.Config) { c.Location.Latitude = 91 }},
		{"backend", func(c *config.Config) { c.Upload.Backend = "ftp" }},
		{"mqtt host", func(c *config.Config) { c.Upload.Backend = config.UploadBackendMQTT }},
		{"local dir", func(c *config.Config) { c.Upload.Backend = config.UploadBackendLocal }},
		{"schedule", func(c *config.Config) { c.Video.TimelapseSchedule = "not a cron" }},
		{"exporter", func(c *config.Config) { c.OTel.Exporter = "zipkin" }},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		cfg := config.Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}

	cfg := config.Default()
	cfg.Video.TimelapseSchedule = "30 7 * * *"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid schedule to pass: %v", err)
	}
}

func TestWatcherReportsConfigWrites(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "allsky.toml")
	if err := os.WriteFile(configPath, []byte("config_level = \"x\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	w := config.NewWatcher(configPath, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	_ = os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("noise"), 0o644)
	_ = os.WriteFile(configPath, []byte("config_level = \"y\"\n"), 0o644)
	for {
		select {
		case ev := <-w.Events():
			if filepath.Base(ev.Path) != "allsky.toml" {
				t.Fatalf("expected allsky.toml event, got %s", ev.Path)
			}
			return
		case <-tick.C:
			_ = os.WriteFile(configPath, []byte("config_level = \"y\"\n"), 0o644)
		case <-deadline:
			t.Fatal("timed out waiting for config change event")
		}
	}
}
