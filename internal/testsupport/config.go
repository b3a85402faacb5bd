package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"allsky/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = base
	cfgVal.Paths.ImageDir = filepath.Join(base, "images")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.PIDFile = filepath.Join(base, "run", "allsky.pid")
	cfgVal.Paths.Database = filepath.Join(base, "allsky.db")
	cfgVal.Supervisor.WatchConfig = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithUploadWorkers sizes the upload pool.
func WithUploadWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workers.UploadWorkers = n
	}
}

// WithLocalUpload enables the local directory transfer backend under the test root.
func WithLocalUpload() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.Backend = config.UploadBackendLocal
		b.cfg.Upload.Local.Dir = filepath.Join(b.baseDir, "uploads")
	}
}

// WithScript writes an executable shell script named name into the test bin
// directory and passes its path to set.
func WithScript(name, body string, set func(cfg *config.Config, path string)) ConfigOption {
	return func(b *configBuilder) {
		path := WriteExecutable(b.t, filepath.Join(b.baseDir, "bin"), name, body)
		set(b.cfg, path)
	}
}

// WriteExecutable writes a /bin/sh script and returns its path.
func WriteExecutable(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
	return target
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.DataDir
}
