package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"allsky/internal/config"
	"allsky/internal/queue"
	"allsky/internal/testsupport"
)

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, "", Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestRunStartsAndStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, "", Options{LogLevel: "error", Version: "test"}) }()

	waitForFile(t, cfg.Paths.PIDFile)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, err := os.Stat(cfg.Paths.PIDFile); !os.IsNotExist(err) {
		t.Fatalf("pid file left behind: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(cfg.Paths.LogDir, "allsky.log")); err != nil {
		t.Fatalf("log pointer missing: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()
	if value, ok, err := store.GetState(context.Background(), queue.KeyConfigLevel); err != nil || !ok || value != config.Level {
		t.Fatalf("config level state = %q ok=%v err=%v", value, ok, err)
	}
	active, err := store.ActiveNotifications(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ActiveNotifications: %v", err)
	}
	if len(active) != 1 || active[0].Key != "indi-allsky" {
		t.Fatalf("expected shutdown notification, got %+v", active)
	}
}

func TestRunRejectsConfigLevelMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.ConfigLevel = "20200101.0"
	if err := Run(context.Background(), cfg, "", Options{LogLevel: "error"}); err == nil {
		t.Fatal("expected config level error")
	}
	if _, err := os.Stat(cfg.Paths.PIDFile); !os.IsNotExist(err) {
		t.Fatalf("pid file left behind: %v", err)
	}
}

func TestEnsureCurrentLogPointer(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "allsky-1.log")
	second := filepath.Join(dir, "allsky-2.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write log: %v", err)
		}
	}
	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	target, err := os.Readlink(filepath.Join(dir, "allsky.log"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != second {
		t.Fatalf("pointer = %s, want %s", target, second)
	}
}

func waitForFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := os.Stat(path); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s never appeared", path)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
