package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/gofrs/flock"

	"allsky/internal/config"
	"allsky/internal/logging"
	"allsky/internal/notifications"
	"allsky/internal/queue"
)

const configLevelNotifyExpiry = 2 * time.Hour

// Startup claims the single-instance lock, checks the config level, records
// the pid, and expires tasks left over from a previous run. Any error is
// fatal; call Close to release what was acquired. Bookkeeping completes even
// if ctx is cancelled part way; Run then shuts down straight away.
func (s *Supervisor) Startup(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	cfg := s.Config()
	pidPath := cfg.Paths.PIDFile
	if pidPath == "" {
		return errors.New("pid file path is not configured")
	}
	if err := os.MkdirAll(filepath.Dir(pidPath), 0o755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}

	s.lock = flock.New(pidPath + ".lock")
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if cfg.ConfigLevel != config.Level {
		if err := s.notifier.Notify(ctx, notifications.Notification{
			Category: queue.CategoryState,
			Key:      "config_version",
			Message:  "WARNING: indi-allsky version does not match config, please rerun setup.sh",
			Expiry:   configLevelNotifyExpiry,
		}); err != nil {
			logging.WarnWithContext(s.logger, "Unable to record config level notification", "notification_failed", logging.Error(err))
		}
		logging.ErrorWithContext(s.logger, "Config level mismatch", "config_level_mismatch",
			logging.String("config_level", cfg.ConfigLevel),
			logging.String("expected_level", config.Level),
			logging.String(logging.FieldErrorHint, "regenerate the config with allsky config init"),
		)
		return fmt.Errorf("%w: config has %q, want %q", ErrConfigLevelMismatch, cfg.ConfigLevel, config.Level)
	}

	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	s.pidWritten = true

	pid := strconv.Itoa(os.Getpid())
	for _, kv := range [][2]string{
		{queue.KeyPID, pid},
		{queue.KeyPIDFile, pidPath},
		{queue.KeyRunID, s.runID},
		{queue.KeyConfigPath, s.configPath},
		{queue.KeyConfigLevel, cfg.ConfigLevel},
	} {
		if err := s.store.SetState(ctx, kv[0], kv[1]); err != nil {
			return fmt.Errorf("record state %s: %w", kv[0], err)
		}
	}

	ids, err := s.store.ExpireOrphaned(ctx)
	if err != nil {
		return fmt.Errorf("expire orphaned tasks: %w", err)
	}
	for _, id := range ids {
		s.logger.Info(fmt.Sprintf("Expiring orphaned task %d", id), logging.TaskID(id))
	}

	s.logStartupSnapshot(cfg, pid)

	s.armTimers(s.now())
	return nil
}

// Close releases the instance lock and removes the pid file written by
// Startup.
func (s *Supervisor) Close() error {
	var errs []error
	if s.pidWritten {
		if err := os.Remove(s.Config().Paths.PIDFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove pid file: %w", err))
		}
		s.pidWritten = false
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("release lock: %w", err))
		}
		s.lock = nil
	}
	return errors.Join(errs...)
}

func writePIDFile(path string) error {
	value := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return err
	}
	return os.Chmod(path, 0o644)
}

func (s *Supervisor) logStartupSnapshot(cfg *config.Config, pid string) {
	attrs := []logging.Attr{
		logging.String("version", s.version),
		logging.String("config_level", cfg.ConfigLevel),
		logging.String("go_version", runtime.Version()),
		logging.String("platform", runtime.GOOS+"/"+runtime.GOARCH),
		logging.Int("cpus", runtime.NumCPU()),
		logging.String("pid", pid),
		logging.Int("upload_workers", cfg.Workers.UploadWorkers),
	}
	if info, ok := readSystemInfo(); ok {
		attrs = append(attrs,
			logging.Int64("memory_total_mb", int64(info.TotalMemory>>20)),
			logging.Int64("memory_free_mb", int64(info.FreeMemory>>20)),
			logging.Duration("uptime", info.Uptime),
		)
	}
	s.logger.Info("allsky supervisor starting", logging.Args(attrs...)...)
}
