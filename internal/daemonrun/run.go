package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"allsky/internal/config"
	"allsky/internal/hotplug"
	"allsky/internal/logging"
	"allsky/internal/notifications"
	"allsky/internal/otel"
	"allsky/internal/queue"
	"allsky/internal/roles"
	"allsky/internal/supervisor"
	"allsky/internal/telemetry"
	"allsky/internal/worker"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Version     string
}

// Run wires the supervisor and its collaborators and blocks until the
// supervisor shuts down.
func Run(ctx context.Context, cfg *config.Config, configPath string, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("allsky-%s.log", runID))
	logger, err := logging.NewDaemon(cfg, logPath, opts.LogLevel, opts.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update allsky.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "allsky-*.log", Exclude: []string{logPath}},
	)

	provider, err := otel.Init(ctx, otel.ConfigFrom(cfg))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdownProvider(logger, provider)
	metrics, err := otel.NewMetrics(provider.Meter)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open task store", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg, store, logger)

	sup, err := supervisor.New(supervisor.Deps{
		Config:     cfg,
		ConfigPath: configPath,
		Loader:     loader(configPath),
		Store:      store,
		Notifier:   notifier,
		Registry:   roles.Registry(),
		Queues:     worker.NewQueues(),
		Registers:  telemetry.New(cfg.Location.Latitude, cfg.Location.Longitude),
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     provider.Tracer,
		Version:    opts.Version,
	})
	if err != nil {
		return fmt.Errorf("create supervisor: %w", err)
	}
	defer func() {
		if err := sup.Close(); err != nil {
			logger.Warn("supervisor cleanup failed", logging.Error(err))
		}
	}()

	if err := sup.Startup(ctx); err != nil {
		return err
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	sup.WatchSignals(bgCtx)
	watchConfig(bgCtx, cfg, configPath, sup, logger)

	monitor := hotplug.New(cfg, store, logger)
	if err := monitor.Start(bgCtx); err != nil {
		return fmt.Errorf("start hotplug monitor: %w", err)
	}
	defer monitor.Stop()

	logger.Info("allsky supervisor running",
		logging.RunID(sup.RunID()),
		logging.String("config_path", configPath),
		logging.String("log_path", logPath),
	)
	if err := sup.Run(ctx); err != nil {
		return err
	}
	logger.Info("allsky supervisor exited")
	return nil
}

func loader(configPath string) func() (*config.Config, error) {
	return func() (*config.Config, error) {
		cfg, _, _, err := config.Load(configPath)
		return cfg, err
	}
}

// watchConfig turns config file writes into reload requests.
func watchConfig(ctx context.Context, cfg *config.Config, configPath string, sup *supervisor.Supervisor, logger *slog.Logger) {
	if !cfg.Supervisor.WatchConfig || configPath == "" {
		return
	}
	if _, err := os.Stat(configPath); err != nil {
		return
	}
	watcher := config.NewWatcher(configPath, logging.NewComponentLogger(logger, "config-watcher"))
	if err := watcher.Start(ctx); err != nil {
		logging.WarnWithContext(logger, "Config watcher unavailable", "config_watch_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "config edits need a manual reload"),
		)
		return
	}
	go func() {
		for range watcher.Events() {
			sup.RequestReload()
		}
	}()
}

func shutdownProvider(logger *slog.Logger, provider *otel.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown failed", logging.Error(err))
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, logging.LogFileName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}
