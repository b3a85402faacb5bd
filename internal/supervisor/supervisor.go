// Package supervisor runs the allsky control loop. It keeps one generation of
// each worker role alive, feeds manually submitted tasks to the right place,
// schedules periodic housekeeping, and reacts to reload and shutdown
// requests.
//
// Every worker generation runs isolated in its own goroutine; a panic or
// error ends that generation only and is reported back as a crash report the
// next time the loop checks on the role.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"allsky/internal/alarm"
	"allsky/internal/config"
	"allsky/internal/logging"
	"allsky/internal/notifications"
	"allsky/internal/otel"
	"allsky/internal/queue"
	"allsky/internal/telemetry"
	"allsky/internal/worker"
)

const shutdownNotifyExpiry = time.Hour

// TaskStore is the task queue as seen by the supervisor.
type TaskStore interface {
	worker.TaskAccess
	ManualTasks(ctx context.Context) ([]*queue.Task, error)
	InsertTask(ctx context.Context, spec queue.TaskSpec) (*queue.Task, error)
	MarkQueued(ctx context.Context, id int64) error
	MarkExpired(ctx context.Context, id int64, result string) error
	ExpireOrphaned(ctx context.Context) ([]int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeExpiredNotifications(ctx context.Context, now time.Time) (int64, error)
	SetState(ctx context.Context, key, value string) error
}

// Deps are the collaborators a Supervisor is built from. Config, Store, and
// Registry are required.
type Deps struct {
	Config     *config.Config
	ConfigPath string
	// Loader re-reads the configuration on reload. Nil keeps the current one.
	Loader    func() (*config.Config, error)
	Store     TaskStore
	Notifier  notifications.Service
	Registry  worker.Registry
	Queues    worker.Queues
	Registers *telemetry.Registers
	Alarm     *alarm.Clock
	Logger    *slog.Logger
	Metrics   *otel.Metrics
	Tracer    trace.Tracer
	Clock     func() time.Time
	Version   string
}

// Supervisor owns the worker lifecycle and the control loop.
type Supervisor struct {
	cfg        atomic.Pointer[config.Config]
	configPath string
	loader     func() (*config.Config, error)
	store      TaskStore
	notifier   notifications.Service
	registry   worker.Registry
	queues     worker.Queues
	registers  *telemetry.Registers
	alarm      *alarm.Clock
	logger     *slog.Logger
	metrics    *otel.Metrics
	tracer     trace.Tracer
	now        func() time.Time
	version    string
	runID      string

	reload     atomic.Bool
	softReload atomic.Bool
	shutdown   atomic.Bool
	terminate  atomic.Bool
	wake       chan struct{}
	timeOffset atomic.Int64

	workers *lifecycle

	nextPeriodic  time.Time
	nextCleanup   time.Time
	nextTimelapse time.Time
	timelapse     cron.Schedule

	lock       *flock.Flock
	pidWritten bool
}

// New validates deps and builds a Supervisor. Nothing starts until Run.
func New(deps Deps) (*Supervisor, error) {
	if deps.Config == nil {
		return nil, errors.New("supervisor requires a config")
	}
	if deps.Store == nil {
		return nil, errors.New("supervisor requires a task store")
	}
	if err := deps.Registry.Validate(worker.Roles()...); err != nil {
		return nil, err
	}

	s := &Supervisor{
		configPath: deps.ConfigPath,
		loader:     deps.Loader,
		store:      deps.Store,
		notifier:   deps.Notifier,
		registry:   deps.Registry,
		queues:     deps.Queues,
		registers:  deps.Registers,
		alarm:      deps.Alarm,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		now:        deps.Clock,
		version:    deps.Version,
		runID:      uuid.NewString(),
		wake:       make(chan struct{}, 1),
	}
	if s.notifier == nil {
		s.notifier = notifications.NewNoop()
	}
	if s.queues.Capture == nil {
		s.queues = worker.NewQueues()
	}
	if s.registers == nil {
		s.registers = telemetry.New(deps.Config.Location.Latitude, deps.Config.Location.Longitude)
	}
	if s.alarm == nil {
		s.alarm = alarm.NewClock()
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.logger = logging.NewComponentLogger(s.logger, "supervisor").With(logging.RunID(s.runID))
	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer(otel.ScopeName)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.version == "" {
		s.version = "dev"
	}

	s.cfg.Store(deps.Config)
	if err := s.loadSchedule(deps.Config); err != nil {
		return nil, err
	}
	s.armTimers(s.now())
	s.workers = newLifecycle(s)
	return s, nil
}

// Config returns the active configuration.
func (s *Supervisor) Config() *config.Config {
	return s.cfg.Load()
}

// Queues returns the shared work queues.
func (s *Supervisor) Queues() worker.Queues {
	return s.queues
}

// RunID identifies this supervisor run.
func (s *Supervisor) RunID() string {
	return s.runID
}

// TimeOffset is the last clock offset received through a settime task.
func (s *Supervisor) TimeOffset() int64 {
	return s.timeOffset.Load()
}

// Workers reports every worker slot.
func (s *Supervisor) Workers() []WorkerStatus {
	return s.workers.Snapshot()
}

// RequestReload asks the loop to re-read configuration and cold restart all
// workers at the next checkpoint.
func (s *Supervisor) RequestReload() {
	s.reload.Store(true)
	s.poke()
}

// RequestSoftReload asks every live worker to refresh its configuration in
// place.
func (s *Supervisor) RequestSoftReload() {
	s.softReload.Store(true)
	s.poke()
}

// RequestShutdown asks the loop to stop every worker and return. With
// terminate the workers are cancelled instead of drained.
func (s *Supervisor) RequestShutdown(terminate bool) {
	if terminate {
		s.terminate.Store(true)
	}
	s.shutdown.Store(true)
	s.poke()
}

func (s *Supervisor) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the control loop until a shutdown request is honored. A
// cancelled ctx is treated as an interrupt.
func (s *Supervisor) Run(ctx context.Context) error {
	s.workers.base = context.WithoutCancel(ctx)
	for {
		if s.iterate(ctx) {
			return nil
		}
		s.sleep(ctx)
	}
}

// iterate is one pass of the loop. It reports whether the loop is done.
func (s *Supervisor) iterate(ctx context.Context) bool {
	if ctx.Err() != nil && !s.shutdown.Load() {
		s.logger.Info("Context cancelled, shutting down")
		s.shutdown.Store(true)
	}
	opCtx := context.WithoutCancel(ctx)
	started := s.now()
	opCtx, span := otel.StartSpan(opCtx, s.tracer, "supervisor.iteration")
	defer span.End()
	defer s.recordIteration(opCtx, started)

	if s.shutdown.Load() {
		s.stopForShutdown(opCtx)
		return true
	}

	if s.reload.Swap(false) {
		s.reloadConfig(opCtx)
		s.workers.StopAll(false)
	}
	if s.softReload.Swap(false) {
		s.logger.Info("Sending reload to running workers")
		for _, role := range worker.Roles() {
			s.workers.RequestReload(role)
		}
	}

	s.intake(opCtx)
	s.periodic(opCtx)

	s.workers.EnsureAll(opCtx)
	return false
}

func (s *Supervisor) recordIteration(ctx context.Context, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.LoopIterations.Add(ctx, 1)
	s.metrics.LoopDuration.Record(ctx, s.now().Sub(started).Seconds())
}

func (s *Supervisor) sleep(ctx context.Context) {
	timer := time.NewTimer(s.Config().PollInterval())
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.wake:
	case <-ctx.Done():
	}
}

func (s *Supervisor) stopForShutdown(ctx context.Context) {
	terminate := s.terminate.Load()
	s.logger.Info("Stopping workers", logging.Bool("terminate", terminate))
	s.workers.StopAll(terminate)

	err := s.notifier.Notify(ctx, notifications.Notification{
		Category: queue.CategoryState,
		Key:      "indi-allsky",
		Message:  "indi-allsky was shutdown",
		Expiry:   shutdownNotifyExpiry,
	})
	if err != nil {
		logging.WarnWithContext(s.logger, "Unable to record shutdown notification", "notification_failed", logging.Error(err))
	}
	s.logger.Info("Supervisor stopped")
}

func (s *Supervisor) reloadConfig(ctx context.Context) {
	s.logger.Info("Reloading configuration")
	if s.loader == nil {
		return
	}
	cfg, err := s.loader()
	if err == nil {
		err = s.loadSchedule(cfg)
	}
	if err != nil {
		logging.ErrorWithContext(s.logger, "Configuration reload failed, keeping previous configuration", "config_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the config file and send another reload"),
		)
		if nerr := s.notifier.Notify(ctx, notifications.Notification{
			Category: queue.CategoryState,
			Key:      "config_reload",
			Message:  fmt.Sprintf("WARNING: configuration reload failed: %v", err),
			Expiry:   restartNotifyExpiry,
		}); nerr != nil {
			logging.WarnWithContext(s.logger, "Unable to record reload notification", "notification_failed", logging.Error(nerr))
		}
		return
	}
	s.cfg.Store(cfg)
	s.registers.SetLocation(cfg.Location.Latitude, cfg.Location.Longitude)
}

// loadSchedule parses the timelapse schedule of cfg. An empty expression
// disables scheduled timelapses.
func (s *Supervisor) loadSchedule(cfg *config.Config) error {
	expr := strings.TrimSpace(cfg.Video.TimelapseSchedule)
	if expr == "" {
		s.timelapse = nil
		s.nextTimelapse = time.Time{}
		return nil
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("parse timelapse schedule %q: %w", expr, err)
	}
	s.timelapse = schedule
	s.nextTimelapse = schedule.Next(s.now())
	return nil
}
