package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"allsky/internal/alarm"
	"allsky/internal/config"
	"allsky/internal/logging"
	"allsky/internal/notifications"
	"allsky/internal/otel"
	"allsky/internal/queue"
	"allsky/internal/telemetry"
	"allsky/internal/worker"
	"allsky/internal/workqueue"
)

const restartNotifyExpiry = 2 * time.Hour

// stopOrder is the shutdown sequence.
var stopOrder = []worker.Role{worker.RoleImage, worker.RoleVideo, worker.RoleUpload, worker.RoleCapture}

// WorkerStatus describes one worker slot.
type WorkerStatus struct {
	Role       worker.Role
	Name       string
	Generation int
	Alive      bool
}

type slot struct {
	proc       *worker.Process
	errs       chan worker.CrashReport
	generation int
}

// lifecycle starts, restarts, and stops worker generations. Only the control
// loop mutates it; the mutex guards Snapshot readers.
type lifecycle struct {
	registry   worker.Registry
	queues     worker.Queues
	registers  *telemetry.Registers
	tasks      worker.TaskAccess
	alarm      *alarm.Clock
	timeOffset *atomic.Int64
	config     func() *config.Config
	notifier   notifications.Service
	metrics    *otel.Metrics
	logger     *slog.Logger
	base       context.Context

	mu          sync.Mutex
	slots       map[worker.Role][]*slot
	generations map[worker.Role]int
}

func newLifecycle(s *Supervisor) *lifecycle {
	return &lifecycle{
		registry:    s.registry,
		queues:      s.queues,
		registers:   s.registers,
		tasks:       s.store,
		alarm:       s.alarm,
		timeOffset:  &s.timeOffset,
		config:      s.Config,
		notifier:    s.notifier,
		metrics:     s.metrics,
		logger:      s.logger,
		base:        context.Background(),
		slots:       make(map[worker.Role][]*slot),
		generations: make(map[worker.Role]int),
	}
}

// poolSize is the number of slots a role runs.
func (l *lifecycle) poolSize(role worker.Role) int {
	if role != worker.RoleUpload {
		return 1
	}
	if n := l.config().Workers.UploadWorkers; n > 0 {
		return n
	}
	return 1
}

// EnsureAll starts every dead or missing worker.
func (l *lifecycle) EnsureAll(ctx context.Context) {
	for _, role := range worker.Roles() {
		l.EnsureRunning(ctx, role)
	}
}

// EnsureRunning restarts any dead slot of role, reporting the crash of the
// previous generation first. The upload pool is resized only while none of
// its workers are alive.
func (l *lifecycle) EnsureRunning(ctx context.Context, role worker.Role) {
	l.mu.Lock()
	slots := l.slots[role]
	if want := l.poolSize(role); len(slots) != want && !anyAlive(slots) {
		for len(slots) < want {
			slots = append(slots, &slot{})
		}
		for _, dropped := range slots[want:] {
			l.reportCrashes(role, dropped)
		}
		slots = slots[:want]
		l.slots[role] = slots
	}
	l.mu.Unlock()

	for _, sl := range slots {
		if sl.proc.Alive() {
			continue
		}
		l.reportCrashes(role, sl)
		l.start(ctx, role, sl)
	}
}

func (l *lifecycle) reportCrashes(role worker.Role, sl *slot) {
	for _, report := range worker.DrainErrors(sl.errs) {
		if l.metrics != nil {
			l.metrics.CrashReports.Add(context.Background(), 1, metric.WithAttributes(otel.AttrRole.String(string(role))))
		}
		for _, line := range report.Lines() {
			l.logger.Error(fmt.Sprintf("%s worker exception: %s", role.DisplayName(), line),
				logging.Role(string(role)),
				logging.Generation(sl.generation),
			)
		}
	}
}

func (l *lifecycle) start(ctx context.Context, role worker.Role, sl *slot) {
	l.mu.Lock()
	l.generations[role]++
	generation := l.generations[role]
	l.mu.Unlock()

	name := role.WorkerName(generation)
	errs := worker.NewErrorChannel()
	logger := l.logger.With(
		logging.String(logging.FieldComponent, "worker"),
		logging.Worker(name),
		logging.Role(string(role)),
		logging.Generation(generation),
	)

	runner, err := l.registry.Build(worker.Env{
		Role:       role,
		Name:       name,
		Generation: generation,
		In:         l.queues.Inbound(role),
		Queues:     l.queues,
		Registers:  l.registers,
		Config:     l.config,
		Tasks:      l.tasks,
		Alarm:      l.alarm,
		TimeOffset: l.timeOffset,
		Logger:     logger,
	})

	l.mu.Lock()
	sl.generation = generation
	sl.errs = errs
	sl.proc = nil
	l.mu.Unlock()

	if err != nil {
		logging.ErrorWithContext(l.logger, "Unable to construct worker", "worker_build_failed",
			logging.Worker(name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the role configuration; the next loop iteration retries"),
		)
	} else {
		l.logger.Info(fmt.Sprintf("Starting %s worker", name), logging.Worker(name))
		proc := worker.NewProcess(name, runner, errs)
		proc.Start(l.base)
		l.mu.Lock()
		sl.proc = proc
		l.mu.Unlock()
	}

	if l.metrics != nil && generation > 1 {
		l.metrics.WorkerRestarts.Add(ctx, 1, metric.WithAttributes(
			otel.AttrRole.String(string(role)),
			otel.AttrGeneration.Int(generation),
		))
	}

	every := l.config().Supervisor.RestartNotifyEvery
	if every > 0 && generation%every == 0 {
		err := l.notifier.Notify(ctx, notifications.Notification{
			Category: queue.CategoryWorker,
			Key:      role.NotificationKey(),
			Message:  fmt.Sprintf("WARNING: %s worker was restarted more than %d times", role.DisplayName(), every),
			Expiry:   restartNotifyExpiry,
		})
		if err != nil {
			logging.WarnWithContext(l.logger, "Unable to record restart notification", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "operator will not see the restart warning"),
			)
		}
	}
}

// RequestStop asks every live worker of role to exit and waits for them.
// With terminate the workers' contexts are cancelled first.
func (l *lifecycle) RequestStop(role worker.Role, terminate bool) {
	live := l.live(role)
	if len(live) == 0 {
		return
	}
	if terminate {
		for _, proc := range live {
			proc.Terminate()
		}
	}
	in := l.queues.Inbound(role)
	for range live {
		in.Put(workqueue.StopMessage())
	}
	for _, proc := range live {
		proc.Join()
	}
}

// RequestReload sends a reload sentinel to each live worker of role.
func (l *lifecycle) RequestReload(role worker.Role) {
	in := l.queues.Inbound(role)
	for range l.live(role) {
		in.Put(workqueue.ReloadMessage())
	}
}

// StopAll stops every role in shutdown order.
func (l *lifecycle) StopAll(terminate bool) {
	for _, role := range stopOrder {
		l.RequestStop(role, terminate)
	}
}

// Snapshot lists every slot in role order.
func (l *lifecycle) Snapshot() []WorkerStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []WorkerStatus
	for _, role := range worker.Roles() {
		for _, sl := range l.slots[role] {
			status := WorkerStatus{Role: role, Generation: sl.generation, Alive: sl.proc.Alive()}
			if sl.generation > 0 {
				status.Name = role.WorkerName(sl.generation)
			}
			out = append(out, status)
		}
	}
	return out
}

func (l *lifecycle) live(role worker.Role) []*worker.Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*worker.Process
	for _, sl := range l.slots[role] {
		if sl.proc.Alive() {
			out = append(out, sl.proc)
		}
	}
	return out
}

func anyAlive(slots []*slot) bool {
	for _, sl := range slots {
		if sl.proc.Alive() {
			return true
		}
	}
	return false
}
