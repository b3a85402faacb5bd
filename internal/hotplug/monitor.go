// Package hotplug watches udev for camera hardware being attached or removed
// and asks the supervisor for a cold restart by submitting a reload task.
package hotplug

import (
	"context"
	"log/slog"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"allsky/internal/config"
	"allsky/internal/logging"
	"allsky/internal/queue"
)

// DefaultDebounce coalesces a burst of device events into one reload.
const DefaultDebounce = 30 * time.Second

// TaskInserter submits tasks to the queue.
type TaskInserter interface {
	InsertTask(ctx context.Context, spec queue.TaskSpec) (*queue.Task, error)
}

// Monitor listens for udev netlink events on the configured subsystems.
type Monitor struct {
	store      TaskInserter
	logger     *slog.Logger
	subsystems []string
	debounce   time.Duration

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	pending *time.Timer
}

// New returns a monitor, or nil when hotplug is disabled or has no
// subsystems. A nil *Monitor is safe to Start and Stop.
func New(cfg *config.Config, store TaskInserter, logger *slog.Logger) *Monitor {
	if cfg == nil || !cfg.Hotplug.Enabled || len(cfg.Hotplug.Subsystems) == 0 || store == nil {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		store:      store,
		logger:     logging.NewComponentLogger(logger, "hotplug"),
		subsystems: append([]string(nil), cfg.Hotplug.Subsystems...),
		debounce:   DefaultDebounce,
	}
}

// Start connects to the udev netlink socket. A connection failure is logged
// and leaves the monitor idle.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "Unable to connect to udev netlink socket", "hotplug_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run with permission to open netlink sockets or disable [hotplug]"),
			logging.String(logging.FieldImpact, "camera replug needs a manual reload"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true
	go m.monitorLoop(ctx, conn, m.quit)

	m.logger.Info("Hotplug monitor started", logging.Any("subsystems", m.subsystems))
	return nil
}

// Stop disconnects and drops any pending reload.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		m.pending.Stop()
		m.pending = nil
	}
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	_ = m.conn.Close()
	m.conn = nil
	m.running = false
	m.logger.Info("Hotplug monitor stopped")
}

// Running reports whether the monitor is connected.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	events := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(events, errs, m.matcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case event := <-events:
			m.handleEvent(ctx, event)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "Hotplug monitor error", "hotplug_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "device changes may be missed"),
			)
		}
	}
}

// matcher accepts add and remove events for each configured subsystem.
func (m *Monitor) matcher() netlink.Matcher {
	action := "^(add|remove)$"
	rules := &netlink.RuleDefinitions{}
	for _, subsystem := range m.subsystems {
		rules.AddRule(netlink.RuleDefinition{
			Action: &action,
			Env:    map[string]string{"SUBSYSTEM": "^" + regexp.QuoteMeta(subsystem) + "$"},
		})
	}
	return rules
}

// handleEvent arms the debounce timer. Events arriving while it is armed
// are folded into the pending reload.
func (m *Monitor) handleEvent(ctx context.Context, event netlink.UEvent) {
	subsystem := event.Env["SUBSYSTEM"]
	if !slices.Contains(m.subsystems, subsystem) {
		return
	}
	m.logger.Debug("Device event",
		logging.String("action", string(event.Action)),
		logging.String("subsystem", subsystem),
		logging.String("kobj", event.KObj),
	)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		return
	}
	m.pending = time.AfterFunc(m.debounce, func() {
		m.mu.Lock()
		m.pending = nil
		m.mu.Unlock()
		m.submitReload(ctx, string(event.Action), subsystem)
	})
}

func (m *Monitor) submitReload(ctx context.Context, action, subsystem string) {
	task, err := m.store.InsertTask(context.WithoutCancel(ctx), queue.TaskSpec{
		Queue:   queue.QueueMain,
		State:   queue.StateManual,
		Payload: queue.Payload{"action": "reload", "reason": "hotplug"},
	})
	if err != nil {
		logging.ErrorWithContext(m.logger, "Unable to submit hotplug reload", "hotplug_submit_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the task database"),
		)
		return
	}
	m.logger.Info("Device change detected, reload submitted",
		logging.TaskID(task.ID),
		logging.String("action", action),
		logging.String("subsystem", subsystem),
	)
}
