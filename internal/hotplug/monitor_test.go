package hotplug

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"allsky/internal/config"
	"allsky/internal/queue"
)

type recordingInserter struct {
	mu    sync.Mutex
	specs []queue.TaskSpec
}

func (r *recordingInserter) InsertTask(_ context.Context, spec queue.TaskSpec) (*queue.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs = append(r.specs, spec)
	return &queue.Task{ID: int64(len(r.specs)), Queue: spec.Queue, State: spec.State, Payload: spec.Payload}, nil
}

func (r *recordingInserter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.specs)
}

func enabledConfig() *config.Config {
	cfg := config.Default()
	cfg.Hotplug.Enabled = true
	return &cfg
}

func TestNewReturnsNilWhenDisabled(t *testing.T) {
	cfg := config.Default()
	if m := New(&cfg, &recordingInserter{}, nil); m != nil {
		t.Fatal("expected nil monitor when hotplug is disabled")
	}
	if m := New(nil, &recordingInserter{}, nil); m != nil {
		t.Fatal("expected nil monitor for nil config")
	}
	cfg.Hotplug.Enabled = true
	cfg.Hotplug.Subsystems = nil
	if m := New(&cfg, &recordingInserter{}, nil); m != nil {
		t.Fatal("expected nil monitor without subsystems")
	}
}

func TestNilMonitorIsSafe(t *testing.T) {
	var m *Monitor
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil monitor: %v", err)
	}
	m.Stop()
	if m.Running() {
		t.Fatal("nil monitor reports running")
	}
}

func TestMatcherSelectsConfiguredSubsystems(t *testing.T) {
	m := New(enabledConfig(), &recordingInserter{}, nil)
	matcher := m.matcher()

	cases := []struct {
		name   string
		action netlink.KObjAction
		sub    string
		want   bool
	}{
		{"usb add", netlink.ADD, "usb", true},
		{"video remove", netlink.REMOVE, "video4linux", true},
		{"usb change", netlink.CHANGE, "usb", false},
		{"block add", netlink.ADD, "block", false},
		{"prefix only", netlink.ADD, "usbmisc", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := netlink.UEvent{Action: tc.action, Env: map[string]string{"SUBSYSTEM": tc.sub}}
			if got := matcher.Evaluate(event); got != tc.want {
				t.Fatalf("Evaluate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEventBurstSubmitsOneReload(t *testing.T) {
	store := &recordingInserter{}
	m := New(enabledConfig(), store, nil)
	m.debounce = 20 * time.Millisecond

	for range 3 {
		m.handleEvent(context.Background(), netlink.UEvent{
			Action: netlink.ADD,
			KObj:   "/devices/pci0000:00/usb1/1-1",
			Env:    map[string]string{"SUBSYSTEM": "usb"},
		})
	}
	m.handleEvent(context.Background(), netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "block"}})

	deadline := time.Now().Add(2 * time.Second)
	for store.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	if n := store.count(); n != 1 {
		t.Fatalf("expected 1 reload task, got %d", n)
	}
	spec := store.specs[0]
	if spec.Queue != queue.QueueMain || spec.State != queue.StateManual {
		t.Fatalf("unexpected task spec %+v", spec)
	}
	if spec.Payload.Action() != "reload" || spec.Payload.String("reason") != "hotplug" {
		t.Fatalf("unexpected payload %+v", spec.Payload)
	}
	if err := queue.ValidatePayload(spec.Queue, spec.Payload); err != nil {
		t.Fatalf("reload payload invalid: %v", err)
	}
}

func TestStopDropsPendingReload(t *testing.T) {
	store := &recordingInserter{}
	m := New(enabledConfig(), store, nil)
	m.debounce = 50 * time.Millisecond

	m.handleEvent(context.Background(), netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"SUBSYSTEM": "video4linux"}})
	m.Stop()
	time.Sleep(100 * time.Millisecond)

	if n := store.count(); n != 0 {
		t.Fatalf("expected no reload after Stop, got %d", n)
	}
}
