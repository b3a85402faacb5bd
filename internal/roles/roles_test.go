package roles_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"allsky/internal/alarm"
	"allsky/internal/config"
	"allsky/internal/logging"
	"allsky/internal/queue"
	"allsky/internal/roles"
	"allsky/internal/telemetry"
	"allsky/internal/testsupport"
	"allsky/internal/worker"
	"allsky/internal/workqueue"
)

type harness struct {
	cfg    *config.Config
	store  *queue.Store
	queues worker.Queues
	regs   *telemetry.Registers
	offset *atomic.Int64
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	return &harness{
		cfg:    cfg,
		store:  testsupport.MustOpenStore(t, cfg),
		queues: worker.NewQueues(),
		regs:   telemetry.New(cfg.Location.Latitude, cfg.Location.Longitude),
		offset: &atomic.Int64{},
	}
}

func (h *harness) env(role worker.Role) worker.Env {
	return worker.Env{
		Role:       role,
		Name:       role.WorkerName(1),
		Generation: 1,
		In:         h.queues.Inbound(role),
		Queues:     h.queues,
		Registers:  h.regs,
		Config:     func() *config.Config { return h.cfg },
		Tasks:      h.store,
		Alarm:      alarm.NewClock(),
		TimeOffset: h.offset,
		Logger:     logging.NewNop(),
	}
}

// run builds the role, feeds msgs followed by a stop sentinel, and waits for
// a clean exit.
func (h *harness) run(t *testing.T, role worker.Role, msgs ...workqueue.Message) {
	t.Helper()
	runner, err := roles.Registry().Build(h.env(role))
	if err != nil {
		t.Fatalf("build %s: %v", role, err)
	}
	in := h.queues.Inbound(role)
	for _, msg := range msgs {
		in.Put(msg)
	}
	in.Put(workqueue.StopMessage())

	done := make(chan error, 1)
	go func() { done <- runner.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("%s exited with %v", role, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("%s did not stop", role)
	}
}

func TestRegistryCoversEveryRole(t *testing.T) {
	if err := roles.Registry().Validate(worker.Roles()...); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestCaptureParsesReadingsAndQueuesImage(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithScript("capture.sh",
		`echo "exposure=12.5"; echo "gain=150"; echo "temp=-3.5"; echo "night=1"; echo "moonmode=0"; echo "image=frame.jpg"`,
		func(cfg *config.Config, path string) { cfg.Capture.Command = path },
	))
	cfg.Capture.Interval = 3600
	h := newHarness(t, cfg)

	runner, err := roles.Registry().Build(h.env(worker.RoleCapture))
	if err != nil {
		t.Fatalf("build capture: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- runner.Run(context.Background()) }()

	msg, err := getWithTimeout(h.queues.Image, 5*time.Second)
	if err != nil {
		t.Fatalf("waiting for image job: %v", err)
	}
	if msg.Kind != workqueue.KindImage || msg.Image.Path != filepath.Join(cfg.Paths.ImageDir, "frame.jpg") {
		t.Fatalf("unexpected image message %+v", msg)
	}
	snap := h.regs.Snapshot()
	if snap.Exposure != 12.5 || snap.Gain != 150 || snap.SensorTemp != -3.5 || snap.Night != 1 || snap.MoonMode != 0 {
		t.Fatalf("registers not updated: %+v", snap)
	}

	h.queues.Capture.Put(workqueue.SetTimeMessage(45))
	h.queues.Capture.Put(workqueue.StopMessage())
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("capture exited with %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("capture did not stop")
	}
	if h.offset.Load() != 45 {
		t.Fatalf("time offset = %d, want 45", h.offset.Load())
	}
}

func TestCaptureGivesUpAfterRepeatedFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithScript("capture.sh", `exit 3`,
		func(cfg *config.Config, path string) { cfg.Capture.Command = path },
	))
	cfg.Capture.Interval = 0
	h := newHarness(t, cfg)

	runner, err := roles.Registry().Build(h.env(worker.RoleCapture))
	if err != nil {
		t.Fatalf("build capture: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- runner.Run(context.Background()) }()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected capture to exit with an error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("capture kept running")
	}
}

func TestImageForwardsToUploadWithTelemetry(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLocalUpload())
	h := newHarness(t, cfg)
	h.regs.SetExposure(8)

	h.run(t, worker.RoleImage, workqueue.ImageMessage(workqueue.ImageJob{Path: "/tmp/frame.jpg"}))

	msg, ok := h.queues.Upload.TryGet()
	if !ok || msg.Kind != workqueue.KindUpload {
		t.Fatalf("expected upload job, got %+v ok=%v", msg, ok)
	}
	if msg.Upload.Path != "/tmp/frame.jpg" || msg.Upload.Telemetry.Exposure != 8 {
		t.Fatalf("unexpected upload job %+v", msg.Upload)
	}
}

func TestImageSkipsUploadWhenBackendDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	h := newHarness(t, cfg)
	h.run(t, worker.RoleImage, workqueue.ImageMessage(workqueue.ImageJob{Path: "/tmp/frame.jpg"}))
	if h.queues.Upload.Len() != 0 {
		t.Fatalf("expected no upload jobs, got %d", h.queues.Upload.Len())
	}
}

func TestVideoRunsQueuedTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithScript("timelapse.sh", `echo "$1 $2"`,
		func(cfg *config.Config, path string) { cfg.Video.TimelapseCommand = path },
	))
	h := newHarness(t, cfg)

	good := testsupport.InsertTask(t, h.store, queue.QueueVideo, queue.StateQueued,
		queue.Payload{"action": "generateVideo", "timespec": "20260301", "night": true}, time.Time{})
	bogus := testsupport.InsertTask(t, h.store, queue.QueueVideo, queue.StateQueued,
		queue.Payload{"action": "renderStars"}, time.Time{})
	expired := testsupport.InsertTask(t, h.store, queue.QueueVideo, queue.StateQueued,
		queue.Payload{"action": "generateVideo", "timespec": "20260302", "night": false}, time.Time{})
	if err := h.store.MarkExpired(context.Background(), expired.ID, ""); err != nil {
		t.Fatalf("MarkExpired: %v", err)
	}

	h.run(t, worker.RoleVideo,
		workqueue.TaskMessage(good.ID),
		workqueue.TaskMessage(bogus.ID),
		workqueue.TaskMessage(expired.ID),
	)

	if got := testsupport.MustGetTask(t, h.store, good.ID); got.State != queue.StateSuccess || got.Result != "Generated timelapse for 20260301" {
		t.Fatalf("good task = %s %q", got.State, got.Result)
	}
	if got := testsupport.MustGetTask(t, h.store, bogus.ID); got.State != queue.StateFailed {
		t.Fatalf("bogus task = %s", got.State)
	}
	if got := testsupport.MustGetTask(t, h.store, expired.ID); got.State != queue.StateExpired {
		t.Fatalf("expired task = %s", got.State)
	}
}

func TestVideoHealthCheckExpiresOldImages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Video.ImageRetentionDays = 1
	h := newHarness(t, cfg)

	old := filepath.Join(cfg.Paths.ImageDir, "20260101", "old.jpg")
	fresh := filepath.Join(cfg.Paths.ImageDir, "20260301", "fresh.jpg")
	testsupport.WriteFile(t, old, 10)
	testsupport.WriteFile(t, fresh, 10)
	testsupport.Age(t, old, 72*time.Hour)

	task := testsupport.InsertTask(t, h.store, queue.QueueVideo, queue.StateQueued, queue.Payload{
		"action": "systemHealthCheck", "img_folder": cfg.Paths.ImageDir, "timespec": nil, "night": nil, "camera_id": nil,
	}, time.Time{})
	h.run(t, worker.RoleVideo, workqueue.TaskMessage(task.ID))

	if got := testsupport.MustGetTask(t, h.store, task.ID); got.State != queue.StateSuccess {
		t.Fatalf("health check = %s %q", got.State, got.Result)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("old image still present: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh image removed: %v", err)
	}
}

func TestUploadLocalBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithLocalUpload())
	h := newHarness(t, cfg)
	frame := filepath.Join(cfg.Paths.ImageDir, "frame.jpg")
	testsupport.WriteFile(t, frame, 64)

	h.run(t, worker.RoleUpload, workqueue.UploadMessage(workqueue.UploadJob{Path: frame}))

	info, err := os.Stat(filepath.Join(cfg.Upload.Local.Dir, "frame.jpg"))
	if err != nil || info.Size() != 64 {
		t.Fatalf("uploaded frame missing: %v", err)
	}
}

func getWithTimeout(q *workqueue.Queue, d time.Duration) (workqueue.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return q.Get(ctx)
}
