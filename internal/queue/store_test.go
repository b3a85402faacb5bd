package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"allsky/internal/queue"
	"allsky/internal/testsupport"
)

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	task := testsupport.InsertTask(t, store, queue.QueueMain, queue.StateManual, queue.Payload{"action": "reload"}, time.Time{})
	if task.ID == 0 {
		t.Fatal("expected task ID to be assigned")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	fetched, err := reopened.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask after reopen: %v", err)
	}
	if fetched.Payload.Action() != "reload" || fetched.Queue != queue.QueueMain || fetched.State != queue.StateManual {
		t.Fatalf("unexpected fetched task: %#v", fetched)
	}
	if reopened.Path() != filepath.Clean(cfg.Paths.Database) {
		t.Fatalf("unexpected store path %q", reopened.Path())
	}
}

func TestInsertTaskRejectsBadInput(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.InsertTask(ctx, queue.TaskSpec{Queue: "UPLOAD", State: queue.StateManual}); err == nil {
		t.Fatal("expected error for unknown queue")
	}
	if _, err := store.InsertTask(ctx, queue.TaskSpec{Queue: queue.QueueVideo, State: queue.StateSuccess}); err == nil {
		t.Fatal("expected error for terminal initial state")
	}
}

func TestIDsAreMonotonic(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	var last int64
	for i := 0; i < 5; i++ {
		task := testsupport.InsertTask(t, store, queue.QueueVideo, queue.StateQueued, queue.Payload{"action": "systemHealthCheck"}, time.Time{})
		if task.ID <= last {
			t.Fatalf("id %d not greater than %d", task.ID, last)
		}
		last = task.ID
	}
}

func TestManualTasksOrderedOldestFirst(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	newest := testsupport.InsertTask(t, store, queue.QueueMain, queue.StateManual, queue.Payload{"action": "reload"}, base.Add(30*time.Minute))
	oldest := testsupport.InsertTask(t, store, queue.QueueVideo, queue.StateManual, queue.Payload{"action": "generateVideo"}, base)
	middle := testsupport.InsertTask(t, store, queue.QueueMain, queue.StateManual, queue.Payload{"action": "settime"}, base.Add(10*time.Minute))
	testsupport.InsertTask(t, store, queue.QueueVideo, queue.StateQueued, queue.Payload{"action": "systemHealthCheck"}, base.Add(-time.Minute))

	tasks, err := store.ManualTasks(ctx)
	if err != nil {
		t.Fatalf("ManualTasks: %v", err)
	}
	want := []int64{oldest.ID, middle.ID, newest.ID}
	if len(tasks) != len(want) {
		t.Fatalf("expected %d manual tasks, got %d", len(want), len(tasks))
	}
	for i, task := range tasks {
		if task.ID != want[i] {
			t.Fatalf("position %d: got task %d want %d", i, task.ID, want[i])
		}
	}
}

func TestTransitionsOnlyMoveForward(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	task := testsupport.InsertTask(t, store, queue.QueueVideo, queue.StateManual, queue.Payload{"action": "generateVideo"}, time.Time{})
	if err := store.MarkRunning(ctx, task.ID); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("MANUAL -> RUNNING should be rejected, got %v", err)
	}
	if err := store.MarkQueued(ctx, task.ID); err != nil {
		t.Fatalf("MarkQueued: %v", err)
	}
	if err := store.MarkQueued(ctx, task.ID); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("QUEUED -> QUEUED should be rejected, got %v", err)
	}
	if err := store.MarkRunning(ctx, task.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := store.MarkSuccess(ctx, task.ID, "Generated timelapse"); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}

	for _, to := range []queue.State{queue.StateQueued, queue.StateRunning, queue.StateFailed, queue.StateExpired} {
		if err := store.Transition(ctx, task.ID, to, ""); !errors.Is(err, queue.ErrInvalidTransition) {
			t.Fatalf("terminal task moved to %s: %v", to, err)
		}
	}
	final := testsupport.MustGetTask(t, store, task.ID)
	if final.State != queue.StateSuccess || final.Result != "Generated timelapse" {
		t.Fatalf("unexpected final task: %#v", final)
	}
}

func TestMainTasksFinishDirectlyFromManual(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	ok := testsupport.InsertTask(t, store, queue.QueueMain, queue.StateManual, queue.Payload{"action": "reload"}, time.Time{})
	bad := testsupport.InsertTask(t, store, queue.QueueMain, queue.StateManual, queue.Payload{"action": "bogus"}, time.Time{})
	if err := store.MarkSuccess(ctx, ok.ID, "Reloaded"); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}
	if err := store.MarkFailed(ctx, bad.ID, ""); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := store.Transition(ctx, ok.ID, queue.StateManual, ""); !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected MANUAL to be unreachable, got %v", err)
	}
}

func TestTransitionUnknownTask(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if err := store.MarkExpired(context.Background(), 999, ""); !errors.Is(err, queue.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if _, err := store.GetTask(context.Background(), 999); !errors.Is(err, queue.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestExpireOrphanedTouchesOnlyNonTerminal(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	manual := testsupport.InsertTask(t, store, queue.QueueMain, queue.StateManual, queue.Payload{"action": "reload"}, time.Time{})
	queued := testsupport.InsertTask(t, store, queue.QueueVideo, queue.StateQueued, queue.Payload{"action": "systemHealthCheck"}, time.Time{})
	running := testsupport.InsertTask(t, store, queue.QueueVideo, queue.StateQueued, queue.Payload{"action": "generateVideo"}, time.Time{})
	if err := store.MarkRunning(ctx, running.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	done := testsupport.InsertTask(t, store, queue.QueueVideo, queue.StateQueued, queue.Payload{"action": "generateVideo"}, time.Time{})
	if err := store.MarkSuccess(ctx, done.ID, "ok"); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}

	ids, err := store.ExpireOrphaned(ctx)
	if err != nil {
		t.Fatalf("ExpireOrphaned: %v", err)
	}
	want := []int64{manual.ID, queued.ID, running.ID}
	if len(ids) != len(want) {
		t.Fatalf("expected %d expired ids, got %v", len(want), ids)
	}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("expired ids = %v, want %v", ids, want)
		}
		if got := testsupport.MustGetTask(t, store, id).State; got != queue.StateExpired {
			t.Fatalf("task %d state %s, want EXPIRED", id, got)
		}
	}
	if got := testsupport.MustGetTask(t, store, done.ID).State; got != queue.StateSuccess {
		t.Fatalf("terminal task changed to %s", got)
	}

	again, err := store.ExpireOrphaned(ctx)
	if err != nil {
		t.Fatalf("second ExpireOrphaned: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected nothing left to expire, got %v", again)
	}
}

func TestDeleteOlderThanKeepsRecentRows(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	now := time.Now()
	old := testsupport.InsertTask(t, store, queue.QueueVideo, queue.StateManual, queue.Payload{"action": "generateVideo"}, now.Add(-73*time.Hour))
	oldDone := testsupport.InsertTask(t, store, queue.QueueMain, queue.StateManual, queue.Payload{"action": "reload"}, now.Add(-96*time.Hour))
	if err := store.MarkSuccess(ctx, oldDone.ID, ""); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}
	recent := testsupport.InsertTask(t, store, queue.QueueMain, queue.StateManual, queue.Payload{"action": "reload"}, now.Add(-71*time.Hour))

	deleted, err := store.DeleteOlderThan(ctx, now.Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted rows, got %d", deleted)
	}
	for _, id := range []int64{old.ID, oldDone.ID} {
		if _, err := store.GetTask(ctx, id); !errors.Is(err, queue.ErrTaskNotFound) {
			t.Fatalf("task %d should be gone, got %v", id, err)
		}
	}
	if got := testsupport.MustGetTask(t, store, recent.ID); got.State != queue.StateManual {
		t.Fatalf("recent task changed: %#v", got)
	}
}

func TestListTasksAndStats(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	a := testsupport.InsertTask(t, store, queue.QueueMain, queue.StateManual, queue.Payload{"action": "reload"}, time.Time{})
	testsupport.InsertTask(t, store, queue.QueueVideo, queue.StateQueued, queue.Payload{"action": "systemHealthCheck"}, time.Time{})
	if err := store.MarkFailed(ctx, a.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	all, err := store.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(all))
	}
	failed, err := store.ListTasks(ctx, queue.StateFailed)
	if err != nil {
		t.Fatalf("ListTasks(FAILED): %v", err)
	}
	if len(failed) != 1 || failed[0].Result != "boom" {
		t.Fatalf("unexpected failed list: %#v", failed)
	}

	stats, err := store.TaskStats(ctx)
	if err != nil {
		t.Fatalf("TaskStats: %v", err)
	}
	if stats[queue.StateFailed] != 1 || stats[queue.StateQueued] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestNotificationsDedupeAckAndPurge(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	added, err := store.AddNotification(ctx, queue.CategoryWorker, "ImageWorker", "restarted", 2*time.Hour)
	if err != nil || !added {
		t.Fatalf("first AddNotification: added=%v err=%v", added, err)
	}
	added, err = store.AddNotification(ctx, queue.CategoryWorker, "ImageWorker", "restarted again", 2*time.Hour)
	if err != nil {
		t.Fatalf("second AddNotification: %v", err)
	}
	if added {
		t.Fatal("expected duplicate notification to be skipped")
	}

	active, err := store.ActiveNotifications(ctx, now)
	if err != nil {
		t.Fatalf("ActiveNotifications: %v", err)
	}
	if len(active) != 1 || active[0].Message != "restarted" {
		t.Fatalf("unexpected active notifications: %#v", active)
	}

	if err := store.AckNotification(ctx, active[0].ID); err != nil {
		t.Fatalf("AckNotification: %v", err)
	}
	if err := store.AckNotification(ctx, 424242); !errors.Is(err, queue.ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound, got %v", err)
	}
	if added, _ := store.AddNotification(ctx, queue.CategoryWorker, "ImageWorker", "after ack", time.Hour); !added {
		t.Fatal("expected notification to be added after ack")
	}

	later := now.Add(3 * time.Hour)
	purged, err := store.PurgeExpiredNotifications(ctx, later)
	if err != nil {
		t.Fatalf("PurgeExpiredNotifications: %v", err)
	}
	if purged != 2 {
		t.Fatalf("expected 2 purged notifications, got %d", purged)
	}
}

func TestStateUpsert(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, ok, err := store.GetState(ctx, queue.KeyPID); err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
	if err := store.SetState(ctx, queue.KeyPID, "100"); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if err := store.SetState(ctx, queue.KeyPID, "200"); err != nil {
		t.Fatalf("SetState overwrite: %v", err)
	}
	value, ok, err := store.GetState(ctx, queue.KeyPID)
	if err != nil || !ok || value != "200" {
		t.Fatalf("GetState = %q ok=%v err=%v", value, ok, err)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.Paths.Database)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := queue.Open(cfg); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenReusesStampedDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	task := testsupport.InsertTask(t, store, queue.QueueMain, queue.StateManual, queue.Payload{"action": "reload"}, time.Time{})
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.Paths.Database)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil || version != 1 {
		t.Fatalf("user_version = %d err=%v, want 1", version, err)
	}
	_ = db.Close()

	reopened, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if got := testsupport.MustGetTask(t, reopened, task.ID); got.State != queue.StateManual {
		t.Fatalf("task lost across reopen: %+v", got)
	}
}
