package testsupport

import (
	"context"
	"testing"
	"time"

	"allsky/internal/config"
	"allsky/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// InsertTask creates a task for tests. A zero created time means now.
func InsertTask(t testing.TB, store *queue.Store, q queue.Queue, state queue.State, payload queue.Payload, created time.Time) *queue.Task {
	t.Helper()

	task, err := store.InsertTask(context.Background(), queue.TaskSpec{
		Queue:     q,
		State:     state,
		Payload:   payload,
		CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("store.InsertTask: %v", err)
	}
	return task
}

// MustGetTask reloads a task by id.
func MustGetTask(t testing.TB, store *queue.Store, id int64) *queue.Task {
	t.Helper()

	task, err := store.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("store.GetTask(%d): %v", id, err)
	}
	return task
}
