package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertTask persists a new task and returns it with its assigned id.
func (s *Store) InsertTask(ctx context.Context, spec TaskSpec) (*Task, error) {
	if _, ok := ParseQueue(string(spec.Queue)); !ok {
		return nil, fmt.Errorf("insert task: unknown queue %q", spec.Queue)
	}
	state := spec.State
	if state == "" {
		state = StateManual
	}
	if _, ok := stateSet[state]; !ok || state.IsTerminal() {
		return nil, fmt.Errorf("insert task: invalid initial state %q", state)
	}
	payload, err := spec.Payload.encode()
	if err != nil {
		return nil, err
	}
	now := s.currentTime()
	created := spec.CreatedAt
	if created.IsZero() {
		created = now
	}

	res, err := s.execWithRetry(ctx,
		`INSERT INTO tasks (queue, state, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		string(spec.Queue), string(state), payload, formatTime(created), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert task id: %w", err)
	}
	return &Task{
		ID:        id,
		Queue:     spec.Queue,
		State:     state,
		Payload:   spec.Payload,
		CreatedAt: created.UTC().Truncate(time.Microsecond),
		UpdatedAt: now.Truncate(time.Microsecond),
	}, nil
}

// GetTask loads a task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return task, nil
}

// ManualTasks returns MANUAL tasks addressed to MAIN or VIDEO, oldest first.
func (s *Store) ManualTasks(ctx context.Context) ([]*Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM tasks
         WHERE state = ? AND queue IN (?, ?)
         ORDER BY created_at ASC, id ASC`,
		string(StateManual), string(QueueMain), string(QueueVideo),
	)
}

// ListTasks returns tasks in any of the given states, oldest first. No states
// means every task.
func (s *Store) ListTasks(ctx context.Context, states ...State) ([]*Task, error) {
	if len(states) == 0 {
		return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at ASC, id ASC`)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE state IN (` + makePlaceholders(len(states)) + `)
        ORDER BY created_at ASC, id ASC`
	return s.queryTasks(ctx, query, stateArgs(states)...)
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]*Task, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// TaskStats returns a count of tasks grouped by state.
func (s *Store) TaskStats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM tasks GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// DeleteOlderThan removes every task created before cutoff, regardless of
// state, in one statement.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old tasks: %w", err)
	}
	return res.RowsAffected()
}
