package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Transition moves a task to state to. The update is guarded by the allowed
// predecessor states, so a task is never moved backwards or out of a
// terminal state. result is stored when non-empty.
func (s *Store) Transition(ctx context.Context, id int64, to State, result string) error {
	from, ok := allowedFrom[to]
	if !ok {
		return fmt.Errorf("%w: no transition enters %s", ErrInvalidTransition, to)
	}
	args := []any{string(to), nullableString(result), formatTime(s.currentTime()), id}
	args = append(args, stateArgs(from)...)
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks SET state = ?, result = COALESCE(?, result), updated_at = ?
         WHERE id = ? AND state IN (`+makePlaceholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("transition task %d to %s: %w", id, to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition task %d to %s: %w", id, to, err)
	}
	if affected == 1 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ensureContext(ctx), `SELECT state FROM tasks WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read task %d state: %w", id, err)
	}
	return fmt.Errorf("%w: task %d is %s, cannot move to %s", ErrInvalidTransition, id, current, to)
}

// MarkQueued moves a MANUAL task to QUEUED.
func (s *Store) MarkQueued(ctx context.Context, id int64) error {
	return s.Transition(ctx, id, StateQueued, "")
}

// MarkRunning moves a QUEUED task to RUNNING.
func (s *Store) MarkRunning(ctx context.Context, id int64) error {
	return s.Transition(ctx, id, StateRunning, "")
}

// MarkSuccess records a successful outcome.
func (s *Store) MarkSuccess(ctx context.Context, id int64, result string) error {
	return s.Transition(ctx, id, StateSuccess, result)
}

// MarkFailed records a failed outcome.
func (s *Store) MarkFailed(ctx context.Context, id int64, result string) error {
	return s.Transition(ctx, id, StateFailed, result)
}

// MarkExpired abandons a task without running it.
func (s *Store) MarkExpired(ctx context.Context, id int64, result string) error {
	return s.Transition(ctx, id, StateExpired, result)
}

// ExpireOrphaned marks every MANUAL, QUEUED, or RUNNING task EXPIRED in one
// transaction and returns the affected ids. It runs at supervisor startup so
// work interrupted by a previous run is never resumed.
func (s *Store) ExpireOrphaned(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ids = ids[:0]
		placeholders := makePlaceholders(len(orphanStates))
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM tasks WHERE state IN (`+placeholders+`) ORDER BY id ASC`,
			stateArgs(orphanStates)...,
		)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		args := []any{string(StateExpired), "Expired orphaned task", formatTime(s.currentTime())}
		args = append(args, stateArgs(orphanStates)...)
		_, err = tx.ExecContext(ctx,
			`UPDATE tasks SET state = ?, result = ?, updated_at = ? WHERE state IN (`+placeholders+`)`,
			args...,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("expire orphaned tasks: %w", err)
	}
	return ids, nil
}
