package queue

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeLayout is fixed width so lexical order in SQLite equals time order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const taskColumns = "id, queue, state, payload, result, created_at, updated_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id         int64
		queueName  string
		stateName  string
		payloadRaw sql.NullString
		result     sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&id, &queueName, &stateName, &payloadRaw, &result, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	payload, err := decodePayload(payloadRaw.String)
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", id, err)
	}
	task := &Task{
		ID:      id,
		Queue:   Queue(queueName),
		State:   State(stateName),
		Payload: payload,
		Result:  result.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	return task, nil
}

func scanNotification(scanner interface{ Scan(dest ...any) error }) (*Notification, error) {
	var (
		n          Notification
		category   string
		createdRaw string
		expiresRaw string
		ack        int
	)
	if err := scanner.Scan(&n.ID, &category, &n.Key, &n.Message, &createdRaw, &expiresRaw, &ack); err != nil {
		return nil, err
	}
	n.Category = NotificationCategory(category)
	n.Acked = ack != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		n.CreatedAt = created
	}
	if expires, err := parseTimeString(expiresRaw); err == nil {
		n.ExpiresAt = expires
	}
	return &n, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func stateArgs(states []State) []any {
	args := make([]any, 0, len(states))
	for _, state := range states {
		args = append(args, string(state))
	}
	return args
}
