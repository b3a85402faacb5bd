package queue

import "errors"

var (
	// ErrTaskNotFound is returned when a task id does not exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when a task is not in a state the
	// requested transition may start from. Terminal tasks always reject.
	ErrInvalidTransition = errors.New("invalid task state transition")
	// ErrNotificationNotFound is returned when acknowledging an unknown notification.
	ErrNotificationNotFound = errors.New("notification not found")
)
