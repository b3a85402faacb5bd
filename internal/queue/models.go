package queue

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Queue names the consumer a task is addressed to.
type Queue string

const (
	// QueueMain tasks execute synchronously inside the supervisor.
	QueueMain Queue = "MAIN"
	// QueueVideo tasks are handed to the video worker by id.
	QueueVideo Queue = "VIDEO"
)

// ParseQueue accepts a queue name in any case.
func ParseQueue(value string) (Queue, bool) {
	switch Queue(strings.ToUpper(strings.TrimSpace(value))) {
	case QueueMain:
		return QueueMain, true
	case QueueVideo:
		return QueueVideo, true
	}
	return "", false
}

// State represents the lifecycle of a task.
type State string

const (
	StateManual  State = "MANUAL"
	StateQueued  State = "QUEUED"
	StateRunning State = "RUNNING"
	StateSuccess State = "SUCCESS"
	StateFailed  State = "FAILED"
	StateExpired State = "EXPIRED"
)

var allStates = []State{
	StateManual,
	StateQueued,
	StateRunning,
	StateSuccess,
	StateFailed,
	StateExpired,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// States returns every known state in lifecycle order.
func States() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// ParseState accepts a state name in any case.
func ParseState(value string) (State, bool) {
	state := State(strings.ToUpper(strings.TrimSpace(value)))
	_, ok := stateSet[state]
	return state, ok
}

// orphanStates are non-terminal; rows left in them by a previous run are expired.
var orphanStates = []State{StateManual, StateQueued, StateRunning}

// allowedFrom maps a target state to the states it may be entered from.
// MAIN tasks run in-process and go straight from MANUAL to a terminal state.
var allowedFrom = map[State][]State{
	StateQueued:  {StateManual},
	StateRunning: {StateQueued},
	StateSuccess: {StateManual, StateQueued, StateRunning},
	StateFailed:  {StateManual, StateQueued, StateRunning},
	StateExpired: {StateManual, StateQueued, StateRunning},
}

// IsTerminal reports whether the state can never be left.
func (s State) IsTerminal() bool {
	switch s {
	case StateSuccess, StateFailed, StateExpired:
		return true
	}
	return false
}

// Payload is the structured body of a task: an action name plus arguments.
type Payload map[string]any

// Action returns the payload action name.
func (p Payload) Action() string {
	return p.String("action")
}

// String returns a string argument, or "" when absent or not a string.
func (p Payload) String(key string) string {
	if value, ok := p[key].(string); ok {
		return value
	}
	return ""
}

// Int returns an integral argument. JSON numbers decode as json.Number or
// float64 depending on the reader, so both are accepted.
func (p Payload) Int(key string) (int64, bool) {
	switch v := p[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		return integral(string(v))
	case string:
		return integral(strings.TrimSpace(v))
	}
	return 0, false
}

// integral parses a decimal number that may be written with a fraction or
// exponent, such as 120.0 or 1.2e2, as long as its value is whole.
func integral(text string) (int64, bool) {
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, true
	}
	r, ok := new(big.Rat).SetString(text)
	if !ok || !r.IsInt() || !r.Num().IsInt64() {
		return 0, false
	}
	return r.Num().Int64(), true
}

// Bool returns a boolean argument.
func (p Payload) Bool(key string) (bool, bool) {
	v, ok := p[key].(bool)
	return v, ok
}

func (p Payload) encode() (string, error) {
	if p == nil {
		p = Payload{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

func decodePayload(raw string) (Payload, error) {
	payload := Payload{}
	if strings.TrimSpace(raw) == "" {
		return payload, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

// Task is a durable unit of deferred or cross-boundary work.
type Task struct {
	ID        int64
	Queue     Queue
	State     State
	Payload   Payload
	Result    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskSpec describes a task to insert. A zero CreatedAt means now.
type TaskSpec struct {
	Queue     Queue
	State     State
	Payload   Payload
	CreatedAt time.Time
}

// NotificationCategory groups operator-visible notifications.
type NotificationCategory string

const (
	CategoryState   NotificationCategory = "STATE"
	CategoryWorker  NotificationCategory = "WORKER"
	CategoryGeneral NotificationCategory = "GENERAL"
)

// Notification is a persisted operator message.
type Notification struct {
	ID        int64
	Category  NotificationCategory
	Key       string
	Message   string
	CreatedAt time.Time
	ExpiresAt time.Time
	Acked     bool
}
