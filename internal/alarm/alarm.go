// Package alarm bounds how long a worker waits on an external operation.
//
// Every call armed through a Clock gets its own deadline. Fire trips every
// armed call at once; the supervisor calls it on SIGALRM so an operator can
// unstick a hung capture or render without restarting the daemon.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrTimeout matches every TimeoutError.
var ErrTimeout = errors.New("alarm timeout")

// TimeoutError reports an operation abandoned by the alarm.
type TimeoutError struct {
	Op    string
	After time.Duration
	Fired bool
}

func (e *TimeoutError) Error() string {
	if e.Fired {
		return fmt.Sprintf("%s: alarm fired", e.Op)
	}
	return fmt.Sprintf("%s: timed out after %s", e.Op, e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Clock tracks armed calls.
type Clock struct {
	mu    sync.Mutex
	next  uint64
	armed map[uint64]armedCall
}

type armedCall struct {
	op     string
	after  time.Duration
	cancel context.CancelCauseFunc
}

// NewClock returns a Clock with nothing armed.
func NewClock() *Clock {
	return &Clock{armed: make(map[uint64]armedCall)}
}

// Run calls fn with a context that is cancelled when d elapses or Fire is
// called. A zero or negative d disables the deadline but Fire still applies.
// When the alarm cut fn short the result is a *TimeoutError.
func (c *Clock) Run(ctx context.Context, d time.Duration, op string, fn func(context.Context) error) error {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	id := c.arm(op, d, cancel)
	defer c.disarm(id)

	if d > 0 {
		timer := time.AfterFunc(d, func() {
			cancel(&TimeoutError{Op: op, After: d})
		})
		defer timer.Stop()
	}

	err := fn(runCtx)
	var timeout *TimeoutError
	if errors.As(context.Cause(runCtx), &timeout) {
		return timeout
	}
	return err
}

// Fire trips every armed call. It returns how many were armed.
func (c *Clock) Fire() int {
	c.mu.Lock()
	calls := make([]armedCall, 0, len(c.armed))
	for _, call := range c.armed {
		calls = append(calls, call)
	}
	c.mu.Unlock()

	for _, call := range calls {
		call.cancel(&TimeoutError{Op: call.op, After: call.after, Fired: true})
	}
	return len(calls)
}

// Armed reports the number of calls currently waiting under the alarm.
func (c *Clock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.armed)
}

// Command runs an external program under the alarm and returns its combined
// output.
func (c *Clock) Command(ctx context.Context, d time.Duration, name string, args ...string) ([]byte, error) {
	var output []byte
	err := c.Run(ctx, d, name, func(runCtx context.Context) error {
		cmd := exec.CommandContext(runCtx, name, args...) //nolint:gosec
		cmd.WaitDelay = time.Second
		out, err := cmd.CombinedOutput()
		output = out
		if err != nil {
			return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
		}
		return nil
	})
	return output, err
}

func (c *Clock) arm(op string, d time.Duration, cancel context.CancelCauseFunc) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.armed[c.next] = armedCall{op: op, after: d, cancel: cancel}
	return c.next
}

func (c *Clock) disarm(id uint64) {
	c.mu.Lock()
	delete(c.armed, id)
	c.mu.Unlock()
}
