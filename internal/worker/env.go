package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"allsky/internal/alarm"
	"allsky/internal/config"
	"allsky/internal/queue"
	"allsky/internal/telemetry"
	"allsky/internal/workqueue"
)

// TaskAccess is the slice of the task store a worker may touch.
type TaskAccess interface {
	GetTask(ctx context.Context, id int64) (*queue.Task, error)
	MarkRunning(ctx context.Context, id int64) error
	MarkSuccess(ctx context.Context, id int64, result string) error
	MarkFailed(ctx context.Context, id int64, result string) error
}

// Queues are the shared work queues.
type Queues struct {
	Capture *workqueue.Queue
	Image   *workqueue.Queue
	Video   *workqueue.Queue
	Upload  *workqueue.Queue
}

// NewQueues allocates one queue per role.
func NewQueues() Queues {
	return Queues{
		Capture: workqueue.New(string(RoleCapture)),
		Image:   workqueue.New(string(RoleImage)),
		Video:   workqueue.New(string(RoleVideo)),
		Upload:  workqueue.New(string(RoleUpload)),
	}
}

// Inbound returns the queue a role consumes.
func (q Queues) Inbound(role Role) *workqueue.Queue {
	switch role {
	case RoleCapture:
		return q.Capture
	case RoleImage:
		return q.Image
	case RoleVideo:
		return q.Video
	case RoleUpload:
		return q.Upload
	}
	return nil
}

// Env is everything a role constructor receives for one generation.
type Env struct {
	Role       Role
	Name       string
	Generation int
	In         *workqueue.Queue
	Queues     Queues
	Registers  *telemetry.Registers
	Config     func() *config.Config
	Tasks      TaskAccess
	Alarm      *alarm.Clock
	TimeOffset *atomic.Int64
	Logger     *slog.Logger
}

// Factory builds the runner for one generation of a role.
type Factory func(env Env) (Runner, error)

// Registry maps each role to its constructor.
type Registry map[Role]Factory

// Validate fails when any of roles has no constructor.
func (r Registry) Validate(roles ...Role) error {
	for _, role := range roles {
		if r[role] == nil {
			return fmt.Errorf("no constructor registered for %s role", role)
		}
	}
	return nil
}

// Build constructs a runner for env.Role.
func (r Registry) Build(env Env) (Runner, error) {
	factory := r[env.Role]
	if factory == nil {
		return nil, fmt.Errorf("no constructor registered for %s role", env.Role)
	}
	runner, err := factory(env)
	if err != nil {
		return nil, fmt.Errorf("construct %s: %w", env.Name, err)
	}
	return runner, nil
}
