package supervisor

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"allsky/internal/logging"
	"allsky/internal/otel"
	"allsky/internal/queue"
	"allsky/internal/workqueue"
)

// intake dispatches every MANUAL task, oldest first. A failure on one task
// is logged and the batch continues.
func (s *Supervisor) intake(ctx context.Context) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "tasks.intake")
	defer span.End()

	s.logger.Debug("Checking for manually submitted tasks")
	tasks, err := s.store.ManualTasks(ctx)
	if err != nil {
		logging.ErrorWithContext(s.logger, "Unable to read manual tasks", "task_intake_failed", logging.Error(err))
		return
	}

	reloadSeen := false
	for _, task := range tasks {
		logger := s.logger.With(
			logging.TaskID(task.ID),
			logging.Queue(string(task.Queue)),
		)
		if err := s.dispatch(ctx, task, &reloadSeen); err != nil {
			logging.ErrorWithContext(logger, "Unable to dispatch task", "task_dispatch_failed", logging.Error(err))
			continue
		}
		if s.metrics != nil {
			s.metrics.TasksDispatched.Add(ctx, 1, metric.WithAttributes(
				otel.AttrQueue.String(string(task.Queue)),
				otel.AttrAction.String(task.Payload.Action()),
			))
		}
	}
}

func (s *Supervisor) dispatch(ctx context.Context, task *queue.Task, reloadSeen *bool) error {
	switch task.Queue {
	case queue.QueueVideo:
		s.logger.Info(fmt.Sprintf("Queuing manual task %d", task.ID), logging.TaskID(task.ID))
		if err := s.store.MarkQueued(ctx, task.ID); err != nil {
			return err
		}
		s.queues.Video.Put(workqueue.TaskMessage(task.ID))
		return nil
	case queue.QueueMain:
		return s.runMainTask(ctx, task, reloadSeen)
	default:
		logging.ErrorWithContext(s.logger, fmt.Sprintf("Unmanaged queue %s", task.Queue), "task_unmanaged_queue", logging.TaskID(task.ID))
		return s.store.MarkFailed(ctx, task.ID, fmt.Sprintf("Unmanaged queue %s", task.Queue))
	}
}

// runMainTask executes a MAIN task inline. Only the first reload of a batch
// takes effect; the rest are expired.
func (s *Supervisor) runMainTask(ctx context.Context, task *queue.Task, reloadSeen *bool) error {
	action := task.Payload.Action()
	logger := s.logger.With(logging.TaskID(task.ID), logging.Action(action))
	logger.Info("Picked up MAIN task")

	if err := queue.ValidatePayload(queue.QueueMain, task.Payload); err != nil {
		if errors.Is(err, queue.ErrUnknownAction) {
			logging.ErrorWithContext(logger, fmt.Sprintf("Unknown action: %s", action), "task_unknown_action")
			return s.store.MarkFailed(ctx, task.ID, fmt.Sprintf("Unknown action: %s", action))
		}
		logging.ErrorWithContext(logger, "Rejected MAIN task payload", "task_invalid_payload", logging.Error(err))
		return s.store.MarkFailed(ctx, task.ID, err.Error())
	}

	switch action {
	case "reload":
		if *reloadSeen {
			logger.Info("Skipping duplicate reload signal")
			return s.store.MarkExpired(ctx, task.ID, "Skipped duplicate reload")
		}
		*reloadSeen = true
		s.reload.Store(true)
		return s.store.MarkSuccess(ctx, task.ID, "Reloaded indi-allsky process")
	case "settime":
		offset, ok := task.Payload.Int("time_offset")
		if !ok {
			msg := fmt.Sprintf("Invalid time_offset: %v", task.Payload["time_offset"])
			logging.ErrorWithContext(logger, msg, "task_invalid_payload")
			return s.store.MarkFailed(ctx, task.ID, msg)
		}
		s.timeOffset.Store(offset)
		logger.Info(fmt.Sprintf("Set time offset: %ds", offset))
		s.queues.Capture.Put(workqueue.SetTimeMessage(int(offset)))
		return s.store.MarkSuccess(ctx, task.ID, "Set time queued")
	default:
		logging.ErrorWithContext(logger, fmt.Sprintf("Unknown action: %s", action), "task_unknown_action")
		return s.store.MarkFailed(ctx, task.ID, fmt.Sprintf("Unknown action: %s", action))
	}
}
