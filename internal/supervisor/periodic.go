package supervisor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"allsky/internal/logging"
	"allsky/internal/otel"
	"allsky/internal/queue"
	"allsky/internal/workqueue"
)

// timelapseLookback picks the night a scheduled timelapse renders: the
// calendar day twelve hours before the schedule fires.
const timelapseLookback = 12 * time.Hour

// armTimers sets the first firing of every timer relative to now. Cleanup
// is due immediately, so it runs with the first periodic firing.
func (s *Supervisor) armTimers(now time.Time) {
	cfg := s.Config()
	s.nextPeriodic = now.Add(cfg.PeriodicInterval())
	s.nextCleanup = now
	if s.timelapse != nil {
		s.nextTimelapse = s.timelapse.Next(now)
	}
}

// periodic runs housekeeping whose timer has expired. Timers re-arm from the
// time they are observed, not from when they were due.
func (s *Supervisor) periodic(ctx context.Context) {
	now := s.now()
	cfg := s.Config()

	if s.timelapse != nil && !s.nextTimelapse.IsZero() && !now.Before(s.nextTimelapse) {
		s.nextTimelapse = s.timelapse.Next(now)
		s.queueTimelapse(ctx, now)
	}

	if now.Before(s.nextPeriodic) {
		return
	}
	logging.WarnWithContext(s.logger, "Periodic tasks triggered", "periodic_tasks",
		logging.String(logging.FieldErrorHint, "none"),
		logging.String(logging.FieldImpact, "none"),
	)
	s.nextPeriodic = now.Add(cfg.PeriodicInterval())

	if now.Before(s.nextCleanup) {
		return
	}
	s.nextCleanup = now.Add(cfg.CleanupInterval())
	s.cleanup(ctx, now)
}

func (s *Supervisor) cleanup(ctx context.Context, now time.Time) {
	cfg := s.Config()

	deleted, err := s.store.DeleteOlderThan(ctx, now.Add(-cfg.TaskRetention()))
	if err != nil {
		logging.ErrorWithContext(s.logger, "Unable to delete expired tasks", "task_cleanup_failed", logging.Error(err))
	} else {
		s.logger.Info(fmt.Sprintf("Found %d expired tasks to delete", deleted), logging.Int64("deleted", deleted))
	}

	s.queueVideoTask(ctx, queue.Payload{
		"action":     "systemHealthCheck",
		"img_folder": cfg.Paths.ImageDir,
		"timespec":   nil,
		"night":      nil,
		"camera_id":  nil,
	})

	purged, err := s.store.PurgeExpiredNotifications(ctx, now)
	if err != nil {
		logging.WarnWithContext(s.logger, "Unable to purge expired notifications", "notification_purge_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale notifications remain until the next cleanup"),
		)
		return
	}
	if purged > 0 {
		s.logger.Info("Purged expired notifications", logging.Int64("purged", purged))
	}
}

func (s *Supervisor) queueTimelapse(ctx context.Context, now time.Time) {
	timespec := now.Add(-timelapseLookback).Format("20060102")
	s.logger.Info("Scheduled timelapse due", logging.String("timespec", timespec))
	s.queueVideoTask(ctx, queue.Payload{
		"action":     "generateVideo",
		"timespec":   timespec,
		"night":      true,
		"img_folder": s.Config().Paths.ImageDir,
		"camera_id":  nil,
	})
}

// queueVideoTask inserts a QUEUED video task and hands its id to the video
// worker.
func (s *Supervisor) queueVideoTask(ctx context.Context, payload queue.Payload) {
	task, err := s.store.InsertTask(ctx, queue.TaskSpec{
		Queue:   queue.QueueVideo,
		State:   queue.StateQueued,
		Payload: payload,
	})
	if err != nil {
		logging.ErrorWithContext(s.logger, "Unable to queue video task", "task_insert_failed",
			logging.Action(payload.Action()),
			logging.Error(err),
		)
		return
	}
	s.queues.Video.Put(workqueue.TaskMessage(task.ID))
	if s.metrics != nil {
		s.metrics.TasksDispatched.Add(ctx, 1, metric.WithAttributes(
			otel.AttrQueue.String(string(queue.QueueVideo)),
			otel.AttrAction.String(payload.Action()),
		))
	}
}
