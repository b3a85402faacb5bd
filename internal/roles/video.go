package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"allsky/internal/fileutil"
	"allsky/internal/logging"
	"allsky/internal/queue"
	"allsky/internal/worker"
	"allsky/internal/workqueue"
)

// imageExtensions are swept by systemHealthCheck.
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".tif", ".tiff", ".fit", ".fits", ".webp"}

type videoAction func(ctx context.Context, task *queue.Task) (string, error)

type video struct {
	env       worker.Env
	logger    *slog.Logger
	actions   map[string]videoAction
	command   string
	timeout   time.Duration
	imageDir  string
	retention time.Duration
}

func newVideo(env worker.Env) (worker.Runner, error) {
	if env.Tasks == nil {
		return nil, errors.New("video worker requires task store access")
	}
	w := &video{env: env, logger: env.Logger}
	w.actions = map[string]videoAction{
		"systemHealthCheck": w.systemHealthCheck,
		"generateVideo":     w.generateVideo,
	}
	w.reload()
	return w, nil
}

func (w *video) reload() {
	cfg := w.env.Config()
	w.command = strings.TrimSpace(cfg.Video.TimelapseCommand)
	w.timeout = cfg.VideoTimeout()
	w.imageDir = cfg.Paths.ImageDir
	w.retention = time.Duration(cfg.Video.ImageRetentionDays) * 24 * time.Hour
}

func (w *video) Run(ctx context.Context) error {
	w.logger.Info("Video worker started")
	return serve(ctx, w.env.In, w.handle)
}

func (w *video) handle(ctx context.Context, msg workqueue.Message) (bool, error) {
	switch msg.Kind {
	case workqueue.KindReload:
		w.reload()
		w.logger.Info("Video worker reloaded configuration")
	case workqueue.KindTask:
		w.runTask(ctx, msg.TaskID)
	default:
		w.logger.Warn("Video worker ignoring message", logging.String("kind", msg.Kind.String()))
	}
	return false, nil
}

func (w *video) runTask(ctx context.Context, id int64) {
	logger := w.logger.With(logging.TaskID(id))
	task, err := w.env.Tasks.GetTask(ctx, id)
	if err != nil {
		logging.ErrorWithContext(logger, "Unable to load task", "task_load_failed", logging.Error(err))
		return
	}
	if task.State != queue.StateQueued {
		logger.Warn("Skipping task that is no longer queued", logging.String("state", string(task.State)))
		return
	}
	if err := w.env.Tasks.MarkRunning(ctx, id); err != nil {
		logging.ErrorWithContext(logger, "Unable to mark task running", "task_transition_failed", logging.Error(err))
		return
	}

	action := task.Payload.Action()
	logger = logger.With(logging.Action(action))
	fn, ok := w.actions[action]
	if !ok {
		logger.Error("Unknown action", logging.String(logging.FieldEventType, "task_unknown_action"))
		w.finish(ctx, logger, id, "", fmt.Errorf("unknown action: %s", action))
		return
	}

	logger.Info("Running task")
	result, err := fn(ctx, task)
	w.finish(ctx, logger, id, result, err)
}

func (w *video) finish(ctx context.Context, logger *slog.Logger, id int64, result string, runErr error) {
	if runErr != nil {
		logging.ErrorWithContext(logger, "Task failed", "task_failed", logging.Error(runErr))
		if err := w.env.Tasks.MarkFailed(ctx, id, runErr.Error()); err != nil {
			logging.ErrorWithContext(logger, "Unable to mark task failed", "task_transition_failed", logging.Error(err))
		}
		return
	}
	if err := w.env.Tasks.MarkSuccess(ctx, id, result); err != nil {
		logging.ErrorWithContext(logger, "Unable to mark task successful", "task_transition_failed", logging.Error(err))
		return
	}
	logger.Info("Task complete", logging.String("result", result))
}

func (w *video) systemHealthCheck(_ context.Context, task *queue.Task) (string, error) {
	folder := task.Payload.String("img_folder")
	if folder == "" {
		folder = w.imageDir
	}
	if w.retention <= 0 {
		return "Image retention disabled", nil
	}
	cutoff := time.Now().Add(-w.retention)
	swept, err := fileutil.ExpireFiles(folder, cutoff, imageExtensions)
	if err != nil {
		return "", fmt.Errorf("sweep %s: %w", folder, err)
	}
	w.logger.Info("Expired old images",
		logging.String("folder", folder),
		logging.Int("removed", swept.Removed),
		logging.Int("removed_dirs", swept.RemovedDirs),
		logging.Int64("bytes", swept.Bytes),
	)
	return fmt.Sprintf("Removed %d expired images", swept.Removed), nil
}

func (w *video) generateVideo(ctx context.Context, task *queue.Task) (string, error) {
	if w.command == "" {
		return "", errors.New("video.timelapse_command is not configured")
	}
	timespec := task.Payload.String("timespec")
	night, _ := task.Payload.Bool("night")
	folder := task.Payload.String("img_folder")
	if folder == "" {
		folder = w.imageDir
	}
	if _, err := w.env.Alarm.Command(ctx, w.timeout, w.command, timespec, strconv.FormatBool(night), folder); err != nil {
		return "", err
	}
	return fmt.Sprintf("Generated timelapse for %s", timespec), nil
}
