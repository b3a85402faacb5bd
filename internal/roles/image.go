package roles

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"allsky/internal/config"
	"allsky/internal/logging"
	"allsky/internal/worker"
	"allsky/internal/workqueue"
)

type image struct {
	env     worker.Env
	logger  *slog.Logger
	command string
	timeout time.Duration
	upload  bool
}

func newImage(env worker.Env) (worker.Runner, error) {
	w := &image{env: env, logger: env.Logger}
	w.reload()
	return w, nil
}

func (w *image) reload() {
	cfg := w.env.Config()
	w.command = strings.TrimSpace(cfg.Image.Command)
	w.timeout = cfg.ImageTimeout()
	w.upload = cfg.Image.Upload && cfg.Upload.Backend != config.UploadBackendNone
}

func (w *image) Run(ctx context.Context) error {
	w.logger.Info("Image worker started")
	return serve(ctx, w.env.In, w.handle)
}

func (w *image) handle(ctx context.Context, msg workqueue.Message) (bool, error) {
	switch msg.Kind {
	case workqueue.KindReload:
		w.reload()
		w.logger.Info("Image worker reloaded configuration")
	case workqueue.KindImage:
		w.process(ctx, msg.Image)
	default:
		w.logger.Warn("Image worker ignoring message", logging.String("kind", msg.Kind.String()))
	}
	return false, nil
}

func (w *image) process(ctx context.Context, job workqueue.ImageJob) {
	start := time.Now()
	if w.command != "" {
		if _, err := w.env.Alarm.Command(ctx, w.timeout, w.command, job.Path); err != nil {
			w.logger.Error("Image processing failed",
				logging.String("path", job.Path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "image_process_failed"),
				logging.String(logging.FieldImpact, "frame not uploaded"),
			)
			return
		}
	}
	w.logger.Info("Image processed",
		logging.String("path", job.Path),
		logging.Duration("elapsed", time.Since(start)),
	)

	if !w.upload {
		return
	}
	w.env.Queues.Upload.Put(workqueue.UploadMessage(workqueue.UploadJob{
		Path:      job.Path,
		Telemetry: w.env.Registers.Snapshot(),
	}))
}
