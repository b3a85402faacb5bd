package roles

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"allsky/internal/logging"
	"allsky/internal/transfer"
	"allsky/internal/worker"
	"allsky/internal/workqueue"
)

type upload struct {
	env     worker.Env
	logger  *slog.Logger
	backend transfer.Backend
	timeout time.Duration
}

func newUpload(env worker.Env) (worker.Runner, error) {
	return &upload{env: env, logger: env.Logger}, nil
}

func (w *upload) connect(ctx context.Context) error {
	cfg := w.env.Config()
	backend, err := transfer.New(cfg, w.logger)
	if err != nil {
		return err
	}
	if err := backend.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s backend: %w", backend.Name(), err)
	}
	w.backend = backend
	w.timeout = cfg.UploadTimeout()
	return nil
}

func (w *upload) close() {
	if w.backend == nil {
		return
	}
	if err := w.backend.Close(); err != nil {
		w.logger.Warn("Closing transfer backend failed", logging.Error(err))
	}
	w.backend = nil
}

func (w *upload) Run(ctx context.Context) error {
	if err := w.connect(ctx); err != nil {
		return err
	}
	defer w.close()
	w.logger.Info("File uploader started", logging.String("backend", w.backend.Name()))
	return serve(ctx, w.env.In, w.handle)
}

func (w *upload) handle(ctx context.Context, msg workqueue.Message) (bool, error) {
	switch msg.Kind {
	case workqueue.KindReload:
		w.close()
		if err := w.connect(ctx); err != nil {
			return false, err
		}
		w.logger.Info("File uploader reloaded configuration", logging.String("backend", w.backend.Name()))
	case workqueue.KindUpload:
		item := transfer.Item{Path: msg.Upload.Path, Telemetry: msg.Upload.Telemetry}
		err := w.env.Alarm.Run(ctx, w.timeout, "upload "+w.backend.Name(), func(runCtx context.Context) error {
			return w.backend.Send(runCtx, item)
		})
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			logging.WarnWithContext(w.logger, "Upload failed", "upload_failed",
				logging.String("path", item.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the [upload] backend settings"),
				logging.String(logging.FieldImpact, "frame was not transferred"),
			)
		}
	default:
		w.logger.Warn("File uploader ignoring message", logging.String("kind", msg.Kind.String()))
	}
	return false, nil
}
