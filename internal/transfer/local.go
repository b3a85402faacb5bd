package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"allsky/internal/config"
	"allsky/internal/fileutil"
)

type localBackend struct {
	dir    string
	logger *slog.Logger
}

func newLocal(cfg *config.Config, logger *slog.Logger) (Backend, error) {
	dir := strings.TrimSpace(cfg.Upload.Local.Dir)
	if dir == "" {
		return nil, fmt.Errorf("upload.local.dir is required for the local backend")
	}
	return &localBackend{dir: dir, logger: logger}, nil
}

func (b *localBackend) Name() string { return config.UploadBackendLocal }

func (b *localBackend) Connect(context.Context) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	return nil
}

func (b *localBackend) Send(ctx context.Context, item Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := filepath.Join(b.dir, filepath.Base(item.Path))
	if err := fileutil.CopyVerified(item.Path, target); err != nil {
		return fmt.Errorf("copy %s: %w", item.Path, err)
	}
	return nil
}

func (b *localBackend) Close() error { return nil }
