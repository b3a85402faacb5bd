// Package transfer moves processed frames off the camera host.
//
// Backends are looked up by the upload.backend config value. Each upload
// worker owns one Backend for its lifetime and closes it on exit.
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"allsky/internal/config"
	"allsky/internal/logging"
	"allsky/internal/telemetry"
)

// Item is one frame plus the readings it was captured under.
type Item struct {
	Path      string
	Telemetry telemetry.Values
}

// Backend delivers items to one destination.
type Backend interface {
	Name() string
	Connect(ctx context.Context) error
	Send(ctx context.Context, item Item) error
	Close() error
}

// Constructor builds a backend from configuration.
type Constructor func(cfg *config.Config, logger *slog.Logger) (Backend, error)

var constructors = map[string]Constructor{
	config.UploadBackendNone:  newNone,
	config.UploadBackendLocal: newLocal,
	config.UploadBackendMQTT:  newMQTT,
}

// Backends lists the registered backend names.
func Backends() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the backend selected by cfg.Upload.Backend.
func New(cfg *config.Config, logger *slog.Logger) (Backend, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Upload.Backend))
	if name == "" {
		name = config.UploadBackendNone
	}
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown upload backend %q", cfg.Upload.Backend)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return ctor(cfg, logger.With(logging.String(logging.FieldComponent, "transfer"), logging.String("backend", name)))
}

type noneBackend struct {
	logger *slog.Logger
}

func newNone(_ *config.Config, logger *slog.Logger) (Backend, error) {
	return &noneBackend{logger: logger}, nil
}

func (b *noneBackend) Name() string                  { return config.UploadBackendNone }
func (b *noneBackend) Connect(context.Context) error { return nil }
func (b *noneBackend) Close() error                  { return nil }

func (b *noneBackend) Send(_ context.Context, item Item) error {
	b.logger.Debug("upload disabled, discarding frame", slog.String("path", item.Path))
	return nil
}
