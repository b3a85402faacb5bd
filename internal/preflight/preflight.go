package preflight

import (
	"context"

	"allsky/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable check for cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Image directory", cfg.Paths.ImageDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	switch cfg.Upload.Backend {
	case config.UploadBackendLocal:
		results = append(results, CheckDirectoryAccess("Upload directory", cfg.Upload.Local.Dir))
	case config.UploadBackendMQTT:
		results = append(results, CheckBroker(ctx, cfg.Upload.MQTT.Host, cfg.Upload.MQTT.Port))
	}
	return results
}
