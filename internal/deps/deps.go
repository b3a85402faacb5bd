// Package deps reports whether the external scripts the workers shell out to
// are present and executable.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"allsky/internal/config"
)

// Requirement names one external command.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// RoleScripts lists the commands configured for the worker roles. A role
// with no command idles, so every entry is optional.
func RoleScripts(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{Name: "Capture", Command: cfg.Capture.Command, Description: "exposure script", Optional: true},
		{Name: "Image", Command: cfg.Image.Command, Description: "post-processing script", Optional: true},
		{Name: "Timelapse", Command: cfg.Video.TimelapseCommand, Description: "timelapse encoder", Optional: true},
	}
}

// CheckBinaries resolves each requirement on PATH or as a path.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		status := Status{Requirement: req}
		switch path, err := exec.LookPath(req.Command); {
		case req.Command == "":
			status.Detail = "not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("%q not found or not executable", req.Command)
		default:
			status.Available = true
			status.Detail = path
		}
		results = append(results, status)
	}
	return results
}
