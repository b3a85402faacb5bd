// Package roles provides the built-in worker roles: capture, image, video,
// and upload. Camera control and rendering live in the external commands
// they invoke under the alarm.
package roles

import "allsky/internal/worker"

// Registry returns constructors for every built-in role.
func Registry() worker.Registry {
	return worker.Registry{
		worker.RoleCapture: newCapture,
		worker.RoleImage:   newImage,
		worker.RoleVideo:   newVideo,
		worker.RoleUpload:  newUpload,
	}
}
