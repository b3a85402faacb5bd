package worker

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role names a kind of worker the supervisor keeps alive.
type Role string

const (
	RoleCapture Role = "capture"
	RoleImage   Role = "image"
	RoleVideo   Role = "video"
	RoleUpload  Role = "upload"
)

// Roles lists every role in start order.
func Roles() []Role {
	return []Role{RoleCapture, RoleImage, RoleVideo, RoleUpload}
}

var titler = cases.Title(language.English)

// DisplayName is the title-cased role used in worker names and log lines.
func (r Role) DisplayName() string {
	return titler.String(string(r))
}

// WorkerName builds the name of one generation, e.g. Capture001.
func (r Role) WorkerName(generation int) string {
	return fmt.Sprintf("%s%03d", r.DisplayName(), generation)
}

// NotificationKey is the key restart warnings for this role are filed under.
func (r Role) NotificationKey() string {
	switch r {
	case RoleUpload:
		return "FileUploader"
	default:
		return r.DisplayName() + "Worker"
	}
}
