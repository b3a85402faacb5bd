// Package workqueue carries messages between the supervisor and the worker
// roles. Queues are in-memory only; durable work lives in the task store and
// crosses a queue as a task id.
package workqueue

import (
	"fmt"
	"time"

	"allsky/internal/telemetry"
)

// Kind discriminates a Message.
type Kind int

const (
	KindStop Kind = iota + 1
	KindReload
	KindTask
	KindSetTime
	KindImage
	KindUpload
)

func (k Kind) String() string {
	switch k {
	case KindStop:
		return "stop"
	case KindReload:
		return "reload"
	case KindTask:
		return "task"
	case KindSetTime:
		return "settime"
	case KindImage:
		return "image"
	case KindUpload:
		return "upload"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ImageJob hands a captured frame to the image role.
type ImageJob struct {
	Path       string
	CapturedAt time.Time
	Exposure   float64
}

// UploadJob hands a processed frame to the upload pool together with the
// readings it was taken under.
type UploadJob struct {
	Path      string
	Telemetry telemetry.Values
}

// Message is one work queue entry. Only the field matching Kind is set.
type Message struct {
	Kind       Kind
	TaskID     int64
	TimeOffset int
	Image      ImageJob
	Upload     UploadJob
}

// StopMessage asks the consuming worker to exit.
func StopMessage() Message { return Message{Kind: KindStop} }

// ReloadMessage asks the consuming worker to refresh its config-derived state.
func ReloadMessage() Message { return Message{Kind: KindReload} }

// TaskMessage references a task row by id.
func TaskMessage(id int64) Message { return Message{Kind: KindTask, TaskID: id} }

// SetTimeMessage carries a clock offset in seconds.
func SetTimeMessage(offset int) Message { return Message{Kind: KindSetTime, TimeOffset: offset} }

// ImageMessage wraps an ImageJob.
func ImageMessage(job ImageJob) Message { return Message{Kind: KindImage, Image: job} }

// UploadMessage wraps an UploadJob.
func UploadMessage(job UploadJob) Message { return Message{Kind: KindUpload, Upload: job} }
