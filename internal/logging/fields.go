package logging

// Structured keys shared by every allsky component. The console handler
// lifts FieldComponent and the worker identity into the line header.
const (
	FieldComponent  = "component"
	FieldWorker     = "worker"     // one generation, e.g. Capture001
	FieldRole       = "role"       // capture, image, video, upload
	FieldGeneration = "generation" // restart counter of a role
	FieldTaskID     = "task_id"
	FieldQueue      = "queue" // MAIN or VIDEO
	FieldAction     = "action"
	FieldRunID      = "run_id"

	// FieldEventType classifies a WARN or ERROR line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is what the operator loses because of a warning.
	FieldImpact = "impact"
)
