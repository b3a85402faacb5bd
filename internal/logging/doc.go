// Package logging assembles the structured slog loggers used by the allsky
// daemon and CLI.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// standard field keys (component, worker, task_id). The console handler prints
// the worker name and task id as the line subject, so supervisor output reads
// as "[supervisor] Image002 - Starting worker". The daemon tees the console
// stream into a JSON log file under paths.log_dir.
package logging
