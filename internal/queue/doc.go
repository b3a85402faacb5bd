// Package queue persists tasks, operator notifications, and daemon state in
// SQLite.
//
// A task addresses either the MAIN queue, executed inside the supervisor, or
// the VIDEO queue, executed by the video worker. Task state only moves
// forward: MANUAL → QUEUED → RUNNING → SUCCESS/FAILED, and any non-terminal
// state may become EXPIRED. Every transition is a single guarded UPDATE, so a
// task that already reached a terminal state rejects further changes with
// ErrInvalidTransition. Tasks left non-terminal by a previous run are expired
// at startup rather than resumed.
//
// Payloads are JSON objects keyed by action. Each action has an embedded JSON
// Schema under schemas/; ValidatePayload checks payloads on submission and on
// intake.
//
// Schema changes bump schemaVersion in schema.go; the database is recreated
// rather than migrated.
package queue
