// Package notifications records operator notifications and optionally pushes
// them to ntfy.
//
// Every notification is persisted through the task store first; the store
// refuses a duplicate while an unacknowledged one with the same category and
// key is still active, and only newly recorded notifications are pushed.
// Push failures are logged and never surface to callers.
package notifications
