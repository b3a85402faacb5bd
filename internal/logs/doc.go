// Package logs reads the supervisor log for the CLI: the last N lines, then
// optionally every line appended afterwards.
package logs
