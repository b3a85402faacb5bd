// Package main hosts the allsky CLI.
//
// `allsky run` starts the supervisor in the foreground. The remaining
// commands work against the same task database and pid file: submitting and
// listing tasks, reading and acknowledging notifications, reporting status,
// and signalling a running supervisor to reload or stop.
package main
