// Package worker defines the contract between the supervisor and the roles it
// keeps alive.
//
// A role is built by a Factory looked up in a Registry. Each build yields a
// Runner that is wrapped in a Process: one goroutine, one cancellable
// context, and one error channel. A panic or a non-cancellation error from
// the runner is converted into a CrashReport and written to that channel
// before the process is marked exited, so the supervisor always finds the
// report once Alive turns false.
package worker
