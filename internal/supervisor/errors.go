package supervisor

import "errors"

var (
	// ErrAlreadyRunning is returned by Startup when another supervisor holds
	// the instance lock.
	ErrAlreadyRunning = errors.New("another allsky instance is already running")
	// ErrConfigLevelMismatch is returned by Startup when the config file was
	// written for a different release.
	ErrConfigLevelMismatch = errors.New("config level does not match this release")
)
