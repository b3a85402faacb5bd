package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

var errNotRunning = errors.New("allsky supervisor is not running")

// readPID returns the pid recorded in path.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, errNotRunning
	}
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %s is malformed", path)
	}
	return pid, nil
}

// processAlive reports whether pid exists. EPERM means it exists but
// belongs to another user.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// runningPID returns the live supervisor pid, or errNotRunning when the
// pid file is missing or stale.
func runningPID(path string) (int, error) {
	pid, err := readPID(path)
	if err != nil {
		return 0, err
	}
	if !processAlive(pid) {
		return 0, errNotRunning
	}
	return pid, nil
}
