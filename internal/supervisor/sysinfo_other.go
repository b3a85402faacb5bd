//go:build !linux

package supervisor

import "time"

type systemInfo struct {
	TotalMemory uint64
	FreeMemory  uint64
	Uptime      time.Duration
}

func readSystemInfo() (systemInfo, bool) {
	return systemInfo{}, false
}
