package supervisor

import (
	"time"

	"golang.org/x/sys/unix"
)

type systemInfo struct {
	TotalMemory uint64
	FreeMemory  uint64
	Uptime      time.Duration
}

func readSystemInfo() (systemInfo, bool) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return systemInfo{}, false
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	return systemInfo{
		TotalMemory: uint64(info.Totalram) * unit,
		FreeMemory:  uint64(info.Freeram) * unit,
		Uptime:      time.Duration(info.Uptime) * time.Second,
	}, true
}
