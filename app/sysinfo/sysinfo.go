// Package sysinfo reports the panel host's resource usage, shown in the
// settings modal and the console footer so an operator can tell a slow
// panel host from a slow backend.
package sysinfo

import (
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Info is a best effort snapshot, fields are -1 when the platform or
// permissions make them unavailable.
type Info struct {
	CPUPercent  int
	MemPercent  int
	Load1       float64
	DiskFreePct int
}

// sample window for the CPU reading, short enough for an interactive modal
const cpuSample = 200 * time.Millisecond

// Collect gathers the snapshot, disk usage measured at the given path,
// empty means root.
func Collect(diskPath string) Info {
	if diskPath == "" {
		diskPath = "/"
	}
	res := Info{CPUPercent: -1, MemPercent: -1, Load1: -1, DiskFreePct: -1}

	if cpuPercent, err := cpu.Percent(cpuSample, false); err == nil && len(cpuPercent) > 0 {
		res.CPUPercent = int(cpuPercent[0])
	}
	if v, err := mem.VirtualMemory(); err == nil {
		res.MemPercent = int(v.UsedPercent)
	}
	if loads, err := load.Avg(); err == nil {
		res.Load1 = loads.Load1
	}
	if usage, err := disk.Usage(diskPath); err == nil {
		res.DiskFreePct = 100 - int(usage.UsedPercent)
	}
	return res
}
