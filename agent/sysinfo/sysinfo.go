// Package sysinfo collects the on-agent system snapshot served at
// GET /rekcod.agent/sys (§6). It is a thin collaborator: the core treats its
// internals as out of scope beyond the shape of what it returns.
package sysinfo

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is the response body for GET /rekcod.agent/sys.
type Snapshot struct {
	Hostname    string  `json:"hostname"`
	OS          string  `json:"os"`
	Arch        string  `json:"arch"`
	KernelVer   string  `json:"kernel_version"`
	Uptime      uint64  `json:"uptime_seconds"`
	CPUCount    int     `json:"cpu_count"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemTotalMB  uint64  `json:"mem_total_mb"`
	MemUsedMB   uint64  `json:"mem_used_mb"`
	MemPercent  float64 `json:"mem_percent"`
}

// Collect gathers a best-effort snapshot; partial failures leave the
// affected fields zero rather than aborting the whole call.
func Collect(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{OS: runtime.GOOS, Arch: runtime.GOARCH, CPUCount: runtime.NumCPU()}

	if hi, err := host.InfoWithContext(ctx); err == nil {
		snap.Hostname = hi.Hostname
		snap.KernelVer = hi.KernelVersion
		snap.Uptime = hi.Uptime
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemTotalMB = vm.Total / 1024 / 1024
		snap.MemUsedMB = vm.Used / 1024 / 1024
		snap.MemPercent = vm.UsedPercent
	}

	return snap, nil
}
