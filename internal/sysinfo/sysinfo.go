// Package sysinfo reads the resource usage of the host running this process.
package sysinfo

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is a point-in-time reading. Percentages are 0-100.
type Snapshot struct {
	CPUPercent    float64   `json:"cpu"`
	CPUCount      int       `json:"cpuCount"`
	MemoryPercent float64   `json:"memory"`
	MemoryTotal   uint64    `json:"memoryTotal"`
	MemoryUsed    uint64    `json:"memoryUsed"`
	DiskPercent   float64   `json:"disk"`
	DiskTotal     uint64    `json:"diskTotal"`
	DiskUsed      uint64    `json:"diskUsed"`
	UptimeSeconds uint64    `json:"uptime"`
	Goroutines    int       `json:"goroutines"`
	HeapAlloc     uint64    `json:"heapAlloc"`
	Timestamp     time.Time `json:"timestamp"`
}

// Reader takes snapshots of one disk path.
type Reader struct {
	DiskPath string
	// Sample is how long CPU usage is measured for.
	Sample time.Duration
}

func NewReader() *Reader {
	return &Reader{DiskPath: "/", Sample: 200 * time.Millisecond}
}

// Read collects a snapshot. It blocks for r.Sample while measuring CPU.
func (r *Reader) Read(ctx context.Context) (Snapshot, error) {
	s := Snapshot{Timestamp: time.Now().UTC()}

	pct, err := cpu.PercentWithContext(ctx, r.Sample, false)
	if err != nil {
		return s, err
	}
	if len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if s.CPUCount, err = cpu.CountsWithContext(ctx, true); err != nil {
		return s, err
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, err
	}
	s.MemoryPercent, s.MemoryTotal, s.MemoryUsed = vm.UsedPercent, vm.Total, vm.Used

	du, err := disk.UsageWithContext(ctx, r.DiskPath)
	if err != nil {
		return s, err
	}
	s.DiskPercent, s.DiskTotal, s.DiskUsed = du.UsedPercent, du.Total, du.Used

	if s.UptimeSeconds, err = host.UptimeWithContext(ctx); err != nil {
		return s, err
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.Goroutines = runtime.NumGoroutine()
	s.HeapAlloc = ms.HeapAlloc
	return s, nil
}
