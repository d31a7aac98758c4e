package resource

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Usage is one sample of host resource usage.
type Usage struct {
	MemoryUsedMB float64 `json:"memory_used_mb"`
	CPUPercent   float64 `json:"cpu_percent"`
}

// Probe samples host resource usage.
type Probe interface {
	Sample(ctx context.Context) (Usage, error)
}

// ProbeFunc adapts an ordinary function to the Probe interface.
type ProbeFunc func(ctx context.Context) (Usage, error)

// Sample calls f(ctx).
func (f ProbeFunc) Sample(ctx context.Context) (Usage, error) {
	return f(ctx)
}

// SystemProbe reads memory and CPU usage of the host via gopsutil.
//
// CPU usage is measured since the previous sample, so the first sample after
// start-up may report zero.
type SystemProbe struct{}

// Sample implements Probe.
func (SystemProbe) Sample(ctx context.Context) (Usage, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to read memory usage: %w", err)
	}

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	return Usage{
		MemoryUsedMB: float64(vm.Total-vm.Available) / 1024 / 1024,
		CPUPercent:   cpuPct,
	}, nil
}
