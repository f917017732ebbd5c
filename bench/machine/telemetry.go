package machine

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Telemetry is a snapshot of the host a sweep ran on.
type Telemetry struct {
	Hostname        string `yaml:"hostname"`
	OS              string `yaml:"os"`
	Platform        string `yaml:"platform"`
	PlatformVersion string `yaml:"platform_version"`
	KernelVersion   string `yaml:"kernel_version"`
	Arch            string `yaml:"arch"`
	CPUModel        string `yaml:"cpu_model"`
	LogicalCPUs     int    `yaml:"logical_cpus"`
	PhysicalCPUs    int    `yaml:"physical_cpus"`
	MemoryTotal     uint64 `yaml:"memory_total_bytes"`
	MemoryAvailable uint64 `yaml:"memory_available_bytes"`
	NUMANodes       []int  `yaml:"numa_nodes,omitempty"`
}

// CaptureTelemetry reads host, CPU and memory information. NUMA nodes are
// read from sysfsRoot when it is non-empty; a host without NUMA information
// leaves them empty.
func CaptureTelemetry(ctx context.Context, sysfsRoot string) (*Telemetry, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read host info: %w", err)
	}
	t := &Telemetry{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		Arch:            info.KernelArch,
	}

	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		t.CPUModel = cpus[0].ModelName
	}
	if t.LogicalCPUs, err = cpu.CountsWithContext(ctx, true); err != nil {
		return nil, fmt.Errorf("count logical cpus: %w", err)
	}
	// physical core counts are unavailable in some containers
	t.PhysicalCPUs, _ = cpu.CountsWithContext(ctx, false)

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read memory info: %w", err)
	}
	t.MemoryTotal = vm.Total
	t.MemoryAvailable = vm.Available

	if sysfsRoot != "" {
		if topo, err := ReadTopology(sysfsRoot); err == nil {
			t.NUMANodes = topo.NodeIDs()
		}
	}
	return t, nil
}

// String is a one-line summary for logs.
func (t *Telemetry) String() string {
	return fmt.Sprintf("%s (%s %s, kernel %s) %s, %d/%d cpus, %s memory (%s available), %d NUMA nodes",
		t.Hostname, t.Platform, t.PlatformVersion, t.KernelVersion, t.CPUModel,
		t.PhysicalCPUs, t.LogicalCPUs,
		humanize.IBytes(t.MemoryTotal), humanize.IBytes(t.MemoryAvailable), len(t.NUMANodes))
}
