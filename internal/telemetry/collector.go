// Package telemetry implements the host metric collection subsystem for RaspTerm.
// It uses gopsutil for cross-platform system telemetry.
package telemetry

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/shirou/gopsutil/v4/sensors"
)

// CPUReading is the instantaneous per-core load plus the CPU model name.
type CPUReading struct {
	PerCore []float64
	Model   string
}

// MemoryReading is raw memory usage in bytes.
type MemoryReading struct {
	Used   uint64
	Total  uint64
	Cached uint64
}

// Source reads raw host figures. The Sampler turns them into a Snapshot.
type Source interface {
	CPU(ctx context.Context) (CPUReading, error)
	CPUTemperature(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (MemoryReading, error)
	Disks(ctx context.Context) ([]Drive, error)
	NetCounters(ctx context.Context) (rx, tx uint64, err error)
	Host(ctx context.Context) (System, error)
	Processes(ctx context.Context) ([]Process, error)
}

// preferred thermal zones, most specific first (Pi SoC, Intel, AMD).
var preferredSensors = []string{"cpu_thermal", "soc_thermal", "coretemp_package_id_0", "k10temp_tctl"}

// HostSource is the gopsutil-backed Source.
type HostSource struct {
	// CPUWindow is the measurement window for CPU load.
	CPUWindow time.Duration

	modelOnce sync.Once
	model     string

	// procs keeps process handles across samples so CPU percentages are
	// deltas since the previous call rather than lifetime averages.
	procMu sync.Mutex
	procs  map[int32]*process.Process
}

// NewHostSource creates a ready-to-use HostSource.
func NewHostSource() *HostSource {
	return &HostSource{
		CPUWindow: 250 * time.Millisecond,
		procs:     make(map[int32]*process.Process),
	}
}

// CPU samples per-core load over CPUWindow.
func (h *HostSource) CPU(ctx context.Context) (CPUReading, error) {
	pcts, err := cpu.PercentWithContext(ctx, h.CPUWindow, true)
	if err != nil {
		return CPUReading{}, fmt.Errorf("cpu load: %w", err)
	}
	return CPUReading{PerCore: pcts, Model: h.cpuModel(ctx)}, nil
}

// cpuModel never changes at runtime; read it once.
func (h *HostSource) cpuModel(ctx context.Context) string {
	h.modelOnce.Do(func() {
		h.model = runtime.GOARCH
		infos, err := cpu.InfoWithContext(ctx)
		if err != nil || len(infos) == 0 {
			return
		}
		switch {
		case infos[0].ModelName != "":
			h.model = infos[0].ModelName
		case infos[0].Model != "":
			h.model = infos[0].Model
		}
	})
	return h.model
}

// CPUTemperature picks the most relevant thermal sensor.
func (h *HostSource) CPUTemperature(ctx context.Context) (float64, error) {
	// gopsutil returns partial results together with *sensors.Warnings; use what we got.
	temps, err := sensors.TemperaturesWithContext(ctx)
	for _, want := range preferredSensors {
		for _, t := range temps {
			if strings.Contains(t.SensorKey, want) && t.Temperature > 0 {
				return t.Temperature, nil
			}
		}
	}
	for _, t := range temps {
		if t.Temperature > 0 {
			return t.Temperature, nil
		}
	}
	if err != nil {
		return 0, fmt.Errorf("cpu temperature: %w", err)
	}
	return 0, nil
}

// Memory returns virtual memory usage.
func (h *HostSource) Memory(ctx context.Context) (MemoryReading, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryReading{}, fmt.Errorf("memory: %w", err)
	}
	return MemoryReading{Used: vm.Used, Total: vm.Total, Cached: vm.Cached}, nil
}

// Disks returns the usage of every physical mount. Mounts that fail to stat are skipped.
func (h *HostSource) Disks(ctx context.Context) ([]Drive, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("disk partitions: %w", err)
	}
	seen := make(map[string]bool, len(partitions))
	drives := make([]Drive, 0, len(partitions))
	for _, p := range partitions {
		if seen[p.Mountpoint] {
			continue
		}
		seen[p.Mountpoint] = true
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		drives = append(drives, Drive{Mount: p.Mountpoint, Used: usage.Used, Total: usage.Total})
	}
	return drives, nil
}

// NetCounters returns cumulative rx/tx bytes aggregated over all interfaces.
func (h *HostSource) NetCounters(ctx context.Context) (uint64, uint64, error) {
	stats, err := psnet.IOCountersWithContext(ctx, false) // aggregate all interfaces
	if err != nil {
		return 0, 0, fmt.Errorf("net counters: %w", err)
	}
	if len(stats) == 0 {
		return 0, 0, nil
	}
	return stats[0].BytesRecv, stats[0].BytesSent, nil
}

// Host returns OS identity and uptime.
func (h *HostSource) Host(ctx context.Context) (System, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return System{}, fmt.Errorf("host info: %w", err)
	}
	return System{
		Uptime:   info.Uptime,
		Hostname: info.Hostname,
		Platform: detailedOS(info),
		Kernel:   info.KernelVersion,
	}, nil
}

// detailedOS returns a descriptive OS version string, or runtime.GOOS as fallback.
func detailedOS(info *host.InfoStat) string {
	if info.Platform == "" {
		return runtime.GOOS
	}
	if info.PlatformVersion != "" {
		return fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion) // e.g., "raspbian 12"
	}
	return info.Platform
}

// Processes returns the process table in the order the OS lists it.
// Processes that exit while being inspected are skipped. CPU is the share
// used since the previous call; a process seen for the first time reports 0.
func (h *HostSource) Processes(ctx context.Context) ([]Process, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("process table: %w", err)
	}

	h.procMu.Lock()
	defer h.procMu.Unlock()
	if h.procs == nil {
		h.procs = make(map[int32]*process.Process)
	}

	alive := make(map[int32]bool, len(pids))
	out := make([]Process, 0, len(pids))
	for _, pid := range pids {
		p, ok := h.procs[pid]
		if !ok {
			if p, err = process.NewProcessWithContext(ctx, pid); err != nil {
				continue
			}
			h.procs[pid] = p
		}
		alive[pid] = true

		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		cpuPct, err := p.PercentWithContext(ctx, 0)
		if err != nil {
			continue
		}
		memPct, err := p.MemoryPercentWithContext(ctx)
		if err != nil {
			continue
		}
		out = append(out, Process{PID: pid, Name: name, CPU: cpuPct, Memory: float64(memPct)})
	}

	for pid := range h.procs {
		if !alive[pid] {
			delete(h.procs, pid)
		}
	}
	return out, nil
}
