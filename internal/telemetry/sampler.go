package telemetry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/vesaa/raspterm/internal/metrics"
)

// TopProcesses is the number of processes reported per snapshot.
const TopProcesses = 10

// Sampler produces telemetry snapshots. Sample calls are serialized, so the
// network rate baseline always advances with counters and timestamps that
// belong to the same reading, however many schedules share one Sampler.
type Sampler struct {
	src   Source
	gpu   GPUProbe
	rates RateMeter
	now   func() time.Time

	mu     sync.Mutex
	lastTS int64
}

// NewSampler builds a Sampler over src. A nil gpu probe reports 0 °C.
func NewSampler(src Source, gpu GPUProbe) *Sampler {
	return &Sampler{src: src, gpu: gpu, now: time.Now}
}

// NewHostSampler is the production Sampler: gopsutil plus vcgencmd.
func NewHostSampler() *Sampler {
	return NewSampler(NewHostSource(), VCGenCmd{})
}

// Sample collects one Snapshot. The readings run in parallel; any failure other
// than the CPU/GPU temperature probes fails the whole snapshot.
func (s *Sampler) Sample(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	snap, err := s.collect(ctx)
	metrics.StatsSampleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StatsSamples.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.StatsSamples.WithLabelValues("ok").Inc()
	return snap, nil
}

func (s *Sampler) collect(ctx context.Context) (*Snapshot, error) {
	var (
		cpuR    CPUReading
		cpuTemp float64
		gpuTemp float64
		memR    MemoryReading
		drives  []Drive
		rx, tx  uint64
		netAt   time.Time
		sys     System
		procs   []Process
	)

	p := pool.New().WithContext(ctx)
	p.Go(func(ctx context.Context) (err error) { cpuR, err = s.src.CPU(ctx); return })
	p.Go(func(ctx context.Context) (err error) { memR, err = s.src.Memory(ctx); return })
	p.Go(func(ctx context.Context) (err error) { drives, err = s.src.Disks(ctx); return })
	p.Go(func(ctx context.Context) (err error) {
		rx, tx, err = s.src.NetCounters(ctx)
		netAt = s.now()
		return
	})
	p.Go(func(ctx context.Context) (err error) { sys, err = s.src.Host(ctx); return })
	p.Go(func(ctx context.Context) (err error) { procs, err = s.src.Processes(ctx); return })
	p.Go(func(ctx context.Context) error {
		// best-effort: many boards expose no thermal zone
		if t, err := s.src.CPUTemperature(ctx); err == nil {
			cpuTemp = t
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		if s.gpu == nil {
			return nil
		}
		t, err := s.gpu.Temperature(ctx)
		if err == nil {
			gpuTemp = t
		}
		return nil
	})
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("collect telemetry: %w", err)
	}

	rxSec, txSec := s.rates.Observe(rx, tx, netAt)

	return &Snapshot{
		CPU:       buildCPU(cpuR, cpuTemp),
		Memory:    buildMemory(memR),
		Disk:      buildDisk(drives),
		Network:   Network{Rx: rx, Tx: tx, RxSec: rxSec, TxSec: txSec},
		GPU:       GPU{Temperature: gpuTemp},
		System:    sys,
		Processes: topByCPU(procs, TopProcesses),
		Timestamp: s.nextTimestamp(),
	}, nil
}

// nextTimestamp keeps snapshot timestamps strictly increasing even when two
// samples land in the same millisecond.
func (s *Sampler) nextTimestamp() int64 {
	ts := s.now().UnixMilli()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

func buildCPU(r CPUReading, temp float64) CPU {
	cores := make([]float64, len(r.PerCore))
	var sum float64
	for i, c := range r.PerCore {
		cores[i] = round2(c)
		sum += c
	}
	var usage float64
	if len(r.PerCore) > 0 {
		usage = round2(sum / float64(len(r.PerCore)))
	}
	return CPU{Usage: usage, Cores: cores, Temperature: temp, Model: r.Model}
}

func buildMemory(r MemoryReading) Memory {
	return Memory{
		Used:       r.Used,
		Total:      r.Total,
		Percentage: percentOf(r.Used, r.Total),
		Cached:     r.Cached,
	}
}

// buildDisk reports the root mount (first mount when / is absent) and every
// drive with a non-zero size.
func buildDisk(all []Drive) Disk {
	var d Disk
	root := -1
	for i, dr := range all {
		if dr.Mount == "/" {
			root = i
			break
		}
	}
	if root < 0 && len(all) > 0 {
		root = 0
	}
	if root >= 0 {
		d.Used = all[root].Used
		d.Total = all[root].Total
		d.Percentage = percentOf(d.Used, d.Total)
	}

	d.Drives = make([]Drive, 0, len(all))
	for _, dr := range all {
		if dr.Total == 0 {
			continue
		}
		dr.Percentage = percentOf(dr.Used, dr.Total)
		d.Drives = append(d.Drives, dr)
	}
	return d
}

// topByCPU returns the n busiest processes, CPU descending. Ties keep the
// process table order.
func topByCPU(procs []Process, n int) []Process {
	sorted := make([]Process, len(procs))
	copy(sorted, procs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CPU > sorted[j].CPU })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	for i := range sorted {
		sorted[i].CPU = round2(sorted[i].CPU)
		sorted[i].Memory = round2(sorted[i].Memory)
	}
	return sorted
}
