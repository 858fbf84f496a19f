package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	rx, tx  uint64
	procs   []Process
	drives  []Drive
	tempErr error
	procErr error
}

func (f *fakeSource) CPU(context.Context) (CPUReading, error) {
	return CPUReading{PerCore: []float64{10.5, 30.004}, Model: "Cortex-A72"}, nil
}

func (f *fakeSource) CPUTemperature(context.Context) (float64, error) {
	if f.tempErr != nil {
		return 0, f.tempErr
	}
	return 51.2, nil
}

func (f *fakeSource) Memory(context.Context) (MemoryReading, error) {
	return MemoryReading{Used: 1 << 30, Total: 4 << 30, Cached: 1 << 28}, nil
}

func (f *fakeSource) Disks(context.Context) ([]Drive, error) { return f.drives, nil }

func (f *fakeSource) NetCounters(context.Context) (uint64, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rx, f.tx, nil
}

func (f *fakeSource) Host(context.Context) (System, error) {
	return System{Uptime: 3600, Hostname: "pi", Platform: "debian 12", Kernel: "6.6.31"}, nil
}

func (f *fakeSource) Processes(context.Context) ([]Process, error) {
	return f.procs, f.procErr
}

func (f *fakeSource) setCounters(rx, tx uint64) {
	f.mu.Lock()
	f.rx, f.tx = rx, tx
	f.mu.Unlock()
}

type fakeGPU struct {
	temp float64
	err  error
}

func (g fakeGPU) Temperature(context.Context) (float64, error) { return g.temp, g.err }

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestSampler(src *fakeSource, gpu GPUProbe) (*Sampler, *stepClock) {
	clk := &stepClock{t: time.Unix(1_700_000_000, 0)}
	s := NewSampler(src, gpu)
	s.now = clk.now
	return s, clk
}

func TestSampleAssemblesSnapshot(t *testing.T) {
	src := &fakeSource{
		drives: []Drive{
			{Mount: "/boot", Used: 50, Total: 200},
			{Mount: "/", Used: 30, Total: 120},
			{Mount: "/proc-ish", Used: 0, Total: 0},
		},
	}
	s, _ := newTestSampler(src, fakeGPU{temp: 47.8})

	snap, err := s.Sample(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 20.25, snap.CPU.Usage, 0.011)
	assert.Equal(t, []float64{10.5, 30}, snap.CPU.Cores)
	assert.Equal(t, 51.2, snap.CPU.Temperature)
	assert.Equal(t, "Cortex-A72", snap.CPU.Model)

	assert.Equal(t, 25, snap.Memory.Percentage)

	assert.Equal(t, uint64(30), snap.Disk.Used)
	assert.Equal(t, 25, snap.Disk.Percentage)
	require.Len(t, snap.Disk.Drives, 2, "zero-sized mounts are dropped")
	assert.Equal(t, 25, snap.Disk.Drives[0].Percentage)

	assert.Equal(t, 47.8, snap.GPU.Temperature)
	assert.Equal(t, "pi", snap.System.Hostname)
	assert.NotZero(t, snap.Timestamp)
}

func TestSampleProbeFailuresSubstituteZero(t *testing.T) {
	src := &fakeSource{tempErr: errors.New("no thermal zone")}
	s, _ := newTestSampler(src, fakeGPU{err: errors.New("vcgencmd: not found")})

	snap, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.CPU.Temperature)
	assert.Zero(t, snap.GPU.Temperature)
}

func TestSampleFailsOnRequiredReading(t *testing.T) {
	src := &fakeSource{procErr: errors.New("permission denied")}
	s, _ := newTestSampler(src, nil)

	_, err := s.Sample(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestSampleDiskWithoutMounts(t *testing.T) {
	s, _ := newTestSampler(&fakeSource{}, nil)
	snap, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.Disk.Percentage)
	assert.Empty(t, snap.Disk.Drives)
}

func TestSampleRootFallsBackToFirstMount(t *testing.T) {
	src := &fakeSource{drives: []Drive{{Mount: "/data", Used: 1, Total: 0}}}
	s, _ := newTestSampler(src, nil)
	snap, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.Disk.Percentage, "total=0 must not divide by zero")
}

func TestSampleTopProcessesStable(t *testing.T) {
	var procs []Process
	for i := 0; i < 14; i++ {
		procs = append(procs, Process{PID: int32(i + 1), Name: "p", CPU: 1})
	}
	procs[5].CPU = 9
	procs[12].CPU = 5
	s, _ := newTestSampler(&fakeSource{procs: procs}, nil)

	snap, err := s.Sample(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Processes, TopProcesses)

	assert.Equal(t, int32(6), snap.Processes[0].PID)
	assert.Equal(t, int32(13), snap.Processes[1].PID)
	// Ties keep table order.
	for i, want := range []int32{1, 2, 3, 4, 5, 7, 8, 9} {
		assert.Equal(t, want, snap.Processes[i+2].PID)
	}
}

func TestSampleNetworkRatesAndTimestamps(t *testing.T) {
	src := &fakeSource{rx: 1000, tx: 1000}
	s, clk := newTestSampler(src, nil)
	ctx := context.Background()

	first, err := s.Sample(ctx)
	require.NoError(t, err)
	assert.Zero(t, first.Network.RxSec)

	src.setCounters(6000, 3000)
	clk.advance(5 * time.Second)
	second, err := s.Sample(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1000, second.Network.RxSec, 1e-9)
	assert.InDelta(t, 400, second.Network.TxSec, 1e-9)
	assert.Greater(t, second.Timestamp, first.Timestamp)

	// Counter reset and a frozen clock: rates clamp to zero, timestamp still advances.
	src.setCounters(10, 10)
	third, err := s.Sample(ctx)
	require.NoError(t, err)
	assert.Zero(t, third.Network.RxSec)
	assert.Zero(t, third.Network.TxSec)
	assert.Greater(t, third.Timestamp, second.Timestamp)
}

func TestSampleConcurrentCallsAreSerialized(t *testing.T) {
	src := &fakeSource{}
	s, clk := newTestSampler(src, nil)

	var wg sync.WaitGroup
	stamps := make(chan int64, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clk.advance(time.Millisecond)
			snap, err := s.Sample(context.Background())
			if err == nil {
				stamps <- snap.Timestamp
				assert.GreaterOrEqual(t, snap.Network.RxSec, 0.0)
			}
		}()
	}
	wg.Wait()
	close(stamps)

	seen := map[int64]bool{}
	for ts := range stamps {
		assert.False(t, seen[ts], "duplicate timestamp %d", ts)
		seen[ts] = true
	}
	assert.Len(t, seen, 20)
}

func TestParseVCGenTemp(t *testing.T) {
	v, err := parseVCGenTemp("temp=48.3'C\n")
	require.NoError(t, err)
	assert.Equal(t, 48.3, v)

	_, err = parseVCGenTemp("VCHI initialization failed")
	assert.Error(t, err)
}
