// Package broadcast drives the periodic telemetry work: the live push to
// subscribed connections and the history persistence. Both jobs share one
// cron scheduler so they start and stop together.
package broadcast

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sourcegraph/conc"

	"github.com/vesaa/raspterm/internal/metrics"
	"github.com/vesaa/raspterm/internal/models"
	"github.com/vesaa/raspterm/internal/protocol"
	"github.com/vesaa/raspterm/internal/telemetry"
)

// sampleFailedMessage is what on-demand requesters see when sampling fails.
const sampleFailedMessage = "Failed to get stats"

// Sampler produces telemetry snapshots.
type Sampler interface {
	Sample(ctx context.Context) (*telemetry.Snapshot, error)
}

// Recorder persists history rows.
type Recorder interface {
	Append(ctx context.Context, rec *models.StatsRecord) error
}

// Options sets the schedule periods.
type Options struct {
	PushEvery    time.Duration // default 5s
	PersistEvery time.Duration // default 60s
	// JobTimeout bounds one tick's sample and store write. Defaults to 30s.
	JobTimeout time.Duration
}

// Broadcaster owns the subscriber set and both schedules.
type Broadcaster struct {
	sampler Sampler
	rec     Recorder
	subs    *Subscribers
	opts    Options

	mu      sync.Mutex
	sched   *cron.Cron
	cancel  context.CancelFunc
	running atomic.Bool
}

// New creates a stopped Broadcaster.
func New(sampler Sampler, rec Recorder, opts Options) *Broadcaster {
	if opts.PushEvery <= 0 {
		opts.PushEvery = 5 * time.Second
	}
	if opts.PersistEvery <= 0 {
		opts.PersistEvery = time.Minute
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}
	return &Broadcaster{sampler: sampler, rec: rec, subs: NewSubscribers(), opts: opts}
}

// Subscribers exposes the live subscriber set.
func (b *Broadcaster) Subscribers() *Subscribers { return b.subs }

// Subscribe adds sink to the live push.
func (b *Broadcaster) Subscribe(sink protocol.Sink) {
	if b.subs.Add(sink) {
		log.Printf("[stats] %s subscribed (%d subscribers)", sink.ID(), b.subs.Len())
	}
}

// Unsubscribe removes id from the live push. Unknown ids are ignored.
func (b *Broadcaster) Unsubscribe(id string) {
	if b.subs.Remove(id) {
		log.Printf("[stats] %s unsubscribed (%d subscribers)", id, b.subs.Len())
	}
}

// Start schedules the push and persistence jobs. Calling Start on a running
// Broadcaster does nothing.
func (b *Broadcaster) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sched != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := cron.PrintfLogger(log.Default())
	sched := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	sched.Schedule(cron.Every(b.opts.PushEvery), cron.FuncJob(func() {
		jctx, done := context.WithTimeout(ctx, b.opts.JobTimeout)
		defer done()
		b.Push(jctx)
	}))
	sched.Schedule(cron.Every(b.opts.PersistEvery), cron.FuncJob(func() {
		jctx, done := context.WithTimeout(ctx, b.opts.JobTimeout)
		defer done()
		if err := b.Persist(jctx); err != nil {
			log.Printf("[stats] persist failed: %v", err)
		}
	}))
	sched.Start()

	b.sched, b.cancel = sched, cancel
	b.running.Store(true)
	log.Printf("[stats] broadcasting every %s, persisting every %s", b.opts.PushEvery, b.opts.PersistEvery)
}

// Stop halts both schedules and waits for in-flight jobs to return.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	sched, cancel := b.sched, b.cancel
	b.sched, b.cancel = nil, nil
	b.mu.Unlock()
	if sched == nil {
		return
	}

	b.running.Store(false)
	done := sched.Stop()
	cancel()
	<-done.Done()
	log.Printf("[stats] schedules stopped")
}

// Running reports whether the schedules are active.
func (b *Broadcaster) Running() bool { return b.running.Load() }

// Push samples once and sends the snapshot to every subscriber. A failed send
// is logged; the sink stays subscribed until it unsubscribes or detaches.
// It returns the number of deliveries.
func (b *Broadcaster) Push(ctx context.Context) int {
	sinks := b.subs.list()
	if len(sinks) == 0 {
		return 0
	}

	snap, err := b.sampler.Sample(ctx)
	if err != nil {
		log.Printf("[stats] broadcast sample failed: %v", err)
		return 0
	}

	var delivered atomic.Int32
	var wg conc.WaitGroup
	ev := protocol.StatsUpdate{Snapshot: snap}
	for _, sink := range sinks {
		wg.Go(func() {
			if err := sink.Send(ev); err != nil {
				log.Printf("[stats] push to %s failed: %v", sink.ID(), err)
				return
			}
			delivered.Add(1)
		})
	}
	wg.Wait()
	return int(delivered.Load())
}

// Persist samples once and appends the reading to the history.
func (b *Broadcaster) Persist(ctx context.Context) error {
	snap, err := b.sampler.Sample(ctx)
	if err != nil {
		return err
	}
	if err := b.rec.Append(ctx, recordFrom(snap)); err != nil {
		return err
	}
	metrics.StatsRecordsPersisted.Inc()
	return nil
}

// Request answers one stats:request: a fresh snapshot for sink only, or
// stats:error if sampling fails.
func (b *Broadcaster) Request(ctx context.Context, sink protocol.Sink) {
	snap, err := b.sampler.Sample(ctx)
	if err != nil {
		log.Printf("[stats] on-demand sample for %s failed: %v", sink.ID(), err)
		_ = sink.Send(protocol.StatsError{Message: sampleFailedMessage})
		return
	}
	_ = sink.Send(protocol.StatsUpdate{Snapshot: snap})
}

// Current samples once for the REST surface.
func (b *Broadcaster) Current(ctx context.Context) (*telemetry.Snapshot, error) {
	snap, err := b.sampler.Sample(ctx)
	if err != nil {
		return nil, errors.Join(errors.New(sampleFailedMessage), err)
	}
	return snap, nil
}

func recordFrom(s *telemetry.Snapshot) *models.StatsRecord {
	return &models.StatsRecord{
		Timestamp:   s.Timestamp,
		CPUUsage:    s.CPU.Usage,
		CPUTemp:     s.CPU.Temperature,
		GPUTemp:     s.GPU.Temperature,
		MemoryUsed:  s.Memory.Used,
		MemoryTotal: s.Memory.Total,
		DiskUsed:    s.Disk.Used,
		DiskTotal:   s.Disk.Total,
		NetworkRx:   s.Network.Rx,
		NetworkTx:   s.Network.Tx,
	}
}
