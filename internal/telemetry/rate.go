package telemetry

import (
	"sync"
	"time"
)

// RateMeter derives per-second rates from cumulative rx/tx byte counters.
// It keeps the previous reading as its baseline; the derived rate is never
// negative, even when counters reset or the clock does not advance.
type RateMeter struct {
	mu     sync.Mutex
	lastRx uint64
	lastTx uint64
	last   time.Time
	primed bool
}

// Observe records a new counter reading taken at `at` and returns the rx/tx
// rates in bytes per second since the previous reading. The first reading only
// seeds the baseline and yields 0.
func (m *RateMeter) Observe(rx, tx uint64, at time.Time) (rxPerSec, txPerSec float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.primed {
		if dt := at.Sub(m.last).Seconds(); dt > 0 {
			rxPerSec = perSecond(m.lastRx, rx, dt)
			txPerSec = perSecond(m.lastTx, tx, dt)
		}
	}

	m.lastRx = rx
	m.lastTx = tx
	m.last = at
	m.primed = true
	return rxPerSec, txPerSec
}

func perSecond(prev, cur uint64, dt float64) float64 {
	if cur < prev {
		return 0 // counter reset (reboot, interface re-created)
	}
	return float64(cur-prev) / dt
}
