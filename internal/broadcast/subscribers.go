package broadcast

import (
	"sync"

	"github.com/vesaa/raspterm/internal/metrics"
	"github.com/vesaa/raspterm/internal/protocol"
)

// Subscribers is the set of connections receiving scheduled telemetry pushes.
// Membership changes only on subscribe, unsubscribe and detach.
type Subscribers struct {
	mu    sync.RWMutex
	sinks map[string]protocol.Sink
}

// NewSubscribers creates an empty set.
func NewSubscribers() *Subscribers {
	return &Subscribers{sinks: make(map[string]protocol.Sink)}
}

// Add inserts sink; it reports false if the connection was already a member.
func (s *Subscribers) Add(sink protocol.Sink) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sinks[sink.ID()]; ok {
		return false
	}
	s.sinks[sink.ID()] = sink
	metrics.StatsSubscribers.Set(float64(len(s.sinks)))
	return true
}

// Remove drops id; it reports whether id was a member.
func (s *Subscribers) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sinks[id]; !ok {
		return false
	}
	delete(s.sinks, id)
	metrics.StatsSubscribers.Set(float64(len(s.sinks)))
	return true
}

// Has reports whether id is subscribed.
func (s *Subscribers) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sinks[id]
	return ok
}

// Len returns the member count.
func (s *Subscribers) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sinks)
}

func (s *Subscribers) list() []protocol.Sink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.Sink, 0, len(s.sinks))
	for _, sink := range s.sinks {
		out = append(out, sink)
	}
	return out
}
