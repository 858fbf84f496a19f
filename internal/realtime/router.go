// Package realtime carries the persistent client channel: websocket
// connections, the per-connection message routing, and detach cleanup.
package realtime

import (
	"context"
	"log"
	"sync"

	"github.com/vesaa/raspterm/internal/protocol"
)

// Terminals is the session registry as seen by the router.
type Terminals interface {
	Start(owner protocol.Sink, cols, rows int) error
	Write(id string, data string)
	Resize(id string, cols, rows int)
	Stop(owner protocol.Sink)
	Detach(id string)
}

// Stats is the telemetry fan-out as seen by the router.
type Stats interface {
	Subscribe(sink protocol.Sink)
	Unsubscribe(id string)
	Request(ctx context.Context, sink protocol.Sink)
}

// Router binds decoded messages to the terminal and telemetry handlers. It
// trusts that the connection was authenticated before it was attached.
type Router struct {
	terms Terminals
	stats Stats

	// requests holds the connection ids with a stats:request in flight.
	requests sync.Map
}

// NewRouter creates a Router.
func NewRouter(terms Terminals, stats Stats) *Router {
	return &Router{terms: terms, stats: stats}
}

// Dispatch handles one inbound frame from sink. Frames that fail to decode
// are answered with an error event; the connection stays open.
func (r *Router) Dispatch(ctx context.Context, sink protocol.Sink, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		log.Printf("[ws] %s: dropping frame: %v", sink.ID(), err)
		_ = sink.Send(protocol.Error{Message: err.Error()})
		return
	}

	switch m := msg.(type) {
	case protocol.TerminalStart:
		_ = r.terms.Start(sink, m.Cols, m.Rows)
	case protocol.TerminalData:
		r.terms.Write(sink.ID(), m.Data)
	case protocol.TerminalResize:
		r.terms.Resize(sink.ID(), m.Cols, m.Rows)
	case protocol.TerminalStop:
		r.terms.Stop(sink)
	case protocol.StatsSubscribe:
		r.stats.Subscribe(sink)
	case protocol.StatsUnsubscribe:
		r.stats.Unsubscribe(sink.ID())
	case protocol.StatsRequest:
		// Sampling takes a while; keep reading this connection's input meanwhile.
		// Requests arriving while one is pending are dropped.
		id := sink.ID()
		if _, busy := r.requests.LoadOrStore(id, struct{}{}); busy {
			return
		}
		go func() {
			defer r.requests.Delete(id)
			r.stats.Request(ctx, sink)
		}()
	}
}

// Detach releases everything the connection owned.
func (r *Router) Detach(id string) {
	r.terms.Detach(id)
	r.stats.Unsubscribe(id)
}
