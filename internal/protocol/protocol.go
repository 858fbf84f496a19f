// Package protocol defines the real-time channel's wire format.
//
// Every websocket text frame carries one JSON envelope:
//
//	{"type": "terminal:resize", "data": {"cols": 120, "rows": 40}}
//
// Inbound envelopes are decoded once, at the channel boundary, into the closed
// Message set below. Outbound events implement Event and are encoded with Encode.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vesaa/raspterm/internal/telemetry"
)

// Inbound message types.
const (
	TypeTerminalStart    = "terminal:start"
	TypeTerminalData     = "terminal:data"
	TypeTerminalResize   = "terminal:resize"
	TypeTerminalStop     = "terminal:stop"
	TypeStatsSubscribe   = "stats:subscribe"
	TypeStatsUnsubscribe = "stats:unsubscribe"
	TypeStatsRequest     = "stats:request"
)

// Outbound event types.
const (
	TypeTerminalReady   = "terminal:ready"
	TypeTerminalExit    = "terminal:exit"
	TypeTerminalStopped = "terminal:stopped"
	TypeTerminalError   = "terminal:error"
	TypeStatsUpdate     = "stats:update"
	TypeStatsError      = "stats:error"
	TypeError           = "error"
)

// Default terminal geometry when terminal:start omits it.
const (
	DefaultCols = 80
	DefaultRows = 24
)

// ErrUnknownMessage is returned by Decode for an unrecognised message type.
var ErrUnknownMessage = errors.New("unknown message type")

// Sink is the outbound side of one attached connection.
type Sink interface {
	// ID is the opaque connection identity.
	ID() string
	// Send delivers ev to the connection. It returns an error once the
	// connection is gone.
	Send(ev Event) error
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ─── Inbound ────────────────────────────────────────────────────────────────

// Message is one decoded inbound message. The set is closed: only the types
// in this package implement it.
type Message interface {
	messageType() string
}

// TerminalStart asks for a new shell; Cols/Rows default to 80x24.
type TerminalStart struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// TerminalData is raw keyboard input for the shell.
type TerminalData struct {
	Data string
}

// TerminalResize changes the pty geometry.
type TerminalResize struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type (
	TerminalStop     struct{}
	StatsSubscribe   struct{}
	StatsUnsubscribe struct{}
	StatsRequest     struct{}
)

func (TerminalStart) messageType() string    { return TypeTerminalStart }
func (TerminalData) messageType() string     { return TypeTerminalData }
func (TerminalResize) messageType() string   { return TypeTerminalResize }
func (TerminalStop) messageType() string     { return TypeTerminalStop }
func (StatsSubscribe) messageType() string   { return TypeStatsSubscribe }
func (StatsUnsubscribe) messageType() string { return TypeStatsUnsubscribe }
func (StatsRequest) messageType() string     { return TypeStatsRequest }

// Decode parses one inbound frame.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypeTerminalStart:
		m := TerminalStart{}
		if hasPayload(env.Data) {
			if err := json.Unmarshal(env.Data, &m); err != nil {
				return nil, fmt.Errorf("decode %s: %w", env.Type, err)
			}
		}
		if m.Cols <= 0 {
			m.Cols = DefaultCols
		}
		if m.Rows <= 0 {
			m.Rows = DefaultRows
		}
		return m, nil
	case TypeTerminalData:
		var s string
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return TerminalData{Data: s}, nil
	case TypeTerminalResize:
		var m TerminalResize
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return m, nil
	case TypeTerminalStop:
		return TerminalStop{}, nil
	case TypeStatsSubscribe:
		return StatsSubscribe{}, nil
	case TypeStatsUnsubscribe:
		return StatsUnsubscribe{}, nil
	case TypeStatsRequest:
		return StatsRequest{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}

func hasPayload(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// ─── Outbound ───────────────────────────────────────────────────────────────

// Event is one outbound message.
type Event interface {
	EventType() string
	payload() any
}

// TerminalReady tells the client the shell is usable.
type TerminalReady struct{}

// TerminalOutput carries raw pty output, in order, unmodified.
type TerminalOutput struct {
	Data string
}

// TerminalExit reports that the shell ended on its own.
type TerminalExit struct {
	ExitCode int `json:"exitCode"`
	Signal   int `json:"signal"`
}

// TerminalStopped acknowledges a terminal:stop, or reports a server-side reap.
type TerminalStopped struct{}

// TerminalError reports that a shell could not be started.
type TerminalError struct {
	Message string `json:"message"`
}

// StatsUpdate pushes one telemetry snapshot.
type StatsUpdate struct {
	Snapshot *telemetry.Snapshot
}

// StatsError reports a failed on-demand sample.
type StatsError struct {
	Message string `json:"message"`
}

// Error rejects an inbound frame the server could not understand.
type Error struct {
	Message string `json:"message"`
}

func (TerminalReady) EventType() string   { return TypeTerminalReady }
func (TerminalOutput) EventType() string  { return TypeTerminalData }
func (TerminalExit) EventType() string    { return TypeTerminalExit }
func (TerminalStopped) EventType() string { return TypeTerminalStopped }
func (TerminalError) EventType() string   { return TypeTerminalError }
func (StatsUpdate) EventType() string     { return TypeStatsUpdate }
func (StatsError) EventType() string      { return TypeStatsError }
func (Error) EventType() string           { return TypeError }

func (TerminalReady) payload() any     { return nil }
func (e TerminalOutput) payload() any  { return e.Data }
func (e TerminalExit) payload() any    { return e }
func (TerminalStopped) payload() any   { return nil }
func (e TerminalError) payload() any   { return e }
func (e StatsUpdate) payload() any     { return e.Snapshot }
func (e StatsError) payload() any      { return e }
func (e Error) payload() any           { return e }

// Encode renders ev as a wire envelope.
func Encode(ev Event) ([]byte, error) {
	out := struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{Type: ev.EventType(), Data: ev.payload()}
	return json.Marshal(out)
}

// DecodeEvent parses an outbound envelope back into its type and raw payload.
// Clients and tests use it; the server never decodes its own events.
func DecodeEvent(raw []byte) (string, json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("decode event: %w", err)
	}
	return env.Type, env.Data, nil
}
