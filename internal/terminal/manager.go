// Package terminal owns the pseudo-terminal shells behind the real-time
// channel: at most one per connection, keyed by connection ID.
//
// A session is torn down by whichever of these happens first: an explicit
// stop, the shell exiting, the owning connection detaching, a replacing start,
// the stale sweep, or shutdown. Teardown removes the registry entry and kills
// the process exactly once regardless of how many of them race.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"os/exec"
	"sort"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/vesaa/raspterm/internal/metrics"
	"github.com/vesaa/raspterm/internal/protocol"
)

// ErrSpawn wraps failures to start the shell.
var ErrSpawn = errors.New("spawn shell")

// drainWait bounds how long an exited shell's remaining output may take to
// reach the owner before terminal:exit is sent. A background job holding the
// pty open keeps the pump alive past the shell.
const drainWait = 2 * time.Second

// Options configures a Manager.
type Options struct {
	Shell      string        // defaults to /bin/bash
	Dir        string        // working directory; defaults to $HOME
	StaleAfter time.Duration // sweep threshold on session age; defaults to 1h
}

// Manager is the session registry plus the lifecycle around it.
type Manager struct {
	reg   *registry
	opts  Options
	now   func() time.Time
	drain time.Duration
}

// NewManager creates an empty Manager.
func NewManager(opts Options) *Manager {
	if opts.Shell == "" {
		opts.Shell = "/bin/bash"
	}
	if opts.Dir == "" {
		opts.Dir = os.Getenv("HOME")
		if opts.Dir == "" {
			opts.Dir = "/home"
		}
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = time.Hour
	}
	return &Manager{reg: newRegistry(), opts: opts, now: time.Now, drain: drainWait}
}

// Start replaces owner's session, if any, with a fresh shell of the given
// size. On success the owner receives terminal:ready followed by the shell's
// output; on spawn failure it receives terminal:error and no session exists.
func (m *Manager) Start(owner protocol.Sink, cols, rows int) error {
	id := owner.ID()
	if prev := m.reg.remove(id); prev != nil {
		m.release(prev, "replace")
	}

	if cols <= 0 {
		cols = protocol.DefaultCols
	}
	if rows <= 0 {
		rows = protocol.DefaultRows
	}

	c, r := clampDim(cols), clampDim(rows)
	s, err := m.spawn(owner, c, r)
	if err != nil {
		log.Printf("[terminal] start failed for %s: %v", id, err)
		_ = owner.Send(protocol.TerminalError{Message: err.Error()})
		return err
	}

	// A concurrent start for the same connection may have slipped in.
	if prev := m.reg.put(id, s); prev != nil {
		m.release(prev, "replace")
	}
	metrics.TerminalSessions.Inc()

	_ = owner.Send(protocol.TerminalReady{})
	go s.pump()
	go m.wait(s)

	log.Printf("[terminal] started session for %s (pid %d, %dx%d)", id, s.cmd.Process.Pid, c, r)
	return nil
}

func (m *Manager) spawn(owner protocol.Sink, cols, rows uint16) (*Session, error) {
	cmd := exec.Command(m.opts.Shell)
	cmd.Dir = m.opts.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color", "COLORTERM=truecolor")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrSpawn, m.opts.Shell, err)
	}

	return &Session{
		ID:        owner.ID(),
		Shell:     m.opts.Shell,
		CreatedAt: m.now(),
		owner:     owner,
		cmd:       cmd,
		ptmx:      ptmx,
		cols:      cols,
		rows:      rows,
		drained:   make(chan struct{}),
	}, nil
}

// wait reaps the shell. If the exit wins the teardown race the owner gets
// terminal:exit after the remaining output.
func (m *Manager) wait(s *Session) {
	err := s.cmd.Wait()

	select {
	case <-s.drained:
	case <-time.After(m.drain):
	}

	code, sig := exitStatus(s.cmd.ProcessState, err)
	if !m.reg.removeIf(s.ID, s) {
		return
	}
	// Close the output path first so nothing follows terminal:exit.
	s.terminate()
	_ = s.owner.Send(protocol.TerminalExit{ExitCode: code, Signal: sig})
	m.release(s, "exit")
	log.Printf("[terminal] session %s exited (code: %d, signal: %d)", s.ID, code, sig)
}

// Write forwards input to id's shell. Without a session it does nothing.
func (m *Manager) Write(id string, data string) {
	s, ok := m.reg.get(id)
	if !ok {
		return
	}
	if err := s.write([]byte(data)); err != nil {
		log.Printf("[terminal] write to %s failed: %v", id, err)
	}
}

// Resize changes id's pty size. Non-positive dimensions are ignored.
func (m *Manager) Resize(id string, cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	s, ok := m.reg.get(id)
	if !ok {
		return
	}
	if err := s.resize(clampDim(cols), clampDim(rows)); err != nil {
		log.Printf("[terminal] resize %s failed: %v", id, err)
	}
}

// Stop tears down owner's session and acknowledges with terminal:stopped.
// The acknowledgment is sent even when there was nothing to stop.
func (m *Manager) Stop(owner protocol.Sink) {
	if m.teardown(owner.ID(), "stop") {
		log.Printf("[terminal] stopped session for %s", owner.ID())
	}
	_ = owner.Send(protocol.TerminalStopped{})
}

// Detach tears down id's session after its connection went away.
func (m *Manager) Detach(id string) {
	if m.teardown(id, "detach") {
		log.Printf("[terminal] session %s closed on disconnect", id)
	}
}

// Sweep reaps every session created more than StaleAfter before now, whether
// or not it is in use. It returns the number reaped.
func (m *Manager) Sweep(now time.Time) int {
	reaped := 0
	for _, s := range m.reg.snapshot() {
		if now.Sub(s.CreatedAt) <= m.opts.StaleAfter {
			continue
		}
		if !m.reg.removeIf(s.ID, s) {
			continue
		}
		// The owner learns why its terminal vanished.
		_ = s.owner.Send(protocol.TerminalStopped{})
		m.release(s, "stale")
		reaped++
		log.Printf("[terminal] cleaned up stale session %s (created %s)", s.ID, s.CreatedAt.Format(time.RFC3339))
	}
	return reaped
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(m.now())
		}
	}
}

// CloseAll tears down every session. Used at shutdown.
func (m *Manager) CloseAll() {
	for _, s := range m.reg.snapshot() {
		if m.reg.removeIf(s.ID, s) {
			m.release(s, "shutdown")
		}
	}
}

// Sessions lists live sessions, oldest first.
func (m *Manager) Sessions() []Info {
	all := m.reg.snapshot()
	out := make([]Info, 0, len(all))
	for _, s := range all {
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int { return m.reg.len() }

// Geometry returns id's current pty size.
func (m *Manager) Geometry(id string) (cols, rows uint16, ok bool) {
	s, ok := m.reg.get(id)
	if !ok {
		return 0, 0, false
	}
	cols, rows = s.Geometry()
	return cols, rows, true
}

func (m *Manager) teardown(id, cause string) bool {
	s, ok := m.reg.get(id)
	if !ok || !m.reg.removeIf(id, s) {
		return false
	}
	m.release(s, cause)
	return true
}

// release runs once per session, by whichever path removed it from the registry.
func (m *Manager) release(s *Session, cause string) {
	s.terminate()
	metrics.TerminalSessions.Dec()
	metrics.TerminalTeardowns.WithLabelValues(cause).Inc()
}

func exitStatus(ps *os.ProcessState, err error) (code, sig int) {
	if ps == nil {
		if err != nil {
			return -1, 0
		}
		return 0, 0
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 0, int(ws.Signal())
	}
	return ps.ExitCode(), 0
}

func clampDim(v int) uint16 {
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}
