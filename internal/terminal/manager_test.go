package terminal

import (
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesaa/raspterm/internal/metrics"
	"github.com/vesaa/raspterm/internal/protocol"
)

type recSink struct {
	id     string
	mu     sync.Mutex
	events []protocol.Event
}

func (r *recSink) ID() string { return r.id }

func (r *recSink) Send(ev protocol.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recSink) output() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var b strings.Builder
	for _, ev := range r.events {
		if out, ok := ev.(protocol.TerminalOutput); ok {
			b.WriteString(out.Data)
		}
	}
	return b.String()
}

func (r *recSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.EventType())
	}
	return out
}

func (r *recSink) count(typ string) int {
	n := 0
	for _, t := range r.types() {
		if t == typ {
			n++
		}
	}
	return n
}

func requireShell(t *testing.T) *Manager {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	m := NewManager(Options{Shell: "/bin/sh", Dir: t.TempDir()})
	t.Cleanup(m.CloseAll)
	return m
}

// pipeSession builds a registered session without a real process.
func pipeSession(t *testing.T, m *Manager, owner *recSink, created time.Time) *Session {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { r.Close(); w.Close() })

	s := &Session{
		ID:        owner.id,
		Shell:     "/bin/sh",
		CreatedAt: created,
		owner:     owner,
		cmd:       exec.Command("/bin/sh"),
		ptmx:      r,
		cols:      80,
		rows:      24,
		drained:   make(chan struct{}),
	}
	m.reg.put(owner.id, s)
	return s
}

func processGone(pid int) bool {
	return syscall.Kill(pid, 0) != nil
}

func TestStartSendsReadyAndEchoesOutput(t *testing.T) {
	m := requireShell(t)
	sink := &recSink{id: "conn-1"}

	require.NoError(t, m.Start(sink, 80, 24))
	assert.Equal(t, protocol.TypeTerminalReady, sink.types()[0])

	// h""i keeps the echoed command line from matching.
	m.Write("conn-1", "echo h\"\"i\n")
	require.Eventually(t, func() bool { return strings.Contains(sink.output(), "hi\r\n") },
		5*time.Second, 20*time.Millisecond)

	m.Write("conn-1", "exit 3\n")
	require.Eventually(t, func() bool { return sink.count(protocol.TypeTerminalExit) == 1 },
		5*time.Second, 20*time.Millisecond)
	assert.Zero(t, m.Count())

	sink.mu.Lock()
	last := sink.events[len(sink.events)-1]
	sink.mu.Unlock()
	assert.Equal(t, protocol.TerminalExit{ExitCode: 3, Signal: 0}, last)
}

func TestStartTwiceKeepsOneSession(t *testing.T) {
	m := requireShell(t)
	sink := &recSink{id: "conn-1"}

	require.NoError(t, m.Start(sink, 80, 24))
	first, ok := m.reg.get("conn-1")
	require.True(t, ok)
	firstPID := first.cmd.Process.Pid

	require.NoError(t, m.Start(sink, 100, 30))
	assert.Equal(t, 1, m.Count())

	second, ok := m.reg.get("conn-1")
	require.True(t, ok)
	assert.NotEqual(t, firstPID, second.cmd.Process.Pid)

	require.Eventually(t, func() bool { return processGone(firstPID) }, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, sink.count(protocol.TypeTerminalExit), "a replaced shell does not report exit")
}

func TestResizeIgnoresNonPositive(t *testing.T) {
	m := requireShell(t)
	sink := &recSink{id: "conn-1"}
	require.NoError(t, m.Start(sink, 80, 24))

	m.Resize("conn-1", 0, 10)
	m.Resize("conn-1", 10, 0)
	m.Resize("conn-1", -5, 40)
	cols, rows, ok := m.Geometry("conn-1")
	require.True(t, ok)
	assert.Equal(t, uint16(80), cols)
	assert.Equal(t, uint16(24), rows)

	m.Resize("conn-1", 120, 40)
	cols, rows, _ = m.Geometry("conn-1")
	assert.Equal(t, uint16(120), cols)
	assert.Equal(t, uint16(40), rows)
}

func TestStartDefaultsGeometry(t *testing.T) {
	m := requireShell(t)
	require.NoError(t, m.Start(&recSink{id: "conn-1"}, 0, -1))
	cols, rows, ok := m.Geometry("conn-1")
	require.True(t, ok)
	assert.Equal(t, uint16(protocol.DefaultCols), cols)
	assert.Equal(t, uint16(protocol.DefaultRows), rows)
}

func TestStartSpawnFailureReportsError(t *testing.T) {
	m := NewManager(Options{Shell: "/nonexistent/shell", Dir: t.TempDir()})
	sink := &recSink{id: "conn-1"}

	err := m.Start(sink, 80, 24)
	require.ErrorIs(t, err, ErrSpawn)
	assert.Zero(t, m.Count())
	assert.Equal(t, []string{protocol.TypeTerminalError}, sink.types())
}

func TestOperationsWithoutSessionAreNoops(t *testing.T) {
	m := NewManager(Options{})
	sink := &recSink{id: "ghost"}

	assert.NotPanics(t, func() {
		m.Write("ghost", "ls\n")
		m.Resize("ghost", 100, 40)
		m.Detach("ghost")
	})
	assert.Empty(t, sink.types())

	m.Stop(sink)
	assert.Equal(t, []string{protocol.TypeTerminalStopped}, sink.types())
}

func TestRacingTeardownsReleaseOnce(t *testing.T) {
	m := requireShell(t)
	sink := &recSink{id: "conn-1"}
	require.NoError(t, m.Start(sink, 80, 24))

	causes := []string{"stop", "detach", "exit"}
	before := 0.0
	for _, c := range causes {
		before += testutil.ToFloat64(metrics.TerminalTeardowns.WithLabelValues(c))
	}
	released := func() float64 {
		total := -before
		for _, c := range causes {
			total += testutil.ToFloat64(metrics.TerminalTeardowns.WithLabelValues(c))
		}
		return total
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); m.Write("conn-1", "exit\n") }()
	go func() { defer wg.Done(); m.Stop(sink) }()
	go func() { defer wg.Done(); m.Detach("conn-1") }()
	wg.Wait()

	require.Eventually(t, func() bool { return released() == 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(drainWait / 4)
	assert.Equal(t, 1.0, released())
	assert.Zero(t, m.Count())
	assert.LessOrEqual(t, sink.count(protocol.TypeTerminalExit), 1)
}

func TestSweepReapsByCreationTime(t *testing.T) {
	m := NewManager(Options{StaleAfter: time.Hour})
	now := time.Unix(1_700_000_000, 0)

	old := &recSink{id: "old"}
	fresh := &recSink{id: "fresh"}
	pipeSession(t, m, old, now.Add(-61*time.Minute))
	pipeSession(t, m, fresh, now.Add(-59*time.Minute))

	assert.Equal(t, 1, m.Sweep(now))
	assert.Equal(t, 1, m.Count())
	_, ok := m.reg.get("fresh")
	assert.True(t, ok)
	assert.Equal(t, []string{protocol.TypeTerminalStopped}, old.types())
	assert.Empty(t, fresh.types())

	// A second pass finds nothing new.
	assert.Zero(t, m.Sweep(now))
}

func TestSessionsListedOldestFirst(t *testing.T) {
	m := NewManager(Options{})
	now := time.Unix(1_700_000_000, 0)
	pipeSession(t, m, &recSink{id: "b"}, now)
	pipeSession(t, m, &recSink{id: "a"}, now.Add(-time.Minute))

	list := m.Sessions()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, uint16(80), list[0].Cols)
}

func TestIncompleteTail(t *testing.T) {
	euro := []byte("€") // 3 bytes
	assert.Zero(t, incompleteTail([]byte("plain")))
	assert.Zero(t, incompleteTail(append([]byte("x"), euro...)))
	assert.Equal(t, 1, incompleteTail(append([]byte("x"), euro[:1]...)))
	assert.Equal(t, 2, incompleteTail(append([]byte("x"), euro[:2]...)))
	assert.Zero(t, incompleteTail(nil))
}

func TestNoOutputAfterExitWhenDrainTimesOut(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	m := NewManager(Options{Shell: "/bin/sh", Dir: t.TempDir()})
	m.drain = 50 * time.Millisecond
	owner := &recSink{id: "c-exit"}

	// The write end stands in for a background job that keeps the pty open.
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	require.NoError(t, cmd.Start())
	s := &Session{
		ID:        owner.id,
		Shell:     "/bin/sh",
		CreatedAt: time.Now(),
		owner:     owner,
		cmd:       cmd,
		ptmx:      r,
		cols:      80,
		rows:      24,
		drained:   make(chan struct{}),
	}
	m.reg.put(owner.id, s)
	go s.pump()

	m.wait(s)
	require.Equal(t, []string{protocol.TypeTerminalExit}, owner.types())

	_, _ = w.Write([]byte("late output"))
	select {
	case <-s.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("output pump still running after exit")
	}
	assert.Equal(t, []string{protocol.TypeTerminalExit}, owner.types())
	assert.Empty(t, owner.output())
	assert.Zero(t, m.Count())
}
