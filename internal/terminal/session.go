package terminal

import (
	"os"
	"os/exec"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/creack/pty"

	"github.com/vesaa/raspterm/internal/protocol"
)

// Session is one pseudo-terminal shell owned by one connection.
type Session struct {
	// ID is the owning connection's ID; it is also the registry key.
	ID        string
	Shell     string
	CreatedAt time.Time

	owner protocol.Sink
	cmd   *exec.Cmd
	ptmx  *os.File

	geoMu      sync.Mutex
	cols, rows uint16

	// sendMu orders output delivery against teardown: once closed is set no
	// further terminal:data leaves this session.
	sendMu sync.Mutex
	closed bool

	closeOnce sync.Once
	drained   chan struct{}
}

// Info is a read-only view of a session for listings.
type Info struct {
	ID        string    `json:"id"`
	Shell     string    `json:"shell"`
	PID       int       `json:"pid"`
	Cols      uint16    `json:"cols"`
	Rows      uint16    `json:"rows"`
	CreatedAt time.Time `json:"createdAt"`
}

// Geometry returns the current pty size.
func (s *Session) Geometry() (cols, rows uint16) {
	s.geoMu.Lock()
	defer s.geoMu.Unlock()
	return s.cols, s.rows
}

func (s *Session) info() Info {
	cols, rows := s.Geometry()
	pid := 0
	if s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}
	return Info{ID: s.ID, Shell: s.Shell, PID: pid, Cols: cols, Rows: rows, CreatedAt: s.CreatedAt}
}

func (s *Session) resize(cols, rows uint16) error {
	s.geoMu.Lock()
	defer s.geoMu.Unlock()
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return err
	}
	s.cols, s.rows = cols, rows
	return nil
}

func (s *Session) write(data []byte) error {
	_, err := s.ptmx.Write(data)
	return err
}

// send forwards ev to the owner unless the session has been torn down.
func (s *Session) send(ev protocol.Event) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.closed {
		return false
	}
	return s.owner.Send(ev) == nil
}

// terminate kills the shell and closes the pty. Safe to call repeatedly.
func (s *Session) terminate() {
	s.closeOnce.Do(func() {
		s.sendMu.Lock()
		s.closed = true
		s.sendMu.Unlock()

		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.ptmx.Close()
	})
}

// pump copies pty output to the owner until the pty closes. Chunks are cut on
// rune boundaries; an incomplete trailing sequence waits for the next read.
func (s *Session) pump() {
	defer close(s.drained)

	buf := make([]byte, 32*1024)
	var pending []byte
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			cut := len(pending) - incompleteTail(pending)
			if cut > 0 {
				if !s.send(protocol.TerminalOutput{Data: string(pending[:cut])}) {
					return
				}
				pending = append(pending[:0], pending[cut:]...)
			}
		}
		if err != nil {
			if len(pending) > 0 {
				s.send(protocol.TerminalOutput{Data: string(pending)})
			}
			return
		}
	}
}

// incompleteTail reports how many trailing bytes of b start a UTF-8 sequence
// that is not yet complete.
func incompleteTail(b []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if !utf8.RuneStart(b[len(b)-i]) {
			continue
		}
		if utf8.FullRune(b[len(b)-i:]) {
			return 0
		}
		return i
	}
	return 0
}
