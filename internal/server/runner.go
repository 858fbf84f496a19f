package server

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"
)

// maxOutput caps captured stdout and stderr per command.
const maxOutput = 1 << 20

// Output is what a command printed.
type Output struct {
	Stdout    string
	Stderr    string
	Truncated bool
}

// Runner executes host commands for the system actions and custom scripts.
type Runner interface {
	// Run executes name with args and waits for it.
	Run(ctx context.Context, name string, args ...string) (Output, error)
	// Later executes name with args after delay, detached from any request.
	Later(delay time.Duration, name string, args ...string)
}

// ExecRunner runs commands on the host with os/exec.
type ExecRunner struct{}

// Run executes the command, capturing at most 1 MiB of each stream.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	stdout := &cappedBuffer{max: maxOutput}
	stderr := &cappedBuffer{max: maxOutput}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()

	out := Output{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
	}
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// Later fires the command on a timer.
func (ExecRunner) Later(delay time.Duration, name string, args ...string) {
	time.AfterFunc(delay, func() {
		if err := exec.Command(name, args...).Run(); err != nil {
			log.Printf("[actions] %s %s failed: %v", name, strings.Join(args, " "), err)
		}
	})
}

type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

// Write never fails; bytes past max are dropped so the child is not blocked.
func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string { return b.buf.String() }
