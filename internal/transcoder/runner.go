package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hls-ingest/internal/logging"
)

const (
	// diagnosticTailSize bounds how much engine stderr is retained per invocation.
	diagnosticTailSize = 8 * 1024
	// waitDelay bounds how long Wait blocks on output pipes after the process is killed.
	waitDelay = 5 * time.Second
)

// ErrEngineUnavailable is returned when the engine executable cannot be started.
var ErrEngineUnavailable = errors.New("media engine unavailable")

// Runner executes an external engine process to completion.
//
// Run returns the process stdout and the tail of its stderr. A non-nil error
// means the process could not start, exited non-zero, or was killed because
// ctx ended.
type Runner interface {
	Run(ctx context.Context, name string, args []string) (stdout []byte, diagnostic string, err error)
}

// ExecRunner runs engine processes with os/exec and tracks the live ones so
// they can be killed on shutdown.
type ExecRunner struct {
	nextID    atomic.Uint64
	processes map[uint64]*exec.Cmd
	processMu sync.Mutex
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{processes: make(map[uint64]*exec.Cmd)}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args []string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay

	var stdout bytes.Buffer
	stderr := newTailBuffer(diagnosticTailSize)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, "", fmt.Errorf("%w: %s: %w", ErrEngineUnavailable, name, err)
		}
		return nil, "", fmt.Errorf("failed to start %s: %w", name, err)
	}

	id := r.nextID.Add(1)
	r.processMu.Lock()
	r.processes[id] = cmd
	r.processMu.Unlock()

	defer func() {
		r.processMu.Lock()
		delete(r.processes, id)
		r.processMu.Unlock()
	}()

	err := cmd.Wait()
	if err != nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return stdout.Bytes(), stderr.String(), err
}

// Active returns the number of engine processes currently running.
func (r *ExecRunner) Active() int {
	r.processMu.Lock()
	defer r.processMu.Unlock()
	return len(r.processes)
}

// Cleanup kills all running engine processes.
func (r *ExecRunner) Cleanup() {
	r.processMu.Lock()
	defer r.processMu.Unlock()

	for id, cmd := range r.processes {
		if cmd.Process != nil {
			logging.Info("Killing engine process %d: %s", id, strings.Join(cmd.Args, " "))
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill engine process %d: %v", id, err)
			}
		}
	}
}

// tailBuffer is an io.Writer that keeps only the last max bytes written.
type tailBuffer struct {
	max       int
	buf       []byte
	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= t.max {
		t.buf = append(t.buf[:0], p[n-t.max:]...)
		t.truncated = true
		return n, nil
	}
	if over := len(t.buf) + n - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
		t.truncated = true
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

func (t *tailBuffer) String() string {
	s := strings.TrimSpace(string(t.buf))
	if t.truncated {
		return "..." + s
	}
	return s
}
