// Package procpipe runs an external program with one of its standard streams
// connected to a caller-supplied sink or source.
//
// Every run ends in exactly one call to the OnExit hook, whatever went wrong:
// a failed spawn, a broken sink or source, or a non-zero exit status. The sink
// (dump direction) or source (restore direction) is always closed before
// OnExit is called.
package procpipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// State of a supervised process.
type State int32

const (
	StateSpawning State = iota
	StateStreaming
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Command is a program invocation. Env is the complete environment of the
// child; nothing is inherited from the current process.
type Command struct {
	Path string
	Args []string
	Env  map[string]string
}

// EnvList renders Env as sorted KEY=value pairs.
func (c Command) EnvList() []string {
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+c.Env[k])
	}
	return out
}

// ExitError reports a program that exited with a non-zero status.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if line := LastLine(e.Stderr); line != "" {
		return line
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// LastLine returns the last non-empty line of s.
func LastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// ErrKilled is the terminal error of a run stopped through Kill(nil).
var ErrKilled = errors.New("process killed")

const stderrTailSize = 4 << 10

// Process supervises one run.
type Process struct {
	cmd   *exec.Cmd
	state atomic.Int32
	bytes atomic.Int64

	mu         sync.Mutex
	started    bool
	killReason error
	stderrTail []byte

	once   sync.Once
	done   chan struct{}
	err    error
	onExit func(error)
}

func newProcess(ctx context.Context, c Command, onExit func(error)) *Process {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = c.EnvList()
	return &Process{cmd: cmd, done: make(chan struct{}), onExit: onExit}
}

// State returns the current supervision state.
func (p *Process) State() State { return State(p.state.Load()) }

// Bytes is the number of bytes moved through the piped stream so far.
func (p *Process) Bytes() int64 { return p.bytes.Load() }

// Done is closed after OnExit has returned.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait blocks until the run is over and returns the error passed to OnExit.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Kill terminates the program if it is running. reason becomes the terminal
// error unless a more specific stream error was already observed; nil means
// ErrKilled.
func (p *Process) Kill(reason error) {
	if reason == nil {
		reason = ErrKilled
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.killReason == nil {
		p.killReason = reason
	}
	if p.started && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

func (p *Process) setState(s State) { p.state.Store(int32(s)) }

func (p *Process) killedWith() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killReason
}

func (p *Process) appendStderr(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stderrTail = append(p.stderrTail, b...)
	if n := len(p.stderrTail); n > stderrTailSize {
		p.stderrTail = append([]byte(nil), p.stderrTail[n-stderrTailSize:]...)
	}
}

// StderrTail returns the last few KB the program wrote to standard error.
func (p *Process) StderrTail() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.stderrTail)
}

// finish records the terminal state exactly once.
func (p *Process) finish(err error) {
	p.once.Do(func() {
		p.err = err
		if err != nil {
			p.setState(StateFailed)
		} else {
			p.setState(StateDone)
		}
		if p.onExit != nil {
			p.onExit(err)
		}
		close(p.done)
	})
}

// start launches the program. The caller has already attached its pipes.
func (p *Process) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.killReason != nil {
		return p.killReason
	}
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.cmd.Path, err)
	}
	p.started = true
	return nil
}

// exitError converts the result of cmd.Wait.
func (p *Process) exitError(ctx context.Context, waitErr error) error {
	if waitErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ee *exec.ExitError
	if errors.As(waitErr, &ee) {
		return &ExitError{Code: ee.ExitCode(), Stderr: p.StderrTail()}
	}
	return fmt.Errorf("wait %s: %w", p.cmd.Path, waitErr)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// pump forwards r to fn chunk by chunk until EOF.
func (p *Process) pump(r io.Reader, isStderr bool, fn func(chunk []byte)) error {
	buf := make([]byte, 32<<10)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if isStderr {
				p.appendStderr(chunk)
			}
			if fn != nil {
				fn(chunk)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read program output: %w", err)
		}
	}
}
