package procpipe

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrorCloser is implemented by sinks that can discard what was written
// instead of committing it.
type ErrorCloser interface {
	CloseWithError(err error) error
}

type DumpHooks struct {
	// OnStderr receives each chunk of standard error along with the number
	// of bytes written to the sink so far.
	OnStderr func(chunk []byte, written int64)
	OnExit   func(err error)
}

// StartDump runs c with its standard output copied into sink. It never
// fails synchronously; every error is reported through hooks.OnExit.
func StartDump(ctx context.Context, c Command, sink io.WriteCloser, hooks DumpHooks) *Process {
	p := newProcess(ctx, c, hooks.OnExit)
	go func() {
		err := p.dump(ctx, sink, hooks.OnStderr)
		p.finish(closeSink(sink, err))
	}()
	return p
}

func (p *Process) dump(ctx context.Context, sink io.Writer, onStderr func([]byte, int64)) error {
	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := p.start(); err != nil {
		return err
	}
	p.setState(StateStreaming)

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&countingWriter{w: sink, n: &p.bytes}, stdout)
		if err != nil {
			werr := fmt.Errorf("write output: %w", err)
			p.Kill(werr)
			return werr
		}
		return nil
	})
	g.Go(func() error {
		return p.pump(stderr, true, func(chunk []byte) {
			if onStderr != nil {
				onStderr(chunk, p.bytes.Load())
			}
		})
	})
	copyErr := g.Wait()

	p.setState(StateFinalizing)
	waitErr := p.exitError(ctx, p.cmd.Wait())
	return firstErr(copyErr, p.killedWith(), waitErr)
}

func closeSink(sink io.Closer, err error) error {
	if err != nil {
		if ec, ok := sink.(ErrorCloser); ok {
			_ = ec.CloseWithError(err)
		} else {
			_ = sink.Close()
		}
		return err
	}
	if cerr := sink.Close(); cerr != nil {
		return fmt.Errorf("close output: %w", cerr)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n *atomic.Int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n.Add(int64(n))
	return n, err
}
