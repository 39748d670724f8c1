package procpipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

type RestoreHooks struct {
	// OnOutput receives chunks from both output streams.
	OnOutput func(chunk []byte, isStderr bool)
	OnExit   func(err error)
}

// StartRestore runs c with source copied into its standard input. A nil
// source leaves standard input empty, for programs given a file argument.
// A source that can block indefinitely must implement io.Closer: it is closed
// once the program exits so the feeding goroutine is released.
func StartRestore(ctx context.Context, c Command, source io.Reader, hooks RestoreHooks) *Process {
	p := newProcess(ctx, c, hooks.OnExit)
	go func() {
		err := p.restore(ctx, source, hooks.OnOutput)
		p.finish(err)
	}()
	return p
}

func (p *Process) restore(ctx context.Context, source io.Reader, onOutput func([]byte, bool)) error {
	defer closeSource(source)

	var stdin io.WriteCloser
	if source != nil {
		var err error
		if stdin, err = p.cmd.StdinPipe(); err != nil {
			return fmt.Errorf("stdin pipe: %w", err)
		}
	}
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

	fed := make(chan struct{})
	if source != nil {
		go func() {
			defer close(fed)
			p.feed(stdin, source)
		}()
	} else {
		close(fed)
	}

	var g errgroup.Group
	forward := func(isStderr bool) func([]byte) {
		return func(chunk []byte) {
			if onOutput != nil {
				onOutput(chunk, isStderr)
			}
		}
	}
	g.Go(func() error { return p.pump(stdout, false, forward(false)) })
	g.Go(func() error { return p.pump(stderr, true, forward(true)) })
	outErr := g.Wait()

	p.setState(StateFinalizing)
	waitErr := p.exitError(ctx, p.cmd.Wait())
	// A failed read of the source kills the program, so the kill reason
	// outranks the exit status it caused. It is sampled before the source is
	// closed below, which would otherwise fail a pending read.
	killErr := p.killedWith()
	closeSource(source)
	<-fed

	return firstErr(killErr, waitErr, outErr)
}

// feed copies source into stdin. Write errors mean the program stopped
// reading; its exit status tells the real story, so they are dropped here.
func (p *Process) feed(stdin io.WriteCloser, source io.Reader) {
	cr := &countingReader{r: source, n: &p.bytes}
	_, _ = io.Copy(stdin, cr)
	if cr.err != nil && !errors.Is(cr.err, io.EOF) {
		p.Kill(fmt.Errorf("read input: %w", cr.err))
	}
	_ = stdin.Close()
}

func closeSource(source io.Reader) {
	if c, ok := source.(io.Closer); ok {
		_ = c.Close()
	}
}

type countingReader struct {
	r   io.Reader
	n   *atomic.Int64
	err error
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n.Add(int64(n))
	if err != nil {
		c.err = err
	}
	return n, err
}
