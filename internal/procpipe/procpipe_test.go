package procpipe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shell(t *testing.T, script string, env map[string]string) Command {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	return Command{Path: "/bin/sh", Args: []string{"-c", script}, Env: env}
}

// memSink is an in-memory upload target that records how it was closed.
type memSink struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	closed    bool
	closedErr error
	writeErr  error
}

func (s *memSink) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	return s.buf.Write(b)
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) CloseWithError(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closedErr = err
	return nil
}

type exitRecorder struct {
	calls atomic.Int32
	err   error
}

func (r *exitRecorder) onExit(err error) {
	r.calls.Add(1)
	r.err = err
}

func TestStartDump_Success(t *testing.T) {
	sink := &memSink{}
	var rec exitRecorder
	var stderr bytes.Buffer
	var mu sync.Mutex

	p := StartDump(context.Background(), shell(t, `printf hello; echo "pg_dump: dumping contents" >&2`, nil), sink, DumpHooks{
		OnStderr: func(chunk []byte, written int64) {
			mu.Lock()
			defer mu.Unlock()
			stderr.Write(chunk)
		},
		OnExit: rec.onExit,
	})

	require.NoError(t, p.Wait())
	assert.Equal(t, int32(1), rec.calls.Load())
	assert.NoError(t, rec.err)
	assert.Equal(t, "hello", sink.buf.String())
	assert.Equal(t, int64(5), p.Bytes())
	assert.True(t, sink.closed)
	assert.NoError(t, sink.closedErr)
	assert.Equal(t, StateDone, p.State())
	mu.Lock()
	assert.Contains(t, stderr.String(), "dumping contents")
	mu.Unlock()
}

func TestStartDump_NonZeroExitUsesLastStderrLine(t *testing.T) {
	sink := &memSink{}
	var rec exitRecorder

	script := `echo "pg_dump: starting" >&2; echo "pg_dump: error: connection refused" >&2; echo "" >&2; exit 1`
	p := StartDump(context.Background(), shell(t, script, nil), sink, DumpHooks{OnExit: rec.onExit})

	err := p.Wait()
	require.Error(t, err)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
	assert.Equal(t, "pg_dump: error: connection refused", err.Error())
	assert.Equal(t, int32(1), rec.calls.Load())
	assert.True(t, sink.closed)
	assert.Equal(t, err, sink.closedErr)
	assert.Equal(t, StateFailed, p.State())
}

func TestStartDump_SpawnFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}
	sink := &memSink{}
	var rec exitRecorder

	p := StartDump(context.Background(), Command{Path: "/nonexistent/pg_dump"}, sink, DumpHooks{OnExit: rec.onExit})

	err := p.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start /nonexistent/pg_dump")
	assert.Equal(t, int32(1), rec.calls.Load())
	assert.True(t, sink.closed)
	assert.Error(t, sink.closedErr)
}

func TestStartDump_SinkFailureKillsProcess(t *testing.T) {
	sink := &memSink{writeErr: errors.New("bucket gone")}
	var rec exitRecorder

	p := StartDump(context.Background(), shell(t, `while :; do echo data; done`, nil), sink, DumpHooks{OnExit: rec.onExit})

	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process was not killed after sink failure")
	}
	err := p.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write output")
	assert.Contains(t, err.Error(), "bucket gone")
	assert.Equal(t, int32(1), rec.calls.Load())
}

func TestStartDump_KillReasonIsTerminalError(t *testing.T) {
	sink := &memSink{}
	var rec exitRecorder
	abandoned := errors.New("job abandoned")

	p := StartDump(context.Background(), shell(t, `exec sleep 30`, nil), sink, DumpHooks{OnExit: rec.onExit})
	require.Eventually(t, func() bool { return p.State() == StateStreaming }, 5*time.Second, 10*time.Millisecond)
	p.Kill(abandoned)

	assert.ErrorIs(t, p.Wait(), abandoned)
	assert.Equal(t, int32(1), rec.calls.Load())
	assert.ErrorIs(t, sink.closedErr, abandoned)
}

func TestStartDump_ContextCancel(t *testing.T) {
	sink := &memSink{}
	ctx, cancel := context.WithCancel(context.Background())

	p := StartDump(ctx, shell(t, `exec sleep 30`, nil), sink, DumpHooks{})
	require.Eventually(t, func() bool { return p.State() == StateStreaming }, 5*time.Second, 10*time.Millisecond)
	cancel()

	assert.ErrorIs(t, p.Wait(), context.Canceled)
}

func TestStartDump_OnlyExplicitEnvironment(t *testing.T) {
	t.Setenv("PGPASSWORD", "leaked")
	sink := &memSink{}

	p := StartDump(context.Background(), shell(t, `printf "%s|%s" "$PGDATABASE" "$PGPASSWORD"`, map[string]string{"PGDATABASE": "app"}), sink, DumpHooks{})

	require.NoError(t, p.Wait())
	assert.Equal(t, "app|", sink.buf.String())
}

type closingReader struct {
	io.Reader
	closed atomic.Bool
}

func (c *closingReader) Close() error {
	c.closed.Store(true)
	return nil
}

func TestStartRestore_Success(t *testing.T) {
	src := &closingReader{Reader: strings.NewReader("CREATE TABLE t();")}
	var rec exitRecorder
	var mu sync.Mutex
	var stdout, stderr bytes.Buffer

	p := StartRestore(context.Background(), shell(t, `cat > /dev/null; echo restored; echo "notice" >&2`, nil), src, RestoreHooks{
		OnOutput: func(chunk []byte, isStderr bool) {
			mu.Lock()
			defer mu.Unlock()
			if isStderr {
				stderr.Write(chunk)
			} else {
				stdout.Write(chunk)
			}
		},
		OnExit: rec.onExit,
	})

	require.NoError(t, p.Wait())
	assert.Equal(t, int64(len("CREATE TABLE t();")), p.Bytes())
	assert.True(t, src.closed.Load())
	assert.Equal(t, int32(1), rec.calls.Load())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "restored\n", stdout.String())
	assert.Equal(t, "notice\n", stderr.String())
}

func TestStartRestore_NonZeroExit(t *testing.T) {
	src := strings.NewReader("garbage")
	p := StartRestore(context.Background(), shell(t, `cat > /dev/null; echo "pg_restore: error: input file does not appear to be a valid archive" >&2; exit 1`, nil), src, RestoreHooks{})

	err := p.Wait()
	require.Error(t, err)
	assert.Equal(t, "pg_restore: error: input file does not appear to be a valid archive", err.Error())
}

type failingReader struct {
	sent bool
	err  error
}

func (f *failingReader) Read(b []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(b, "partial"), nil
	}
	return 0, f.err
}

func TestStartRestore_SourceErrorKillsProcess(t *testing.T) {
	idle := errors.New("stream idle")
	var rec exitRecorder

	p := StartRestore(context.Background(), shell(t, `cat > /dev/null; sleep 30`, nil), &failingReader{err: idle}, RestoreHooks{OnExit: rec.onExit})

	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("process was not torn down after source failure")
	}
	err := p.Wait()
	require.Error(t, err)
	assert.ErrorIs(t, err, idle)
	assert.Contains(t, err.Error(), "read input")
	assert.Equal(t, int32(1), rec.calls.Load())
}

func TestStartRestore_NilSource(t *testing.T) {
	var out bytes.Buffer
	p := StartRestore(context.Background(), shell(t, `echo from-file`, nil), nil, RestoreHooks{
		OnOutput: func(chunk []byte, isStderr bool) { out.Write(chunk) },
	})
	require.NoError(t, p.Wait())
	assert.Equal(t, "from-file\n", out.String())
}

func TestStartRestore_EarlyExitIgnoresBrokenPipe(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte("x"), 4<<20))
	p := StartRestore(context.Background(), shell(t, `exit 3`, nil), src, RestoreHooks{})

	var exitErr *ExitError
	require.True(t, errors.As(p.Wait(), &exitErr))
	assert.Equal(t, 3, exitErr.Code)
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "b", LastLine("a\nb\n\n  \n"))
	assert.Equal(t, "", LastLine("\n\n"))
}

func TestCommand_EnvListSorted(t *testing.T) {
	c := Command{Env: map[string]string{"PGUSER": "u", "PGHOST": "h", "PGPORT": "5432"}}
	assert.Equal(t, []string{"PGHOST=h", "PGPORT=5432", "PGUSER=u"}, c.EnvList())
}
