package backup

import (
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/pgbackup/internal/model"
)

func streamRequest(name string) StreamRequest {
	return StreamRequest{
		UserID:       "u1",
		FileName:     name,
		Size:         int64(len("CREATE TABLE t();\n")),
		ConnectionID: "conn-1",
		Options:      &model.RestoreOptions{Command: model.CommandPSQL},
	}
}

func TestOpenStream_RestoresPushedFile(t *testing.T) {
	e := newTestEnv(t)
	out := captureProgram(t, e, "psql")
	ctx := waitCtx(t)

	s, err := e.m.OpenStream(ctx, streamRequest("schema.sql"))
	require.NoError(t, err)

	got, err := e.m.Stream("u1", "schema.sql")
	require.NoError(t, err)
	assert.Same(t, s, got)

	for _, chunk := range []string{"CREATE TABLE ", "t();\n"} {
		_, err := s.Write([]byte(chunk))
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Wait(ctx))
	assert.Equal(t, int64(18), s.Received())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE t();\n", string(data))

	job, err := e.jobs.Get(ctx, s.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DestinationTemporaryStream, job.Destination)
	assert.Equal(t, "manual_restore_from_file: schema.sql", job.Initiator)
	assert.True(t, strings.HasSuffix(job.ID, ".sql"))
	assert.True(t, job.Status.IsOK())
	assert.True(t, job.RestoreStatus.IsOK())

	require.Eventually(t, func() bool {
		_, err := e.m.Stream("u1", "schema.sql")
		return err == ErrStreamNotFound
	}, waitTimeout, 10*time.Millisecond)
}

func TestOpenStream_IdleStreamFailsRestore(t *testing.T) {
	e := newTestEnv(t)
	ctx := waitCtx(t)

	s, err := e.m.OpenStream(ctx, streamRequest("dump.sql"))
	require.NoError(t, err)
	_, err = s.Write([]byte("CREATE TABLE t();\n"))
	require.NoError(t, err)

	e.clock.Advance(30 * time.Second)
	e.m.collectIdleStreams()
	_, err = e.m.Stream("u1", "dump.sql")
	require.NoError(t, err, "stream collected before the idle timeout")

	e.clock.Advance(31 * time.Second)
	e.m.collectIdleStreams()

	err = s.Wait(ctx)
	assert.ErrorIs(t, err, ErrStreamIdle)
	job, gerr := e.jobs.Get(ctx, s.Job.ID)
	require.NoError(t, gerr)
	require.NotNil(t, job.RestoreStatus)
	assert.True(t, job.RestoreStatus.IsErr())
	assert.Contains(t, job.RestoreStatus.Message(), "idle")

	_, err = s.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrStreamIdle)
	_, err = e.m.Stream("u1", "dump.sql")
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestOpenStream_Limits(t *testing.T) {
	e := newTestEnv(t)
	e.m.cfg.MaxTempStreams = 1
	e.setProgram(t, "psql", `/bin/cat > /dev/null`)
	ctx := waitCtx(t)

	s, err := e.m.OpenStream(ctx, streamRequest("a.sql"))
	require.NoError(t, err)

	_, err = e.m.OpenStream(ctx, streamRequest("a.sql"))
	assert.ErrorIs(t, err, ErrStreamExists)

	other := streamRequest("b.sql")
	other.ConnectionID = "conn-2"
	_, err = e.m.OpenStream(ctx, other)
	assert.ErrorIs(t, err, ErrTooManyStreams)

	require.NoError(t, s.Close())
	require.NoError(t, s.Wait(ctx))
}

func TestOpenStream_RestoreRefusedRemovesPlaceholder(t *testing.T) {
	e := newTestEnv(t)
	ctx := waitCtx(t)
	req := streamRequest("bad.dump")
	req.Options = &model.RestoreOptions{Command: model.CommandPGRestore, NewDBName: "x", Create: true}

	_, err := e.m.OpenStream(ctx, req)

	assert.ErrorIs(t, err, ErrNewDBNameWithCreate)
	assert.Empty(t, e.jobs.jobs)
	_, err = e.m.Stream("u1", "bad.dump")
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestStreamExtension(t *testing.T) {
	assert.Equal(t, "sql", streamExtension("Schema.SQL"))
	assert.Equal(t, "tar", streamExtension("db.tar"))
	assert.Equal(t, "dump", streamExtension("db.backup.gz"))
	assert.Equal(t, "dump", streamExtension("noext"))
}

func TestCollectIdleStreams_SparesBlockedWrite(t *testing.T) {
	e := newTestEnv(t)
	pr, pw := io.Pipe()
	s := &TempStream{Key: "u1-slow.sql", pw: pw, now: e.m.now}
	s.touch()
	e.m.mu.Lock()
	e.m.streams[s.Key] = s
	e.m.mu.Unlock()

	wrote := make(chan error, 1)
	go func() {
		_, err := s.Write([]byte("COPY t FROM stdin;\n"))
		wrote <- err
	}()
	require.Eventually(t, func() bool { return s.writing.Load() == 1 }, waitTimeout, 10*time.Millisecond)

	// The program has not read for longer than the timeout.
	e.clock.Advance(61 * time.Second)
	e.m.collectIdleStreams()
	require.True(t, hasStream(e.m, s.Key), "stream collected while a write was pending")

	buf := make([]byte, 64)
	_, err := pr.Read(buf)
	require.NoError(t, err)
	require.NoError(t, <-wrote)

	e.clock.Advance(61 * time.Second)
	e.m.collectIdleStreams()
	assert.False(t, hasStream(e.m, s.Key))
}

func hasStream(m *Manager, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[key] != nil
}

func TestSweepInterval(t *testing.T) {
	assert.Equal(t, time.Second, sweepInterval(60*time.Second))
	assert.Equal(t, 250*time.Millisecond, sweepInterval(time.Second))
	assert.Equal(t, time.Millisecond, sweepInterval(3*time.Nanosecond))
}
