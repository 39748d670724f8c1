package backup

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/platform"
)

// StreamRequest opens a temp stream: the client pushes a dump file which is
// restored into ConnectionID as it arrives.
type StreamRequest struct {
	UserID       string
	FileName     string
	Size         int64
	ConnectionID string
	Options      *model.RestoreOptions
}

// TempStream is the write end of a client-pushed restore. It is collected
// when no data arrives for the idle timeout.
type TempStream struct {
	Key    string
	Job    *model.BackupJob
	handle *Handle

	pw        *io.PipeWriter
	now       func() time.Time
	lastChunk atomic.Int64
	writing   atomic.Int32
	received  atomic.Int64
	once      sync.Once
	reason    atomic.Pointer[error]
}

func (s *TempStream) touch() { s.lastChunk.Store(s.now().UnixNano()) }

// Write blocks until the restore program has consumed b. Once the stream
// was torn down it returns the reason. A stream is not idle while a write
// is waiting on the program.
func (s *TempStream) Write(b []byte) (int, error) {
	s.writing.Add(1)
	defer s.writing.Add(-1)
	s.touch()
	n, err := s.pw.Write(b)
	s.received.Add(int64(n))
	s.touch()
	if err != nil {
		if reason := s.reason.Load(); reason != nil {
			err = *reason
		}
	}
	return n, err
}

// Close signals the end of the dump file.
func (s *TempStream) Close() error {
	s.once.Do(func() { _ = s.pw.Close() })
	return nil
}

func (s *TempStream) abort(err error) {
	s.once.Do(func() {
		s.reason.Store(&err)
		_ = s.pw.CloseWithError(err)
	})
}

// Abort tears the stream down; the restore fails with err.
func (s *TempStream) Abort(err error) { s.abort(err) }

// ID is the placeholder job the stream restores through.
func (s *TempStream) ID() string { return s.Job.ID }

// Received is the number of bytes accepted so far.
func (s *TempStream) Received() int64 { return s.received.Load() }

// Done is closed once the restore outcome has been recorded.
func (s *TempStream) Done() <-chan struct{} { return s.handle.Done() }

// Wait returns the restore outcome.
func (s *TempStream) Wait(ctx context.Context) error { return s.handle.Wait(ctx) }

func streamKey(userID, fileName string) string {
	return userID + "-" + fileName
}

// OpenStream creates a placeholder job for the pushed file and starts
// restoring from it.
func (m *Manager) OpenStream(ctx context.Context, req StreamRequest) (*TempStream, error) {
	if req.Options == nil {
		return nil, ErrMissingRestoreOptions
	}
	if req.FileName == "" {
		return nil, fmt.Errorf("file name is required")
	}
	key := streamKey(req.UserID, req.FileName)
	pr, pw := io.Pipe()
	s := &TempStream{Key: key, pw: pw, now: m.now}
	s.touch()

	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return nil, ErrShuttingDown
	case m.streams[key] != nil:
		m.mu.Unlock()
		return nil, ErrStreamExists
	case len(m.streams) >= m.cfg.MaxTempStreams:
		m.mu.Unlock()
		return nil, ErrTooManyStreams
	}
	m.streams[key] = s
	n := len(m.streams)
	m.mu.Unlock()
	m.metrics.TempStreams(n)

	fail := func(err error) (*TempStream, error) {
		m.removeStream(key, s)
		_ = pr.CloseWithError(err)
		return nil, err
	}

	conn, err := m.conns.GetConnection(ctx, req.ConnectionID)
	if err != nil {
		return fail(err)
	}
	size := req.Size
	job := &model.BackupJob{
		ID:           platform.BackupID(conn.DBName, m.now(), "pg_dump", platform.NewID(), streamExtension(req.FileName)),
		ConnectionID: conn.ID,
		Destination:  model.DestinationTemporaryStream,
		Initiator:    model.InitiatorRestoreFromFile + ": " + req.FileName,
		Options:      model.DumpOptions{Command: model.CommandPGDump, Format: "c", Clean: true},
		Status:       model.Succeeded(m.now()),
		ContentType:  model.ContentTypeArchive,
		SizeBytes:    &size,
	}
	if err := m.jobs.Insert(ctx, job, m.cfg.Liveness); err != nil {
		return fail(err)
	}
	s.Job = job

	h, err := m.StartRestore(ctx, RestoreRequest{
		BackupID:     job.ID,
		ConnectionID: conn.ID,
		Options:      req.Options,
		Source:       pr,
		SourceSize:   req.Size,
	})
	if err != nil {
		if derr := m.jobs.Delete(context.WithoutCancel(ctx), job.ID); derr != nil {
			m.logger.Warn().Err(derr).Str("job_id", job.ID).Msg("failed to remove placeholder job")
		}
		return fail(err)
	}
	m.mu.Lock()
	s.handle = h
	m.mu.Unlock()
	go func() {
		<-h.Done()
		m.removeStream(key, s)
	}()
	return s, nil
}

// Stream returns an open temp stream.
func (m *Manager) Stream(userID, fileName string) (*TempStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.streams[streamKey(userID, fileName)]
	if s == nil || s.handle == nil {
		return nil, ErrStreamNotFound
	}
	return s, nil
}

func (m *Manager) removeStream(key string, s *TempStream) {
	m.mu.Lock()
	if m.streams[key] == s {
		delete(m.streams, key)
	}
	n := len(m.streams)
	m.mu.Unlock()
	s.abort(ErrStreamClosed)
	m.metrics.TempStreams(n)
}

// collectIdleStreams tears down streams that received nothing within the
// idle timeout; their restores fail with ErrStreamIdle.
func (m *Manager) collectIdleStreams() {
	cutoff := m.now().Add(-m.cfg.StreamIdleTimeout).UnixNano()
	m.mu.Lock()
	var idle []*TempStream
	for key, s := range m.streams {
		if s.writing.Load() == 0 && s.lastChunk.Load() < cutoff {
			idle = append(idle, s)
			delete(m.streams, key)
		}
	}
	n := len(m.streams)
	m.mu.Unlock()

	for _, s := range idle {
		m.logger.Warn().Str("stream", s.Key).Msg("closing idle temp stream")
		s.abort(ErrStreamIdle)
	}
	if len(idle) > 0 {
		m.metrics.TempStreams(n)
	}
}

func streamExtension(fileName string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	switch ext {
	case "sql", "dump", "tar", "backup":
		return ext
	default:
		return "dump"
	}
}
