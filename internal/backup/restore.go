package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/pgcmd"
	"github.com/edvin/pgbackup/internal/procpipe"
	"github.com/edvin/pgbackup/internal/store"
	"github.com/edvin/pgbackup/internal/throttle"
)

// RestoreRequest replays a backup into a connection. ConnectionID defaults
// to the backup's own connection. Source, when set, is read instead of the
// stored artifact and SourceSize is its declared length.
type RestoreRequest struct {
	BackupID     string
	ConnectionID string
	Options      *model.RestoreOptions
	Source       io.Reader
	SourceSize   int64
}

// StartRestore prepares the target and starts the restore program.
func (m *Manager) StartRestore(ctx context.Context, req RestoreRequest) (h *Handle, err error) {
	if req.Options == nil {
		closeReader(req.Source)
		return nil, ErrMissingRestoreOptions
	}
	// Whatever is not handed to the restore program is closed here.
	defer func() {
		if err != nil {
			closeReader(req.Source)
		}
	}()
	opts := *req.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	progs, err := m.detect(ctx)
	if err != nil {
		return nil, err
	}
	job, err := m.jobs.Get(ctx, req.BackupID)
	if err != nil {
		return nil, err
	}
	targetID := req.ConnectionID
	if targetID == "" {
		targetID = job.ConnectionID
	}
	conn, err := m.conns.GetConnection(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !m.reserveRestore(conn.ID, job.ID) {
		return nil, fmt.Errorf("%w on connection %s", ErrRestoreInProgress, conn.ID)
	}
	defer func() {
		if err != nil {
			m.releaseRestore(conn.ID)
		}
	}()

	logger := m.logger.With().Str("job_id", job.ID).Str("connection_id", conn.ID).Logger()
	logs := newLogBuffer(m.now(), m.now, opts.KeepLogs)

	dbName := conn.DBName
	if opts.NewDBName != "" {
		dbName = opts.NewDBName
		// The restore program reports a more useful error if the database
		// is really unusable.
		if err := m.target.CreateDatabase(ctx, *conn, dbName); err != nil {
			logs.Note(err.Error())
			logger.Warn().Err(err).Msg("create database before restore failed")
		}
	}
	if opts.TerminateConnections {
		n, err := m.target.TerminateBackends(ctx, *conn, dbName)
		if err != nil {
			logs.Note(err.Error())
			logger.Warn().Err(err).Msg("terminate backends failed")
		} else if n > 0 {
			logs.Note(fmt.Sprintf("terminated %d other sessions on %s", n, dbName))
		}
	}

	source, inputFile, total, err := m.restoreSource(ctx, job, req, opts)
	if err != nil {
		return nil, err
	}
	if source != nil && source != req.Source {
		defer func() {
			if err != nil {
				closeReader(source)
			}
		}()
	}

	certs, err := pgcmd.WriteCerts(m.cfg.CertDir, *conn)
	if err != nil {
		return nil, err
	}
	program := pgcmd.RestoreProgram(opts)
	cmd := procpipe.Command{
		Path: progs.Path(program),
		Args: pgcmd.RestoreArgs(opts, dbName, inputFile),
		Env:  pgcmd.Env(*conn, certs, dbName),
	}
	if !m.begin() {
		return nil, ErrShuttingDown
	}
	if err := m.jobs.BeginRestore(ctx, job.ID, opts, pgcmd.CommandString(cmd), total); err != nil {
		m.wg.Done()
		return nil, err
	}
	m.metrics.JobStarted("restore", job.Initiator)

	r := &restoreRun{
		m:      m,
		job:    job,
		conn:   *conn,
		dbName: dbName,
		total:  total,
		handle: newHandle(job),
		logs:   logs,
		logger: logger.With().Str("program", program).Logger(),
	}
	r.progress = throttle.New(m.cfg.ProgressInterval, r.saveProgress)
	r.logger.Info().Int64("total", total).Str("database", dbName).Msg("restore started")

	if source != nil {
		source = &countingSource{r: source, fn: func(n int64) {
			r.loaded.Store(n)
			r.progress.Push(n)
		}}
	}
	p := procpipe.StartRestore(context.Background(), cmd, source, procpipe.RestoreHooks{
		OnOutput: func(chunk []byte, _ bool) { r.logs.Write(chunk) },
		OnExit:   r.exit,
	})
	r.proc.Store(p)
	m.track(job.ID, p)
	go func() {
		<-p.Done()
		m.untrack(job.ID)
		m.releaseRestore(conn.ID)
		m.wg.Done()
		close(r.handle.done)
	}()
	return r.handle, nil
}

// restoreSource picks what the restore program reads: the pushed stream, a
// local file passed by path, or a download from the backend.
func (m *Manager) restoreSource(ctx context.Context, job *model.BackupJob, req RestoreRequest, opts model.RestoreOptions) (io.Reader, string, int64, error) {
	if req.Source != nil {
		return req.Source, "", req.SourceSize, nil
	}
	if job.Destination == model.DestinationTemporaryStream {
		return nil, "", 0, fmt.Errorf("backup %s was streamed and has no stored artifact", job.ID)
	}
	if !job.Status.IsOK() {
		return nil, "", 0, fmt.Errorf("backup %s is not complete (%s)", job.ID, job.Status)
	}
	backend, err := m.storage.Resolve(ctx, job.CredentialID)
	if err != nil {
		return nil, "", 0, err
	}
	if m.preferFile(opts) {
		if path := backend.LocalPath(job.ID); path != "" {
			if info, err := os.Stat(path); err == nil {
				return nil, path, info.Size(), nil
			}
		}
	}
	rc, size, err := backend.Download(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		return nil, "", 0, fmt.Errorf("download backup: %w", err)
	}
	return rc, "", size, nil
}

// preferFile reports whether a local artifact is passed by path instead of
// being piped: pg_restore --jobs cannot read standard input, and piped
// archives are corrupted on Windows.
func (m *Manager) preferFile(opts model.RestoreOptions) bool {
	return m.goos == "windows" || (!opts.UsesShell() && opts.NumberOfJobs != nil)
}

func (m *Manager) reserveRestore(connectionID, jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.restoring[connectionID]; busy {
		return false
	}
	m.restoring[connectionID] = jobID
	return true
}

func (m *Manager) releaseRestore(connectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.restoring, connectionID)
}

type restoreRun struct {
	m        *Manager
	job      *model.BackupJob
	conn     model.Connection
	dbName   string
	total    int64
	handle   *Handle
	logs     *logBuffer
	logger   zerolog.Logger
	progress *throttle.Throttle[int64]
	loaded   atomic.Int64
	proc     atomic.Pointer[procpipe.Process]
}

// saveProgress stops the program when the restore was cancelled or the
// record deleted.
func (r *restoreRun) saveProgress(loaded int64) {
	err := r.m.jobs.UpdateRestoreProgress(context.Background(), r.job.ID,
		model.Loading(loaded, r.total), r.logs.Snapshot())
	if errors.Is(err, store.ErrNotLoading) {
		if p := r.proc.Load(); p != nil {
			r.logger.Warn().Msg("restore cancelled, stopping program")
			p.Kill(errAbandoned)
		}
		return
	}
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to save restore progress")
	}
}

func (r *restoreRun) exit(err error) {
	ctx := context.Background()
	r.progress.Discard()
	logs := r.logs.Final()

	final := model.Succeeded(r.m.now())
	if err != nil {
		final = model.Failed(errMessage(err))
	}
	if ferr := r.m.jobs.FinishRestore(ctx, r.job.ID, final, logs); ferr != nil && !errors.Is(ferr, store.ErrNotLoading) {
		r.logger.Error().Err(ferr).Msg("failed to record restore outcome")
	}

	if err == nil {
		r.logger.Info().Msg("restore finished")
		if rerr := r.m.target.ReloadSchema(ctx, r.conn, r.dbName); rerr != nil {
			r.logger.Warn().Err(rerr).Msg("schema reload after restore failed")
		}
	} else {
		r.logger.Warn().Err(err).Msg("restore failed")
	}

	r.m.metrics.BytesTransferred("restore", r.loaded.Load())
	r.m.metrics.JobFinished("restore", err)
	r.handle.err = err
}

// countingSource reports the cumulative number of bytes read.
type countingSource struct {
	r  io.Reader
	n  int64
	fn func(int64)
}

func (c *countingSource) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	if n > 0 {
		c.n += int64(n)
		c.fn(c.n)
	}
	return n, err
}

func (c *countingSource) Close() error {
	closeReader(c.r)
	return nil
}

func closeReader(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}
