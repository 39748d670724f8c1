package backup

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/pgcmd"
	"github.com/edvin/pgbackup/internal/platform"
	"github.com/edvin/pgbackup/internal/procpipe"
	"github.com/edvin/pgbackup/internal/storage"
	"github.com/edvin/pgbackup/internal/store"
	"github.com/edvin/pgbackup/internal/throttle"
)

// DumpRequest asks for a new backup of a connection. A nil CredentialID
// stores the artifact on the local filesystem.
type DumpRequest struct {
	ConnectionID string
	CredentialID *int64
	Options      model.DumpOptions
	Initiator    string
}

// StartDump validates the request, creates the job record and starts the
// dump program. Precondition and capacity failures are returned before any
// record exists; later failures are written to the record.
func (m *Manager) StartDump(ctx context.Context, req DumpRequest) (*Handle, error) {
	opts := req.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if req.Initiator == "" {
		req.Initiator = model.InitiatorManual
	}
	progs, err := m.detect(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := m.conns.GetConnection(ctx, req.ConnectionID)
	if err != nil {
		return nil, err
	}
	current, err := m.jobs.Current(ctx, conn.ID, m.cfg.Liveness)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, fmt.Errorf("%w (job %s)", ErrJobInProgress, current.ID)
	}

	dbSize, err := m.dumpSize(ctx, *conn, opts)
	if err != nil {
		return nil, err
	}
	destination := model.DestinationCloud
	if req.CredentialID == nil {
		destination = model.DestinationLocal
		if _, err := m.checkSpace(dbSize, opts); err != nil {
			return nil, err
		}
	}
	backend, err := m.storage.Resolve(ctx, req.CredentialID)
	if err != nil {
		return nil, err
	}

	certs, err := pgcmd.WriteCerts(m.cfg.CertDir, *conn)
	if err != nil {
		return nil, err
	}
	program := pgcmd.DumpProgram(opts)
	cmd := procpipe.Command{
		Path: progs.Path(program),
		Args: pgcmd.DumpArgs(opts, conn.DBName),
		Env:  pgcmd.Env(*conn, certs, ""),
	}

	job := &model.BackupJob{
		ID:           platform.BackupID(conn.DBName, m.now(), program, platform.NewID(), opts.FileExtension()),
		ConnectionID: conn.ID,
		CredentialID: req.CredentialID,
		Destination:  destination,
		Initiator:    req.Initiator,
		Options:      opts,
		Status:       model.Loading(0, dbSize),
		ContentType:  opts.ContentType(),
		DBSizeBytes:  dbSize,
		DumpCommand:  pgcmd.CommandString(cmd),
	}
	if !m.begin() {
		return nil, ErrShuttingDown
	}
	if err := m.jobs.Insert(ctx, job, m.cfg.Liveness); err != nil {
		m.wg.Done()
		return nil, err
	}
	m.metrics.JobStarted("dump", req.Initiator)

	d := &dumpRun{
		m:       m,
		job:     job,
		backend: backend,
		handle:  newHandle(job),
		logs:    newLogBuffer(job.CreatedAt, m.now, opts.KeepLogs),
		logger: m.logger.With().
			Str("job_id", job.ID).
			Str("connection_id", conn.ID).
			Str("program", program).
			Logger(),
	}
	d.progress = throttle.New(m.cfg.ProgressInterval, d.saveProgress)
	d.logger.Info().Int64("db_size", dbSize).Str("destination", string(destination)).Msg("dump started")

	upload, err := backend.Upload(context.Background(), job.ID, job.ContentType, storage.UploadHooks{
		OnProgress: func(written int64) {
			d.written.Store(written)
			d.progress.Push(written)
		},
		OnFinish:   func(o storage.Object) { d.object = &o },
	})
	if err != nil {
		d.exit(fmt.Errorf("open upload: %w", err), 0)
		d.done()
		return d.handle, nil
	}

	p := procpipe.StartDump(context.Background(), cmd, upload, procpipe.DumpHooks{
		OnStderr: func(chunk []byte, written int64) {
			d.logs.Write(chunk)
			d.progress.Push(written)
		},
		OnExit: func(err error) { d.exit(err, d.written.Load()) },
	})
	m.track(job.ID, p)
	go d.watch(p)
	return d.handle, nil
}

type dumpRun struct {
	m        *Manager
	job      *model.BackupJob
	backend  storage.Backend
	handle   *Handle
	logs     *logBuffer
	logger   zerolog.Logger
	progress *throttle.Throttle[int64]
	written  atomic.Int64
	object   *storage.Object
}

func (d *dumpRun) saveProgress(written int64) {
	err := d.m.jobs.UpdateDumpProgress(context.Background(), d.job.ID,
		model.Loading(written, d.job.DBSizeBytes), d.logs.Snapshot())
	if err != nil && !errors.Is(err, store.ErrNotLoading) {
		d.logger.Warn().Err(err).Msg("failed to save dump progress")
	}
}

// watch keeps the job alive while the program runs and stops the program
// once the record is gone or no longer loading.
func (d *dumpRun) watch(p *procpipe.Process) {
	ticker := time.NewTicker(d.m.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.Done():
			d.m.untrack(d.job.ID)
			d.done()
			return
		case <-ticker.C:
			err := d.m.jobs.Touch(context.Background(), d.job.ID)
			if errors.Is(err, store.ErrNotLoading) {
				d.logger.Warn().Msg("job abandoned, stopping dump")
				p.Kill(errAbandoned)
			} else if err != nil {
				d.logger.Warn().Err(err).Msg("failed to refresh job")
			}
		}
	}
}

// exit records the outcome. The upload has been committed or discarded by
// the time it runs.
func (d *dumpRun) exit(err error, written int64) {
	ctx := context.Background()
	d.progress.Discard()
	logs := d.logs.Final()

	if err == nil {
		size := written
		var localPath *string
		if d.object != nil {
			size = d.object.Size
			if d.object.LocalPath != "" {
				lp := d.object.LocalPath
				localPath = &lp
			}
		}
		err = d.m.jobs.FinishDump(ctx, d.job.ID, store.DumpResult{
			SizeBytes:     size,
			UploadedAt:    d.m.now(),
			LocalFilepath: localPath,
			Logs:          logs,
		})
		if err != nil {
			err = fmt.Errorf("record finished dump: %w", err)
			d.removeArtifact()
		} else {
			d.logger.Info().Str("size", platform.Bytes(size)).Msg("dump finished")
		}
	} else {
		if ferr := d.m.jobs.FailDump(ctx, d.job.ID, errMessage(err), logs); ferr != nil && !errors.Is(ferr, store.ErrNotLoading) {
			d.logger.Error().Err(ferr).Msg("failed to record dump failure")
		}
		d.removeArtifact()
		d.logger.Warn().Err(err).Msg("dump failed")
	}

	d.m.metrics.BytesTransferred("dump", written)
	d.m.metrics.JobFinished("dump", err)
	d.handle.err = err
}

func (d *dumpRun) removeArtifact() {
	err := d.backend.Delete(context.Background(), d.job.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		d.logger.Warn().Err(err).Msg("failed to remove partial artifact")
	}
}

func (d *dumpRun) done() {
	d.m.wg.Done()
	close(d.handle.done)
}
