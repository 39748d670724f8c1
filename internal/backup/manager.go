// Package backup drives pg_dump, pg_dumpall, pg_restore and psql against
// configured connections, streaming through a storage backend and recording
// every job in the state database.
package backup

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/pgbackup/internal/capacity"
	"github.com/edvin/pgbackup/internal/config"
	"github.com/edvin/pgbackup/internal/logging"
	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/procpipe"
	"github.com/edvin/pgbackup/internal/programs"
	"github.com/edvin/pgbackup/internal/storage"
	"github.com/edvin/pgbackup/internal/store"
)

// JobStore persists job records. *store.Jobs satisfies it.
type JobStore interface {
	Insert(ctx context.Context, j *model.BackupJob, liveness time.Duration) error
	Get(ctx context.Context, id string) (*model.BackupJob, error)
	Current(ctx context.Context, connectionID string, liveness time.Duration) (*model.BackupJob, error)
	ListByConnection(ctx context.Context, connectionID string, limit int, cursor string) ([]model.BackupJob, bool, error)
	ListIDs(ctx context.Context, connectionID, initiator string) ([]string, error)
	UpdateDumpProgress(ctx context.Context, id string, progress model.JobStatus, logs *string) error
	Touch(ctx context.Context, id string) error
	FinishDump(ctx context.Context, id string, r store.DumpResult) error
	FailDump(ctx context.Context, id, message string, logs *string) error
	BeginRestore(ctx context.Context, id string, opts model.RestoreOptions, command string, total int64) error
	UpdateRestoreProgress(ctx context.Context, id string, progress model.JobStatus, logs *string) error
	FinishRestore(ctx context.Context, id string, final model.JobStatus, logs *string) error
	Delete(ctx context.Context, id string) error
	FailInterrupted(ctx context.Context) (int64, error)
}

type ConnectionGetter interface {
	GetConnection(ctx context.Context, id string) (*model.Connection, error)
}

// StorageResolver maps a credential to a backend. *storage.Resolver
// satisfies it.
type StorageResolver interface {
	Resolve(ctx context.Context, credentialID *int64) (storage.Backend, error)
}

// TargetDB runs administrative statements. *targetdb.Admin satisfies it.
type TargetDB interface {
	DatabaseSize(ctx context.Context, c model.Connection) (int64, error)
	ClusterSize(ctx context.Context, c model.Connection) (int64, error)
	CreateDatabase(ctx context.Context, c model.Connection, name string) error
	ReloadSchema(ctx context.Context, c model.Connection, dbName string) error
	TerminateBackends(ctx context.Context, c model.Connection, dbName string) (int, error)
}

type ProgramDetector interface {
	Detect(ctx context.Context) (programs.Programs, error)
}

type CapacityChecker interface {
	Check(dbSize int64) (capacity.Result, error)
}

// Recorder receives job metrics.
type Recorder interface {
	JobStarted(kind, initiator string)
	JobFinished(kind string, err error)
	BytesTransferred(direction string, n int64)
	TempStreams(n int)
}

type nopRecorder struct{}

func (nopRecorder) JobStarted(string, string)       {}
func (nopRecorder) JobFinished(string, error)       {}
func (nopRecorder) BytesTransferred(string, int64) {}
func (nopRecorder) TempStreams(int)                 {}

// Deps are the collaborators of a Manager.
type Deps struct {
	Jobs        JobStore
	Connections ConnectionGetter
	Storage     StorageResolver
	Target      TargetDB
	Programs    ProgramDetector
	Capacity    CapacityChecker
	Metrics     Recorder
	Logger      zerolog.Logger
}

// Settings tune a Manager.
type Settings struct {
	CertDir           string
	Liveness          time.Duration
	StreamIdleTimeout time.Duration
	MaxTempStreams    int
	DownloadRate      int64
	ProgressInterval  time.Duration
	WatchdogInterval  time.Duration
}

// SettingsFrom derives Settings from the service configuration.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		CertDir:           cfg.CertDir,
		Liveness:          cfg.JobLivenessWindow,
		StreamIdleTimeout: cfg.TempStreamIdleTimeout,
		MaxTempStreams:    cfg.MaxTempStreams,
		DownloadRate:      cfg.DownloadRateBytesPerSec,
		ProgressInterval:  time.Second,
		WatchdogInterval:  config.WatchdogInterval,
	}
}

func (s Settings) withDefaults() Settings {
	if s.Liveness <= 0 {
		s.Liveness = 5 * time.Second
	}
	if s.StreamIdleTimeout <= 0 {
		s.StreamIdleTimeout = 60 * time.Second
	}
	if s.MaxTempStreams <= 0 {
		s.MaxTempStreams = 16
	}
	if s.DownloadRate <= 0 {
		s.DownloadRate = 50_000
	}
	if s.ProgressInterval <= 0 {
		s.ProgressInterval = time.Second
	}
	if s.WatchdogInterval <= 0 {
		s.WatchdogInterval = config.WatchdogInterval
	}
	return s
}

// Manager owns every running dump and restore and the temp streams that
// feed client-pushed restores.
type Manager struct {
	jobs     JobStore
	conns    ConnectionGetter
	storage  StorageResolver
	target   TargetDB
	programs ProgramDetector
	capacity CapacityChecker
	metrics  Recorder
	logger   zerolog.Logger
	cfg      Settings
	now      func() time.Time
	goos     string

	mu        sync.Mutex
	running   map[string]*procpipe.Process
	restoring map[string]string // target connection id -> job id
	streams   map[string]*TempStream
	closed    bool
	wg        sync.WaitGroup
}

func NewManager(d Deps, s Settings) *Manager {
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	return &Manager{
		jobs:      d.Jobs,
		conns:     d.Connections,
		storage:   d.Storage,
		target:    d.Target,
		programs:  d.Programs,
		capacity:  d.Capacity,
		metrics:   d.Metrics,
		logger:    logging.Component(d.Logger, "backup-manager"),
		cfg:       s.withDefaults(),
		now:       time.Now,
		goos:      runtime.GOOS,
		running:   make(map[string]*procpipe.Process),
		restoring: make(map[string]string),
		streams:   make(map[string]*TempStream),
	}
}

// Recover fails jobs left loading by a previous run of the service.
func (m *Manager) Recover(ctx context.Context) error {
	n, err := m.jobs.FailInterrupted(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Warn().Int64("jobs", n).Msg("failed jobs interrupted by restart")
	}
	return nil
}

// Run collects idle temp streams until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval(m.cfg.StreamIdleTimeout))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.collectIdleStreams()
		}
	}
}

// sweepInterval keeps idle streams from outliving the timeout by more than
// a second.
func sweepInterval(idle time.Duration) time.Duration {
	iv := idle / 4
	if iv > time.Second {
		iv = time.Second
	}
	if iv < time.Millisecond {
		iv = time.Millisecond
	}
	return iv
}

// Shutdown kills every running program and waits for the jobs to record
// their failure.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, p := range m.running {
		p.Kill(ErrShuttingDown)
	}
	for key, s := range m.streams {
		s.abort(ErrShuttingDown)
		delete(m.streams, key)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

// track registers p under id until it exits.
func (m *Manager) track(id string, p *procpipe.Process) {
	m.mu.Lock()
	m.running[id] = p
	m.mu.Unlock()
}

func (m *Manager) untrack(id string) {
	m.mu.Lock()
	delete(m.running, id)
	m.mu.Unlock()
}

// begin reserves a slot for a background job; false once shutting down.
func (m *Manager) begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.wg.Add(1)
	return true
}

func (m *Manager) detect(ctx context.Context) (programs.Programs, error) {
	p, err := m.programs.Detect(ctx)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrProgramsNotInstalled, err)
	}
	return p, nil
}

// GetJob returns a job record.
func (m *Manager) GetJob(ctx context.Context, id string) (*model.BackupJob, error) {
	return m.jobs.Get(ctx, id)
}

// CurrentJob returns the in-flight dump of a connection, or nil.
func (m *Manager) CurrentJob(ctx context.Context, connectionID string) (*model.BackupJob, error) {
	return m.jobs.Current(ctx, connectionID, m.cfg.Liveness)
}

// ListJobs pages through a connection's jobs, newest first.
func (m *Manager) ListJobs(ctx context.Context, connectionID string, limit int, cursor string) ([]model.BackupJob, bool, error) {
	return m.jobs.ListByConnection(ctx, connectionID, limit, cursor)
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
