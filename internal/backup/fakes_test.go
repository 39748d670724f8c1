package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edvin/pgbackup/internal/capacity"
	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/programs"
	"github.com/edvin/pgbackup/internal/storage"
	"github.com/edvin/pgbackup/internal/store"
)

// fakeJobs mirrors the conditional updates of store.Jobs in memory and keeps
// every status a job passed through.
type fakeJobs struct {
	mu      sync.Mutex
	jobs    map[string]*model.BackupJob
	history map[string][]model.JobStatus
	seq     int
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[string]*model.BackupJob{}, history: map[string][]model.JobStatus{}}
}

func (f *fakeJobs) setStatus(j *model.BackupJob, s model.JobStatus) {
	j.Status = s
	j.LastUpdated = time.Now()
	f.history[j.ID] = append(f.history[j.ID], s)
}

func copyJob(j *model.BackupJob) *model.BackupJob {
	c := *j
	if j.RestoreStatus != nil {
		rs := *j.RestoreStatus
		c.RestoreStatus = &rs
	}
	return &c
}

func (f *fakeJobs) Insert(_ context.Context, j *model.BackupJob, liveness time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j.Status.IsLoading() {
		for _, other := range f.jobs {
			if other.ConnectionID == j.ConnectionID && other.Status.IsLoading() && time.Since(other.LastUpdated) <= liveness {
				return store.ErrJobInProgress
			}
		}
	}
	f.seq++
	j.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(f.seq) * time.Minute)
	c := copyJob(j)
	f.jobs[j.ID] = c
	f.setStatus(c, j.Status)
	j.LastUpdated = c.LastUpdated
	return nil
}

// put stores j as is, for seeding.
func (f *fakeJobs) put(j model.BackupJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j.LastUpdated.IsZero() {
		j.LastUpdated = time.Now()
	}
	f.jobs[j.ID] = &j
}

func (f *fakeJobs) Get(_ context.Context, id string) (*model.BackupJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyJob(j), nil
}

func (f *fakeJobs) Current(_ context.Context, connectionID string, liveness time.Duration) (*model.BackupJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ConnectionID == connectionID && j.Status.IsLoading() && time.Since(j.LastUpdated) <= liveness {
			return copyJob(j), nil
		}
	}
	return nil, nil
}

func (f *fakeJobs) sorted(connectionID string, keep func(*model.BackupJob) bool) []*model.BackupJob {
	var out []*model.BackupJob
	for _, j := range f.jobs {
		if j.ConnectionID == connectionID && keep(j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out
}

func (f *fakeJobs) ListByConnection(_ context.Context, connectionID string, limit int, _ string) ([]model.BackupJob, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.BackupJob
	for _, j := range f.sorted(connectionID, func(*model.BackupJob) bool { return true }) {
		out = append(out, *copyJob(j))
	}
	if len(out) > limit {
		return out[:limit], true, nil
	}
	return out, false, nil
}

func (f *fakeJobs) ListIDs(_ context.Context, connectionID, initiator string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, j := range f.sorted(connectionID, func(j *model.BackupJob) bool { return j.Initiator == initiator }) {
		ids = append(ids, j.ID)
	}
	return ids, nil
}

func (f *fakeJobs) loading(id string) (*model.BackupJob, error) {
	j, ok := f.jobs[id]
	if !ok || !j.Status.IsLoading() {
		return nil, store.ErrNotLoading
	}
	return j, nil
}

func (f *fakeJobs) UpdateDumpProgress(_ context.Context, id string, progress model.JobStatus, logs *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, err := f.loading(id)
	if err != nil {
		return err
	}
	f.setStatus(j, progress)
	if logs != nil {
		j.DumpLogs = *logs
	}
	return nil
}

func (f *fakeJobs) Touch(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, err := f.loading(id)
	if err != nil {
		return err
	}
	j.LastUpdated = time.Now()
	return nil
}

func (f *fakeJobs) FinishDump(_ context.Context, id string, r store.DumpResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, err := f.loading(id)
	if err != nil {
		return err
	}
	f.setStatus(j, model.Succeeded(r.UploadedAt))
	size := r.SizeBytes
	j.SizeBytes = &size
	j.LocalFilepath = r.LocalFilepath
	if r.Logs != nil {
		j.DumpLogs = *r.Logs
	}
	return nil
}

func (f *fakeJobs) FailDump(_ context.Context, id, message string, logs *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, err := f.loading(id)
	if err != nil {
		return err
	}
	f.setStatus(j, model.Failed(message))
	if logs != nil {
		j.DumpLogs = *logs
	}
	return nil
}

func (f *fakeJobs) BeginRestore(_ context.Context, id string, opts model.RestoreOptions, command string, total int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if j.RestoreStatus != nil && j.RestoreStatus.IsLoading() {
		return store.ErrRestoreInProgress
	}
	st := model.Loading(0, total)
	j.RestoreStatus = &st
	j.RestoreOptions = &opts
	j.RestoreCommand = command
	j.RestoreLogs = ""
	return nil
}

func (f *fakeJobs) UpdateRestoreProgress(_ context.Context, id string, progress model.JobStatus, logs *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.RestoreStatus == nil || !j.RestoreStatus.IsLoading() {
		return store.ErrNotLoading
	}
	j.RestoreStatus = &progress
	if logs != nil {
		j.RestoreLogs = *logs
	}
	return nil
}

func (f *fakeJobs) FinishRestore(_ context.Context, id string, final model.JobStatus, logs *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.RestoreStatus == nil || !j.RestoreStatus.IsLoading() {
		return store.ErrNotLoading
	}
	j.RestoreStatus = &final
	if logs != nil {
		j.RestoreLogs = *logs
	}
	if final.IsOK() && !j.Status.IsOK() {
		f.setStatus(j, final)
	}
	return nil
}

func (f *fakeJobs) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.jobs[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.jobs, id)
	return nil
}

func (f *fakeJobs) FailInterrupted(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, j := range f.jobs {
		if j.Status.IsLoading() {
			f.setStatus(j, model.Failed("interrupted by service restart"))
			n++
		}
	}
	return n, nil
}

// forceStatus overwrites the status as another writer would.
func (f *fakeJobs) forceStatus(id string, s model.JobStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setStatus(f.jobs[id], s)
}

type fakeConns map[string]*model.Connection

func (f fakeConns) GetConnection(_ context.Context, id string) (*model.Connection, error) {
	c, ok := f[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

type fakeResolver struct {
	backend storage.Backend
}

func (f fakeResolver) Resolve(context.Context, *int64) (storage.Backend, error) {
	return f.backend, nil
}

type fakeTarget struct {
	mu         sync.Mutex
	size       int64
	created    []string
	createErr  error
	reloaded   []string
	terminated []string
}

func (f *fakeTarget) DatabaseSize(context.Context, model.Connection) (int64, error) { return f.size, nil }
func (f *fakeTarget) ClusterSize(context.Context, model.Connection) (int64, error)  { return f.size * 3, nil }

func (f *fakeTarget) CreateDatabase(_ context.Context, _ model.Connection, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, name)
	return f.createErr
}

func (f *fakeTarget) ReloadSchema(_ context.Context, _ model.Connection, dbName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloaded = append(f.reloaded, dbName)
	return nil
}

func (f *fakeTarget) TerminateBackends(_ context.Context, _ model.Connection, dbName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, dbName)
	return 2, nil
}

func (f *fakeTarget) reloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reloaded...)
}

type fakePrograms struct {
	progs programs.Programs
	err   error
}

func (f fakePrograms) Detect(context.Context) (programs.Programs, error) { return f.progs, f.err }

type fakeCapacity struct {
	err error
}

func (f fakeCapacity) Check(dbSize int64) (capacity.Result, error) {
	if f.err != nil {
		return capacity.Result{}, f.err
	}
	return capacity.Result{OK: true, DBSize: dbSize}, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	m      *Manager
	jobs   *fakeJobs
	local  *storage.Local
	target *fakeTarget
	clock  *clock
	bin    string
}

const testPassword = "s3cret-password"

// writeScript installs a fake client program. Programs run with an empty
// environment, so bodies use absolute paths.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	root := t.TempDir()
	local, err := storage.NewLocal(root)
	require.NoError(t, err)

	bin := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	progs := programs.Programs{
		PGDump:    writeScript(t, bin, "pg_dump", `printf 'PGDMP-archive'; echo "pg_dump: dumping contents of table public.t" >&2`),
		PGDumpAll: writeScript(t, bin, "pg_dumpall", `printf 'CREATE ROLE app;'`),
		PGRestore: writeScript(t, bin, "pg_restore", `/bin/cat > /dev/null`),
		PSQL:      writeScript(t, bin, "psql", `/bin/cat > /dev/null`),
	}

	env := &testEnv{
		jobs:   newFakeJobs(),
		local:  local,
		target: &fakeTarget{size: 1_000_000},
		clock:  &clock{t: time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)},
		bin:    bin,
	}
	env.m = NewManager(Deps{
		Jobs: env.jobs,
		Connections: fakeConns{
			"conn-1": {ID: "conn-1", Name: "app", DBName: "app", User: "backup", Password: testPassword},
			"conn-2": {ID: "conn-2", Name: "staging", DBName: "staging", User: "backup"},
		},
		Storage:  fakeResolver{backend: local},
		Target:   env.target,
		Programs: fakePrograms{progs: progs},
		Capacity: fakeCapacity{},
		Logger:   zerolog.Nop(),
	}, Settings{
		CertDir:          filepath.Join(root, "certs"),
		ProgressInterval: 10 * time.Millisecond,
		WatchdogInterval: 20 * time.Millisecond,
	})
	env.m.now = env.clock.Now
	return env
}

// setProgram replaces one of the fake programs.
func (e *testEnv) setProgram(t *testing.T, name, body string) string {
	t.Helper()
	path := writeScript(t, e.bin, name+"-custom", body)
	fp := e.m.programs.(fakePrograms)
	switch name {
	case "pg_dump":
		fp.progs.PGDump = path
	case "pg_restore":
		fp.progs.PGRestore = path
	case "psql":
		fp.progs.PSQL = path
	default:
		t.Fatalf("unknown program %s", name)
	}
	e.m.programs = fp
	return path
}

var errDiskFull = errors.New("disk full")
