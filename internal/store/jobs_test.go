package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/pgbackup/internal/model"
)

func jobScan(id string, status model.JobStatus, restore *model.JobStatus) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = id
		*(dest[1].(*string)) = "conn-1"
		*(dest[3].(*model.Destination)) = model.DestinationLocal
		*(dest[4].(*string)) = model.InitiatorManual
		*(dest[5].(*model.DumpOptions)) = model.DumpOptions{Command: model.CommandPGDump, Format: "c"}
		*(dest[6].(*model.JobStatus)) = status
		*(dest[7].(*string)) = model.ContentTypeArchive
		*(dest[8].(*int64)) = 4096
		*(dest[13].(*time.Time)) = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
		*(dest[17].(**model.JobStatus)) = restore
		return nil
	}
}

func TestJobs_Insert_FailsStaleLoadingFirst(t *testing.T) {
	db := &mockDB{}
	s := NewJobs(db)
	ctx := context.Background()

	now := time.Now()
	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "UPDATE backups", "last_updated <")
	}), mock.MatchedBy(func(args []any) bool {
		return args[1] == "conn-1" && args[2] == float64(5)
	})).Return(tag(1), nil)
	db.On("QueryRow", ctx, mock.MatchedBy(func(sql string) bool { return containsAll(sql, "INSERT INTO backups") }), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*(dest[0].(*time.Time)) = now
			*(dest[1].(*time.Time)) = now
			return nil
		}})

	j := &model.BackupJob{ID: "app__x.dump", ConnectionID: "conn-1", Status: model.Loading(0, 0)}
	require.NoError(t, s.Insert(ctx, j, 5*time.Second))
	assert.Equal(t, now, j.CreatedAt)
	db.AssertExpectations(t)
}

func TestJobs_Insert_UniqueViolationIsJobInProgress(t *testing.T) {
	db := &mockDB{}
	s := NewJobs(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.Anything, mock.Anything).Return(tag(0), nil)
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(errRow(&pgconn.PgError{
		Code:           "23505",
		ConstraintName: "backups_one_loading_per_connection",
	}))

	err := s.Insert(ctx, &model.BackupJob{ID: "x", ConnectionID: "conn-1", Status: model.Loading(0, 0)}, time.Second)
	assert.ErrorIs(t, err, ErrJobInProgress)
}

func TestJobs_Insert_TerminalJobSkipsStaleSweep(t *testing.T) {
	db := &mockDB{}
	s := NewJobs(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(&mockRow{scanFunc: func(...any) error { return nil }})

	err := s.Insert(ctx, &model.BackupJob{ID: "x", ConnectionID: "conn-1", Status: model.Succeeded(time.Now())}, time.Second)
	require.NoError(t, err)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestJobs_Get(t *testing.T) {
	db := &mockDB{}
	s := NewJobs(db)
	ctx := context.Background()

	restore := model.Loading(10, 20)
	db.On("QueryRow", ctx, mock.Anything, []any{"job-1"}).Return(&mockRow{scanFunc: jobScan("job-1", model.Succeeded(time.Now()), &restore)})

	j, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", j.ID)
	assert.True(t, j.Status.IsOK())
	require.NotNil(t, j.RestoreStatus)
	assert.Equal(t, int64(10), j.RestoreStatus.Progress().Loaded)
}

func TestJobs_Get_NotFound(t *testing.T) {
	db := &mockDB{}
	s := NewJobs(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(errRow(pgx.ErrNoRows))

	_, err := s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobs_Current_NoneIsNil(t *testing.T) {
	db := &mockDB{}
	s := NewJobs(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.Anything, []any{"conn-1", float64(5)}).Return(errRow(pgx.ErrNoRows))

	j, err := s.Current(ctx, "conn-1", 5*time.Second)
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestJobs_UpdateDumpProgress_NotLoading(t *testing.T) {
	db := &mockDB{}
	s := NewJobs(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.Anything, mock.Anything).Return(tag(0), nil)

	err := s.UpdateDumpProgress(ctx, "job-1", model.Loading(1, 2), nil)
	assert.ErrorIs(t, err, ErrNotLoading)
}

func TestJobs_FinishDump(t *testing.T) {
	db := &mockDB{}
	s := NewJobs(db)
	ctx := context.Background()

	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	path := "/var/lib/pgbackup/backups/job-1"
	db.On("Exec", ctx, mock.Anything, mock.MatchedBy(func(args []any) bool {
		st, ok := args[1].(model.JobStatus)
		return ok && st.IsOK() && args[2] == int64(77) && args[4] == &path
	})).Return(tag(1), nil)

	require.NoError(t, s.FinishDump(ctx, "job-1", DumpResult{SizeBytes: 77, UploadedAt: at, LocalFilepath: &path}))
	db.AssertExpectations(t)
}

func TestJobs_FailDump_DBError(t *testing.T) {
	db := &mockDB{}
	s := NewJobs(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.Anything, mock.Anything).Return(tag(0), errors.New("connection reset"))

	err := s.FailDump(ctx, "job-1", "boom", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fail backup")
	assert.NotErrorIs(t, err, ErrNotLoading)
}

func TestJobs_BeginRestore_AlreadyLoading(t *testing.T) {
	db := &mockDB{}
	s := NewJobs(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.Anything, mock.Anything).Return(tag(0), nil)
	db.On("QueryRow", ctx, mock.Anything, []any{"job-1"}).Return(&mockRow{scanFunc: jobScan("job-1", model.Succeeded(time.Now()), nil)})

	err := s.BeginRestore(ctx, "job-1", model.RestoreOptions{Command: model.CommandPGRestore}, "pg_restore", 100)
	assert.ErrorIs(t, err, ErrRestoreInProgress)
}

func TestJobs_BeginRestore_MissingJob(t *testing.T) {
	db := &mockDB{}
	s := NewJobs(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.Anything, mock.Anything).Return(tag(0), nil)
	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(errRow(pgx.ErrNoRows))

	err := s.BeginRestore(ctx, "job-1", model.RestoreOptions{Command: model.CommandPGRestore}, "pg_restore", 100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobs_FinishRestore_PassesOKFlag(t *testing.T) {
	db := &mockDB{}
	s := NewJobs(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.Anything, mock.MatchedBy(func(args []any) bool { return args[3] == true })).Return(tag(1), nil)

	require.NoError(t, s.FinishRestore(ctx, "job-1", model.Succeeded(time.Now()), nil))
	db.AssertExpectations(t)
}

func TestJobs_ListByConnection_Paginates(t *testing.T) {
	db := &mockDB{}
	s := NewJobs(db)
	ctx := context.Background()

	rows := newMockRows(
		jobScan("a", model.Succeeded(time.Now()), nil),
		jobScan("b", model.Failed("x"), nil),
		jobScan("c", model.Loading(1, 2), nil),
	)
	db.On("Query", ctx, mock.Anything, []any{"conn-1", "cursor-id", 3}).Return(rows, nil)

	jobs, hasMore, err := s.ListByConnection(ctx, "conn-1", 2, "cursor-id")
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].ID)
	assert.Nil(t, jobs[0].RestoreStatus)
}

func TestJobs_ListIDs(t *testing.T) {
	db := &mockDB{}
	s := NewJobs(db)
	ctx := context.Background()

	scanID := func(id string) func(dest ...any) error {
		return func(dest ...any) error { *(dest[0].(*string)) = id; return nil }
	}
	db.On("Query", ctx, mock.Anything, []any{"conn-1", model.InitiatorAutomatic}).
		Return(newMockRows(scanID("new"), scanID("old")), nil)

	ids, err := s.ListIDs(ctx, "conn-1", model.InitiatorAutomatic)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)
}

func TestJobs_FailInterrupted(t *testing.T) {
	db := &mockDB{}
	s := NewJobs(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool { return containsAll(sql, "SET status") }), mock.Anything).Return(tag(2), nil)
	db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool { return containsAll(sql, "SET restore_status") }), mock.Anything).Return(tag(1), nil)

	n, err := s.FailInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
