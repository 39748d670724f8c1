package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/pgbackup/internal/model"
)

const jobColumns = `id, connection_id, credential_id, destination, initiator, options, status,
	content_type, db_size_bytes, size_bytes, dump_command, dump_logs, local_filepath,
	created_at, last_updated, uploaded_at, restore_options, restore_status,
	restore_command, restore_logs, restore_start, restore_end`

const oneLoadingIndex = "backups_one_loading_per_connection"

// Jobs manages rows of the backups table.
type Jobs struct {
	db DB
}

func NewJobs(db DB) *Jobs {
	return &Jobs{db: db}
}

func scanJob(row pgx.Row) (*model.BackupJob, error) {
	var j model.BackupJob
	var restoreStatus *model.JobStatus
	err := row.Scan(&j.ID, &j.ConnectionID, &j.CredentialID, &j.Destination, &j.Initiator,
		&j.Options, &j.Status, &j.ContentType, &j.DBSizeBytes, &j.SizeBytes,
		&j.DumpCommand, &j.DumpLogs, &j.LocalFilepath, &j.CreatedAt, &j.LastUpdated,
		&j.UploadedAt, &j.RestoreOptions, &restoreStatus, &j.RestoreCommand,
		&j.RestoreLogs, &j.RestoreStart, &j.RestoreEnd)
	if err != nil {
		return nil, err
	}
	if restoreStatus != nil && !restoreStatus.IsZero() {
		j.RestoreStatus = restoreStatus
	}
	return &j, nil
}

// Insert stores a new job. For a loading job, loading rows of the same
// connection that have not been updated within liveness are failed first;
// a live one makes the insert fail with ErrJobInProgress.
func (s *Jobs) Insert(ctx context.Context, j *model.BackupJob, liveness time.Duration) error {
	if j.Status.IsLoading() {
		if _, err := s.db.Exec(ctx,
			`UPDATE backups SET status = $1, last_updated = now()
			 WHERE connection_id = $2 AND status ? 'loading' AND last_updated < now() - $3::float8 * interval '1 second'`,
			model.Failed("abandoned: no progress reported"), j.ConnectionID, liveness.Seconds(),
		); err != nil {
			return fmt.Errorf("fail stale jobs: %w", err)
		}
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO backups (id, connection_id, credential_id, destination, initiator, options, status,
		   content_type, db_size_bytes, dump_command, created_at, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		 RETURNING created_at, last_updated`,
		j.ID, j.ConnectionID, j.CredentialID, j.Destination, j.Initiator, j.Options, j.Status,
		j.ContentType, j.DBSizeBytes, j.DumpCommand,
	).Scan(&j.CreatedAt, &j.LastUpdated)
	if err != nil {
		if isUniqueViolation(err, oneLoadingIndex) {
			return ErrJobInProgress
		}
		return fmt.Errorf("insert backup: %w", err)
	}
	return nil
}

func (s *Jobs) Get(ctx context.Context, id string) (*model.BackupJob, error) {
	j, err := scanJob(s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM backups WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "backup "+id)
	}
	return j, nil
}

// Current returns the live loading job of a connection, or nil.
func (s *Jobs) Current(ctx context.Context, connectionID string, liveness time.Duration) (*model.BackupJob, error) {
	j, err := scanJob(s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM backups
		 WHERE connection_id = $1 AND status ? 'loading' AND last_updated >= now() - $2::float8 * interval '1 second'
		 ORDER BY created_at DESC LIMIT 1`,
		connectionID, liveness.Seconds()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get current backup: %w", err)
	}
	return j, nil
}

// Latest returns the newest job of a connection started by initiator, in any
// status, or nil.
func (s *Jobs) Latest(ctx context.Context, connectionID, initiator string) (*model.BackupJob, error) {
	j, err := scanJob(s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM backups WHERE connection_id = $1 AND initiator = $2
		 ORDER BY created_at DESC LIMIT 1`, connectionID, initiator))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest backup: %w", err)
	}
	return j, nil
}

// ListByConnection pages through a connection's jobs, newest first. The
// cursor is the id of the last job of the previous page.
func (s *Jobs) ListByConnection(ctx context.Context, connectionID string, limit int, cursor string) ([]model.BackupJob, bool, error) {
	query := `SELECT ` + jobColumns + ` FROM backups WHERE connection_id = $1`
	args := []any{connectionID}
	argIdx := 2

	if cursor != "" {
		query += fmt.Sprintf(` AND created_at < (SELECT created_at FROM backups WHERE id = $%d)`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += ` ORDER BY created_at DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list backups for connection %s: %w", connectionID, err)
	}
	defer rows.Close()

	var jobs []model.BackupJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan backup: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate backups: %w", err)
	}

	hasMore := len(jobs) > limit
	if hasMore {
		jobs = jobs[:limit]
	}
	return jobs, hasMore, nil
}

// ListIDs returns the ids of a connection's jobs started by initiator,
// newest first.
func (s *Jobs) ListIDs(ctx context.Context, connectionID, initiator string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM backups WHERE connection_id = $1 AND initiator = $2 ORDER BY created_at DESC`,
		connectionID, initiator)
	if err != nil {
		return nil, fmt.Errorf("list backup ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan backup id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup ids: %w", err)
	}
	return ids, nil
}

func affected(tag interface{ RowsAffected() int64 }, err error, what string, none error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if tag.RowsAffected() == 0 {
		return none
	}
	return nil
}

// UpdateDumpProgress replaces the loading status. logs, when non-nil,
// replaces the dump log. ErrNotLoading means the job was deleted or already
// reached a terminal status.
func (s *Jobs) UpdateDumpProgress(ctx context.Context, id string, progress model.JobStatus, logs *string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backups SET status = $2, dump_logs = COALESCE($3, dump_logs), last_updated = now()
		 WHERE id = $1 AND status ? 'loading'`, id, progress, logs)
	return affected(tag, err, "update backup progress", ErrNotLoading)
}

// Touch refreshes last_updated of a loading job.
func (s *Jobs) Touch(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backups SET last_updated = now() WHERE id = $1 AND status ? 'loading'`, id)
	return affected(tag, err, "touch backup", ErrNotLoading)
}

// DumpResult is the outcome of a successful dump.
type DumpResult struct {
	SizeBytes     int64
	UploadedAt    time.Time
	LocalFilepath *string
	Logs          *string
}

// FinishDump flips a loading job to ok.
func (s *Jobs) FinishDump(ctx context.Context, id string, r DumpResult) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backups SET status = $2, size_bytes = $3, uploaded_at = $4, local_filepath = $5,
		   dump_logs = COALESCE($6, dump_logs), last_updated = now()
		 WHERE id = $1 AND status ? 'loading'`,
		id, model.Succeeded(r.UploadedAt), r.SizeBytes, r.UploadedAt, r.LocalFilepath, r.Logs)
	return affected(tag, err, "finish backup", ErrNotLoading)
}

// FailDump flips a loading job to err. A job that already succeeded is left
// alone.
func (s *Jobs) FailDump(ctx context.Context, id, message string, logs *string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backups SET status = $2, dump_logs = COALESCE($3, dump_logs), last_updated = now()
		 WHERE id = $1 AND status ? 'loading'`, id, model.Failed(message), logs)
	return affected(tag, err, "fail backup", ErrNotLoading)
}

// BeginRestore records the options and rendered command of a new restore
// run and sets restore_status to loading{0,total}.
func (s *Jobs) BeginRestore(ctx context.Context, id string, opts model.RestoreOptions, command string, total int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backups SET restore_options = $2, restore_command = $3, restore_status = $4,
		   restore_logs = '', restore_start = now(), restore_end = NULL
		 WHERE id = $1 AND (restore_status IS NULL OR NOT restore_status ? 'loading')`,
		id, opts, command, model.Loading(0, total))
	if err != nil {
		return fmt.Errorf("begin restore: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, gerr := s.Get(ctx, id); gerr != nil {
			return gerr
		}
		return ErrRestoreInProgress
	}
	return nil
}

// UpdateRestoreProgress replaces a loading restore status.
func (s *Jobs) UpdateRestoreProgress(ctx context.Context, id string, progress model.JobStatus, logs *string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backups SET restore_status = $2, restore_logs = COALESCE($3, restore_logs)
		 WHERE id = $1 AND restore_status ? 'loading'`, id, progress, logs)
	return affected(tag, err, "update restore progress", ErrNotLoading)
}

// FinishRestore sets the terminal restore status. A successful restore also
// marks the backup itself ok when it is not already.
func (s *Jobs) FinishRestore(ctx context.Context, id string, final model.JobStatus, logs *string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backups SET restore_status = $2, restore_logs = COALESCE($3, restore_logs), restore_end = now(),
		   status = CASE WHEN $4::boolean AND NOT status ? 'ok' THEN $2 ELSE status END
		 WHERE id = $1 AND restore_status ? 'loading'`, id, final, logs, final.IsOK())
	return affected(tag, err, "finish restore", ErrNotLoading)
}

func (s *Jobs) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM backups WHERE id = $1`, id)
	return affected(tag, err, "delete backup "+id, fmt.Errorf("backup %s: %w", id, ErrNotFound))
}

// FailInterrupted fails every loading dump and restore. It runs at startup,
// when no job of this process can be alive.
func (s *Jobs) FailInterrupted(ctx context.Context) (int64, error) {
	msg := model.Failed("interrupted by service restart")
	tag, err := s.db.Exec(ctx,
		`UPDATE backups SET status = $1, last_updated = now() WHERE status ? 'loading'`, msg)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted backups: %w", err)
	}
	n := tag.RowsAffected()
	tag, err = s.db.Exec(ctx,
		`UPDATE backups SET restore_status = $1, restore_end = now() WHERE restore_status ? 'loading'`, msg)
	if err != nil {
		return n, fmt.Errorf("fail interrupted restores: %w", err)
	}
	return n + tag.RowsAffected(), nil
}
