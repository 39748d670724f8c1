package backup

import (
	"errors"

	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/programs"
	"github.com/edvin/pgbackup/internal/store"
)

var (
	ErrJobInProgress         = store.ErrJobInProgress
	ErrRestoreInProgress     = store.ErrRestoreInProgress
	ErrNotFound              = store.ErrNotFound
	ErrNewDBNameWithCreate   = model.ErrNewDBNameWithCreate
	ErrProgramsNotInstalled  = programs.ErrNotInstalled
	ErrMissingRestoreOptions = errors.New("restore options are required")
	ErrStreamNotFound        = errors.New("temp stream not found")
	ErrStreamExists          = errors.New("a temp stream with this name is already open")
	ErrTooManyStreams        = errors.New("too many open temp streams")
	ErrStreamIdle            = errors.New("temp stream idle for too long")
	ErrStreamClosed          = errors.New("temp stream closed: the restore has ended")
	ErrShuttingDown          = errors.New("service is shutting down")
	ErrUploadAborted         = errors.New("upload aborted by client")

	// errAbandoned stops a process whose job row was deleted or already
	// failed.
	errAbandoned = errors.New("job was deleted or has already finished")
)
