package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/edvin/pgbackup/internal/api/response"
	"github.com/edvin/pgbackup/internal/backup"
	"github.com/edvin/pgbackup/internal/capacity"
	"github.com/edvin/pgbackup/internal/model"
)

// statusFor maps service errors to HTTP status codes; 0 means unexpected.
func statusFor(err error) int {
	switch {
	case errors.Is(err, backup.ErrNotFound), errors.Is(err, backup.ErrStreamNotFound):
		return http.StatusNotFound
	case errors.Is(err, backup.ErrJobInProgress),
		errors.Is(err, backup.ErrRestoreInProgress),
		errors.Is(err, backup.ErrStreamExists),
		errors.Is(err, backup.ErrStreamClosed):
		return http.StatusConflict
	case errors.Is(err, backup.ErrMissingRestoreOptions),
		errors.Is(err, backup.ErrNewDBNameWithCreate),
		errors.Is(err, model.ErrUnknownDumpCommand),
		errors.Is(err, model.ErrUnknownRestoreCommand),
		errors.Is(err, model.ErrDataAndSchemaOnly),
		errors.Is(err, model.ErrParallelDump):
		return http.StatusBadRequest
	case errors.Is(err, backup.ErrStreamIdle):
		return http.StatusRequestTimeout
	case errors.Is(err, backup.ErrProgramsNotInstalled),
		errors.Is(err, backup.ErrShuttingDown),
		errors.Is(err, backup.ErrTooManyStreams):
		return http.StatusServiceUnavailable
	}
	return 0
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *capacity.Error
	if errors.As(err, &ce) {
		response.WriteErrorDetails(w, http.StatusInsufficientStorage, err.Error(), ce.Result)
		return
	}
	if status := statusFor(err); status != 0 {
		response.WriteError(w, status, err.Error())
		return
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	response.WriteError(w, http.StatusInternalServerError, err.Error())
}
