package handler

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/pgbackup/internal/api/request"
	"github.com/edvin/pgbackup/internal/api/response"
	"github.com/edvin/pgbackup/internal/backup"
	"github.com/edvin/pgbackup/internal/model"
)

// BackupService is the part of *backup.Manager the backup routes use.
type BackupService interface {
	StartDump(ctx context.Context, req backup.DumpRequest) (*backup.Handle, error)
	StartRestore(ctx context.Context, req backup.RestoreRequest) (*backup.Handle, error)
	CurrentJob(ctx context.Context, connectionID string) (*model.BackupJob, error)
	ListJobs(ctx context.Context, connectionID string, limit int, cursor string) ([]model.BackupJob, bool, error)
	GetJob(ctx context.Context, id string) (*model.BackupJob, error)
	Delete(ctx context.Context, id string, force bool) error
	Download(ctx context.Context, id string) (*backup.Download, error)
}

type Backup struct {
	svc BackupService
}

func NewBackup(svc BackupService) *Backup {
	return &Backup{svc: svc}
}

type jobAccepted struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connection_id"`
}

// StartDump godoc
//
//	@Summary		Start a dump
//	@Description	Starts an asynchronous pg_dump or pg_dumpall of the connection. At most one job runs per connection; the new job's id is returned immediately.
//	@Tags			Backups
//	@Security		ApiKeyAuth
//	@Param			connID	path		string				true	"Connection ID"
//	@Param			body	body		request.StartDump	true	"Dump options"
//	@Success		202		{object}	jobAccepted
//	@Failure		400		{object}	response.ErrorBody
//	@Failure		404		{object}	response.ErrorBody
//	@Failure		409		{object}	response.ErrorBody
//	@Failure		503		{object}	response.ErrorBody
//	@Router			/connections/{connID}/dumps [post]
func (h *Backup) StartDump(w http.ResponseWriter, r *http.Request) {
	connID, err := request.RequireID(chi.URLParam(r, "connID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.StartDump
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Options.Validate(); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	handle, err := h.svc.StartDump(r.Context(), backup.DumpRequest{
		ConnectionID: connID,
		CredentialID: req.CredentialID,
		Options:      req.Options,
		Initiator:    model.InitiatorManual,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, jobAccepted{ID: handle.Job.ID, ConnectionID: connID})
}

// CurrentJob godoc
//
//	@Summary		Get the running job
//	@Tags			Backups
//	@Security		ApiKeyAuth
//	@Param			connID	path		string	true	"Connection ID"
//	@Success		200		{object}	model.BackupJob
//	@Failure		404		{object}	response.ErrorBody
//	@Router			/connections/{connID}/current-job [get]
func (h *Backup) CurrentJob(w http.ResponseWriter, r *http.Request) {
	connID, err := request.RequireID(chi.URLParam(r, "connID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.CurrentJob(r.Context(), connID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if job == nil {
		response.WriteError(w, http.StatusNotFound, "no backup in progress")
		return
	}
	response.WriteJSON(w, http.StatusOK, job)
}

// List godoc
//
//	@Summary		List backup jobs
//	@Description	Lists the dump and restore jobs of a connection, newest first.
//	@Tags			Backups
//	@Security		ApiKeyAuth
//	@Param			connID	path		string	true	"Connection ID"
//	@Param			limit	query		int		false	"Page size"	default(25)
//	@Param			cursor	query		string	false	"Pagination cursor"
//	@Success		200		{object}	response.PaginatedResponse{items=[]model.BackupJob}
//	@Failure		400		{object}	response.ErrorBody
//	@Router			/connections/{connID}/backups [get]
func (h *Backup) List(w http.ResponseWriter, r *http.Request) {
	connID, err := request.RequireID(chi.URLParam(r, "connID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	pg, err := request.ParsePagination(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, hasMore, err := h.svc.ListJobs(r.Context(), connID, pg.Limit, pg.Cursor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []model.BackupJob{}
	}

	var nextCursor string
	if hasMore && len(jobs) > 0 {
		nextCursor = jobs[len(jobs)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, jobs, nextCursor, hasMore)
}

// Get godoc
//
//	@Summary		Get a backup job
//	@Tags			Backups
//	@Security		ApiKeyAuth
//	@Param			id	path		string	true	"Job ID"
//	@Success		200	{object}	model.BackupJob
//	@Failure		404	{object}	response.ErrorBody
//	@Router			/backups/{id} [get]
func (h *Backup) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.GetJob(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, job)
}

// Restore godoc
//
//	@Summary		Restore a backup
//	@Description	Restores a finished dump into its own connection, or into connection_id when given.
//	@Tags			Backups
//	@Security		ApiKeyAuth
//	@Param			id		path		string			true	"Job ID of the dump"
//	@Param			body	body		request.Restore	true	"Restore options"
//	@Success		202		{object}	jobAccepted
//	@Failure		400		{object}	response.ErrorBody
//	@Failure		404		{object}	response.ErrorBody
//	@Failure		409		{object}	response.ErrorBody
//	@Router			/backups/{id}/restore [post]
func (h *Backup) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.Restore
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Options == nil {
		response.WriteError(w, http.StatusBadRequest, backup.ErrMissingRestoreOptions.Error())
		return
	}
	if err := req.Options.Validate(); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	handle, err := h.svc.StartRestore(r.Context(), backup.RestoreRequest{
		BackupID:     id,
		ConnectionID: req.ConnectionID,
		Options:      req.Options,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	target := req.ConnectionID
	if target == "" {
		target = handle.Job.ConnectionID
	}
	response.WriteJSON(w, http.StatusAccepted, jobAccepted{ID: handle.Job.ID, ConnectionID: target})
}

// Delete godoc
//
//	@Summary		Delete a backup
//	@Description	Deletes the job record and its artifact. A running job is only removed with force=true.
//	@Tags			Backups
//	@Security		ApiKeyAuth
//	@Param			id		path	string	true	"Job ID"
//	@Param			force	query	bool	false	"Delete even while running"
//	@Success		204
//	@Failure		404	{object}	response.ErrorBody
//	@Failure		409	{object}	response.ErrorBody
//	@Router			/backups/{id} [delete]
func (h *Backup) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var force bool
	if v := r.URL.Query().Get("force"); v != "" {
		if force, err = strconv.ParseBool(v); err != nil {
			response.WriteError(w, http.StatusBadRequest, "invalid force parameter")
			return
		}
	}

	if err := h.svc.Delete(r.Context(), id, force); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Download godoc
//
//	@Summary		Download a backup artifact
//	@Description	Redirects to a signed URL when the backend can issue one and streams the artifact otherwise. Accepts the API key as a token query parameter for browser links.
//	@Tags			Backups
//	@Security		ApiKeyAuth
//	@Produce		octet-stream
//	@Param			id		path		string	true	"Job ID"
//	@Param			token	query		string	false	"API key, for links without headers"
//	@Success		200		{file}		file
//	@Success		302
//	@Failure		403		{object}	response.ErrorBody
//	@Failure		404		{object}	response.ErrorBody
//	@Router			/backups/{id}/download [get]
func (h *Backup) Download(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := h.svc.Download(r.Context(), id)
	if err != nil {
		if errors.Is(err, backup.ErrNotFound) {
			response.WriteError(w, http.StatusNotFound, "not found")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	if d.RedirectURL != "" {
		http.Redirect(w, r, d.RedirectURL, http.StatusFound)
		return
	}
	defer d.Body.Close()

	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.FileName}))
	if d.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(d.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, d.Body); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("job_id", id).Msg("download interrupted")
	}
}
