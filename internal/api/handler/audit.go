package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/edvin/pgbackup/internal/api/request"
	"github.com/edvin/pgbackup/internal/api/response"
	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/store"
)

type AuditLister interface {
	List(ctx context.Context, f store.AuditFilter, limit int, cursor int64) ([]model.AuditEntry, bool, error)
}

type Audit struct {
	logs AuditLister
}

func NewAudit(logs AuditLister) *Audit {
	return &Audit{logs: logs}
}

// List godoc
//
//	@Summary		List audit logs
//	@Description	Returns mutating API requests newest first: the acting API key, method, path, resource and status code, with secrets redacted from the request body.
//	@Tags			Audit Logs
//	@Security		ApiKeyAuth
//	@Param			resource_type	query		string	false	"Filter by resource type (connections, dumps, backups, restore, policy)"
//	@Param			action			query		string	false	"Filter by HTTP method"
//	@Param			since			query		string	false	"RFC 3339 timestamp of the oldest entry"
//	@Param			limit			query		int		false	"Page size"	default(25)
//	@Param			cursor			query		string	false	"Pagination cursor"
//	@Success		200				{object}	response.PaginatedResponse{items=[]model.AuditEntry}
//	@Failure		400				{object}	response.ErrorBody
//	@Failure		403				{object}	response.ErrorBody
//	@Router			/audit-logs [get]
func (h *Audit) List(w http.ResponseWriter, r *http.Request) {
	pg, err := request.ParsePagination(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var cursor int64
	if pg.Cursor != "" {
		if cursor, err = strconv.ParseInt(pg.Cursor, 10, 64); err != nil || cursor <= 0 {
			response.WriteError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
	}

	q := r.URL.Query()
	f := store.AuditFilter{ResourceType: q.Get("resource_type"), Method: q.Get("action")}
	if s := q.Get("since"); s != "" {
		if f.Since, err = time.Parse(time.RFC3339, s); err != nil {
			response.WriteError(w, http.StatusBadRequest, "invalid since: want an RFC 3339 timestamp")
			return
		}
	}

	entries, hasMore, err := h.logs.List(r.Context(), f, pg.Limit, cursor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	var next string
	if hasMore && len(entries) > 0 {
		next = strconv.FormatInt(entries[len(entries)-1].ID, 10)
	}
	response.WritePaginated(w, http.StatusOK, entries, next, hasMore)
}
