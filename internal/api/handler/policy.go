package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/pgbackup/internal/api/request"
	"github.com/edvin/pgbackup/internal/api/response"
	"github.com/edvin/pgbackup/internal/model"
)

type PolicyStore interface {
	Get(ctx context.Context, connectionID string) (*model.BackupPolicy, error)
	Upsert(ctx context.Context, p *model.BackupPolicy) error
}

type ConnectionGetter interface {
	GetConnection(ctx context.Context, id string) (*model.Connection, error)
}

type Policy struct {
	policies PolicyStore
	conns    ConnectionGetter
}

func NewPolicy(policies PolicyStore, conns ConnectionGetter) *Policy {
	return &Policy{policies: policies, conns: conns}
}

// Get godoc
//
//	@Summary		Get the backup policy
//	@Tags			Policies
//	@Security		ApiKeyAuth
//	@Param			connID	path		string	true	"Connection ID"
//	@Success		200		{object}	model.BackupPolicy
//	@Failure		404		{object}	response.ErrorBody
//	@Router			/connections/{connID}/policy [get]
func (h *Policy) Get(w http.ResponseWriter, r *http.Request) {
	connID, err := request.RequireID(chi.URLParam(r, "connID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.policies.Get(r.Context(), connID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, p)
}

// Put godoc
//
//	@Summary		Replace the backup policy
//	@Description	Replaces the automatic backup policy. A stored space error is cleared; the scheduler sets it again on its next tick if the disk is still short.
//	@Tags			Policies
//	@Security		ApiKeyAuth
//	@Param			connID	path		string				true	"Connection ID"
//	@Param			body	body		request.PutPolicy	true	"Policy"
//	@Success		200		{object}	model.BackupPolicy
//	@Failure		400		{object}	response.ErrorBody
//	@Failure		404		{object}	response.ErrorBody
//	@Router			/connections/{connID}/policy [put]
func (h *Policy) Put(w http.ResponseWriter, r *http.Request) {
	connID, err := request.RequireID(chi.URLParam(r, "connID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.PutPolicy
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.DumpOptions.Validate(); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.conns.GetConnection(r.Context(), connID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	p := req.Policy(connID)
	if err := h.policies.Upsert(r.Context(), p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, p)
}
