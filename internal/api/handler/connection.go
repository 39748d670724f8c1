package handler

import (
	"context"
	"net/http"

	"github.com/edvin/pgbackup/internal/api/request"
	"github.com/edvin/pgbackup/internal/api/response"
	"github.com/edvin/pgbackup/internal/model"
)

type ConnectionCreator interface {
	Create(ctx context.Context, c *model.Connection) error
	List(ctx context.Context) ([]model.Connection, error)
}

type CredentialCreator interface {
	Create(ctx context.Context, c *model.Credential) error
}

type Connection struct {
	conns ConnectionCreator
	creds CredentialCreator
}

func NewConnection(conns ConnectionCreator, creds CredentialCreator) *Connection {
	return &Connection{conns: conns, creds: creds}
}

// Create godoc
//
//	@Summary		Register a connection
//	@Tags			Connections
//	@Security		ApiKeyAuth
//	@Param			body	body		request.CreateConnection	true	"Connection details"
//	@Success		201		{object}	model.Connection
//	@Failure		400		{object}	response.ErrorBody
//	@Router			/connections [post]
func (h *Connection) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateConnection
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	c := req.Connection("")
	if err := h.conns.Create(r.Context(), c); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, c)
}

// CreateCredential godoc
//
//	@Summary		Store S3 credentials
//	@Description	Stores an S3 access key for dumps and restores that use remote storage. The secret is sealed at rest and never returned.
//	@Tags			Connections
//	@Security		ApiKeyAuth
//	@Param			body	body		request.CreateCredential	true	"Credential details"
//	@Success		201		{object}	model.Credential
//	@Failure		400		{object}	response.ErrorBody
//	@Router			/credentials [post]
func (h *Connection) CreateCredential(w http.ResponseWriter, r *http.Request) {
	var req request.CreateCredential
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	c := req.Credential()
	if err := h.creds.Create(r.Context(), c); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, c)
}

// List godoc
//
//	@Summary		List connections
//	@Tags			Connections
//	@Security		ApiKeyAuth
//	@Success		200	{object}	response.PaginatedResponse{items=[]model.Connection}
//	@Router			/connections [get]
func (h *Connection) List(w http.ResponseWriter, r *http.Request) {
	conns, err := h.conns.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if conns == nil {
		conns = []model.Connection{}
	}
	response.WritePaginated(w, http.StatusOK, conns, "", false)
}
