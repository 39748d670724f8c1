package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	mw "github.com/edvin/pgbackup/internal/api/middleware"
	"github.com/edvin/pgbackup/internal/api/request"
	"github.com/edvin/pgbackup/internal/api/response"
	"github.com/edvin/pgbackup/internal/backup"
)

// Upload is the write end of a pushed restore (*backup.TempStream).
type Upload interface {
	Write(b []byte) (int, error)
	Close() error
	Abort(err error)
	ID() string
	Received() int64
	Wait(ctx context.Context) error
}

type StreamService interface {
	OpenStream(ctx context.Context, req backup.StreamRequest) (Upload, error)
	Stream(userID, fileName string) (Upload, error)
}

type Stream struct {
	svc            StreamService
	maxFrameSize   int64
	originPatterns []string
}

// NewStream serves pushed restores. Websocket upgrades from a browser are
// accepted from the API's own host and from originPatterns
// (path.Match patterns on the origin host, as websocket.AcceptOptions).
func NewStream(svc StreamService, maxFrameSize int64, originPatterns ...string) *Stream {
	return &Stream{svc: svc, maxFrameSize: maxFrameSize, originPatterns: originPatterns}
}

// streamOwner scopes stream names to the calling API key.
func streamOwner(r *http.Request) string {
	if k := mw.GetIdentity(r.Context()); k != nil {
		return k.ID
	}
	return "anonymous"
}

type streamAccepted struct {
	ID       string `json:"id"`
	Received int64  `json:"received"`
	Final    bool   `json:"final"`
}

// Open godoc
//
//	@Summary		Restore from a pushed dump
//	@Description	Starts a restore from the request body. With final=false the stream stays open for further appends.
//	@Tags			Restore Streams
//	@Security		ApiKeyAuth
//	@Accept			octet-stream
//	@Param			connID		path		string	true	"Connection ID"
//	@Param			fileName	query		string	true	"Dump file name"
//	@Param			size		query		int		false	"Total size in bytes"
//	@Param			options		query		string	true	"URL-encoded restore options JSON"
//	@Param			final		query		bool	false	"Close the stream after this body"	default(true)
//	@Success		200			{object}	streamAccepted
//	@Failure		400			{object}	response.ErrorBody
//	@Failure		409			{object}	response.ErrorBody
//	@Failure		503			{object}	response.ErrorBody
//	@Router			/connections/{connID}/restore-stream [post]
func (h *Stream) Open(w http.ResponseWriter, r *http.Request) {
	connID, err := request.RequireID(chi.URLParam(r, "connID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := request.ParseStreamStart(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if start.Options == nil {
		response.WriteError(w, http.StatusBadRequest, backup.ErrMissingRestoreOptions.Error())
		return
	}
	if err := start.Options.Validate(); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	up, err := h.svc.OpenStream(r.Context(), backup.StreamRequest{
		UserID:       streamOwner(r),
		FileName:     start.FileName,
		Size:         start.Size,
		ConnectionID: connID,
		Options:      start.Options,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.receive(w, r, up)
}

// Append godoc
//
//	@Summary		Append to a pushed dump
//	@Tags			Restore Streams
//	@Security		ApiKeyAuth
//	@Accept			octet-stream
//	@Param			fileName	path		string	true	"Dump file name"
//	@Param			final		query		bool	false	"Close the stream after this body"	default(true)
//	@Success		200			{object}	streamAccepted
//	@Failure		404			{object}	response.ErrorBody
//	@Failure		408			{object}	response.ErrorBody
//	@Failure		409			{object}	response.ErrorBody
//	@Router			/restore-streams/{fileName} [post]
func (h *Stream) Append(w http.ResponseWriter, r *http.Request) {
	fileName, err := request.RequireID(chi.URLParam(r, "fileName"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	up, err := h.svc.Stream(streamOwner(r), fileName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.receive(w, r, up)
}

type trackingBody struct {
	r   io.Reader
	err error
}

func (t *trackingBody) Read(b []byte) (int, error) {
	n, err := t.r.Read(b)
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}

func (h *Stream) receive(w http.ResponseWriter, r *http.Request, up Upload) {
	final := r.URL.Query().Get("final") != "false"
	body := &trackingBody{r: r.Body}

	if _, err := io.Copy(up, body); err != nil {
		if body.err != nil {
			up.Abort(backup.ErrUploadAborted)
			response.WriteError(w, http.StatusBadRequest, "upload interrupted: "+body.err.Error())
			return
		}
		writeServiceError(w, r, err)
		return
	}
	if final {
		_ = up.Close()
	}
	response.WriteJSON(w, http.StatusAccepted, streamAccepted{ID: up.ID(), Received: up.Received(), Final: final})
}

// StreamEvent is sent to websocket clients as a JSON text message.
type StreamEvent struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	Received int64  `json:"received,omitempty"`
	Error    string `json:"error,omitempty"`
}

// WebSocket godoc
//
//	@Summary		Restore over a websocket
//	@Description	Upgrades to a websocket: one JSON text message announcing the file, binary frames with its bytes, then an "end" text message. The final event reports the restore outcome.
//	@Tags			Restore Streams
//	@Security		ApiKeyAuth
//	@Param			connID	path	string	true	"Connection ID"
//	@Param			token	query	string	false	"API key, for clients that cannot set headers"
//	@Success		101
//	@Failure		401	{object}	response.ErrorBody
//	@Failure		403	{object}	response.ErrorBody
//	@Router			/connections/{connID}/restore-ws [get]
func (h *Stream) WebSocket(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())
	connID, err := request.RequireID(chi.URLParam(r, "connID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.CloseNow()
	ws.SetReadLimit(h.maxFrameSize)

	ctx := r.Context()
	fail := func(code websocket.StatusCode, err error) {
		_ = wsjson.Write(ctx, ws, StreamEvent{Type: "error", Error: err.Error()})
		ws.Close(code, "")
	}

	typ, data, err := ws.Read(ctx)
	if err != nil {
		return
	}
	var start request.StreamStart
	if typ != websocket.MessageText {
		fail(websocket.StatusUnsupportedData, errors.New("first message must announce the file"))
		return
	}
	if err := json.Unmarshal(data, &start); err != nil {
		fail(websocket.StatusInvalidFramePayloadData, err)
		return
	}
	if err := request.Validate(&start); err != nil {
		fail(websocket.StatusPolicyViolation, err)
		return
	}
	if start.Options == nil {
		fail(websocket.StatusPolicyViolation, backup.ErrMissingRestoreOptions)
		return
	}
	if err := start.Options.Validate(); err != nil {
		fail(websocket.StatusPolicyViolation, err)
		return
	}

	up, err := h.svc.OpenStream(ctx, backup.StreamRequest{
		UserID:       streamOwner(r),
		FileName:     start.FileName,
		Size:         start.Size,
		ConnectionID: connID,
		Options:      start.Options,
	})
	if err != nil {
		fail(websocket.StatusTryAgainLater, err)
		return
	}
	if err := wsjson.Write(ctx, ws, StreamEvent{Type: "open", ID: up.ID()}); err != nil {
		up.Abort(backup.ErrUploadAborted)
		return
	}

	for done := false; !done; {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			up.Abort(backup.ErrUploadAborted)
			return
		}
		switch typ {
		case websocket.MessageBinary:
			if _, err := up.Write(data); err != nil {
				fail(websocket.StatusInternalError, err)
				return
			}
		case websocket.MessageText:
			if len(data) == 0 || string(data) == "end" {
				_ = up.Close()
				done = true
			}
		}
	}

	ev := StreamEvent{Type: "done", ID: up.ID()}
	if err := up.Wait(ctx); err != nil {
		ev.Error = err.Error()
	}
	ev.Received = up.Received()
	if err := wsjson.Write(ctx, ws, ev); err != nil {
		log.Warn().Err(err).Str("job_id", up.ID()).Msg("failed to report restore outcome")
		return
	}
	ws.Close(websocket.StatusNormalClosure, "")
}
