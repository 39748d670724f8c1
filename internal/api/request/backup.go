package request

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/edvin/pgbackup/internal/model"
)

// StartDump is the body of a manual dump request. A nil CredentialID keeps
// the artifact on the server.
type StartDump struct {
	CredentialID *int64            `json:"credential_id" validate:"omitempty,min=1"`
	Options      model.DumpOptions `json:"options"`
}

// Restore replays a stored backup. ConnectionID defaults to the backup's
// own connection.
type Restore struct {
	ConnectionID string                `json:"connection_id"`
	Options      *model.RestoreOptions `json:"options"`
}

// StreamStart announces a pushed dump file.
type StreamStart struct {
	FileName string                `json:"fileName" validate:"required,max=255"`
	Size     int64                 `json:"size" validate:"min=0"`
	Options  *model.RestoreOptions `json:"options"`
}

// ParseStreamStart reads a StreamStart from query parameters. Options are
// passed as URL-encoded JSON; size defaults to the request Content-Length.
func ParseStreamStart(r *http.Request) (StreamStart, error) {
	q := r.URL.Query()
	s := StreamStart{FileName: q.Get("fileName"), Size: r.ContentLength}
	if v := q.Get("size"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return s, fmt.Errorf("invalid size %q", v)
		}
		s.Size = n
	}
	if s.Size < 0 {
		s.Size = 0
	}
	if v := q.Get("options"); v != "" {
		var opts model.RestoreOptions
		if err := json.Unmarshal([]byte(v), &opts); err != nil {
			return s, fmt.Errorf("invalid options: %w", err)
		}
		s.Options = &opts
	}
	return s, Validate(&s)
}
