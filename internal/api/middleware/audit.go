package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/edvin/pgbackup/internal/model"
)

// maxAuditBody caps how much of a JSON request body is kept. Larger bodies
// are passed through untouched and not recorded.
const maxAuditBody = 64 << 10

// AuditWriter persists audit entries. *store.Audit satisfies it.
type AuditWriter interface {
	Insert(ctx context.Context, e *model.AuditEntry) error
}

// AuditLogger is an async audit log writer.
type AuditLogger struct {
	w      AuditWriter
	logger zerolog.Logger
	ch     chan model.AuditEntry
	done   chan struct{}
	once   sync.Once
}

func NewAuditLogger(w AuditWriter, logger zerolog.Logger) *AuditLogger {
	al := &AuditLogger{
		w:      w,
		logger: logger,
		ch:     make(chan model.AuditEntry, 1024),
		done:   make(chan struct{}),
	}
	go al.drain()
	return al
}

func (al *AuditLogger) drain() {
	defer close(al.done)
	for entry := range al.ch {
		if err := al.w.Insert(context.Background(), &entry); err != nil {
			al.logger.Error().Err(err).Str("path", entry.Path).Msg("failed to write audit log")
		}
	}
}

// Close writes the buffered entries and stops the writer. The middleware
// must not be serving requests any more.
func (al *AuditLogger) Close() {
	al.once.Do(func() { close(al.ch) })
	<-al.done
}

// Middleware records mutating requests. It must run after Auth so the
// calling key is known.
func (al *AuditLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodDelete {
			next.ServeHTTP(w, r)
			return
		}

		// Pushed restores carry whole dump files; only JSON bodies are kept.
		var body []byte
		if isJSON(r) && r.Body != nil {
			head, _ := io.ReadAll(io.LimitReader(r.Body, maxAuditBody+1))
			r.Body = struct {
				io.Reader
				io.Closer
			}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
			if len(head) <= maxAuditBody {
				body = head
			}
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		entry := model.AuditEntry{
			Method:     r.Method,
			Path:       r.URL.Path,
			StatusCode: sw.status,
		}
		entry.ResourceType, entry.ResourceID = extractResource(r.URL.Path)
		if k := GetIdentity(r.Context()); k != nil {
			id := k.ID
			entry.APIKeyID = &id
		}
		if len(body) > 0 && json.Valid(body) {
			entry.RequestBody = sanitizeBody(body)
		}

		select {
		case al.ch <- entry:
		default:
			al.logger.Warn().Str("path", entry.Path).Msg("audit log buffer full, dropping entry")
		}
	})
}

func isJSON(r *http.Request) bool {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && ct == "application/json"
}

// extractResource takes the last resource type and optional id from path.
//
//	/api/v1/connections                   -> connections
//	/api/v1/connections/c1/dumps          -> dumps
//	/api/v1/backups/app.dump              -> backups, app.dump
//	/api/v1/backups/app.dump/restore      -> restore
func extractResource(path string) (*string, *string) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/v1/"), "/"), "/")
	var resourceType, resourceID *string
	for i, part := range parts {
		if part == "" {
			continue
		}
		p := part
		if i%2 == 0 {
			resourceType = &p
			resourceID = nil
		} else {
			resourceID = &p
		}
	}
	return resourceType, resourceID
}

var sensitiveFields = map[string]bool{
	"password": true, "db_password": true, "key_secret": true,
	"ssl_client_certificate_key": true, "api_key": true, "secret": true, "token": true,
}

func sanitizeBody(body []byte) json.RawMessage {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}
	for k := range data {
		if sensitiveFields[k] {
			data[k] = "[REDACTED]"
		}
	}
	sanitized, _ := json.Marshal(data)
	return sanitized
}
