package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mw "github.com/edvin/pgbackup/internal/api/middleware"
	"github.com/edvin/pgbackup/internal/backup"
	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/store"
)

type keys map[string]*model.APIKey

func (k keys) Authenticate(_ context.Context, raw string) (*model.APIKey, error) {
	if key, ok := k[raw]; ok {
		return key, nil
	}
	return nil, store.ErrNotFound
}

type stubBackups struct{}

func (stubBackups) StartDump(context.Context, backup.DumpRequest) (*backup.Handle, error) {
	return nil, backup.ErrShuttingDown
}

func (stubBackups) StartRestore(context.Context, backup.RestoreRequest) (*backup.Handle, error) {
	return nil, backup.ErrShuttingDown
}

func (stubBackups) CurrentJob(context.Context, string) (*model.BackupJob, error) { return nil, nil }

func (stubBackups) ListJobs(context.Context, string, int, string) ([]model.BackupJob, bool, error) {
	return nil, false, nil
}

func (stubBackups) GetJob(_ context.Context, id string) (*model.BackupJob, error) {
	return &model.BackupJob{ID: id}, nil
}

func (stubBackups) Delete(context.Context, string, bool) error { return nil }

func (stubBackups) Download(_ context.Context, id string) (*backup.Download, error) {
	return &backup.Download{
		Body:        io.NopCloser(strings.NewReader("-- SQL")),
		ContentType: model.ContentTypeSQL,
		FileName:    id,
	}, nil
}

func newTestServer(ready func(context.Context) error) *Server {
	return NewServer(zerolog.Nop(), Deps{
		Backups: stubBackups{},
		Keys: keys{
			"pgb_admin":  {ID: "k1", Scopes: []string{"*"}},
			"pgb_viewer": {ID: "k2", Scopes: []string{"backups:read"}},
		},
		Ready:      ready,
		Registerer: prometheus.NewRegistry(),
		Gatherer:   prometheus.NewRegistry(),
	})
}

func do(s *Server, method, path, key string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, nil)
	if key != "" {
		r.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, r)
	return rec
}

func TestServer_RequiresAPIKey(t *testing.T) {
	s := newTestServer(nil)

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/v1/backups/b1", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/v1/backups/b1", "pgb_wrong").Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/v1/backups/b1", "pgb_viewer").Code)
}

func TestServer_DownloadRequiresAdminScope(t *testing.T) {
	s := newTestServer(nil)

	rec := do(s, http.MethodGet, "/api/v1/backups/app.sql/download", "pgb_viewer")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())

	for _, key := range []string{"", "pgb_wrong"} {
		rec = do(s, http.MethodGet, "/api/v1/backups/app.sql/download", key)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())
	}

	rec = do(s, http.MethodGet, "/api/v1/backups/app.sql/download?token=pgb_admin", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "-- SQL", rec.Body.String())
	assert.Equal(t, model.ContentTypeSQL, rec.Header().Get("Content-Type"))
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(nil)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/connections/c1/current-job", http.StatusNotFound},
		{http.MethodGet, "/api/v1/connections/c1/backups", http.StatusOK},
		{http.MethodDelete, "/api/v1/backups/b1", http.StatusNoContent},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, do(s, tt.method, tt.path, "pgb_admin").Code)
		})
	}
}

func TestServer_HealthAndReadiness(t *testing.T) {
	assert.Equal(t, http.StatusOK, do(newTestServer(nil), http.MethodGet, "/healthz", "").Code)

	down := newTestServer(func(context.Context) error { return errors.New("connection refused") })
	rec := do(down, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	up := newTestServer(func(context.Context) error { return nil })
	assert.Equal(t, http.StatusOK, do(up, http.MethodGet, "/readyz", "").Code)
}

func TestServer_StreamRoutesNeedStreamService(t *testing.T) {
	s := newTestServer(nil)
	rec := do(s, http.MethodPost, "/api/v1/connections/c1/restore-stream?fileName=a.dump", "pgb_admin")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

type memAudit struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func (m *memAudit) Insert(_ context.Context, e *model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memAudit) List(context.Context, store.AuditFilter, int, int64) ([]model.AuditEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AuditEntry(nil), m.entries...), false, nil
}

func TestServer_AuditsMutatingRequests(t *testing.T) {
	logs := &memAudit{}
	audit := mw.NewAuditLogger(logs, zerolog.Nop())
	s := NewServer(zerolog.Nop(), Deps{
		Backups:    stubBackups{},
		Keys:       keys{"pgb_admin": {ID: "k1", Scopes: []string{"*"}}, "pgb_viewer": {ID: "k2", Scopes: []string{"backups:read"}}},
		Audit:      audit,
		AuditLogs:  logs,
		Registerer: prometheus.NewRegistry(),
		Gatherer:   prometheus.NewRegistry(),
	})

	require.Equal(t, http.StatusNoContent, do(s, http.MethodDelete, "/api/v1/backups/b1", "pgb_admin").Code)
	require.Equal(t, http.StatusOK, do(s, http.MethodGet, "/api/v1/backups/b1", "pgb_admin").Code)
	audit.Close()

	require.Len(t, logs.entries, 1)
	e := logs.entries[0]
	assert.Equal(t, http.MethodDelete, e.Method)
	assert.Equal(t, http.StatusNoContent, e.StatusCode)
	require.NotNil(t, e.APIKeyID)
	assert.Equal(t, "k1", *e.APIKeyID)

	rec := do(s, http.MethodGet, "/api/v1/audit-logs", "pgb_admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"method":"DELETE"`)
	assert.Equal(t, http.StatusForbidden, do(s, http.MethodGet, "/api/v1/audit-logs", "pgb_viewer").Code)
}

func TestServer_QueryTokenOnlyOnDownloadAndWebSocket(t *testing.T) {
	s := newTestServer(nil)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/api/v1/backups/b1?token=pgb_admin", "").Code)
}

func TestServer_ServesOpenAPIDocument(t *testing.T) {
	rec := do(newTestServer(nil), http.MethodGet, "/api/docs/doc.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		BasePath string                    `json:"basePath"`
		Paths    map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "PostgreSQL Backup API", doc.Info.Title)
	assert.Equal(t, "/api/v1", doc.BasePath)
	assert.Contains(t, doc.Paths["/connections/{connID}/dumps"], "post")
	assert.Contains(t, doc.Paths["/backups/{id}/download"], "get")
	assert.Contains(t, doc.Paths["/audit-logs"], "get")
}
