package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	mw "github.com/edvin/pgbackup/internal/api/middleware"
	"github.com/edvin/pgbackup/internal/backup"
	"github.com/edvin/pgbackup/internal/model"
)

func newRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

func newRequestRaw(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func withKey(r *http.Request, id string) *http.Request {
	ctx := context.WithValue(r.Context(), mw.APIKeyIdentityKey, &model.APIKey{ID: id, Scopes: []string{"*"}})
	return r.WithContext(ctx)
}

func decodeErrorResponse(rec *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	return body
}

const (
	testConnID = "conn-1"
	testJobID  = "app_20261018-0900_pg_dump_0a1b2c.dump"
)

// fakeBackups records calls and returns canned results.
type fakeBackups struct {
	mu sync.Mutex

	dumpReq    *backup.DumpRequest
	restoreReq *backup.RestoreRequest
	deleted    map[string]bool

	err      error
	current  *model.BackupJob
	jobs     []model.BackupJob
	hasMore  bool
	download *backup.Download
}

func (f *fakeBackups) StartDump(_ context.Context, req backup.DumpRequest) (*backup.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dumpReq = &req
	if f.err != nil {
		return nil, f.err
	}
	return backup.CompletedHandle(&model.BackupJob{ID: testJobID, ConnectionID: req.ConnectionID}, nil), nil
}

func (f *fakeBackups) StartRestore(_ context.Context, req backup.RestoreRequest) (*backup.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restoreReq = &req
	if f.err != nil {
		return nil, f.err
	}
	return backup.CompletedHandle(&model.BackupJob{ID: req.BackupID, ConnectionID: testConnID}, nil), nil
}

func (f *fakeBackups) CurrentJob(context.Context, string) (*model.BackupJob, error) {
	return f.current, f.err
}

func (f *fakeBackups) ListJobs(_ context.Context, _ string, limit int, _ string) ([]model.BackupJob, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	jobs := f.jobs
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, f.hasMore, nil
}

func (f *fakeBackups) GetJob(_ context.Context, id string) (*model.BackupJob, error) {
	for _, j := range f.jobs {
		if j.ID == id {
			return &j, nil
		}
	}
	return nil, backup.ErrNotFound
}

func (f *fakeBackups) Delete(_ context.Context, id string, force bool) error {
	if f.err != nil {
		return f.err
	}
	if f.deleted == nil {
		f.deleted = map[string]bool{}
	}
	f.deleted[id] = force
	return nil
}

func (f *fakeBackups) Download(context.Context, string) (*backup.Download, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.download, nil
}

// fakeUpload collects pushed bytes and finishes with result once closed.
type fakeUpload struct {
	mu       sync.Mutex
	id       string
	buf      bytes.Buffer
	closed   bool
	aborted  error
	writeErr error
	result   error
	done     chan struct{}
}

func newFakeUpload(id string) *fakeUpload {
	return &fakeUpload{id: id, done: make(chan struct{})}
}

func (u *fakeUpload) Write(b []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.writeErr != nil {
		return 0, u.writeErr
	}
	return u.buf.Write(b)
}

func (u *fakeUpload) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.closed {
		u.closed = true
		close(u.done)
	}
	return nil
}

func (u *fakeUpload) Abort(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.aborted = err
	if !u.closed {
		u.closed = true
		close(u.done)
	}
}

func (u *fakeUpload) ID() string { return u.id }

func (u *fakeUpload) Received() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return int64(u.buf.Len())
}

func (u *fakeUpload) Wait(ctx context.Context) error {
	select {
	case <-u.done:
		return u.result
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return errors.New("upload never finished")
	}
}

func (u *fakeUpload) snapshot() (string, bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.buf.String(), u.closed, u.aborted
}

type fakeStreams struct {
	mu      sync.Mutex
	req     *backup.StreamRequest
	upload  *fakeUpload
	openErr error
	open    map[string]*fakeUpload
}

func (f *fakeStreams) OpenStream(_ context.Context, req backup.StreamRequest) (Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.req = &req
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.open == nil {
		f.open = map[string]*fakeUpload{}
	}
	f.open[req.UserID+"-"+req.FileName] = f.upload
	return f.upload, nil
}

func (f *fakeStreams) Stream(userID, fileName string) (Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.open[userID+"-"+fileName]
	if !ok {
		return nil, backup.ErrStreamNotFound
	}
	return u, nil
}

func (f *fakeStreams) request() *backup.StreamRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.req
}

// errReader fails after returning its content.
type errReader struct {
	data string
	err  error
}

func (e *errReader) Read(b []byte) (int, error) {
	if e.data == "" {
		return 0, e.err
	}
	n := copy(b, e.data)
	e.data = e.data[n:]
	return n, nil
}

var _ io.Reader = (*errReader)(nil)
