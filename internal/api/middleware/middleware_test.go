package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/pgbackup/internal/model"
	"github.com/edvin/pgbackup/internal/store"
)

type fakeKeys map[string]*model.APIKey

func (f fakeKeys) Authenticate(_ context.Context, raw string) (*model.APIKey, error) {
	k, ok := f[raw]
	if !ok {
		return nil, store.ErrNotFound
	}
	return k, nil
}

var testKeys = fakeKeys{
	"pgb_admin":  {ID: "k1", Scopes: []string{"*"}},
	"pgb_reader": {ID: "k2", Scopes: []string{"backups:read"}},
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestAuth_MissingKey(t *testing.T) {
	h := Auth(testKeys)(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/backups/x", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing API key", errorBody(t, rec))
}

func TestAuth_InvalidKey(t *testing.T) {
	h := Auth(testKeys)(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/backups/x", nil)
	r.Header.Set("X-API-Key", "pgb_wrong")

	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid API key", errorBody(t, rec))
}

func TestAuthForbidden_HidesReason(t *testing.T) {
	h := AuthForbidden(testKeys)(http.HandlerFunc(okHandler))

	for _, key := range []string{"", "pgb_wrong"} {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/download", nil)
		r.Header.Set("X-API-Key", key)
		h.ServeHTTP(rec, r)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "forbidden", errorBody(t, rec))
	}
}

func TestAuthWithToken_HeaderAndQueryToken(t *testing.T) {
	var got *model.APIKey
	h := AuthWithToken(testKeys)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetIdentity(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.Header.Set("X-API-Key", "pgb_admin")
	h.ServeHTTP(httptest.NewRecorder(), r)
	require.NotNil(t, got)
	assert.Equal(t, "k1", got.ID)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x?token=pgb_reader", nil))
	require.NotNil(t, got)
	assert.Equal(t, "k2", got.ID)
}

func TestAuth_IgnoresQueryToken(t *testing.T) {
	h := Auth(testKeys)(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/connections/c1/dumps?token=pgb_admin", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing API key", errorBody(t, rec))
}

func TestRequireScope(t *testing.T) {
	h := Auth(testKeys)(RequireScope(model.ScopeBackupsAdmin)(http.HandlerFunc(okHandler)))

	tests := []struct {
		key  string
		want int
	}{
		{"pgb_admin", http.StatusOK},
		{"pgb_reader", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/download", nil)
			r.Header.Set("X-API-Key", tt.key)
			h.ServeHTTP(rec, r)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := chi.NewRouter()
	r.Use(Metrics(reg))
	r.Get("/api/v1/backups/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/backups/abc.dump", nil))

	n, err := testutil.GatherAndCount(reg, "pgbackup_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	families, err := reg.Gather()
	require.NoError(t, err)
	var labels []string
	for _, f := range families {
		if f.GetName() != "pgbackup_http_requests_total" {
			continue
		}
		for _, l := range f.GetMetric()[0].GetLabel() {
			labels = append(labels, l.GetName()+"="+l.GetValue())
		}
	}
	assert.Contains(t, labels, "path=/api/v1/backups/{id}")
	assert.Contains(t, labels, "status=404")
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/x", nil))

	assert.Contains(t, buf.String(), `"message":"inside"`)
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"path":"/api/v1/x"`)
}
