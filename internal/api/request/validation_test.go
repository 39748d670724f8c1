package request

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/pgbackup/internal/model"
)

func TestRequireID(t *testing.T) {
	id, err := RequireID("app_20261018-0900_pg_dump_x.dump")
	require.NoError(t, err)
	assert.Equal(t, "app_20261018-0900_pg_dump_x.dump", id)

	_, err = RequireID("")
	assert.ErrorContains(t, err, "missing required ID")
}

func TestDecode_StartDump(t *testing.T) {
	body := `{"credential_id":3,"options":{"command":"pg_dump","format":"c","compressionLevel":6}}`
	r, err := http.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	require.NoError(t, err)

	var req StartDump
	require.NoError(t, Decode(r, &req))
	require.NotNil(t, req.CredentialID)
	assert.Equal(t, int64(3), *req.CredentialID)
	assert.Equal(t, model.CommandPGDump, req.Options.Command)
	assert.Equal(t, 6, *req.Options.CompressionLevel)
}

func TestDecode_InvalidJSON(t *testing.T) {
	r, err := http.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{not json}`))
	require.NoError(t, err)

	var req StartDump
	assert.ErrorContains(t, Decode(r, &req), "invalid JSON")
}

func TestDecode_ValidationFails(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing command", `{"options":{}}`},
		{"unknown command", `{"options":{"command":"mysqldump"}}`},
		{"compression out of range", `{"options":{"command":"pg_dump","compressionLevel":12}}`},
		{"bad format", `{"options":{"command":"pg_dump","format":"x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := http.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			var req StartDump
			assert.ErrorContains(t, Decode(r, &req), "validation error")
		})
	}
}

func TestDecode_RestoreNewDBName(t *testing.T) {
	r, err := http.NewRequest(http.MethodPost, "/", strings.NewReader(`{"options":{"command":"pg_restore","newDbName":"drop table"}}`))
	require.NoError(t, err)

	var req Restore
	assert.ErrorContains(t, Decode(r, &req), "validation error")
}

func TestDBNameValidation(t *testing.T) {
	for _, name := range []string{"app", "App_2", "_tmp", "copy$1", strings.Repeat("a", 63)} {
		assert.True(t, dbNameRegex.MatchString(name), name)
	}
	for _, name := range []string{"", "1app", "my-db", "a b", "x;drop", strings.Repeat("a", 64)} {
		assert.False(t, dbNameRegex.MatchString(name), name)
	}
}

func TestParseStreamStart(t *testing.T) {
	opts := url.QueryEscape(`{"command":"pg_restore","format":"c","clean":true}`)
	r := httptest.NewRequest(http.MethodPost, "/?fileName=prod.dump&options="+opts, strings.NewReader("12345"))

	s, err := ParseStreamStart(r)
	require.NoError(t, err)
	assert.Equal(t, "prod.dump", s.FileName)
	assert.Equal(t, int64(5), s.Size)
	require.NotNil(t, s.Options)
	assert.True(t, s.Options.Clean)
}

func TestParseStreamStart_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"missing file name", "?size=1", "validation error"},
		{"bad size", "?fileName=a.dump&size=big", "invalid size"},
		{"bad options", "?fileName=a.dump&options=%7B", "invalid options"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStreamStart(httptest.NewRequest(http.MethodPost, "/"+tt.query, nil))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestPutPolicy_Policy(t *testing.T) {
	hour := 3
	p := PutPolicy{Enabled: true, Frequency: model.FrequencyDaily, Hour: &hour,
		DumpOptions: model.DumpOptions{Command: model.CommandPGDump}}.Policy("conn-1")

	assert.Equal(t, "conn-1", p.ConnectionID)
	assert.True(t, p.IsLocal())
	assert.Equal(t, 3, *p.Hour)
	assert.Nil(t, p.Err)
}

func TestCreateConnection_Validation(t *testing.T) {
	ok := CreateConnection{Name: "prod", Host: "db.internal", DBName: "app", User: "postgres", SSLMode: "require"}
	assert.NoError(t, Validate(&ok))

	bad := ok
	bad.SSLMode = "sometimes"
	assert.Error(t, Validate(&bad))

	halfCert := ok
	halfCert.SSLClientCertificate = "-----BEGIN CERTIFICATE-----"
	assert.Error(t, Validate(&halfCert))
}
