package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/reportformatsrv/internal/reportformats/acl"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/config"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dbtest"
	"github.com/tansive/reportformatsrv/internal/reportformats/feed"
	"github.com/tansive/reportformatsrv/internal/reportformats/generator"
	"github.com/tansive/reportformatsrv/internal/reportformats/registry"
	"github.com/tansive/reportformatsrv/internal/reportformats/runner"
	"github.com/tansive/reportformatsrv/internal/reportformats/signature"
	"github.com/tansive/reportformatsrv/internal/reportformats/trust"
	"github.com/tansive/reportformatsrv/pkg/types"
)

const (
	testSecret = "test-secret"
	formatID   = "a3810a62-1f62-11e1-9219-406186ea4fc5"
)

func newTestServer(t *testing.T) *ReportFormatServer {
	t.Helper()
	base := t.TempDir()
	cfg := config.Defaults(base)
	cfg.TokenSecret = testSecret
	cfg.RequestTimeout = time.Minute

	store := dbtest.NewStore(t)
	a := assets.New(cfg.StateDir, cfg.FeedDir, cfg.FeedSignatureDir)
	authz := acl.NewRolePolicy([]string{"root"})
	engine := trust.NewEngine(store, a, signature.NewOpenPGPVerifier(filepath.Join(base, "pubring.gpg")), authz)
	s, err := CreateNewServer(cfg, Services{
		Registry: registry.New(store, a, engine, authz),
		Trust:    engine,
		Feed:     feed.New(store, a),
		Pipeline: generator.New(store, a, authz, runner.New()),
		Authz:    authz,
	})
	require.NoError(t, err)
	s.MountHandlers()
	return s
}

func token(t *testing.T, user string, roles ...string) string {
	t.Helper()
	tok, err := IssueToken(testSecret, user, roles, time.Hour)
	require.Nil(t, err)
	return tok
}

type call struct {
	method string
	path   string
	body   any
	user   string
}

func (s *ReportFormatServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, c.user))
	}
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Result int    `json:"result"`
	Error  string `json:"error"`
	Code   int    `json:"code"`
}

func createBodyFor(name string) map[string]any {
	return map[string]any{
		"id":           formatID,
		"name":         name,
		"summary":      "Plain text",
		"extension":    "txt",
		"content_type": "text/plain",
		"files": []map[string]any{
			{"name": "generate", "content": []byte("#!/bin/sh\ncat \"$1\"\n")},
		},
		"params": []map[string]any{
			{"name": "Width", "type": "integer", "value": "80", "fallback": "80", "min": "10", "max": "200"},
		},
	}
}

func TestVersionAndMetricsArePublic(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, call{method: http.MethodGet, path: "/version"})
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[GetVersionRsp](t, rec)
	assert.Equal(t, ApiVersion, v.ApiVersion)

	rec = s.do(t, call{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reportformats_http_requests_total")
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)
	expired, err := IssueToken(testSecret, "alice", nil, -time.Minute)
	require.Nil(t, err)
	foreign, err := IssueToken("other-secret", "alice", nil, time.Hour)
	require.Nil(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic YWxpY2U6eA==", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"valid", "Bearer " + token(t, "alice"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/report_formats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.Router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestParseToken(t *testing.T) {
	tok, err := IssueToken(testSecret, "alice", []string{types.RoleUser}, time.Hour)
	require.Nil(t, err)
	p, err := ParseToken(testSecret, tok)
	require.Nil(t, err)
	assert.Equal(t, "alice", p.UserID)
	assert.True(t, p.HasRole(types.RoleUser))
	assert.False(t, p.IsSystem())

	_, err = IssueToken(testSecret, "", nil, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = IssueToken("", "alice", nil, time.Hour)
	assert.ErrorIs(t, err, ErrTokenSecretMissing)
	_, err = ParseToken(testSecret, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestFormatLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, call{method: http.MethodPost, path: "/report_formats", body: createBodyFor("TXT"), user: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[resultRsp](t, rec)
	assert.Equal(t, formatID, created.ID)
	assert.Equal(t, "/report_formats/"+formatID, rec.Header().Get("Location"))

	rec = s.do(t, call{method: http.MethodGet, path: "/report_formats/" + formatID, user: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[registry.Format](t, rec)
	assert.Equal(t, "TXT", got.Name)
	require.Len(t, got.Params, 1)

	rec = s.do(t, call{method: http.MethodGet, path: "/report_formats/" + formatID, user: "bob"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: "/report_formats/" + formatID + "/copy",
		body: map[string]any{"name": "TXT copy"}, user: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	copied := decode[resultRsp](t, rec)
	assert.NotEqual(t, formatID, copied.ID)

	rec = s.do(t, call{method: http.MethodPut, path: "/report_formats/" + formatID,
		body: map[string]any{"param_name": "Width", "param_value": "500"}, user: "alice"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 4, decode[errorBody](t, rec).Code)

	rec = s.do(t, call{method: http.MethodDelete, path: "/report_formats/" + formatID, user: "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, call{method: http.MethodGet, path: "/report_formats?trash=1", user: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	trashed := decode[[]map[string]any](t, rec)
	require.Len(t, trashed, 1)
	assert.Equal(t, formatID, trashed[0]["original_id"])
	trashID, ok := trashed[0]["id"].(string)
	require.True(t, ok)

	rec = s.do(t, call{method: http.MethodPost, path: "/report_formats/" + trashID + "/restore", user: "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, call{method: http.MethodGet, path: "/report_formats", user: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 2)

	rec = s.do(t, call{method: http.MethodGet, path: "/report_formats?trash=maybe", user: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateErrors(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name     string
		body     map[string]any
		wantHTTP int
		wantCode int
	}{
		{
			name: "unknown param type",
			body: func() map[string]any {
				b := createBodyFor("Bad")
				b["params"] = []map[string]any{{"name": "X", "type": "colour", "value": "red", "fallback": "red"}}
				return b
			}(),
			wantHTTP: http.StatusBadRequest,
			wantCode: 9,
		},
		{
			name: "empty file name",
			body: func() map[string]any {
				b := createBodyFor("Bad")
				b["files"] = []map[string]any{{"name": "", "content": []byte("x")}}
				return b
			}(),
			wantHTTP: http.StatusBadRequest,
			wantCode: 2,
		},
		{
			name: "file name with a path",
			body: func() map[string]any {
				b := createBodyFor("Bad")
				b["files"] = []map[string]any{{"name": "../../escaped", "content": []byte("x")}}
				return b
			}(),
			wantHTTP: http.StatusBadRequest,
		},
		{
			name: "parent directory file name",
			body: func() map[string]any {
				b := createBodyFor("Bad")
				b["files"] = []map[string]any{{"name": "..", "content": []byte("x")}}
				return b
			}(),
			wantHTTP: http.StatusBadRequest,
		},
		{
			name:     "unknown field",
			body:     map[string]any{"name": "Bad", "colour": "red"},
			wantHTTP: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, call{method: http.MethodPost, path: "/report_formats", body: tt.body, user: "alice"})
			require.Equal(t, tt.wantHTTP, rec.Code, rec.Body.String())
			e := decode[errorBody](t, rec)
			assert.Equal(t, 0, e.Result)
			assert.Equal(t, tt.wantCode, e.Code)
		})
	}
}

func TestFeedSyncNeedsAdmin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, call{method: http.MethodPost, path: "/feed/sync", user: "alice"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, call{method: http.MethodPost, path: "/feed/sync", user: "root"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "the feed directory does not exist yet")
}

func TestUserFormats(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, call{method: http.MethodPost, path: "/report_formats", body: createBodyFor("TXT"), user: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, call{method: http.MethodGet, path: "/report_formats/" + formatID + "/alerts", user: "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decode[[]registry.AlertUse](t, rec))

	rec = s.do(t, call{method: http.MethodDelete, path: "/users/alice/report_formats?inheritor=bob", user: "alice"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, call{method: http.MethodDelete, path: "/users/alice/report_formats?inheritor=bob", user: "root"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, call{method: http.MethodGet, path: "/report_formats/" + formatID, user: "bob"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "bob", decode[registry.Format](t, rec).Owner)

	rec = s.do(t, call{method: http.MethodDelete, path: "/users/bob/report_formats", user: "root"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, call{method: http.MethodGet, path: "/report_formats/" + formatID, user: "root"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("generate scripts need /bin/sh")
	}
	s := newTestServer(t)
	rec := s.do(t, call{method: http.MethodPost, path: "/report_formats", body: createBodyFor("TXT"), user: "alice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	generate := call{method: http.MethodPost, path: "/report_formats/" + formatID + "/generate",
		body: map[string]any{"report": `<report id="r1">`}, user: "alice"}
	rec = s.do(t, generate)
	assert.Equal(t, http.StatusConflict, rec.Code, "imported formats start inactive")

	rec = s.do(t, call{method: http.MethodPut, path: "/report_formats/" + formatID,
		body: map[string]any{"active": true}, user: "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, generate)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[generateRsp](t, rec)
	assert.Equal(t, "text/plain", out.ContentType)
	assert.True(t, strings.HasSuffix(out.FileName, ".txt"))
	assert.Equal(t, `<report id="r1"><report_format><param><name>Width</name><value>80</value></param></report_format></report>`,
		string(out.Content))

	rec = s.do(t, call{method: http.MethodPost, path: "/report_formats/" + formatID + "/generate",
		body: map[string]any{}, user: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "report is required")
}
