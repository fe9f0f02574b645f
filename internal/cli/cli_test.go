package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/reportformatsrv/internal/reportformats/registry"
	"github.com/tansive/reportformatsrv/internal/reportformats/server"
)

const formatID = "6c248850-1f62-11e1-b082-406186ea4fc5"

const formatYAML = `id: ` + formatID + `
name: Plain
summary: Plain text
extension: txt
content_type: text/plain
files:
  - name: generate
    path: generate.sh
  - name: README
    content: aGVsbG8=
params:
  - name: Width
    type: integer
    value: "80"
    fallback: "80"
    min: "1"
    max: "200"
`

func writeFormatDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "format.yaml"), []byte(formatYAML), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "generate.sh"), []byte("#!/bin/sh\ncat \"$1\"\n"), 0644))
	return dir
}

func TestLoadFormatFile(t *testing.T) {
	dir := writeFormatDir(t)
	req, err := loadFormatFile(filepath.Join(dir, "format.yaml"))
	require.NoError(t, err)
	assert.Equal(t, formatID, req.ID)
	assert.Equal(t, "txt", req.Extension)
	require.Len(t, req.Files, 2)
	assert.Equal(t, "generate", req.Files[0].Name)
	assert.Equal(t, "#!/bin/sh\ncat \"$1\"\n", string(req.Files[0].Content))
	assert.Equal(t, "hello", string(req.Files[1].Content))
	require.Len(t, req.Params, 1)
	require.NotNil(t, req.Params[0].Fallback)
	assert.Equal(t, registry.ParamSpec{Name: "Width", Type: "integer", Value: "80", Fallback: req.Params[0].Fallback, Min: "1", Max: "200"}, req.Params[0])

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"both path and content", "files:\n  - name: a\n    path: x\n    content: eA==\n", "both path and content"},
		{"bad base64", "files:\n  - name: a\n    content: '***'\n", "not base64"},
		{"missing path", "files:\n  - name: a\n    path: nothing-here\n", "unable to read bundle file"},
		{"not yaml", "files: [", "unable to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "f.yaml")
			require.NoError(t, os.WriteFile(p, []byte(tt.content), 0644))
			_, err := loadFormatFile(p)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestModifyRequest(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		check   func(t *testing.T, req registry.ModifyRequest)
		wantErr bool
	}{
		{
			name: "nothing set",
			check: func(t *testing.T, req registry.ModifyRequest) {
				assert.Equal(t, registry.ModifyRequest{ID: formatID}, req)
			},
		},
		{
			name: "deactivate and rename",
			args: []string{"--active=false", "--name", ""},
			check: func(t *testing.T, req registry.ModifyRequest) {
				require.NotNil(t, req.Active)
				assert.False(t, *req.Active)
				require.NotNil(t, req.Name)
				assert.Empty(t, *req.Name)
				assert.Nil(t, req.Summary)
				assert.Nil(t, req.Predefined)
			},
		},
		{
			name: "param value",
			args: []string{"--param", "Width", "--value", "MTIw", "--base64"},
			check: func(t *testing.T, req registry.ModifyRequest) {
				assert.Equal(t, "Width", req.ParamName)
				assert.Equal(t, "MTIw", req.ParamValue)
				assert.True(t, req.ParamValueBase64)
				assert.Nil(t, req.Active)
			},
		},
		{
			name:    "value without param",
			args:    []string{"--value", "1"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newModifyCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))
			req, err := modifyRequest(cmd, formatID)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, req)
		})
	}
}

func writeConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	content := `state_dir = "` + filepath.Join(base, "state") + `"
feed_dir = "` + filepath.Join(base, "feed") + `"
unprivileged_user = ""
log_level = "error"

[db]
driver = "sqlite"
dsn = "` + filepath.Join(base, "reportformats.db") + `"
`
	p := filepath.Join(base, "reportformats.toml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, cfg, "version", "--json")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, server.ServerVersion, v["version"])
	assert.Equal(t, server.ApiVersion, v["apiVersion"])
}

func TestFormatCommands(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("generate scripts need /bin/sh")
	}
	cfg := writeConfig(t)
	dir := writeFormatDir(t)

	out, err := run(t, cfg, "create", "-f", filepath.Join(dir, "format.yaml"), "--user", "alice", "--json")
	require.NoError(t, err)
	var created struct {
		ID   string `json:"id"`
		Code int    `json:"code"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, formatID, created.ID)
	assert.Equal(t, registry.CodeOK, created.Code)

	_, err = run(t, cfg, "create", "-f", filepath.Join(dir, "format.yaml"))
	require.Error(t, err, "the system principal cannot own formats")

	_, err = run(t, cfg, "modify", formatID, "--param", "Width", "--value", "0", "--user", "alice")
	var rerr *resultError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 4, rerr.code)

	start := filepath.Join(dir, "start.xml")
	require.NoError(t, os.WriteFile(start, []byte(`<report id="r1">`), 0644))
	_, err = run(t, cfg, "generate", formatID, "--report", start, "--dir", dir, "--user", "alice")
	require.Error(t, err, "new formats are inactive")

	_, err = run(t, cfg, "modify", formatID, "--active", "--user", "alice")
	require.NoError(t, err)

	out, err = run(t, cfg, "generate", formatID, "--report", start, "--dir", dir, "--user", "alice")
	require.NoError(t, err)
	output := strings.TrimSpace(out)
	assert.Equal(t, dir, filepath.Dir(output))
	content, errx := os.ReadFile(output)
	require.NoError(t, errx)
	assert.Equal(t, `<report id="r1"><report_format><param><name>Width</name><value>80</value></param></report_format></report>`, string(content))

	out, err = run(t, cfg, "list", "--json", "--user", "alice")
	require.NoError(t, err)
	var formats []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &formats))
	require.Len(t, formats, 1)
	assert.Equal(t, formatID, formats[0]["id"])
	assert.Equal(t, "Plain", formats[0]["name"])

	out, err = run(t, cfg, "list", "--user", "bob")
	require.NoError(t, err)
	assert.NotContains(t, out, formatID)

	_, err = run(t, cfg, "delete", formatID, "--user", "alice")
	require.NoError(t, err)
	out, err = run(t, cfg, "list", "--trash", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Plain")
	assert.Contains(t, out, "TRUST")

	_, err = run(t, cfg, "trash", "empty", "--user", "alice")
	require.NoError(t, err)
	out, err = run(t, cfg, "list", "--trash", "--json", "--user", "alice")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestUserCommands(t *testing.T) {
	cfg := writeConfig(t)
	dir := writeFormatDir(t)
	_, err := run(t, cfg, "create", "-f", filepath.Join(dir, "format.yaml"), "--user", "alice")
	require.NoError(t, err)

	out, err := run(t, cfg, "alerts", formatID, "--user", "alice", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))

	_, err = run(t, cfg, "remove-user", "alice", "--inheritor", "bob", "--user", "alice")
	require.Error(t, err, "only admins remove users")

	_, err = run(t, cfg, "remove-user", "alice", "--inheritor", "bob")
	require.NoError(t, err)
	out, err = run(t, cfg, "list", "--user", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, formatID)

	_, err = run(t, cfg, "remove-user", "bob")
	require.NoError(t, err)
	out, err = run(t, cfg, "list", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestRemoteCommands(t *testing.T) {
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/report_formats":
			w.Write([]byte(`[{"id":"` + formatID + `","name":"Plain","extension":"txt","trust":1,"flags":1}]`))
		case "/report_formats/" + formatID + "/generate":
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["report"] != "<report>" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Write([]byte(`{"id":"` + formatID + `","file_name":"out.txt","content":"aGVsbG8="}`))
		default:
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"result":0,"error":"permission denied","code":99}`))
		}
	}))
	defer srv.Close()
	cfg := writeConfig(t)

	out, err := run(t, cfg, "remote", "list", "--server", srv.URL, "--token", "tok")
	require.NoError(t, err)
	assert.Contains(t, out, formatID)
	assert.Contains(t, out, "Yes")
	assert.Equal(t, []string{"Bearer tok"}, auth)

	dir := t.TempDir()
	start := filepath.Join(dir, "start.xml")
	require.NoError(t, os.WriteFile(start, []byte("<report>"), 0644))
	out, err = run(t, cfg, "remote", "generate", formatID, "--report", start, "--dir", dir, "--server", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out.txt"), strings.TrimSpace(out))
	content, errx := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, errx)
	assert.Equal(t, "hello", string(content))

	_, err = run(t, cfg, "remote", "sync", "--server", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}
