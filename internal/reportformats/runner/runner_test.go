package runner

import (
	"bytes"
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipUnlessUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestExecRunner(t *testing.T) {
	skipUnlessUnix(t)
	dir := t.TempDir()

	tests := []struct {
		name     string
		cmd      Command
		wantCode int
		wantOut  string
		wantErr  error
	}{
		{
			name:     "success",
			cmd:      Command{Path: "/bin/sh", Args: []string{"-c", "echo hello"}},
			wantCode: 0,
			wantOut:  "hello\n",
		},
		{
			name:     "exit status is reported not failed",
			cmd:      Command{Path: "/bin/sh", Args: []string{"-c", "exit 1"}},
			wantCode: 1,
		},
		{
			name:     "other exit status",
			cmd:      Command{Path: "/bin/sh", Args: []string{"-c", "exit 2"}},
			wantCode: 2,
		},
		{
			name:     "working directory",
			cmd:      Command{Path: "/bin/sh", Args: []string{"-c", "pwd -P"}, Dir: dir},
			wantCode: 0,
			wantOut:  mustEvalSymlinks(t, dir) + "\n",
		},
		{
			name:     "spawn failure",
			cmd:      Command{Path: filepath.Join(dir, "does-not-exist")},
			wantCode: -1,
			wantErr:  ErrSpawn,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			tt.cmd.Stdout = &out
			res, err := New().Run(context.Background(), tt.cmd)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.Nil(t, err)
			}
			assert.Equal(t, tt.wantCode, res.ExitCode)
			if tt.wantOut != "" {
				assert.Equal(t, tt.wantOut, out.String())
			}
		})
	}
}

func TestExecRunnerCancelled(t *testing.T) {
	skipUnlessUnix(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := New().Run(ctx, Command{Path: "/bin/sh", Args: []string{"-c", "sleep 5"}})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestRunAsUnknownAccount(t *testing.T) {
	skipUnlessUnix(t)
	_, err := New().Run(context.Background(), Command{Path: "/bin/true", RunAs: "no-such-account-rf"})
	assert.Error(t, err)
}

func mustEvalSymlinks(t *testing.T, p string) string {
	r, err := filepath.EvalSymlinks(p)
	require.NoError(t, err)
	return r
}
