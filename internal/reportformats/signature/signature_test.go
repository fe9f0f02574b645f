package signature

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/reportformatsrv/internal/reportformats/config"
	"github.com/tansive/reportformatsrv/internal/reportformats/runner"
	"github.com/tansive/reportformatsrv/pkg/types"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
)

func testContext() context.Context {
	return zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.WarnLevel).WithContext(context.Background())
}

func newEntity(t *testing.T, name string) *openpgp.Entity {
	t.Helper()
	e, err := openpgp.NewEntity(name, "", name+"@example.com", nil)
	require.NoError(t, err)
	return e
}

func writeKeyring(t *testing.T, dir string, entities ...*openpgp.Entity) string {
	t.Helper()
	var buf bytes.Buffer
	for _, e := range entities {
		require.NoError(t, e.Serialize(&buf))
	}
	path := filepath.Join(dir, "pubring.gpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func detachSign(t *testing.T, e *openpgp.Entity, payload []byte, armored bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	if armored {
		require.NoError(t, openpgp.ArmoredDetachSign(&buf, e, bytes.NewReader(payload), nil))
	} else {
		require.NoError(t, openpgp.DetachSign(&buf, e, bytes.NewReader(payload), nil))
	}
	return buf.Bytes()
}

func TestOpenPGPVerifier(t *testing.T) {
	ctx := testContext()
	trusted := newEntity(t, "feed")
	stranger := newEntity(t, "stranger")
	keyring := writeKeyring(t, t.TempDir(), trusted)
	payload := []byte("a3810a62-1f62-11e1-9219-406186ea4fc5txttext/plain1\n")

	tests := []struct {
		name      string
		payload   []byte
		signature []byte
		want      types.TrustState
	}{
		{
			name:      "armored signature",
			payload:   payload,
			signature: detachSign(t, trusted, payload, true),
			want:      types.TrustYes,
		},
		{
			name:      "binary signature",
			payload:   payload,
			signature: detachSign(t, trusted, payload, false),
			want:      types.TrustYes,
		},
		{
			name:      "modified payload",
			payload:   append([]byte("x"), payload...),
			signature: detachSign(t, trusted, payload, true),
			want:      types.TrustNo,
		},
		{
			name:      "signer not in keyring",
			payload:   payload,
			signature: detachSign(t, stranger, payload, false),
			want:      types.TrustNo,
		},
		{
			name:      "not a signature",
			payload:   payload,
			signature: []byte("not a signature"),
			want:      types.TrustUnknown,
		},
	}

	v := NewOpenPGPVerifier(keyring)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(ctx, tt.payload, tt.signature)
			assert.Nil(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenPGPVerifierArmoredKeyring(t *testing.T) {
	ctx := testContext()
	trusted := newEntity(t, "feed")
	payload := []byte("payload")

	var raw bytes.Buffer
	require.NoError(t, trusted.Serialize(&raw))
	keyring := filepath.Join(t.TempDir(), "pubring.asc")
	f, err := os.Create(keyring)
	require.NoError(t, err)
	w, err := armor.Encode(f, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	_, err = w.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	got, aerr := NewOpenPGPVerifier(keyring).Verify(ctx, payload, detachSign(t, trusted, payload, true))
	assert.Nil(t, aerr)
	assert.Equal(t, types.TrustYes, got)
}

func TestOpenPGPVerifierMissingKeyring(t *testing.T) {
	v := NewOpenPGPVerifier(filepath.Join(t.TempDir(), "missing.gpg"))
	got, err := v.Verify(testContext(), []byte("p"), []byte("s"))
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrKeyring))
	assert.Equal(t, types.TrustUnknown, got)
}

// fakeGpgv writes a script that records its arguments and exits according to
// the signature file contents.
func fakeGpgv(t *testing.T, dir string) (script, argsFile string) {
	t.Helper()
	script = filepath.Join(dir, "gpgv")
	argsFile = filepath.Join(dir, "args")
	body := `#!/bin/sh
echo "$@" > ` + argsFile + `
case "$(cat "$7")" in
good) exit 0 ;;
bad) exit 1 ;;
*) exit 2 ;;
esac
`
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))
	return script, argsFile
}

func TestGpgvVerifier(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	ctx := testContext()
	dir := t.TempDir()
	home := filepath.Join(dir, "gnupg")
	script, argsFile := fakeGpgv(t, dir)
	v := NewGpgvVerifier(script, home, runner.New())

	tests := []struct {
		name      string
		signature string
		want      types.TrustState
	}{
		{"good signature", "good", types.TrustYes},
		{"bad signature", "bad", types.TrustNo},
		{"verifier error", "garbage", types.TrustUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(ctx, []byte("payload"), []byte(tt.signature))
			assert.Nil(t, err)
			assert.Equal(t, tt.want, got)

			args, rerr := os.ReadFile(argsFile)
			require.NoError(t, rerr)
			fields := strings.Fields(string(args))
			require.Len(t, fields, 8)
			assert.Equal(t, []string{"--homedir", home, "--quiet", "--keyring", filepath.Join(home, "pubring.gpg"), "--"}, fields[:6])
			_, statErr := os.Stat(fields[6])
			assert.True(t, os.IsNotExist(statErr), "signature temp file must be removed")
			_, statErr = os.Stat(fields[7])
			assert.True(t, os.IsNotExist(statErr), "payload temp file must be removed")
		})
	}
}

func TestGpgvVerifierSpawnFailure(t *testing.T) {
	v := NewGpgvVerifier(filepath.Join(t.TempDir(), "no-gpgv"), t.TempDir(), runner.New())
	got, err := v.Verify(testContext(), []byte("payload"), []byte("sig"))
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrVerifierSpawn))
	assert.Equal(t, types.TrustUnknown, got)
}

func TestNewSelectsBackend(t *testing.T) {
	c := config.Defaults(t.TempDir())
	assert.IsType(t, &GpgvVerifier{}, New(c, runner.New()))
	c.Signature.Backend = "openpgp"
	v, ok := New(c, runner.New()).(*OpenPGPVerifier)
	require.True(t, ok)
	assert.Equal(t, c.GnupgKeyring(), v.keyring)
}
