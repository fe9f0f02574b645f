package trust

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/acl"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dbtest"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/internal/reportformats/signature"
	"github.com/tansive/reportformatsrv/pkg/types"
	"golang.org/x/crypto/openpgp"
)

func TestCanonicalString(t *testing.T) {
	b := Bundle{
		ID:          "a3810a62-1f62-11e1-9219-406186ea4fc5",
		Extension:   "txt",
		ContentType: "text/plain",
		Predefined:  true,
		Files: []assets.File{
			{Name: "generate", Content: []byte("#!/bin/sh\n")},
			{Name: "TXT.xsl", Content: []byte("<xsl/>")},
		},
		Params: []models.Param{
			{Name: "Width", Type: types.ParamTypeInteger, Min: 10, Max: types.NoMax, Fallback: "80"},
			{Name: "Style", Type: types.ParamTypeSelection, Min: types.NoMin, Max: types.NoMax, Fallback: "a", Options: []string{"a", "b"}},
		},
	}
	want := "a3810a62-1f62-11e1-9219-406186ea4fc5txttext/plain1" +
		"TXT.xsl<xsl/>generate#!/bin/sh\n" +
		"Widthinteger1080" +
		"Styleselectionaab" +
		"\n"
	assert.Equal(t, want, string(CanonicalString(b)))

	// File order of the input does not matter.
	reordered := b
	reordered.Files = []assets.File{b.Files[1], b.Files[0]}
	assert.Equal(t, CanonicalString(b), CanonicalString(reordered))
	assert.Equal(t, "generate", b.Files[0].Name, "input must not be reordered")

	b.Predefined = false
	assert.Contains(t, string(CanonicalString(b)), "text/plain0")
}

type fixture struct {
	ctx    context.Context
	store  db.Store
	assets *assets.Store
	engine *Engine
	signer *openpgp.Entity
	base   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	signer, err := openpgp.NewEntity("feed", "", "feed@example.com", nil)
	require.NoError(t, err)
	var ring bytes.Buffer
	require.NoError(t, signer.Serialize(&ring))
	keyring := filepath.Join(base, "pubring.gpg")
	require.NoError(t, os.WriteFile(keyring, ring.Bytes(), 0644))

	a := assets.New(filepath.Join(base, "state"), filepath.Join(base, "feed"), filepath.Join(base, "feedsig"))
	store := dbtest.NewStore(t)
	return &fixture{
		ctx:    dbtest.Context(),
		store:  store,
		assets: a,
		engine: NewEngine(store, a, signature.NewOpenPGPVerifier(keyring), acl.AllowAll{}),
		signer: signer,
		base:   base,
	}
}

func (fx *fixture) insert(t *testing.T, f *models.ReportFormat, files []assets.File, params []models.Param) {
	t.Helper()
	err := fx.store.WithTx(fx.ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		if err := tx.Formats().Insert(ctx, f); err != nil {
			return err
		}
		for i := range params {
			params[i].ReportFormat = f.RowID
			if err := tx.Params().Insert(ctx, &params[i], false); err != nil {
				return err
			}
		}
		return nil
	})
	require.Nil(t, err)
	require.NoError(t, fx.assets.WriteBundle(fx.assets.FormatDir(f), files))
}

func (fx *fixture) sign(t *testing.T, payload []byte) []byte {
	var sig bytes.Buffer
	require.NoError(t, openpgp.ArmoredDetachSign(&sig, fx.signer, bytes.NewReader(payload), nil))
	return sig.Bytes()
}

func (fx *fixture) trustOf(t *testing.T, id string) *models.ReportFormat {
	var f *models.ReportFormat
	err := fx.store.WithTx(fx.ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		var err apperrors.Error
		f, err = tx.Formats().Get(ctx, id)
		return err
	})
	require.Nil(t, err)
	return f
}

func TestVerify(t *testing.T) {
	fx := newFixture(t)
	const id = "c402cc3e-b531-11e1-9163-406186ea4fc5"
	f := &models.ReportFormat{UUID: id, Owner: "u1", Name: "CSV", Extension: "csv", ContentType: "text/csv", Flags: models.FlagActive}
	files := []assets.File{{Name: "generate", Content: []byte("#!/bin/sh\ncat\n")}}
	params := []models.Param{{Name: "Rows", Type: types.ParamTypeInteger, Min: 1, Max: 100, Value: "5", Fallback: "5"}}
	fx.insert(t, f, files, params)

	// Without any signature the trust state is left alone.
	state, err := fx.engine.Verify(fx.ctx, types.SystemPrincipal, id)
	require.Nil(t, err)
	assert.Equal(t, types.TrustUnknown, state)
	assert.Equal(t, types.TrustUnset, fx.trustOf(t, id).Trust)

	payload := CanonicalString(Bundle{ID: id, Extension: "csv", ContentType: "text/csv", Files: files, Params: []models.Param{
		{Name: "Rows", Type: types.ParamTypeInteger, Min: 1, Max: 100, Fallback: "5"},
	}})
	require.NoError(t, os.MkdirAll(filepath.Join(fx.base, "feedsig"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(fx.base, "feedsig", id+".asc"), fx.sign(t, payload), 0644))

	state, err = fx.engine.Verify(fx.ctx, types.SystemPrincipal, id)
	require.Nil(t, err)
	assert.Equal(t, types.TrustYes, state)
	stored := fx.trustOf(t, id)
	assert.Equal(t, types.TrustYes, stored.Trust)
	assert.NotZero(t, stored.TrustTime)

	// Changing a file breaks the signature.
	require.NoError(t, os.WriteFile(filepath.Join(fx.assets.FormatDir(f), "generate"), []byte("tampered"), 0755))
	state, err = fx.engine.Verify(fx.ctx, types.SystemPrincipal, id)
	require.Nil(t, err)
	assert.Equal(t, types.TrustNo, state)
	assert.Equal(t, types.TrustNo, fx.trustOf(t, id).Trust)
}

func TestVerifyMirroredSignature(t *testing.T) {
	fx := newFixture(t)
	const feedID = "a994b278-1f62-11e1-96ac-406186ea4fc5"
	const localID = "0b8f3f5e-5c0e-4a4c-9e3f-2b1d8c6b7a10"
	files := []assets.File{{Name: "generate", Content: []byte("script")}}
	f := &models.ReportFormat{UUID: localID, Owner: "u1", Name: "NBE", Extension: "nbe", ContentType: "text/plain"}
	fx.insert(t, f, files, nil)

	// The signature was made for the feed id.
	payload := CanonicalString(Bundle{ID: feedID, Extension: "nbe", ContentType: "text/plain", Files: files})
	require.NoError(t, os.MkdirAll(filepath.Join(fx.base, "feedsig"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(fx.base, "feedsig", feedID+".asc"), fx.sign(t, payload), 0644))
	require.NoError(t, fx.assets.LinkSignature(localID, feedID))

	state, err := fx.engine.Verify(fx.ctx, types.SystemPrincipal, localID)
	require.Nil(t, err)
	assert.Equal(t, types.TrustYes, state)
}

func TestVerifyErrors(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.engine.Verify(fx.ctx, types.SystemPrincipal, "missing")
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrFormatNotFound))

	f := &models.ReportFormat{UUID: "owned", Owner: "u1", Name: "X"}
	fx.insert(t, f, []assets.File{{Name: "generate"}}, nil)
	engine := NewEngine(fx.store, fx.assets, fx.engine.verifier, acl.NewRolePolicy(nil))
	_, err = engine.Verify(fx.ctx, types.Principal{UserID: "u2"}, "owned")
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrPermissionDenied))
}
