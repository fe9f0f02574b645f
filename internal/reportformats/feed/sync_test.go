package feed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/acl"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dbtest"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/pkg/types"
)

const (
	pdfID = "c402cc3e-b531-11e1-9163-406186ea4fc5"
	txtID = "a3810a62-1f62-11e1-9219-406186ea4fc5"
)

const txtManifest = `<report_format><name>TXT</name><summary>Plain text</summary>
	<description>Plain text report.</description><extension>txt</extension>
	<content_type>text/plain</content_type></report_format>`

type syncFixture struct {
	ctx    context.Context
	store  db.Store
	assets *assets.Store
	syncer *Syncer
	feed   string
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	base := t.TempDir()
	feed := filepath.Join(base, "feed")
	require.NoError(t, os.MkdirAll(feed, 0755))
	store := dbtest.NewStore(t)
	a := assets.New(filepath.Join(base, "state"), feed, "")
	return &syncFixture{ctx: dbtest.Context(), store: store, assets: a, syncer: New(store, a), feed: feed}
}

func (fx *syncFixture) writeManifest(t *testing.T, id, doc string) {
	t.Helper()
	dir := filepath.Join(fx.feed, id)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, assets.Manifest), []byte(doc), 0644))
}

func (fx *syncFixture) format(t *testing.T, id string) (*models.ReportFormat, []models.Param) {
	t.Helper()
	var f *models.ReportFormat
	var params []models.Param
	err := fx.store.WithTx(fx.ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		var err apperrors.Error
		if f, err = tx.Formats().Get(ctx, id); err != nil {
			return err
		}
		params, err = tx.Params().List(ctx, f.RowID, false)
		return err
	})
	require.Nil(t, err)
	return f, params
}

func (fx *syncFixture) setModificationTime(t *testing.T, id string, ts int64) {
	t.Helper()
	err := fx.store.WithTx(fx.ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		f, err := tx.Formats().Get(ctx, id)
		if err != nil {
			return err
		}
		f.ModificationTime = ts
		return tx.Formats().Update(ctx, f)
	})
	require.Nil(t, err)
}

func TestReconcileAllCreates(t *testing.T) {
	fx := newSyncFixture(t)
	fx.writeManifest(t, pdfID, pdfManifest)
	fx.writeManifest(t, txtID, txtManifest)
	// A directory without a manifest is not a format.
	require.NoError(t, os.MkdirAll(filepath.Join(fx.feed, "README"), 0755))

	report, err := fx.syncer.ReconcileAll(fx.ctx)
	require.Nil(t, err)
	assert.Equal(t, SyncReport{Created: 2}, *report)

	f, params := fx.format(t, pdfID)
	assert.Equal(t, "PDF", f.Name)
	assert.True(t, f.Global())
	assert.True(t, f.Predefined)
	assert.True(t, f.Active())
	assert.Equal(t, types.TrustYes, f.Trust)
	require.Len(t, params, 4)
	assert.Equal(t, []string{"short", "long"}, params[1].Options)

	err = fx.store.WithTx(fx.ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		for _, role := range types.PredefinedReadRoles {
			ok, err := tx.Permissions().HasGrant(ctx, role, string(acl.OpGet), types.ResourceTypeReportFormat, pdfID)
			if err != nil {
				return err
			}
			assert.True(t, ok, role)
		}
		return nil
	})
	require.Nil(t, err)
}

func TestReconcileAllIsIdempotent(t *testing.T) {
	fx := newSyncFixture(t)
	fx.writeManifest(t, pdfID, pdfManifest)
	fx.writeManifest(t, txtID, txtManifest)
	_, err := fx.syncer.ReconcileAll(fx.ctx)
	require.Nil(t, err)

	fx.setModificationTime(t, pdfID, 1000)
	fx.setModificationTime(t, txtID, 1000)

	report, err := fx.syncer.ReconcileAll(fx.ctx)
	require.Nil(t, err)
	assert.Equal(t, SyncReport{Unchanged: 2}, *report)
	f, params := fx.format(t, pdfID)
	assert.Equal(t, int64(1000), f.ModificationTime)
	assert.Len(t, params, 4)
	f, _ = fx.format(t, txtID)
	assert.Equal(t, int64(1000), f.ModificationTime)
}

func TestReconcileAllUpdates(t *testing.T) {
	fx := newSyncFixture(t)
	fx.writeManifest(t, pdfID, pdfManifest)
	fx.writeManifest(t, txtID, txtManifest)
	_, err := fx.syncer.ReconcileAll(fx.ctx)
	require.Nil(t, err)
	fx.setModificationTime(t, pdfID, 1000)
	fx.setModificationTime(t, txtID, 1000)

	// TXT gains a summary change, PDF loses its Title param.
	fx.writeManifest(t, txtID, `<report_format><name>TXT</name><summary>Text</summary>
		<description>Plain text report.</description><extension>txt</extension>
		<content_type>text/plain</content_type></report_format>`)
	withoutTitle := pdfManifest[:len(pdfManifest)-len("</report_format>")]
	withoutTitle = withoutTitle[:strings.LastIndex(withoutTitle, "<param>")] + "</report_format>"
	fx.writeManifest(t, pdfID, withoutTitle)

	report, err := fx.syncer.ReconcileAll(fx.ctx)
	require.Nil(t, err)
	assert.Equal(t, SyncReport{Updated: 2}, *report)

	f, _ := fx.format(t, txtID)
	assert.Equal(t, "Text", f.Summary)
	assert.NotEqual(t, int64(1000), f.ModificationTime)
	f, params := fx.format(t, pdfID)
	assert.NotEqual(t, int64(1000), f.ModificationTime)
	assert.Len(t, params, 3)
}

func TestReconcileAllRemovesStale(t *testing.T) {
	fx := newSyncFixture(t)
	fx.writeManifest(t, pdfID, pdfManifest)
	fx.writeManifest(t, txtID, txtManifest)
	_, err := fx.syncer.ReconcileAll(fx.ctx)
	require.Nil(t, err)

	// An alert still using PDF does not keep it alive.
	err = fx.store.WithTx(fx.ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		return tx.Alerts().Insert(ctx, &models.Alert{UUID: "alert", Name: "mail"}, false,
			map[string]string{"notice_attach_format": pdfID})
	})
	require.Nil(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(fx.feed, pdfID)))

	report, err := fx.syncer.ReconcileAll(fx.ctx)
	require.Nil(t, err)
	assert.Equal(t, SyncReport{Unchanged: 1, Removed: 1}, *report)

	err = fx.store.WithTx(fx.ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		_, err := tx.Formats().Get(ctx, pdfID)
		assert.NotNil(t, err)
		granted, err := tx.Permissions().HasGrant(ctx, types.RoleUser, string(acl.OpGet), types.ResourceTypeReportFormat, pdfID)
		assert.False(t, granted)
		return err
	})
	require.Nil(t, err)
}

func TestReconcileAllLeavesUserFormats(t *testing.T) {
	fx := newSyncFixture(t)
	err := fx.store.WithTx(fx.ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		return tx.Formats().Insert(ctx, &models.ReportFormat{UUID: "mine", Owner: "alice", Name: "Mine"})
	})
	require.Nil(t, err)

	report, err := fx.syncer.ReconcileAll(fx.ctx)
	require.Nil(t, err)
	assert.Equal(t, SyncReport{}, *report)
	f, _ := fx.format(t, "mine")
	assert.Equal(t, "alice", f.Owner)
}

func TestReconcileAllInvalidManifestAborts(t *testing.T) {
	fx := newSyncFixture(t)
	fx.writeManifest(t, txtID, txtManifest)
	_, err := fx.syncer.ReconcileAll(fx.ctx)
	require.Nil(t, err)

	fx.writeManifest(t, pdfID, `<report_format><name>PDF</name></report_format>`)
	require.NoError(t, os.RemoveAll(filepath.Join(fx.feed, txtID)))

	_, err = fx.syncer.ReconcileAll(fx.ctx)
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrManifestInvalid))

	// Nothing was removed.
	f, _ := fx.format(t, txtID)
	assert.Equal(t, "TXT", f.Name)
}

func TestReconcileAllMissingFeed(t *testing.T) {
	fx := newSyncFixture(t)
	require.NoError(t, os.RemoveAll(fx.feed))
	_, err := fx.syncer.ReconcileAll(fx.ctx)
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrFeedUnavailable))
}
