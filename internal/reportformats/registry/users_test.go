package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/pkg/types"
)

func TestAlertsUsing(t *testing.T) {
	fx := newFixture(t)
	id, err := fx.reg.Create(fx.ctx, alice, sampleRequest("Mailed"))
	require.Nil(t, err)

	uses, err := fx.reg.AlertsUsing(fx.ctx, alice, id)
	require.Nil(t, err)
	assert.Empty(t, uses)

	fx.addAlertRef(t, false, "send_report_format", id)
	fx.addAlertRef(t, true, "scp_report_format", id)
	err = fx.store.WithTx(fx.ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		return tx.Alerts().Insert(ctx, &models.Alert{UUID: "carol-alert", Owner: "carol", Name: "carol mail"}, false,
			map[string]string{"notice_attach_format": id})
	})
	require.Nil(t, err)

	uses, err = fx.reg.AlertsUsing(fx.ctx, alice, id)
	require.Nil(t, err)
	assert.Equal(t, []AlertUse{
		{UUID: "carol-alert", Name: "carol mail", Readable: false},
		{UUID: "alert-send_report_format-" + id, Name: "send_report_format", Readable: true},
	}, uses)

	uses, err = fx.reg.AlertsUsing(fx.ctx, types.SystemPrincipal, id)
	require.Nil(t, err)
	require.Len(t, uses, 2)
	assert.True(t, uses[0].Readable)

	_, err = fx.reg.AlertsUsing(fx.ctx, bob, id)
	assert.True(t, errors.Is(err, ErrPermissionDenied))
	_, err = fx.reg.AlertsUsing(fx.ctx, alice, "missing")
	assert.True(t, errors.Is(err, ErrFormatNotFound))
}

func TestDeleteUserFormats(t *testing.T) {
	fx := newFixture(t)
	kept, err := fx.reg.Create(fx.ctx, alice, sampleRequest("Kept"))
	require.Nil(t, err)
	gone, err := fx.reg.Create(fx.ctx, bob, sampleRequest("Gone"))
	require.Nil(t, err)
	trashed, err := fx.reg.Create(fx.ctx, bob, sampleRequest("Trashed"))
	require.Nil(t, err)
	require.Nil(t, fx.reg.Delete(fx.ctx, bob, trashed, false))
	bobTrash, lerr := fx.reg.List(fx.ctx, bob, true)
	require.Nil(t, lerr)
	require.Len(t, bobTrash, 1)

	// Alerts do not hold back a user's removal.
	fx.addAlert(t, false, gone)

	assert.True(t, errors.Is(fx.reg.DeleteUserFormats(fx.ctx, bob, "bob"), ErrPermissionDenied))
	assert.True(t, errors.Is(fx.reg.DeleteUserFormats(fx.ctx, types.SystemPrincipal, ""), ErrOwnerRequired))
	require.Nil(t, fx.reg.DeleteUserFormats(fx.ctx, types.SystemPrincipal, "bob"))

	all, lerr := fx.reg.List(fx.ctx, types.SystemPrincipal, false)
	require.Nil(t, lerr)
	require.Len(t, all, 1)
	assert.Equal(t, kept, all[0].UUID)
	allTrash, lerr := fx.reg.List(fx.ctx, types.SystemPrincipal, true)
	require.Nil(t, lerr)
	assert.Empty(t, allTrash)

	assert.False(t, assets.Exists(fx.assets.OwnerDir("bob")))
	assert.False(t, assets.Exists(fx.assets.TrashDir(bobTrash[0].TrashKey)))
	_, serr := os.Lstat(filepath.Join(fx.assets.MirrorDir(), gone+".asc"))
	assert.True(t, os.IsNotExist(serr))
	assert.True(t, assets.Exists(fx.assets.ActiveDir("alice", kept)))

	// Nothing left to delete is not an error.
	require.Nil(t, fx.reg.DeleteUserFormats(fx.ctx, types.SystemPrincipal, "bob"))
}

func TestInheritFormats(t *testing.T) {
	fx := newFixture(t)
	heirs, err := fx.reg.Create(fx.ctx, alice, sampleRequest("Shared"))
	require.Nil(t, err)
	leaving, err := fx.reg.Create(fx.ctx, bob, sampleRequest("Shared"))
	require.Nil(t, err)
	other, err := fx.reg.Create(fx.ctx, bob, sampleRequest("Own"))
	require.Nil(t, err)
	require.Nil(t, fx.reg.Delete(fx.ctx, bob, other, false))

	assert.True(t, errors.Is(fx.reg.InheritFormats(fx.ctx, bob, "bob", "alice"), ErrPermissionDenied))
	require.Nil(t, fx.reg.InheritFormats(fx.ctx, types.SystemPrincipal, "bob", "alice"))

	got := fx.get(t, leaving)
	assert.Equal(t, "alice", got.Owner)
	assert.Equal(t, "Shared 2", got.Name)
	assert.Equal(t, "Shared", fx.get(t, heirs).Name)
	assert.True(t, assets.Exists(filepath.Join(fx.assets.ActiveDir("alice", leaving), "generate")))
	assert.False(t, assets.Exists(fx.assets.OwnerDir("bob")))

	aliceTrash, lerr := fx.reg.List(fx.ctx, alice, true)
	require.Nil(t, lerr)
	require.Len(t, aliceTrash, 1)
	assert.Equal(t, other, aliceTrash[0].OriginalUUID)

	// The new owner can act on what they inherited.
	require.Nil(t, fx.reg.Restore(fx.ctx, alice, aliceTrash[0].UUID))
	assert.True(t, assets.Exists(fx.assets.ActiveDir("alice", other)))
	require.Nil(t, fx.reg.Delete(fx.ctx, alice, leaving, true))
}

func TestInheritFormatsRollsBackOnCollision(t *testing.T) {
	fx := newFixture(t)
	id, err := fx.reg.Create(fx.ctx, bob, sampleRequest("Mine"))
	require.Nil(t, err)
	// A stray bundle of the same id in the heir's tree.
	require.NoError(t, os.MkdirAll(fx.assets.ActiveDir("alice", id), 0755))

	err = fx.reg.InheritFormats(fx.ctx, types.SystemPrincipal, "bob", "alice")
	assert.True(t, errors.Is(err, ErrUUIDCollision))
	assert.Equal(t, "bob", fx.get(t, id).Owner)
	assert.True(t, assets.Exists(filepath.Join(fx.assets.ActiveDir("bob", id), "generate")))
}
