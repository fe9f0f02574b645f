package registry

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/common/uuid"
	"github.com/tansive/reportformatsrv/internal/reportformats/acl"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dberror"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/pkg/types"
)

// Delete moves the format id to the trash, or removes it for good when
// ultimate is set. id may name a trashed format, in which case only an
// ultimate delete has an effect.
func (r *Registry) Delete(ctx context.Context, p types.Principal, id string, ultimate bool) apperrors.Error {
	err := r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		f, err := tx.Formats().Get(ctx, id)
		if err != nil {
			if !err.Is(dberror.ErrNotFound) {
				return err
			}
			return r.deleteTrashed(ctx, tx, p, id, ultimate)
		}
		if !r.authz.May(ctx, p, acl.OpDelete, f) {
			return ErrPermissionDenied
		}
		if f.Predefined {
			return ErrFormatPredefined
		}
		if ultimate {
			return r.destroy(ctx, tx, f)
		}
		return r.trash(ctx, tx, f)
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("report_format", id).Bool("ultimate", ultimate).Msg("failed to delete report format")
	}
	return err
}

func (r *Registry) deleteTrashed(ctx context.Context, tx db.Tx, p types.Principal, id string, ultimate bool) apperrors.Error {
	t, err := tx.Formats().GetTrash(ctx, id)
	if err != nil {
		return notFound(err, id)
	}
	if !r.authz.May(ctx, p, acl.OpDelete, t) {
		return ErrPermissionDenied
	}
	if !ultimate {
		return nil
	}
	inUse, err := tx.Alerts().FormatInUseTrash(ctx, t.OriginalUUID)
	if err != nil {
		return err
	}
	if inUse {
		return ErrFormatInUse.Msg("report format " + id + " is in use by a trashed alert")
	}
	if err := removeTrashRows(ctx, tx, t); err != nil {
		return err
	}

	if err := assets.RemoveTree(r.assets.TrashDir(t.TrashKey)); err != nil {
		return assetError(ctx, id, err, "remove trash directory")
	}
	if err := r.assets.UnlinkSignature(t.OriginalUUID); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("report_format", id).Msg("failed to remove signature link")
	}
	return nil
}

func removeTrashRows(ctx context.Context, tx db.Tx, t *models.ReportFormat) apperrors.Error {
	if err := tx.Permissions().DeleteFor(ctx, types.ResourceTypeReportFormat, t.UUID, types.LocationTrash); err != nil {
		return err
	}
	if err := tx.Params().DeleteAll(ctx, t.RowID, true); err != nil {
		return err
	}
	return tx.Formats().DeleteTrash(ctx, t.RowID)
}

func removeRows(ctx context.Context, tx db.Tx, f *models.ReportFormat) apperrors.Error {
	if err := tx.Params().DeleteAll(ctx, f.RowID, false); err != nil {
		return err
	}
	return tx.Formats().Delete(ctx, f.RowID)
}

// checkNotInUse fails with ErrFormatInUse when an active or trashed alert
// references uuid.
func checkNotInUse(ctx context.Context, tx db.Tx, uuid string) apperrors.Error {
	for _, check := range []func(context.Context, string) (bool, apperrors.Error){
		tx.Alerts().FormatInUseTrash,
		tx.Alerts().FormatInUse,
	} {
		inUse, err := check(ctx, uuid)
		if err != nil {
			return err
		}
		if inUse {
			return ErrFormatInUse.Msg("report format " + uuid + " is in use by an alert")
		}
	}
	return nil
}

func (r *Registry) destroy(ctx context.Context, tx db.Tx, f *models.ReportFormat) apperrors.Error {
	if err := checkNotInUse(ctx, tx, f.UUID); err != nil {
		return err
	}
	if err := tx.Permissions().DeleteFor(ctx, types.ResourceTypeReportFormat, f.UUID, types.LocationTable); err != nil {
		return err
	}
	if err := removeRows(ctx, tx, f); err != nil {
		return err
	}
	if err := assets.RemoveTree(r.assets.FormatDir(f)); err != nil {
		return assetError(ctx, f.UUID, err, "remove report format directory")
	}
	return nil
}

// trash copies the rows under a fresh trash id and moves the bundle into
// the trash tree once the rows are in place.
func (r *Registry) trash(ctx context.Context, tx db.Tx, f *models.ReportFormat) apperrors.Error {
	if err := checkNotInUse(ctx, tx, f.UUID); err != nil {
		return err
	}

	t := *f
	t.RowID = ""
	t.UUID = uuid.NewString()
	t.OriginalUUID = f.UUID
	t.TrashKey = db.NewRowID()
	if err := tx.Formats().InsertTrash(ctx, &t); err != nil {
		return err
	}
	if err := copyParams(ctx, tx, f.RowID, false, t.RowID, true); err != nil {
		return err
	}
	if err := tx.Permissions().Relocate(ctx, types.ResourceTypeReportFormat,
		f.UUID, types.LocationTable, t.UUID, types.LocationTrash); err != nil {
		return err
	}
	if err := removeRows(ctx, tx, f); err != nil {
		return err
	}

	src := r.assets.FormatDir(f)
	if !assets.Exists(src) {
		log.Ctx(ctx).Warn().Str("report_format", f.UUID).Str("dir", src).Msg("report format directory missing, trashing rows only")
		return nil
	}
	if err := assets.MoveTree(src, r.assets.TrashDir(t.TrashKey)); err != nil {
		return assetError(ctx, f.UUID, err, "move report format to trash")
	}
	return nil
}

// Restore moves the trashed format id back under its original id.
func (r *Registry) Restore(ctx context.Context, p types.Principal, id string) apperrors.Error {
	err := r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		t, err := tx.Formats().GetTrash(ctx, id)
		if err != nil {
			return notFound(err, id)
		}
		if !r.authz.May(ctx, p, acl.OpRestore, t) {
			return ErrPermissionDenied
		}
		exists, err := tx.Formats().NameExists(ctx, t.Name, t.Owner)
		if err != nil {
			return err
		}
		if exists {
			return ErrNameCollision.Msg("a report format named " + t.Name + " exists")
		}
		active, err := tx.Formats().ListByUUID(ctx, t.OriginalUUID)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return ErrUUIDCollision.Msg("report format " + t.OriginalUUID + " exists")
		}

		f := *t
		f.RowID = ""
		f.UUID = t.OriginalUUID
		f.OriginalUUID = ""
		f.TrashKey = ""
		if err := tx.Formats().Insert(ctx, &f); err != nil {
			return err
		}
		if err := copyParams(ctx, tx, t.RowID, true, f.RowID, false); err != nil {
			return err
		}
		if err := tx.Permissions().Relocate(ctx, types.ResourceTypeReportFormat,
			t.UUID, types.LocationTrash, f.UUID, types.LocationTable); err != nil {
			return err
		}
		if err := tx.Params().DeleteAll(ctx, t.RowID, true); err != nil {
			return err
		}
		if err := tx.Formats().DeleteTrash(ctx, t.RowID); err != nil {
			return err
		}

		src := r.assets.TrashDir(t.TrashKey)
		if !assets.Exists(src) {
			log.Ctx(ctx).Warn().Str("report_format", f.UUID).Msg("trash directory missing, restoring rows only")
			return nil
		}
		if err := assets.MoveTree(src, r.assets.FormatDir(&f)); err != nil {
			return assetError(ctx, f.UUID, err, "move report format out of trash")
		}
		return nil
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("report_format", id).Msg("failed to restore report format")
	}
	return err
}

// EmptyTrash removes the trashed formats of p. The system principal empties
// the whole trash.
func (r *Registry) EmptyTrash(ctx context.Context, p types.Principal) apperrors.Error {
	var removed []models.ReportFormat
	err := r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		if !r.authz.May(ctx, p, acl.OpEmpty, nil) {
			return ErrPermissionDenied
		}
		trashed, err := tx.Formats().ListTrash(ctx, p.UserID)
		if err != nil {
			return err
		}
		for i := range trashed {
			if err := removeTrashRows(ctx, tx, &trashed[i]); err != nil {
				return err
			}
		}
		for _, t := range trashed {
			if err := assets.RemoveTree(r.assets.TrashDir(t.TrashKey)); err != nil {
				return assetError(ctx, t.UUID, err, "remove trash directory")
			}
		}
		removed = trashed
		return nil
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("user", p.UserID).Msg("failed to empty report format trash")
		return err
	}
	log.Ctx(ctx).Info().Int("count", len(removed)).Msg("emptied report format trash")
	return nil
}
