package integrity

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/pkg/types"
)

// SweepTrash makes the trash tables and the trash tree agree. Without a
// trash tree every trash row is dropped; directories without a row are
// removed.
func (c *Checker) SweepTrash(ctx context.Context) apperrors.Error {
	keys, ok, err := c.assets.TrashKeys()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to read trash directory")
		return ErrIntegrity.MsgErr("failed to read trash directory", err)
	}

	var orphans []string
	aerr := c.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		trashed, err := tx.Formats().ListTrash(ctx, "")
		if err != nil {
			return err
		}
		if !ok {
			return dropTrashRows(ctx, tx, trashed)
		}
		known := make(map[string]bool, len(trashed))
		for _, t := range trashed {
			known[t.TrashKey] = true
		}
		for _, k := range keys {
			if !known[k] {
				orphans = append(orphans, k)
			}
		}
		return nil
	})
	if aerr != nil {
		log.Ctx(ctx).Error().Err(aerr).Msg("trash sweep failed")
		return aerr
	}

	for _, k := range orphans {
		dir := c.assets.TrashDir(k)
		if err := assets.RemoveTree(dir); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("dir", dir).Msg("failed to remove orphaned trash directory")
			return ErrIntegrity.MsgErr("failed to remove "+dir, err)
		}
		log.Ctx(ctx).Info().Str("dir", dir).Msg("removed orphaned trash directory")
	}
	return nil
}

func dropTrashRows(ctx context.Context, tx db.Tx, trashed []models.ReportFormat) apperrors.Error {
	for _, t := range trashed {
		if err := tx.Alerts().DeleteTrashFormatRefs(ctx, t.OriginalUUID); err != nil {
			return err
		}
		if err := tx.Permissions().DeleteFor(ctx, types.ResourceTypeReportFormat, t.UUID, types.LocationTrash); err != nil {
			return err
		}
	}
	if err := tx.Formats().DeleteAllTrash(ctx); err != nil {
		return err
	}
	if len(trashed) > 0 {
		log.Ctx(ctx).Warn().Int("count", len(trashed)).Msg("trash report format directory was missing, removed all trash report formats")
	}
	return nil
}
