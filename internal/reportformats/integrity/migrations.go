package integrity

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/common/uuid"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
)

// LegacyIDs maps ids of predefined formats from old feeds to their current
// ids. Later entries may rename the result of earlier ones, so the order
// matters.
var LegacyIDs = []struct{ Old, New string }{
	{"a0704abb-2120-489f-959f-251c9f4ffebd", "5ceff8ba-1f62-11e1-ab9f-406186ea4fc5"},
	{"b993b6f5-f9fb-4e6e-9c94-dd46c00e058d", "6c248850-1f62-11e1-b082-406186ea4fc5"},
	{"929884c6-c2c4-41e7-befb-2f6aa163b458", "77bd6c4a-1f62-11e1-abf0-406186ea4fc5"},
	{"9f1ab17b-aaaa-411a-8c57-12df446f5588", "7fcc3a1a-1f62-11e1-86bf-406186ea4fc5"},
	{"f5c2a364-47d2-4700-b21d-0a7693daddab", "9ca6fe72-1f62-11e1-9e7c-406186ea4fc5"},
	{"1a60a67e-97d0-4cbf-bc77-f71b08e7043d", "a0b5bfb2-1f62-11e1-85db-406186ea4fc5"},
	{"19f6f1b3-7128-4433-888c-ccc764fe6ed5", "a3810a62-1f62-11e1-9219-406186ea4fc5"},
	{"d5da9f67-8551-4e51-807b-b6a873d70e34", "a994b278-1f62-11e1-96ac-406186ea4fc5"},
	{"7fcc3a1a-1f62-11e1-86bf-406186ea4fc5", "a684c02c-b531-11e1-bdc2-406186ea4fc5"},
	{"a0b5bfb2-1f62-11e1-85db-406186ea4fc5", "c402cc3e-b531-11e1-9163-406186ea4fc5"},
}

func remapLegacyIDs(ctx context.Context, tx db.Tx, a *assets.Store) apperrors.Error {
	var stale []string
	now := time.Now().Unix()
	for _, m := range LegacyIDs {
		rows, err := tx.Formats().ListByUUID(ctx, m.Old)
		if err != nil {
			return err
		}
		for _, f := range rows {
			if err := tx.Formats().SetUUID(ctx, f.RowID, m.New, now); err != nil {
				return err
			}
		}
		if err := tx.Alerts().RewriteFormatRefs(ctx, m.Old, m.New); err != nil {
			return err
		}
		if len(rows) > 0 {
			log.Ctx(ctx).Info().Str("from", m.Old).Str("to", m.New).Int("rows", len(rows)).Msg("renamed legacy report format id")
		}
		stale = append(stale, a.PredefinedDir(m.Old))
	}
	for _, dir := range stale {
		if err := assets.RemoveTree(dir); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("dir", dir).Msg("failed to remove legacy report format directory")
			return ErrIntegrity.MsgErr("failed to remove "+dir, err)
		}
	}
	return nil
}

// makeIDsUnique gives every active row that shares its id with an older
// row a fresh id. The bundle follows the row: it is copied when both rows
// belong to one owner, since they may share the directory, and moved
// otherwise.
func makeIDsUnique(ctx context.Context, tx db.Tx, a *assets.Store) apperrors.Error {
	dups, err := tx.Formats().DuplicateUUIDs(ctx)
	if err != nil {
		return err
	}
	type relocation struct {
		from, to string
		copy     bool
	}
	var moves []relocation
	now := time.Now().Unix()
	for _, id := range dups {
		rows, err := tx.Formats().ListByUUID(ctx, id)
		if err != nil {
			return err
		}
		canonical := rows[0]
		for _, dup := range rows[1:] {
			if dup.Owner == "" {
				continue
			}
			newID := uuid.NewString()
			if err := tx.Formats().SetUUID(ctx, dup.RowID, newID, now); err != nil {
				return err
			}
			if dup.Owner != canonical.Owner {
				if err := tx.Alerts().RewriteOwnedFormatRefs(ctx, dup.Owner, id, newID); err != nil {
					return err
				}
			}
			moves = append(moves, relocation{
				from: a.ActiveDir(dup.Owner, id),
				to:   a.ActiveDir(dup.Owner, newID),
				copy: dup.Owner == canonical.Owner,
			})
			log.Ctx(ctx).Info().Str("report_format", id).Str("new_id", newID).Str("owner", dup.Owner).Msg("gave duplicate report format a new id")
		}
	}

	for _, m := range moves {
		if m.copy {
			if err := assets.CopyTree(m.from, m.to); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("from", m.from).Str("to", m.to).Msg("failed to copy report format directory")
			}
			continue
		}
		if err := assets.MoveTree(m.from, m.to); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Ctx(ctx).Warn().Str("dir", m.from).Msg("report format directory missing")
				continue
			}
			log.Ctx(ctx).Error().Err(err).Str("from", m.from).Str("to", m.to).Msg("failed to move report format directory")
			return ErrIntegrity.MsgErr("failed to move "+m.from, err)
		}
	}
	return nil
}
