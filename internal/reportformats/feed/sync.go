// Package feed keeps the predefined report formats in line with the feed
// directory. Each subdirectory of the feed holding a report_format.xml
// manifest defines one global format named by the directory.
package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/acl"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dberror"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/pkg/types"
)

// FallbackFormatID is the TXT format alerts fall back to when the format
// they reference disappears from the feed.
const FallbackFormatID = "a3810a62-1f62-11e1-9219-406186ea4fc5"

// SyncReport counts what a pass did to the predefined formats.
type SyncReport struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
}

type Syncer struct {
	store  db.Store
	assets *assets.Store
}

func New(store db.Store, a *assets.Store) *Syncer {
	return &Syncer{store: store, assets: a}
}

// ReconcileAll creates, updates and removes predefined formats so that they
// match the feed. The pass runs in one transaction; an invalid manifest
// aborts it without changing anything.
func (s *Syncer) ReconcileAll(ctx context.Context) (*SyncReport, apperrors.Error) {
	if !assets.Exists(s.assets.FeedDir()) {
		log.Ctx(ctx).Error().Str("dir", s.assets.FeedDir()).Msg("feed directory missing")
		return nil, ErrFeedUnavailable.Msg("feed directory " + s.assets.FeedDir() + " does not exist")
	}
	ids, err := s.assets.FeedEntries()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list feed")
		return nil, ErrFeedUnavailable.Err(err)
	}

	report := &SyncReport{}
	aerr := s.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		if err := tx.Check().Clear(ctx); err != nil {
			return err
		}
		if err := tx.Check().SnapshotPredefined(ctx); err != nil {
			return err
		}
		for _, id := range ids {
			m, err := ReadManifest(s.assets.PredefinedDir(id))
			if err != nil {
				log.Ctx(ctx).Error().Err(err).Str("report_format", id).Msg("invalid feed manifest")
				return err
			}
			result, err := s.createOrUpdate(ctx, tx, id, m)
			if err != nil {
				return err
			}
			switch result {
			case created:
				report.Created++
			case updated:
				report.Updated++
			default:
				report.Unchanged++
			}
		}
		removed, err := s.removeLeftovers(ctx, tx)
		if err != nil {
			return err
		}
		report.Removed = removed
		return tx.Check().Clear(ctx)
	})
	if aerr != nil {
		log.Ctx(ctx).Error().Err(aerr).Msg("feed sync failed")
		return nil, aerr
	}
	log.Ctx(ctx).Info().
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("unchanged", report.Unchanged).
		Int("removed", report.Removed).
		Msg("synced predefined report formats")
	return report, nil
}

type outcome int

const (
	unchanged outcome = iota
	updated
	created
)

func (s *Syncer) createOrUpdate(ctx context.Context, tx db.Tx, id string, m *Manifest) (outcome, apperrors.Error) {
	now := time.Now().Unix()
	f, err := tx.Formats().Get(ctx, id)
	if err != nil && !err.Is(dberror.ErrNotFound) {
		return unchanged, err
	}

	if f == nil {
		f = &models.ReportFormat{
			UUID:        id,
			Name:        m.Name,
			Summary:     m.Summary,
			Description: m.Description,
			Extension:   m.Extension,
			ContentType: m.ContentType,
			Trust:       types.TrustYes,
			TrustTime:   now,
			Flags:       models.FlagActive,
			Predefined:  true,
		}
		if err := tx.Formats().Insert(ctx, f); err != nil {
			return unchanged, err
		}
		if err := grantRead(ctx, tx, id); err != nil {
			return unchanged, err
		}
		if _, err := syncParams(ctx, tx, f.RowID, m.Params); err != nil {
			return unchanged, err
		}
		if err := tx.Check().RemoveFormat(ctx, f.RowID); err != nil {
			return unchanged, err
		}
		log.Ctx(ctx).Debug().Str("report_format", id).Msg("created predefined report format")
		return created, nil
	}

	snapshot, err := tx.Check().GetFormat(ctx, f.RowID)
	if err != nil && !err.Is(dberror.ErrNotFound) {
		return unchanged, err
	}
	f.Owner = ""
	f.Name = m.Name
	f.Summary = m.Summary
	f.Description = m.Description
	f.Extension = m.Extension
	f.ContentType = m.ContentType
	f.Signature = ""
	f.Trust = types.TrustYes
	f.TrustTime = now
	f.Flags = models.FlagActive
	f.Predefined = true
	changed := snapshot == nil || differs(f, snapshot)

	paramsChanged, err := syncParams(ctx, tx, f.RowID, m.Params)
	if err != nil {
		return unchanged, err
	}
	if changed || paramsChanged {
		f.ModificationTime = now
	}
	if err := tx.Formats().Update(ctx, f); err != nil {
		return unchanged, err
	}
	if err := grantRead(ctx, tx, id); err != nil {
		return unchanged, err
	}
	if err := tx.Check().RemoveFormat(ctx, f.RowID); err != nil {
		return unchanged, err
	}
	if changed || paramsChanged {
		return updated, nil
	}
	return unchanged, nil
}

// differs compares the columns a feed update rewrites against the snapshot.
func differs(f, snapshot *models.ReportFormat) bool {
	return f.Owner != snapshot.Owner ||
		f.Name != snapshot.Name ||
		f.Summary != snapshot.Summary ||
		f.Description != snapshot.Description ||
		f.Extension != snapshot.Extension ||
		f.ContentType != snapshot.ContentType ||
		f.Trust != snapshot.Trust ||
		f.Flags != snapshot.Flags
}

func grantRead(ctx context.Context, tx db.Tx, id string) apperrors.Error {
	for _, role := range types.PredefinedReadRoles {
		if err := tx.Permissions().GrantRole(ctx, role, string(acl.OpGet), types.ResourceTypeReportFormat, id); err != nil {
			return err
		}
	}
	return nil
}

// syncParams makes the params of formatRowID match the manifest and reports
// whether anything changed. Options are replaced without being compared.
func syncParams(ctx context.Context, tx db.Tx, formatRowID string, declared []ManifestParam) (bool, apperrors.Error) {
	existing, err := tx.Params().List(ctx, formatRowID, false)
	if err != nil {
		return false, err
	}
	byName := make(map[string]*models.Param, len(existing))
	for i := range existing {
		byName[existing[i].Name] = &existing[i]
	}

	changed := false
	for _, d := range declared {
		if old, ok := byName[d.Name]; ok {
			if old.Type != d.Type || old.Value != d.Value || old.Min != d.Min ||
				old.Max != d.Max || old.Fallback != d.Fallback {
				changed = true
			}
			old.Type, old.Value, old.Min, old.Max = d.Type, d.Value, d.Min, d.Max
			old.Regex, old.Fallback, old.Options = "", d.Fallback, d.Options
			if err := tx.Params().Update(ctx, old); err != nil {
				return false, err
			}
			if err := tx.Check().RemoveParam(ctx, old.RowID); err != nil {
				return false, err
			}
			delete(byName, d.Name)
			continue
		}
		p := &models.Param{
			ReportFormat: formatRowID,
			Name:         d.Name,
			Type:         d.Type,
			Value:        d.Value,
			Min:          d.Min,
			Max:          d.Max,
			Fallback:     d.Fallback,
			Options:      d.Options,
		}
		if err := tx.Params().Insert(ctx, p, false); err != nil {
			return false, err
		}
		changed = true
	}

	leftovers, err := tx.Check().LeftoverParams(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range leftovers {
		if p.ReportFormat != formatRowID {
			continue
		}
		if err := tx.Params().Delete(ctx, p.RowID); err != nil {
			return false, err
		}
		if err := tx.Check().RemoveParam(ctx, p.RowID); err != nil {
			return false, err
		}
		changed = true
	}
	return changed, nil
}

// removeLeftovers deletes the predefined formats this pass did not confirm.
func (s *Syncer) removeLeftovers(ctx context.Context, tx db.Tx) (int, apperrors.Error) {
	leftovers, err := tx.Check().LeftoverFormats(ctx)
	if err != nil {
		return 0, err
	}
	for _, f := range leftovers {
		inUse, err := tx.Alerts().FormatInUse(ctx, f.UUID)
		if err != nil {
			return 0, err
		}
		if !inUse {
			if inUse, err = tx.Alerts().FormatInUseTrash(ctx, f.UUID); err != nil {
				return 0, err
			}
		}
		if inUse {
			log.Ctx(ctx).Warn().
				Str("report_format", f.UUID).
				Str("name", f.Name).
				Str("fallback", FallbackFormatID).
				Msg("removing old report format which is in use by an alert, the alert will fall back to TXT if it exists")
		}
		if err := tx.Params().DeleteAll(ctx, f.RowID, false); err != nil {
			return 0, err
		}
		if err := tx.Permissions().DeleteFor(ctx, types.ResourceTypeReportFormat, f.UUID, types.LocationTable); err != nil {
			return 0, err
		}
		if err := tx.Formats().Delete(ctx, f.RowID); err != nil {
			return 0, err
		}
	}
	return len(leftovers), nil
}
