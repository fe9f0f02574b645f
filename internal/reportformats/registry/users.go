package registry

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/acl"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/pkg/types"
)

// AlertUse is an alert that references a report format. Readable is false
// when the caller may not see the alert itself.
type AlertUse struct {
	UUID     string `json:"id"`
	Name     string `json:"name"`
	Readable bool   `json:"readable"`
}

// AlertsUsing lists the active alerts that deliver or attach format id.
func (r *Registry) AlertsUsing(ctx context.Context, p types.Principal, id string) ([]AlertUse, apperrors.Error) {
	var out []AlertUse
	err := r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		f, err := tx.Formats().Get(ctx, id)
		if err != nil {
			return notFound(err, id)
		}
		if !r.authz.May(ctx, p, acl.OpGet, f) {
			return ErrPermissionDenied
		}
		alerts, err := tx.Alerts().ListUsing(ctx, f.UUID)
		if err != nil {
			return err
		}
		seeAll := r.authz.May(ctx, p, acl.OpGetAlerts, nil)
		out = make([]AlertUse, 0, len(alerts))
		for _, a := range alerts {
			out = append(out, AlertUse{
				UUID:     a.UUID,
				Name:     a.Name,
				Readable: seeAll || (a.Owner != "" && a.Owner == p.UserID),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteUserFormats removes every active and trashed format owned by user
// along with the bundles and signature links. Alert references are not
// checked: the alerts of a removed user go with it.
func (r *Registry) DeleteUserFormats(ctx context.Context, p types.Principal, user string) apperrors.Error {
	if user == "" {
		return ErrOwnerRequired
	}
	var active, trashed []models.ReportFormat
	err := r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		if !r.authz.May(ctx, p, acl.OpDeleteUser, nil) {
			return ErrPermissionDenied
		}
		var err apperrors.Error
		if active, err = tx.Formats().List(ctx, user, false); err != nil {
			return err
		}
		if trashed, err = tx.Formats().ListTrash(ctx, user); err != nil {
			return err
		}
		for _, f := range active {
			if err := tx.Permissions().DeleteFor(ctx, types.ResourceTypeReportFormat, f.UUID, types.LocationTable); err != nil {
				return err
			}
		}
		for _, t := range trashed {
			if err := tx.Permissions().DeleteFor(ctx, types.ResourceTypeReportFormat, t.UUID, types.LocationTrash); err != nil {
				return err
			}
		}
		return tx.Formats().DeleteOwned(ctx, user)
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("user", user).Msg("failed to delete report formats of user")
		return err
	}

	// The rows are gone; leftover files are only logged.
	for _, t := range trashed {
		if err := assets.RemoveTree(r.assets.TrashDir(t.TrashKey)); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("report_format", t.UUID).Msg("failed to remove trash directory")
		}
		if err := r.assets.UnlinkSignature(t.OriginalUUID); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("report_format", t.UUID).Msg("failed to remove signature link")
		}
	}
	for _, f := range active {
		if err := r.assets.UnlinkSignature(f.UUID); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("report_format", f.UUID).Msg("failed to remove signature link")
		}
	}
	if err := assets.RemoveTree(r.assets.OwnerDir(user)); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("user", user).Msg("failed to remove report format directory of user")
	}
	log.Ctx(ctx).Info().Str("user", user).Int("active", len(active)).Int("trash", len(trashed)).Msg("deleted report formats of user")
	return nil
}

// InheritFormats hands every format of user over to heir. Active formats
// whose name is taken in heir's scope get the next free name, and their
// bundles move to heir's tree.
func (r *Registry) InheritFormats(ctx context.Context, p types.Principal, user, heir string) apperrors.Error {
	if user == "" || heir == "" {
		return ErrOwnerRequired
	}
	if user == heir {
		return nil
	}
	type move struct{ from, to string }
	var moved []move
	now := time.Now().Unix()
	err := r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		if !r.authz.May(ctx, p, acl.OpDeleteUser, nil) {
			return ErrPermissionDenied
		}
		active, err := tx.Formats().List(ctx, user, false)
		if err != nil {
			return err
		}
		for i := range active {
			f := &active[i]
			dst := r.assets.ActiveDir(heir, f.UUID)
			if assets.Exists(dst) {
				return ErrUUIDCollision.Msg("report format " + f.UUID + " exists for " + heir)
			}
			name, err := uniqueName(ctx, tx, f.Name, heir)
			if err != nil {
				return err
			}
			f.Name = name
			f.Owner = heir
			f.ModificationTime = now
			if err := tx.Formats().Update(ctx, f); err != nil {
				return err
			}
		}
		if err := tx.Formats().SetOwner(ctx, user, heir); err != nil {
			return err
		}

		for _, f := range active {
			src := r.assets.ActiveDir(user, f.UUID)
			if !assets.Exists(src) {
				log.Ctx(ctx).Warn().Str("report_format", f.UUID).Str("dir", src).Msg("report format directory missing")
				continue
			}
			dst := r.assets.ActiveDir(heir, f.UUID)
			if err := assets.MoveTree(src, dst); err != nil {
				return assetError(ctx, f.UUID, err, "move report format to new owner")
			}
			moved = append(moved, move{from: src, to: dst})
		}
		return nil
	})
	if err != nil {
		for _, m := range moved {
			if merr := assets.MoveTree(m.to, m.from); merr != nil {
				log.Ctx(ctx).Error().Err(merr).Str("dir", m.to).Msg("failed to move report format directory back")
			}
		}
		log.Ctx(ctx).Error().Err(err).Str("user", user).Str("heir", heir).Msg("failed to transfer report formats")
		return err
	}
	if err := os.Remove(r.assets.OwnerDir(user)); err != nil && !os.IsNotExist(err) {
		log.Ctx(ctx).Debug().Err(err).Str("user", user).Msg("report format directory of user not empty")
	}
	log.Ctx(ctx).Info().Str("user", user).Str("heir", heir).Int("count", len(moved)).Msg("transferred report formats")
	return nil
}
