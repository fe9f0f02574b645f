// Package registry manages the lifecycle of report formats: rows in the
// active and trash tables together with their bundles on disk. Every
// operation runs in one transaction and touches the disk only after the
// checks that could still fail have passed.
package registry

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/acl"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dberror"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/internal/reportformats/trust"
	"github.com/tansive/reportformatsrv/pkg/types"
)

type Registry struct {
	store  db.Store
	assets *assets.Store
	trust  *trust.Engine
	authz  acl.Authorizer
}

func New(store db.Store, a *assets.Store, t *trust.Engine, authz acl.Authorizer) *Registry {
	return &Registry{store: store, assets: a, trust: t, authz: authz}
}

// Format is a report format with its params.
type Format struct {
	models.ReportFormat
	Params []models.Param `json:"params"`
}

// Get returns the active format id, or the trashed one when no active
// format has that id.
func (r *Registry) Get(ctx context.Context, p types.Principal, id string) (*Format, apperrors.Error) {
	var out *Format
	err := r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		trash := false
		f, err := tx.Formats().Get(ctx, id)
		if err != nil && err.Is(dberror.ErrNotFound) {
			trash = true
			f, err = tx.Formats().GetTrash(ctx, id)
		}
		if err != nil {
			return notFound(err, id)
		}
		if !r.authz.May(ctx, p, acl.OpGet, f) {
			return ErrPermissionDenied
		}
		params, err := tx.Params().List(ctx, f.RowID, trash)
		if err != nil {
			return err
		}
		out = &Format{ReportFormat: *f, Params: params}
		return nil
	})
	return out, err
}

// List returns the formats visible to p. The system principal sees every
// format.
func (r *Registry) List(ctx context.Context, p types.Principal, trash bool) ([]models.ReportFormat, apperrors.Error) {
	var out []models.ReportFormat
	err := r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		if !r.authz.May(ctx, p, acl.OpGet, nil) {
			return ErrPermissionDenied
		}
		var err apperrors.Error
		switch {
		case trash:
			out, err = tx.Formats().ListTrash(ctx, p.UserID)
		case p.IsSystem():
			out, err = tx.Formats().ListAll(ctx)
		default:
			out, err = tx.Formats().List(ctx, p.UserID, true)
		}
		return err
	})
	return out, err
}

// uniqueName returns name, or name with the lowest numeric suffix from 2 on
// that no format of owner uses.
func uniqueName(ctx context.Context, tx db.Tx, name, owner string) (string, apperrors.Error) {
	candidate := name
	for n := 2; ; n++ {
		exists, err := tx.Formats().NameExists(ctx, candidate, owner)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = name + " " + strconv.Itoa(n)
	}
}

// copyParams copies the params and options of one format row to another.
func copyParams(ctx context.Context, tx db.Tx, from string, fromTrash bool, to string, toTrash bool) apperrors.Error {
	params, err := tx.Params().List(ctx, from, fromTrash)
	if err != nil {
		return err
	}
	for i := range params {
		p := params[i]
		p.RowID = ""
		p.ReportFormat = to
		if err := tx.Params().Insert(ctx, &p, toTrash); err != nil {
			return err
		}
	}
	return nil
}

func notFound(err apperrors.Error, id string) apperrors.Error {
	if err.Is(dberror.ErrNotFound) {
		return ErrFormatNotFound.Msg("report format " + id + " not found")
	}
	return err
}

func assetError(ctx context.Context, id string, err error, what string) apperrors.Error {
	log.Ctx(ctx).Error().Err(err).Str("report_format", id).Msg("failed to " + what)
	return ErrAssets.MsgErr("failed to "+what, err)
}
