package registry

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/acl"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dberror"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/internal/reportformats/paramtypes"
	"github.com/tansive/reportformatsrv/pkg/types"
)

// ModifyRequest is a partial update. Nil fields are left unchanged and an
// empty ParamName leaves the params alone.
type ModifyRequest struct {
	ID      string
	Name    *string
	Summary *string
	Active  *bool
	// Predefined must be "0" or "1".
	Predefined *string

	ParamName  string
	ParamValue string
	// ParamValueBase64 marks ParamValue as base64 encoded, the way export
	// clients send it.
	ParamValueBase64 bool
}

// Modify updates a format. Predefined formats can only be modified by the
// system principal.
func (r *Registry) Modify(ctx context.Context, p types.Principal, req ModifyRequest) apperrors.Error {
	if req.ID == "" {
		return ErrIDRequired
	}
	if req.Predefined != nil && *req.Predefined != "0" && *req.Predefined != "1" {
		return ErrBadPredefinedFlag
	}
	err := r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		f, err := tx.Formats().Get(ctx, req.ID)
		if err != nil {
			return notFound(err, req.ID)
		}
		if !r.authz.May(ctx, p, acl.OpModify, f) {
			return ErrPermissionDenied
		}
		if f.Predefined && !p.IsSystem() {
			return ErrPermissionDenied.Msg("predefined report formats can only be modified by the system")
		}

		changed := false
		if req.Name != nil && *req.Name != f.Name {
			name, err := uniqueName(ctx, tx, *req.Name, f.Owner)
			if err != nil {
				return err
			}
			f.Name = name
			changed = true
		}
		if req.Summary != nil && *req.Summary != f.Summary {
			f.Summary = *req.Summary
			changed = true
		}
		if req.Active != nil && *req.Active != f.Active() {
			if *req.Active {
				f.Flags |= models.FlagActive
			} else {
				f.Flags &^= models.FlagActive
			}
			changed = true
		}
		if req.Predefined != nil && (*req.Predefined == "1") != f.Predefined {
			f.Predefined = *req.Predefined == "1"
			changed = true
		}
		if changed {
			f.ModificationTime = time.Now().Unix()
			if err := tx.Formats().Update(ctx, f); err != nil {
				return err
			}
		}

		if req.ParamName == "" {
			return nil
		}
		return setParam(ctx, tx, f, req)
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("report_format", req.ID).Msg("failed to modify report format")
	}
	return err
}

func setParam(ctx context.Context, tx db.Tx, f *models.ReportFormat, req ModifyRequest) apperrors.Error {
	param, err := tx.Params().Get(ctx, f.RowID, req.ParamName)
	if err != nil {
		if err.Is(dberror.ErrNotFound) {
			return ErrParamNotFound.Msg("parameter " + req.ParamName + " not found")
		}
		return err
	}
	value := req.ParamValue
	if req.ParamValueBase64 && value != "" {
		decoded, derr := base64.StdEncoding.DecodeString(value)
		if derr != nil {
			return ErrParamValueInvalid.MsgErr("parameter value is not base64", derr)
		}
		value = string(decoded)
	}
	if err := paramtypes.Validate(param, value); err != nil {
		return ErrParamValueInvalid.MsgErr("invalid value for parameter "+req.ParamName, err)
	}
	return tx.Params().UpdateValue(ctx, param.RowID, value)
}
