package registry

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/common/uuid"
	"github.com/tansive/reportformatsrv/internal/reportformats/acl"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dberror"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/internal/reportformats/paramtypes"
	"github.com/tansive/reportformatsrv/internal/reportformats/trust"
	"github.com/tansive/reportformatsrv/pkg/types"
)

// ParamSpec declares a param of an imported format. Type, Min and Max are
// given as text the way they appear in an export. A nil Fallback means the
// default was not given.
type ParamSpec struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Value    string   `json:"value"`
	Fallback *string  `json:"fallback"`
	Min      string   `json:"min,omitempty"`
	Max      string   `json:"max,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// CreateRequest imports a report format. ID is the id the format was
// exported with; a fresh id is minted when it is empty or already taken.
type CreateRequest struct {
	ID          string
	Name        string
	Summary     string
	Description string
	Extension   string
	ContentType string
	Signature   string
	Files       []assets.File
	Params      []ParamSpec
}

// buildParams turns the declarations into rows, checking them in the order
// the result codes are defined for a single param.
func buildParams(specs []ParamSpec) ([]models.Param, apperrors.Error) {
	params := make([]models.Param, 0, len(specs))
	seen := make(map[string]bool)
	for _, s := range specs {
		if s.Type == "" {
			return nil, ErrParamTypeMissing.Msg("type missing for parameter " + s.Name)
		}
		pt := types.ParamTypeFromName(s.Type)
		if pt == types.ParamTypeError || !paramtypes.Known(pt) {
			return nil, ErrUnknownParamType.Msg("unknown type " + s.Type + " for parameter " + s.Name)
		}
		min, err := paramtypes.ParseMin(s.Min)
		if err != nil {
			return nil, ErrBoundsInvalid.MsgErr("invalid min for parameter "+s.Name, err)
		}
		max, err := paramtypes.ParseMax(s.Max)
		if err != nil {
			return nil, ErrBoundsInvalid.MsgErr("invalid max for parameter "+s.Name, err)
		}
		if s.Fallback == nil {
			return nil, ErrParamDefaultMissing.Msg("default missing for parameter " + s.Name)
		}
		if seen[s.Name] {
			return nil, ErrDuplicateParamName.Msg("parameter " + s.Name + " is declared twice")
		}
		seen[s.Name] = true

		p := models.Param{
			Name:     s.Name,
			Type:     pt,
			Value:    s.Value,
			Min:      min,
			Max:      max,
			Fallback: *s.Fallback,
			Options:  append([]string(nil), s.Options...),
		}
		if err := paramtypes.Validate(&p, p.Value); err != nil {
			return nil, ErrParamValueInvalid.MsgErr("invalid value for parameter "+s.Name, err)
		}
		if err := paramtypes.Validate(&p, p.Fallback); err != nil {
			return nil, ErrParamDefaultInvalid.MsgErr("invalid default for parameter "+s.Name, err)
		}
		params = append(params, p)
	}
	return params, nil
}

// checkSignature verifies an uploaded signature, or one found on disk for
// the exported id, before anything is written.
func (r *Registry) checkSignature(ctx context.Context, req *CreateRequest, params []models.Param) (types.TrustState, apperrors.Error) {
	found, err := r.assets.FindSignature(req.ID)
	if err != nil {
		return types.TrustUnknown, assetError(ctx, req.ID, err, "read signature")
	}
	if found == nil && req.Signature == "" {
		return types.TrustUnknown, nil
	}
	sig := []byte(req.Signature)
	id := req.ID
	if found != nil {
		sig = found.Content
		if found.CanonicalID != "" {
			id = found.CanonicalID
		}
	}
	state, aerr := r.trust.Check(ctx, trust.Bundle{
		ID:          id,
		Extension:   req.Extension,
		ContentType: req.ContentType,
		Files:       req.Files,
		Params:      params,
	}, sig)
	if aerr != nil {
		return types.TrustUnknown, aerr
	}
	if state == types.TrustNo {
		log.Ctx(ctx).Warn().Str("report_format", req.ID).Msg("report format signature does not verify")
		return state, ErrFormatUntrusted.Msg("signature of report format " + req.ID + " does not verify")
	}
	return state, nil
}

func fileNameError(name string) apperrors.Error {
	err := assets.CheckFileName(name)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, assets.ErrEmptyFilename):
		return ErrEmptyFilename
	}
	return ErrInvalidFilename.Msg(err.Error())
}

// Create imports a report format owned by p and returns its id.
func (r *Registry) Create(ctx context.Context, p types.Principal, req CreateRequest) (string, apperrors.Error) {
	if p.UserID == "" {
		return "", ErrOwnerRequired
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	params, err := buildParams(req.Params)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("report_format", req.ID).Msg("invalid report format parameters")
		return "", err
	}
	for _, f := range req.Files {
		if err := fileNameError(f.Name); err != nil {
			return "", err
		}
	}
	state, err := r.checkSignature(ctx, &req, params)
	if err != nil {
		return "", err
	}

	var id, dir string
	written, linked := false, false
	err = r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		if !r.authz.May(ctx, p, acl.OpCreate, nil) {
			return ErrPermissionDenied
		}

		id = req.ID
		linkFrom := ""
		active, err := tx.Formats().ListByUUID(ctx, req.ID)
		if err != nil {
			return err
		}
		inTrash, err := tx.Formats().TrashOriginalExists(ctx, req.ID)
		if err != nil {
			return err
		}
		if len(active) > 0 || inTrash {
			id = uuid.NewString()
			linkFrom = req.ID
		}

		name, err := uniqueName(ctx, tx, req.Name, p.UserID)
		if err != nil {
			return err
		}
		now := time.Now().Unix()
		f := &models.ReportFormat{
			UUID:        id,
			Owner:       p.UserID,
			Name:        name,
			Summary:     req.Summary,
			Description: req.Description,
			Extension:   req.Extension,
			ContentType: req.ContentType,
			Signature:   req.Signature,
			Trust:       state,
			TrustTime:   now,
		}
		if err := tx.Formats().Insert(ctx, f); err != nil {
			return err
		}
		for i := range params {
			params[i].ReportFormat = f.RowID
			if err := tx.Params().Insert(ctx, &params[i], false); err != nil {
				return err
			}
		}

		if linkFrom != "" {
			if err := r.assets.LinkSignature(id, linkFrom); err != nil {
				return assetError(ctx, id, err, "link signature")
			}
			linked = true
		}
		dir = r.assets.ActiveDir(p.UserID, id)
		if err := r.assets.WriteBundle(dir, req.Files); err != nil {
			if errors.Is(err, assets.ErrEmptyFilename) {
				return ErrEmptyFilename
			}
			if errors.Is(err, assets.ErrInvalidFilename) {
				return ErrInvalidFilename.Msg(err.Error())
			}
			return assetError(ctx, id, err, "write report format files")
		}
		written = true
		return nil
	})
	if err != nil {
		if written {
			assets.RemoveTree(dir)
		}
		if linked {
			if uerr := r.assets.UnlinkSignature(id); uerr != nil {
				log.Ctx(ctx).Error().Err(uerr).Str("report_format", id).Msg("failed to unlink signature")
			}
		}
		log.Ctx(ctx).Error().Err(err).Str("report_format", req.ID).Msg("failed to create report format")
		return "", err
	}
	log.Ctx(ctx).Info().Str("report_format", id).Str("owner", p.UserID).Msg("created report format")
	return id, nil
}

// Copy duplicates sourceID for p under name, or under the source name when
// name is empty. Copies of predefined formats are trusted.
func (r *Registry) Copy(ctx context.Context, p types.Principal, name, sourceID string) (string, apperrors.Error) {
	if p.UserID == "" {
		return "", ErrOwnerRequired
	}
	var id, dir string
	copied := false
	err := r.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		if !r.authz.May(ctx, p, acl.OpCreate, nil) {
			return ErrPermissionDenied
		}
		src, err := tx.Formats().Get(ctx, sourceID)
		if err != nil {
			if err.Is(dberror.ErrNotFound) {
				return ErrSourceNotFound.Msg("report format " + sourceID + " not found")
			}
			return err
		}
		if !r.authz.May(ctx, p, acl.OpGet, src) {
			return ErrPermissionDenied
		}
		srcDir := r.assets.FormatDir(src)
		if !assets.Exists(srcDir) {
			log.Ctx(ctx).Error().Str("report_format", sourceID).Str("dir", srcDir).Msg("report format directory not found")
			return ErrAssets.Msg("report format directory of " + sourceID + " not found")
		}

		if name == "" {
			name = src.Name
		}
		unique, err := uniqueName(ctx, tx, name, p.UserID)
		if err != nil {
			return err
		}
		id = uuid.NewString()
		f := *src
		f.RowID = ""
		f.UUID = id
		f.Owner = p.UserID
		f.Name = unique
		f.Predefined = false
		f.CreationTime = 0
		f.ModificationTime = 0
		if src.Predefined {
			f.Trust = types.TrustYes
			f.TrustTime = time.Now().Unix()
		}
		if err := tx.Formats().Insert(ctx, &f); err != nil {
			return err
		}
		if err := copyParams(ctx, tx, src.RowID, false, f.RowID, false); err != nil {
			return err
		}

		dir = r.assets.ActiveDir(p.UserID, id)
		if err := assets.RemoveTree(dir); err != nil {
			return assetError(ctx, id, err, "clear copy directory")
		}
		copied = true
		if err := assets.CopyTree(srcDir, dir); err != nil {
			return assetError(ctx, id, err, "copy report format files")
		}
		return nil
	})
	if err != nil {
		if copied {
			assets.RemoveTree(dir)
		}
		log.Ctx(ctx).Error().Err(err).Str("report_format", sourceID).Msg("failed to copy report format")
		return "", err
	}
	return id, nil
}
