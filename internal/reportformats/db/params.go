package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dberror"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
)

const paramColumns = `id, report_format, seq, name, type, value, type_min, type_max, type_regex, fallback`

type paramRepo struct {
	q *sqlx.Tx
}

func paramTables(trash bool) (params, options string) {
	if trash {
		return "report_format_params_trash", "report_format_param_options_trash"
	}
	return "report_format_params", "report_format_param_options"
}

func (r *paramRepo) options(ctx context.Context, table, paramRowID string) ([]string, apperrors.Error) {
	var values []string
	err := r.q.SelectContext(ctx, &values, r.q.Rebind(`SELECT value FROM `+table+`
		WHERE report_format_param = ? ORDER BY seq`), paramRowID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("param", paramRowID).Msg("failed to list param options")
		return nil, dberror.FromDriver(err)
	}
	return values, nil
}

// List returns the params of a format in declaration order with options
// loaded.
func (r *paramRepo) List(ctx context.Context, formatRowID string, trash bool) ([]models.Param, apperrors.Error) {
	params, options := paramTables(trash)
	var ps []models.Param
	err := r.q.SelectContext(ctx, &ps, r.q.Rebind(`SELECT `+paramColumns+` FROM `+params+`
		WHERE report_format = ? ORDER BY seq, id`), formatRowID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("report_format", formatRowID).Msg("failed to list params")
		return nil, dberror.FromDriver(err)
	}
	for i := range ps {
		opts, err := r.options(ctx, options, ps[i].RowID)
		if err != nil {
			return nil, err
		}
		ps[i].Options = opts
	}
	return ps, nil
}

func (r *paramRepo) Get(ctx context.Context, formatRowID, name string) (*models.Param, apperrors.Error) {
	var p models.Param
	err := r.q.GetContext(ctx, &p, r.q.Rebind(`SELECT `+paramColumns+` FROM report_format_params
		WHERE report_format = ? AND name = ?`), formatRowID, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dberror.ErrNotFound.Msg("param not found")
		}
		log.Ctx(ctx).Error().Err(err).Str("param", name).Msg("failed to get param")
		return nil, dberror.FromDriver(err)
	}
	opts, aerr := r.options(ctx, "report_format_param_options", p.RowID)
	if aerr != nil {
		return nil, aerr
	}
	p.Options = opts
	return &p, nil
}

// Insert stores p and its options. A zero Seq places the param after the
// existing ones.
func (r *paramRepo) Insert(ctx context.Context, p *models.Param, trash bool) apperrors.Error {
	params, _ := paramTables(trash)
	if p.RowID == "" {
		p.RowID = NewRowID()
	}
	if p.Seq == 0 {
		var next int
		err := r.q.GetContext(ctx, &next, r.q.Rebind(`SELECT COALESCE(MAX(seq), 0) + 1 FROM `+params+`
			WHERE report_format = ?`), p.ReportFormat)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to compute param position")
			return dberror.FromDriver(err)
		}
		p.Seq = next
	}
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO `+params+`
		(id, report_format, seq, name, type, value, type_min, type_max, type_regex, fallback)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.RowID, p.ReportFormat, p.Seq, p.Name, int(p.Type), p.Value, p.Min, p.Max, p.Regex, p.Fallback)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("param", p.Name).Msg("failed to insert param")
		return dberror.FromDriver(err)
	}
	return r.insertOptions(ctx, p.RowID, p.Options, trash)
}

func (r *paramRepo) insertOptions(ctx context.Context, paramRowID string, values []string, trash bool) apperrors.Error {
	_, options := paramTables(trash)
	for i, v := range values {
		_, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO `+options+`
			(id, report_format_param, seq, value) VALUES (?, ?, ?, ?)`),
			NewRowID(), paramRowID, i+1, v)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to insert param option")
			return dberror.FromDriver(err)
		}
	}
	return nil
}

// Update rewrites an active param and replaces its options.
func (r *paramRepo) Update(ctx context.Context, p *models.Param) apperrors.Error {
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`UPDATE report_format_params SET
		type = ?, value = ?, type_min = ?, type_max = ?, type_regex = ?, fallback = ?
		WHERE id = ?`),
		int(p.Type), p.Value, p.Min, p.Max, p.Regex, p.Fallback, p.RowID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("param", p.Name).Msg("failed to update param")
		return dberror.FromDriver(err)
	}
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM report_format_param_options
		WHERE report_format_param = ?`), p.RowID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("param", p.Name).Msg("failed to clear param options")
		return dberror.FromDriver(err)
	}
	return r.insertOptions(ctx, p.RowID, p.Options, false)
}

func (r *paramRepo) UpdateValue(ctx context.Context, rowID, value string) apperrors.Error {
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(`UPDATE report_format_params SET value = ? WHERE id = ?`),
		value, rowID); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to update param value")
		return dberror.FromDriver(err)
	}
	return nil
}

// Delete removes an active param and its options.
func (r *paramRepo) Delete(ctx context.Context, rowID string) apperrors.Error {
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM report_format_param_options
		WHERE report_format_param = ?`), rowID); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to delete param options")
		return dberror.FromDriver(err)
	}
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM report_format_params WHERE id = ?`), rowID); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to delete param")
		return dberror.FromDriver(err)
	}
	return nil
}

// DeleteAll removes every param of a format together with the options.
func (r *paramRepo) DeleteAll(ctx context.Context, formatRowID string, trash bool) apperrors.Error {
	params, options := paramTables(trash)
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM `+options+`
		WHERE report_format_param IN (SELECT id FROM `+params+` WHERE report_format = ?)`), formatRowID); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to delete param options")
		return dberror.FromDriver(err)
	}
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM `+params+` WHERE report_format = ?`), formatRowID); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to delete params")
		return dberror.FromDriver(err)
	}
	return nil
}
