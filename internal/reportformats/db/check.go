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

type checkRepo struct {
	q *sqlx.Tx
}

func (r *checkRepo) exec(ctx context.Context, what, query string, args ...any) apperrors.Error {
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(query), args...); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to " + what)
		return dberror.FromDriver(err)
	}
	return nil
}

func (r *checkRepo) Clear(ctx context.Context) apperrors.Error {
	if err := r.exec(ctx, "clear param check table", `DELETE FROM report_format_params_check`); err != nil {
		return err
	}
	return r.exec(ctx, "clear format check table", `DELETE FROM report_formats_check`)
}

// SnapshotPredefined copies the owner-less formats and their params into the
// check tables.
func (r *checkRepo) SnapshotPredefined(ctx context.Context) apperrors.Error {
	if err := r.exec(ctx, "snapshot predefined formats", `INSERT INTO report_formats_check
		(id, uuid, owner, name, summary, description, extension, content_type, trust, flags)
		SELECT id, uuid, owner, name, summary, description, extension, content_type, trust, flags
		FROM report_formats WHERE owner IS NULL`); err != nil {
		return err
	}
	return r.exec(ctx, "snapshot predefined params", `INSERT INTO report_format_params_check
		(id, report_format, name, type, value, type_min, type_max, type_regex, fallback)
		SELECT id, report_format, name, type, value, type_min, type_max, type_regex, fallback
		FROM report_format_params
		WHERE report_format IN (SELECT id FROM report_formats WHERE owner IS NULL)`)
}

func (r *checkRepo) GetFormat(ctx context.Context, rowID string) (*models.ReportFormat, apperrors.Error) {
	var f models.ReportFormat
	err := r.q.GetContext(ctx, &f, r.q.Rebind(`SELECT id, uuid, COALESCE(owner, '') AS owner, name, summary,
		description, extension, content_type, trust, flags
		FROM report_formats_check WHERE id = ?`), rowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dberror.ErrNotFound.Msg("report format not in check table")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to read format check table")
		return nil, dberror.FromDriver(err)
	}
	return &f, nil
}

func (r *checkRepo) RemoveFormat(ctx context.Context, rowID string) apperrors.Error {
	return r.exec(ctx, "remove format from check table", `DELETE FROM report_formats_check WHERE id = ?`, rowID)
}

func (r *checkRepo) RemoveParam(ctx context.Context, rowID string) apperrors.Error {
	return r.exec(ctx, "remove param from check table", `DELETE FROM report_format_params_check WHERE id = ?`, rowID)
}

func (r *checkRepo) LeftoverFormats(ctx context.Context) ([]models.ReportFormat, apperrors.Error) {
	var fs []models.ReportFormat
	err := r.q.SelectContext(ctx, &fs, `SELECT id, uuid, COALESCE(owner, '') AS owner, name, summary,
		description, extension, content_type, trust, flags
		FROM report_formats_check ORDER BY id`)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list leftover formats")
		return nil, dberror.FromDriver(err)
	}
	return fs, nil
}

func (r *checkRepo) LeftoverParams(ctx context.Context) ([]models.Param, apperrors.Error) {
	var ps []models.Param
	err := r.q.SelectContext(ctx, &ps, `SELECT id, report_format, name, type, value, type_min, type_max,
		type_regex, fallback
		FROM report_format_params_check ORDER BY id`)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list leftover params")
		return nil, dberror.FromDriver(err)
	}
	return ps, nil
}
