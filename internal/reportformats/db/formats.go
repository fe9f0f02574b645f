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
	"github.com/tansive/reportformatsrv/pkg/types"
)

const formatColumns = `id, uuid, COALESCE(owner, '') AS owner, name, summary, description, extension,
	content_type, signature, trust, trust_time, flags, predefined, creation_time, modification_time`

const trashColumns = formatColumns + `, original_uuid, trash_key`

type formatRepo struct {
	q *sqlx.Tx
}

func (r *formatRepo) get(ctx context.Context, query string, args ...any) (*models.ReportFormat, apperrors.Error) {
	var f models.ReportFormat
	if err := r.q.GetContext(ctx, &f, r.q.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dberror.ErrNotFound.Msg("report format not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to get report format")
		return nil, dberror.FromDriver(err)
	}
	return &f, nil
}

func (r *formatRepo) list(ctx context.Context, query string, args ...any) ([]models.ReportFormat, apperrors.Error) {
	var fs []models.ReportFormat
	if err := r.q.SelectContext(ctx, &fs, r.q.Rebind(query), args...); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list report formats")
		return nil, dberror.FromDriver(err)
	}
	return fs, nil
}

func (r *formatRepo) exec(ctx context.Context, what, query string, args ...any) apperrors.Error {
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(query), args...); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to " + what)
		return dberror.FromDriver(err)
	}
	return nil
}

// Get returns the active format with the given uuid. If duplicates exist the
// oldest row is returned.
func (r *formatRepo) Get(ctx context.Context, uuid string) (*models.ReportFormat, apperrors.Error) {
	return r.get(ctx, `SELECT `+formatColumns+` FROM report_formats
		WHERE uuid = ? ORDER BY creation_time, seq, id LIMIT 1`, uuid)
}

// ListByUUID returns every active row with the uuid, oldest first.
func (r *formatRepo) ListByUUID(ctx context.Context, uuid string) ([]models.ReportFormat, apperrors.Error) {
	return r.list(ctx, `SELECT `+formatColumns+` FROM report_formats
		WHERE uuid = ? ORDER BY creation_time, seq, id`, uuid)
}

func (r *formatRepo) List(ctx context.Context, owner string, includeGlobal bool) ([]models.ReportFormat, apperrors.Error) {
	if includeGlobal {
		return r.list(ctx, `SELECT `+formatColumns+` FROM report_formats
			WHERE owner = ? OR owner IS NULL ORDER BY name, id`, owner)
	}
	return r.list(ctx, `SELECT `+formatColumns+` FROM report_formats
		WHERE owner = ? ORDER BY name, id`, owner)
}

func (r *formatRepo) ListAll(ctx context.Context) ([]models.ReportFormat, apperrors.Error) {
	return r.list(ctx, `SELECT `+formatColumns+` FROM report_formats ORDER BY name, id`)
}

func (r *formatRepo) ListPredefined(ctx context.Context) ([]models.ReportFormat, apperrors.Error) {
	return r.list(ctx, `SELECT `+formatColumns+` FROM report_formats
		WHERE predefined = 1 ORDER BY creation_time, seq, id`)
}

func (r *formatRepo) DuplicateUUIDs(ctx context.Context) ([]string, apperrors.Error) {
	var uuids []string
	err := r.q.SelectContext(ctx, &uuids, `SELECT uuid FROM report_formats
		GROUP BY uuid HAVING COUNT(*) > 1 ORDER BY uuid`)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to find duplicate report format ids")
		return nil, dberror.FromDriver(err)
	}
	return uuids, nil
}

// NameExists checks for an active format with the name in the owner's scope.
// An empty owner means the global scope.
func (r *formatRepo) NameExists(ctx context.Context, name, owner string) (bool, apperrors.Error) {
	var n int
	var err error
	if owner == "" {
		err = r.q.GetContext(ctx, &n, r.q.Rebind(`SELECT COUNT(*) FROM report_formats
			WHERE name = ? AND owner IS NULL`), name)
	} else {
		err = r.q.GetContext(ctx, &n, r.q.Rebind(`SELECT COUNT(*) FROM report_formats
			WHERE name = ? AND owner = ?`), name, owner)
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to check report format name")
		return false, dberror.FromDriver(err)
	}
	return n > 0, nil
}

// Insert stores f in report_formats. Empty RowID and timestamps are filled in.
func (r *formatRepo) Insert(ctx context.Context, f *models.ReportFormat) apperrors.Error {
	fillInsert(f)
	return r.exec(ctx, "insert report format", `INSERT INTO report_formats
		(id, uuid, owner, name, summary, description, extension, content_type, signature,
		 trust, trust_time, flags, predefined, creation_time, modification_time, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
		 (SELECT COALESCE(MAX(seq), 0) + 1 FROM report_formats))`,
		f.RowID, f.UUID, nullable(f.Owner), f.Name, f.Summary, f.Description, f.Extension,
		f.ContentType, f.Signature, int(f.Trust), f.TrustTime, f.Flags, boolInt(f.Predefined),
		f.CreationTime, f.ModificationTime)
}

// Update rewrites the mutable columns of the row identified by f.RowID.
func (r *formatRepo) Update(ctx context.Context, f *models.ReportFormat) apperrors.Error {
	return r.exec(ctx, "update report format", `UPDATE report_formats SET
		owner = ?, name = ?, summary = ?, description = ?, extension = ?, content_type = ?,
		signature = ?, trust = ?, trust_time = ?, flags = ?, predefined = ?, modification_time = ?
		WHERE id = ?`,
		nullable(f.Owner), f.Name, f.Summary, f.Description, f.Extension, f.ContentType,
		f.Signature, int(f.Trust), f.TrustTime, f.Flags, boolInt(f.Predefined), f.ModificationTime,
		f.RowID)
}

func (r *formatRepo) UpdateTrust(ctx context.Context, rowID string, trust types.TrustState, trustTime int64) apperrors.Error {
	return r.exec(ctx, "update report format trust",
		`UPDATE report_formats SET trust = ?, trust_time = ? WHERE id = ?`,
		int(trust), trustTime, rowID)
}

func (r *formatRepo) SetUUID(ctx context.Context, rowID, uuid string, modTime int64) apperrors.Error {
	return r.exec(ctx, "update report format id",
		`UPDATE report_formats SET uuid = ?, modification_time = ? WHERE id = ?`,
		uuid, modTime, rowID)
}

func (r *formatRepo) Delete(ctx context.Context, rowID string) apperrors.Error {
	return r.exec(ctx, "delete report format", `DELETE FROM report_formats WHERE id = ?`, rowID)
}

func (r *formatRepo) GetTrash(ctx context.Context, uuid string) (*models.ReportFormat, apperrors.Error) {
	return r.get(ctx, `SELECT `+trashColumns+` FROM report_formats_trash WHERE uuid = ?`, uuid)
}

func (r *formatRepo) ListTrash(ctx context.Context, owner string) ([]models.ReportFormat, apperrors.Error) {
	if owner == "" {
		return r.list(ctx, `SELECT `+trashColumns+` FROM report_formats_trash ORDER BY name, id`)
	}
	return r.list(ctx, `SELECT `+trashColumns+` FROM report_formats_trash
		WHERE owner = ? ORDER BY name, id`, owner)
}

func (r *formatRepo) TrashOriginalExists(ctx context.Context, uuid string) (bool, apperrors.Error) {
	var n int
	if err := r.q.GetContext(ctx, &n, r.q.Rebind(`SELECT COUNT(*) FROM report_formats_trash
		WHERE original_uuid = ?`), uuid); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to check trash for report format")
		return false, dberror.FromDriver(err)
	}
	return n > 0, nil
}

func (r *formatRepo) InsertTrash(ctx context.Context, f *models.ReportFormat) apperrors.Error {
	fillInsert(f)
	return r.exec(ctx, "insert report format into trash", `INSERT INTO report_formats_trash
		(id, uuid, owner, name, summary, description, extension, content_type, signature,
		 trust, trust_time, flags, predefined, creation_time, modification_time,
		 original_uuid, trash_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.RowID, f.UUID, nullable(f.Owner), f.Name, f.Summary, f.Description, f.Extension,
		f.ContentType, f.Signature, int(f.Trust), f.TrustTime, f.Flags, boolInt(f.Predefined),
		f.CreationTime, f.ModificationTime, f.OriginalUUID, f.TrashKey)
}

func (r *formatRepo) DeleteTrash(ctx context.Context, rowID string) apperrors.Error {
	return r.exec(ctx, "delete report format from trash", `DELETE FROM report_formats_trash WHERE id = ?`, rowID)
}

// DeleteAllTrash removes every trash format together with its params and
// options.
func (r *formatRepo) DeleteAllTrash(ctx context.Context) apperrors.Error {
	if err := r.exec(ctx, "delete trash param options", `DELETE FROM report_format_param_options_trash`); err != nil {
		return err
	}
	if err := r.exec(ctx, "delete trash params", `DELETE FROM report_format_params_trash`); err != nil {
		return err
	}
	return r.exec(ctx, "delete trash report formats", `DELETE FROM report_formats_trash`)
}

// DeleteOwned removes every active and trash format of owner together with
// their params and options.
func (r *formatRepo) DeleteOwned(ctx context.Context, owner string) apperrors.Error {
	for _, trash := range []bool{false, true} {
		formats := "report_formats"
		if trash {
			formats = "report_formats_trash"
		}
		params, options := paramTables(trash)
		if err := r.exec(ctx, "delete owned param options", `DELETE FROM `+options+`
			WHERE report_format_param IN (SELECT id FROM `+params+`
				WHERE report_format IN (SELECT id FROM `+formats+` WHERE owner = ?))`, owner); err != nil {
			return err
		}
		if err := r.exec(ctx, "delete owned params", `DELETE FROM `+params+`
			WHERE report_format IN (SELECT id FROM `+formats+` WHERE owner = ?)`, owner); err != nil {
			return err
		}
		if err := r.exec(ctx, "delete owned report formats", `DELETE FROM `+formats+` WHERE owner = ?`, owner); err != nil {
			return err
		}
	}
	return nil
}

// SetOwner hands every active and trash format of from over to to.
func (r *formatRepo) SetOwner(ctx context.Context, from, to string) apperrors.Error {
	if err := r.exec(ctx, "transfer report formats",
		`UPDATE report_formats SET owner = ? WHERE owner = ?`, to, from); err != nil {
		return err
	}
	return r.exec(ctx, "transfer trash report formats",
		`UPDATE report_formats_trash SET owner = ? WHERE owner = ?`, to, from)
}

func fillInsert(f *models.ReportFormat) {
	if f.RowID == "" {
		f.RowID = NewRowID()
	}
	t := now()
	if f.CreationTime == 0 {
		f.CreationTime = t
	}
	if f.ModificationTime == 0 {
		f.ModificationTime = t
	}
}
