package db

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dberror"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
)

// FormatRefNames are the alert method data entries whose value is a report
// format id. Active and trashed alerts use the same names.
var FormatRefNames = []string{
	"notice_attach_format",
	"notice_report_format",
	"scp_report_format",
	"send_report_format",
	"smb_report_format",
	"verinice_server_report_format",
}

type alertRepo struct {
	q *sqlx.Tx
}

func (r *alertRepo) inUse(ctx context.Context, table, uuid string, names []string) (bool, apperrors.Error) {
	query, args, err := sqlx.In(`SELECT COUNT(*) FROM `+table+` WHERE data = ? AND name IN (?)`, uuid, names)
	if err != nil {
		return false, dberror.ErrDatabase.Err(err)
	}
	var n int
	if err := r.q.GetContext(ctx, &n, r.q.Rebind(query), args...); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("report_format", uuid).Msg("failed to check alert references")
		return false, dberror.FromDriver(err)
	}
	return n > 0, nil
}

// FormatInUse reports whether an active alert references the format.
func (r *alertRepo) FormatInUse(ctx context.Context, uuid string) (bool, apperrors.Error) {
	return r.inUse(ctx, "alert_method_data", uuid, FormatRefNames)
}

// FormatInUseTrash reports whether a trashed alert references the format.
func (r *alertRepo) FormatInUseTrash(ctx context.Context, uuid string) (bool, apperrors.Error) {
	return r.inUse(ctx, "alert_method_data_trash", uuid, FormatRefNames)
}

// RewriteFormatRefs points active and trashed alert references at newUUID.
func (r *alertRepo) RewriteFormatRefs(ctx context.Context, oldUUID, newUUID string) apperrors.Error {
	for _, table := range []string{"alert_method_data", "alert_method_data_trash"} {
		query, args, err := sqlx.In(`UPDATE `+table+` SET data = ? WHERE data = ? AND name IN (?)`,
			newUUID, oldUUID, FormatRefNames)
		if err != nil {
			return dberror.ErrDatabase.Err(err)
		}
		if _, err := r.q.ExecContext(ctx, r.q.Rebind(query), args...); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("report_format", oldUUID).Msg("failed to rewrite alert references")
			return dberror.FromDriver(err)
		}
	}
	return nil
}

// RewriteOwnedFormatRefs points the references of owner's active alerts at
// newUUID.
func (r *alertRepo) RewriteOwnedFormatRefs(ctx context.Context, owner, oldUUID, newUUID string) apperrors.Error {
	query, args, err := sqlx.In(`UPDATE alert_method_data SET data = ?
		WHERE data = ? AND name IN (?) AND alert IN (SELECT id FROM alerts WHERE owner = ?)`,
		newUUID, oldUUID, FormatRefNames, owner)
	if err != nil {
		return dberror.ErrDatabase.Err(err)
	}
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(query), args...); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("report_format", oldUUID).Msg("failed to rewrite owned alert references")
		return dberror.FromDriver(err)
	}
	return nil
}

// DeleteTrashFormatRefs drops trashed alert method data that references
// the format.
func (r *alertRepo) DeleteTrashFormatRefs(ctx context.Context, uuid string) apperrors.Error {
	query, args, err := sqlx.In(`DELETE FROM alert_method_data_trash WHERE data = ? AND name IN (?)`,
		uuid, FormatRefNames)
	if err != nil {
		return dberror.ErrDatabase.Err(err)
	}
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(query), args...); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("report_format", uuid).Msg("failed to delete trash alert references")
		return dberror.FromDriver(err)
	}
	return nil
}

// ListUsing returns the active alerts whose method data references the
// format, by name.
func (r *alertRepo) ListUsing(ctx context.Context, uuid string) ([]models.Alert, apperrors.Error) {
	query, args, err := sqlx.In(`SELECT DISTINCT alerts.id, alerts.uuid, COALESCE(alerts.owner, '') AS owner, alerts.name
		FROM alerts JOIN alert_method_data ON alert_method_data.alert = alerts.id
		WHERE alert_method_data.data = ? AND alert_method_data.name IN (?)
		ORDER BY alerts.name, alerts.uuid`, uuid, FormatRefNames)
	if err != nil {
		return nil, dberror.ErrDatabase.Err(err)
	}
	var alerts []models.Alert
	if err := r.q.SelectContext(ctx, &alerts, r.q.Rebind(query), args...); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("report_format", uuid).Msg("failed to list alerts using report format")
		return nil, dberror.FromDriver(err)
	}
	return alerts, nil
}

// Insert adds an alert with its method data. Alerts are owned by another
// subsystem; this is used to seed references.
func (r *alertRepo) Insert(ctx context.Context, a *models.Alert, trash bool, methodData map[string]string) apperrors.Error {
	alerts, data := "alerts", "alert_method_data"
	if trash {
		alerts, data = "alerts_trash", "alert_method_data_trash"
	}
	if a.RowID == "" {
		a.RowID = NewRowID()
	}
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO `+alerts+` (id, uuid, owner, name) VALUES (?, ?, ?, ?)`),
		a.RowID, a.UUID, nullable(a.Owner), a.Name); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to insert alert")
		return dberror.FromDriver(err)
	}
	for name, value := range methodData {
		if _, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO `+data+` (id, alert, name, data) VALUES (?, ?, ?, ?)`),
			NewRowID(), a.RowID, name, value); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to insert alert method data")
			return dberror.FromDriver(err)
		}
	}
	return nil
}

type permissionRepo struct {
	q *sqlx.Tx
}

// GrantRole gives a role the named permission on a resource unless it has
// it already.
func (r *permissionRepo) GrantRole(ctx context.Context, role, name, resourceType, uuid string) apperrors.Error {
	exists, err := r.HasGrant(ctx, role, name, resourceType, uuid)
	if err != nil || exists {
		return err
	}
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO permissions
		(id, name, resource_type, resource_uuid, resource_location, subject_type, subject)
		VALUES (?, ?, ?, ?, 0, 'role', ?)`),
		NewRowID(), strings.ToLower(name), resourceType, uuid, role); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("role", role).Msg("failed to grant role permission")
		return dberror.FromDriver(err)
	}
	return nil
}

func (r *permissionRepo) HasGrant(ctx context.Context, subject, name, resourceType, uuid string) (bool, apperrors.Error) {
	var n int
	if err := r.q.GetContext(ctx, &n, r.q.Rebind(`SELECT COUNT(*) FROM permissions
		WHERE subject = ? AND name = ? AND resource_type = ? AND resource_uuid = ? AND resource_location = 0`),
		subject, strings.ToLower(name), resourceType, uuid); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to check permission")
		return false, dberror.FromDriver(err)
	}
	return n > 0, nil
}

// Relocate moves permission and tag references from one resource location
// to another, for example when a format is moved to the trash.
func (r *permissionRepo) Relocate(ctx context.Context, resourceType, fromUUID string, fromLoc int, toUUID string, toLoc int) apperrors.Error {
	for _, table := range []string{"permissions", "tag_resources"} {
		if _, err := r.q.ExecContext(ctx, r.q.Rebind(`UPDATE `+table+`
			SET resource_uuid = ?, resource_location = ?
			WHERE resource_type = ? AND resource_uuid = ? AND resource_location = ?`),
			toUUID, toLoc, resourceType, fromUUID, fromLoc); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("table", table).Msg("failed to relocate resource references")
			return dberror.FromDriver(err)
		}
	}
	return nil
}

// DeleteFor removes permissions and tag references of a resource.
func (r *permissionRepo) DeleteFor(ctx context.Context, resourceType, uuid string, loc int) apperrors.Error {
	for _, table := range []string{"permissions", "tag_resources"} {
		if _, err := r.q.ExecContext(ctx, r.q.Rebind(`DELETE FROM `+table+`
			WHERE resource_type = ? AND resource_uuid = ? AND resource_location = ?`),
			resourceType, uuid, loc); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("table", table).Msg("failed to delete resource references")
			return dberror.FromDriver(err)
		}
	}
	return nil
}

type migrationRepo struct {
	q *sqlx.Tx
}

func (r *migrationRepo) Applied(ctx context.Context, version int) (bool, apperrors.Error) {
	var n int
	if err := r.q.GetContext(ctx, &n, r.q.Rebind(`SELECT COUNT(*) FROM integrity_migrations WHERE version = ?`),
		version); err != nil {
		log.Ctx(ctx).Error().Err(err).Int("version", version).Msg("failed to read integrity migrations")
		return false, dberror.FromDriver(err)
	}
	return n > 0, nil
}

func (r *migrationRepo) Record(ctx context.Context, version int, name string) apperrors.Error {
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(`INSERT INTO integrity_migrations (version, name, applied_time)
		VALUES (?, ?, ?)`), version, name, now()); err != nil {
		log.Ctx(ctx).Error().Err(err).Int("version", version).Msg("failed to record integrity migration")
		return dberror.FromDriver(err)
	}
	return nil
}
