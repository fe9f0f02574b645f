// Package db provides typed repositories over the report format tables. All
// repository access happens inside a transaction obtained from Store.WithTx;
// rows are returned as slices so callers never hold a live cursor while they
// write.
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jmoiron/sqlx"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dberror"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
	"github.com/tansive/reportformatsrv/pkg/types"
)

// ReportFormatRepo manages report_formats and report_formats_trash.
type ReportFormatRepo interface {
	Get(ctx context.Context, uuid string) (*models.ReportFormat, apperrors.Error)
	ListByUUID(ctx context.Context, uuid string) ([]models.ReportFormat, apperrors.Error)
	List(ctx context.Context, owner string, includeGlobal bool) ([]models.ReportFormat, apperrors.Error)
	ListAll(ctx context.Context) ([]models.ReportFormat, apperrors.Error)
	ListPredefined(ctx context.Context) ([]models.ReportFormat, apperrors.Error)
	DuplicateUUIDs(ctx context.Context) ([]string, apperrors.Error)
	NameExists(ctx context.Context, name, owner string) (bool, apperrors.Error)
	Insert(ctx context.Context, f *models.ReportFormat) apperrors.Error
	Update(ctx context.Context, f *models.ReportFormat) apperrors.Error
	UpdateTrust(ctx context.Context, rowID string, trust types.TrustState, trustTime int64) apperrors.Error
	SetUUID(ctx context.Context, rowID, uuid string, modTime int64) apperrors.Error
	Delete(ctx context.Context, rowID string) apperrors.Error

	GetTrash(ctx context.Context, uuid string) (*models.ReportFormat, apperrors.Error)
	ListTrash(ctx context.Context, owner string) ([]models.ReportFormat, apperrors.Error)
	TrashOriginalExists(ctx context.Context, uuid string) (bool, apperrors.Error)
	InsertTrash(ctx context.Context, f *models.ReportFormat) apperrors.Error
	DeleteTrash(ctx context.Context, rowID string) apperrors.Error
	DeleteAllTrash(ctx context.Context) apperrors.Error

	DeleteOwned(ctx context.Context, owner string) apperrors.Error
	SetOwner(ctx context.Context, from, to string) apperrors.Error
}

// ParamRepo manages params and their options. The trash flag selects the
// *_trash tables.
type ParamRepo interface {
	List(ctx context.Context, formatRowID string, trash bool) ([]models.Param, apperrors.Error)
	Get(ctx context.Context, formatRowID, name string) (*models.Param, apperrors.Error)
	Insert(ctx context.Context, p *models.Param, trash bool) apperrors.Error
	Update(ctx context.Context, p *models.Param) apperrors.Error
	UpdateValue(ctx context.Context, rowID, value string) apperrors.Error
	Delete(ctx context.Context, rowID string) apperrors.Error
	DeleteAll(ctx context.Context, formatRowID string, trash bool) apperrors.Error
}

// AlertRepo answers whether alerts reference a format and rewrites those
// references when a format id changes.
type AlertRepo interface {
	FormatInUse(ctx context.Context, uuid string) (bool, apperrors.Error)
	FormatInUseTrash(ctx context.Context, uuid string) (bool, apperrors.Error)
	RewriteFormatRefs(ctx context.Context, oldUUID, newUUID string) apperrors.Error
	RewriteOwnedFormatRefs(ctx context.Context, owner, oldUUID, newUUID string) apperrors.Error
	DeleteTrashFormatRefs(ctx context.Context, uuid string) apperrors.Error
	ListUsing(ctx context.Context, uuid string) ([]models.Alert, apperrors.Error)
	Insert(ctx context.Context, a *models.Alert, trash bool, methodData map[string]string) apperrors.Error
}

// PermissionRepo manages role grants and relocates permission and tag
// references between the active and trash locations.
type PermissionRepo interface {
	GrantRole(ctx context.Context, role, name, resourceType, uuid string) apperrors.Error
	HasGrant(ctx context.Context, subject, name, resourceType, uuid string) (bool, apperrors.Error)
	Relocate(ctx context.Context, resourceType, fromUUID string, fromLoc int, toUUID string, toLoc int) apperrors.Error
	DeleteFor(ctx context.Context, resourceType, uuid string, loc int) apperrors.Error
}

// CheckRepo manages the feed sync scratch tables.
type CheckRepo interface {
	Clear(ctx context.Context) apperrors.Error
	SnapshotPredefined(ctx context.Context) apperrors.Error
	GetFormat(ctx context.Context, rowID string) (*models.ReportFormat, apperrors.Error)
	RemoveFormat(ctx context.Context, rowID string) apperrors.Error
	RemoveParam(ctx context.Context, rowID string) apperrors.Error
	LeftoverFormats(ctx context.Context) ([]models.ReportFormat, apperrors.Error)
	LeftoverParams(ctx context.Context) ([]models.Param, apperrors.Error)
}

// MigrationRepo records applied startup integrity migrations.
type MigrationRepo interface {
	Applied(ctx context.Context, version int) (bool, apperrors.Error)
	Record(ctx context.Context, version int, name string) apperrors.Error
}

// Tx groups the repositories bound to one transaction.
type Tx interface {
	Formats() ReportFormatRepo
	Params() ParamRepo
	Alerts() AlertRepo
	Permissions() PermissionRepo
	Check() CheckRepo
	Migrations() MigrationRepo
}

// Store hands out transactions.
type Store interface {
	// WithTx runs fn in a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) apperrors.Error) apperrors.Error
	Close() error
}

type sqlStore struct {
	db *sqlx.DB
}

// NewStore wraps an open database.
func NewStore(db *sqlx.DB) Store {
	return &sqlStore{db: db}
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) apperrors.Error) apperrors.Error {
	var tx *sqlx.Tx
	errdb := retry.Do(
		func() error {
			var err error
			tx, err = s.db.BeginTxx(ctx, &sql.TxOptions{})
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
	)
	if errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to start transaction")
		return dberror.ErrDatabase.Err(errdb)
	}

	committed := false
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				log.Ctx(ctx).Error().Err(rollbackErr).Msg("failed to rollback transaction")
			}
		}
	}()

	if err := fn(ctx, &sqlTx{tx: tx}); err != nil {
		return err
	}
	if errdb := tx.Commit(); errdb != nil {
		log.Ctx(ctx).Error().Err(errdb).Msg("failed to commit transaction")
		return dberror.ErrDatabase.Err(errdb)
	}
	committed = true
	return nil
}

type sqlTx struct {
	tx *sqlx.Tx
}

func (t *sqlTx) Formats() ReportFormatRepo { return &formatRepo{q: t.tx} }
func (t *sqlTx) Params() ParamRepo { return &paramRepo{q: t.tx} }
func (t *sqlTx) Alerts() AlertRepo { return &alertRepo{q: t.tx} }
func (t *sqlTx) Permissions() PermissionRepo { return &permissionRepo{q: t.tx} }
func (t *sqlTx) Check() CheckRepo { return &checkRepo{q: t.tx} }
func (t *sqlTx) Migrations() MigrationRepo { return &migrationRepo{q: t.tx} }

// NewRowID returns a storage key for a new row.
func NewRowID() string {
	return gonanoid.Must(16)
}

// nullable stores an empty owner as NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func now() int64 {
	return time.Now().Unix()
}
