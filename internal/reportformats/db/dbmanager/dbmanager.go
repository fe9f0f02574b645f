// Package dbmanager opens the report format database and applies schema
// migrations. PostgreSQL is reached through the pgx stdlib driver; sqlite uses
// the pure Go modernc driver so single node installs and tests need no cgo.
package dbmanager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/config"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dberror"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/migrations"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgresql"
	DriverSqlite   = "sqlite"

	sqliteBusyTimeoutMs = 5000
)

// driverFor returns the database/sql driver name, DSN and goose dialect for
// the configured driver.
func driverFor(c config.DBConfig) (driver, dsn, dialect string, err error) {
	switch c.Driver {
	case DriverPostgres:
		return "pgx", c.DSN, "postgres", nil
	case DriverSqlite:
		dsn = c.DSN
		if !strings.HasPrefix(dsn, "file:") {
			dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", dsn, sqliteBusyTimeoutMs)
		}
		return "sqlite", dsn, "sqlite3", nil
	}
	return "", "", "", fmt.Errorf("unsupported db driver %q", c.Driver)
}

// Open connects to the configured database, retrying the initial ping so the
// service can start before the database is ready.
func Open(ctx context.Context, c config.DBConfig) (*sqlx.DB, apperrors.Error) {
	driver, dsn, _, err := driverFor(c)
	if err != nil {
		return nil, dberror.ErrConnect.Err(err)
	}
	attempts := c.ConnectRetries
	if attempts == 0 {
		attempts = 1
	}
	delay := c.RetryDelay
	if delay == 0 {
		delay = time.Second
	}

	var db *sqlx.DB
	err = retry.Do(
		func() error {
			d, err := sqlx.Open(driver, dsn)
			if err != nil {
				return err
			}
			if err := d.PingContext(ctx); err != nil {
				d.Close()
				return err
			}
			db = d
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Warn().Err(err).Uint("attempt", n+1).Str("driver", c.Driver).Msg("database not reachable, retrying")
		}),
	)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("driver", c.Driver).Msg("failed to open db")
		return nil, dberror.ErrConnect.Err(err)
	}

	if c.Driver == DriverSqlite {
		// sqlite allows one writer; a single connection serialises
		// transactions instead of failing them with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}
	return db, nil
}

// Migrate brings the schema up to date.
func Migrate(ctx context.Context, db *sqlx.DB) apperrors.Error {
	dialect := "postgres"
	if db.DriverName() == "sqlite" {
		dialect = "sqlite3"
	}
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{ctx: ctx})
	if err := goose.SetDialect(dialect); err != nil {
		return dberror.ErrMigration.Err(err)
	}
	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to apply migrations")
		return dberror.ErrMigration.Err(err)
	}
	return nil
}

// OpenAndMigrate is the usual startup sequence.
func OpenAndMigrate(ctx context.Context, c config.DBConfig) (*sqlx.DB, apperrors.Error) {
	db, err := Open(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// gooseLogger routes goose output through zerolog.
type gooseLogger struct {
	ctx context.Context
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	log.Ctx(l.ctx).Fatal().Msgf(strings.TrimSpace(format), v...)
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	log.Ctx(l.ctx).Debug().Msgf(strings.TrimSpace(format), v...)
}
