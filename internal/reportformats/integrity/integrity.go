// Package integrity repairs the report format tables and trees at startup.
// One-time repairs are versioned migrations recorded in
// integrity_migrations; the trash sweep runs on every start.
package integrity

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
)

var ErrIntegrity apperrors.Error = apperrors.New("report format integrity check failed").SetStatusCode(http.StatusInternalServerError)

// Migration is a repair applied once. Apply runs inside the transaction
// that records it.
type Migration struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, tx db.Tx, a *assets.Store) apperrors.Error
}

// Migrations in the order they are applied. New entries go at the end.
var Migrations = []Migration{
	{Version: 1, Name: "legacy report format ids", Apply: remapLegacyIDs},
	{Version: 2, Name: "unique report format ids", Apply: makeIDsUnique},
}

type Checker struct {
	store      db.Store
	assets     *assets.Store
	migrations []Migration
}

func New(store db.Store, a *assets.Store) *Checker {
	return &Checker{store: store, assets: a, migrations: Migrations}
}

// Run applies pending migrations and then sweeps the trash.
func (c *Checker) Run(ctx context.Context) apperrors.Error {
	for _, m := range c.migrations {
		if err := c.apply(ctx, m); err != nil {
			return err
		}
	}
	return c.SweepTrash(ctx)
}

func (c *Checker) apply(ctx context.Context, m Migration) apperrors.Error {
	applied := false
	err := c.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) apperrors.Error {
		done, err := tx.Migrations().Applied(ctx, m.Version)
		if err != nil || done {
			return err
		}
		if err := m.Apply(ctx, tx, c.assets); err != nil {
			return err
		}
		applied = true
		return tx.Migrations().Record(ctx, m.Version, m.Name)
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Int("version", m.Version).Str("migration", m.Name).Msg("integrity migration failed")
		return err
	}
	if applied {
		log.Ctx(ctx).Info().Int("version", m.Version).Str("migration", m.Name).Msg("applied integrity migration")
	}
	return nil
}
