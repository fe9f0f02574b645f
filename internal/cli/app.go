package cli

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
	"github.com/tansive/reportformatsrv/internal/reportformats/acl"
	"github.com/tansive/reportformatsrv/internal/reportformats/assets"
	"github.com/tansive/reportformatsrv/internal/reportformats/config"
	"github.com/tansive/reportformatsrv/internal/reportformats/db"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/dbmanager"
	"github.com/tansive/reportformatsrv/internal/reportformats/feed"
	"github.com/tansive/reportformatsrv/internal/reportformats/generator"
	"github.com/tansive/reportformatsrv/internal/reportformats/integrity"
	"github.com/tansive/reportformatsrv/internal/reportformats/registry"
	"github.com/tansive/reportformatsrv/internal/reportformats/runner"
	"github.com/tansive/reportformatsrv/internal/reportformats/server"
	"github.com/tansive/reportformatsrv/internal/reportformats/signature"
	"github.com/tansive/reportformatsrv/internal/reportformats/trust"
	"github.com/tansive/reportformatsrv/pkg/types"
)

// app wires the components over one database connection.
type app struct {
	cfg       *config.ConfigParam
	store     db.Store
	assets    *assets.Store
	authz     acl.Authorizer
	registry  *registry.Registry
	trust     *trust.Engine
	feed      *feed.Syncer
	pipeline  *generator.Pipeline
	integrity *integrity.Checker
}

func openApp(ctx context.Context) (*app, error) {
	cfg := config.Config()
	sqlDB, err := dbmanager.OpenAndMigrate(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	store := db.NewStore(sqlDB)
	a := assets.NewFromConfig(cfg)
	r := runner.New()
	authz := acl.NewRolePolicy(cfg.AdminUsers)
	engine := trust.NewEngine(store, a, signature.New(cfg, r), authz)
	return &app{
		cfg:       cfg,
		store:     store,
		assets:    a,
		authz:     authz,
		registry:  registry.New(store, a, engine, authz),
		trust:     engine,
		feed:      feed.New(store, a),
		pipeline:  generator.New(store, a, authz, r, generator.WithRunAs(cfg.UnprivilegedUser)),
		integrity: integrity.New(store, a),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}
}

func (a *app) services() server.Services {
	return server.Services{
		Registry: a.registry,
		Trust:    a.trust,
		Feed:     a.feed,
		Pipeline: a.pipeline,
		Authz:    a.authz,
	}
}

// startup repairs stored state and then reconciles the feed. A missing
// feed directory is logged and skipped so the service can still serve user
// formats.
func (a *app) startup(ctx context.Context) (*feed.SyncReport, error) {
	if err := a.integrity.Run(ctx); err != nil {
		return nil, err
	}
	report, err := a.feed.ReconcileAll(ctx)
	if err != nil {
		if err.Is(feed.ErrFeedUnavailable) {
			log.Ctx(ctx).Warn().Err(err).Msg("skipping feed sync")
			return nil, nil
		}
		return nil, err
	}
	return report, nil
}

// principal is the caller named by --user, or the system principal.
func principal() types.Principal {
	if asUser == "" {
		return types.SystemPrincipal
	}
	return types.Principal{UserID: asUser, Roles: asRoles}
}

// withCode attaches the numeric result of a registry operation to err.
func withCode(err apperrors.Error, code func(error) int) error {
	if err == nil {
		return nil
	}
	return &resultError{err: err, code: code(err)}
}

func commandContext(ctx context.Context) context.Context {
	return log.Logger.WithContext(ctx)
}
