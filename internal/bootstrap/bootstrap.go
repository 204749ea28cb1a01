// Package bootstrap assembles the process graph shared by the binaries:
// store, optional redis, the Barefoot client and the app services.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"barefoot_sync/internal/adapters/barefoot"
	"barefoot_sync/internal/adapters/observability"
	redisad "barefoot_sync/internal/adapters/redis"
	"barefoot_sync/internal/app"
	"barefoot_sync/internal/domain"
	"barefoot_sync/internal/shared"
	mysqlstore "barefoot_sync/internal/storage/mysql"
	"barefoot_sync/internal/storage/sqlite"
	"barefoot_sync/internal/storage/sqlrepo"
)

type App struct {
	DB      *sql.DB
	Repo    *sqlrepo.Repo
	Client  *barefoot.Client
	Sync    *app.SyncService
	Queries *app.QueryService

	closers []func() error
}

func OpenStore(ctx context.Context, cfg shared.Config) (*sql.DB, error) {
	switch cfg.StoreDriver {
	case "sqlite", "":
		return sqlite.Open(ctx, cfg.SQLitePath)
	case "mysql":
		return mysqlstore.Open(ctx, cfg.MySQLDSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func Build(ctx context.Context, cfg shared.Config) (*App, error) {
	db, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	a := &App{DB: db, Repo: sqlrepo.New(db)}
	a.closers = append(a.closers, db.Close)
	log.Info().Str("driver", cfg.StoreDriver).Msg("store ready")

	// nil interfaces, never typed-nil pointers
	var (
		cache domain.Cache
		lease domain.RunLease
	)
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		a.closers = append(a.closers, rc.Close)
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable; continuing, cache errors are ignored")
		}
		cache = rc
		if cfg.Sync.DistributedLease {
			lease = redisad.NewLease(rc.Client())
		}
	}

	client, err := barefoot.New(cfg.Credentials(), barefoot.Options{
		ConnectTimeout: cfg.Barefoot.ConnectTimeout,
		CallTimeout:    cfg.Barefoot.CallTimeout,
		RPS:            cfg.Barefoot.RPS,
		RetryAttempts:  cfg.Barefoot.RetryAttempts,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Client = client

	a.Sync = app.NewSyncService(client, a.Repo, cache, lease, app.SyncOptions{
		Enrich:        cfg.Sync.Enrich,
		EnrichWorkers: cfg.Sync.EnrichWorkers,
		RateWindow:    time.Duration(cfg.Sync.RateWindowDays) * 24 * time.Hour,
		LeaseTTL:      cfg.Sync.LeaseTTL,
		Observe:       observability.ObserveSyncRun,
	})
	a.Queries = app.NewQueryService(a.Repo, cache, cfg.CacheTTL)
	return a, nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}
