// Package mysql opens the MySQL property store.
package mysql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"barefoot_sync/internal/storage/sqlrepo"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Open connects with dsn and runs migrations. Timestamps are always parsed
// and stored in UTC regardless of the DSN.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	if err := sqlrepo.Migrate(ctx, db, "mysql", embedMigrations, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
