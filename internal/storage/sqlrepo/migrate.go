package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

// goose keeps dialect and base FS in package globals.
var gooseMu sync.Mutex

// Migrate applies the embedded goose migrations under dir in fsys.
func Migrate(ctx context.Context, db *sql.DB, dialect string, fsys fs.FS, dir string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{})

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect %s: %w", dialect, err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}
	return nil
}

type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...any) {
	log.Debug().Str("component", "goose").Msgf(strings.TrimSuffix(format, "\n"), v...)
}

func (gooseLogger) Fatalf(format string, v ...any) {
	log.Fatal().Str("component", "goose").Msgf(strings.TrimSuffix(format, "\n"), v...)
}
