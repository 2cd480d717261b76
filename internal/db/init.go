package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/RezaEskandarii/quirrel/internal/constants"
	"github.com/RezaEskandarii/quirrel/internal/lock"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql migrations/cron/*.sql
var migrations embed.FS

const (
	baseDir = "migrations"
	cronDir = "migrations/cron"
)

// Init prepares the schema used by the Postgres stores. Only one instance runs the
// scripts at a time, the others wait on the migration lock and then find every
// statement already applied.
//
// With enableCron the pg_cron and pg_net extensions are created as well, which needs
// a role allowed to create extensions.
func Init(ctx context.Context, db *sql.DB, distributedLock lock.DistributedLockManager, enableCron bool, logger zerolog.Logger) error {
	if err := distributedLock.Acquire(ctx, constants.MigrationLock); err != nil {
		return err
	}
	defer distributedLock.Release(ctx, constants.MigrationLock)

	if err := db.PingContext(ctx); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", constants.SchemaName)); err != nil {
		return err
	}

	dirs := []string{baseDir}
	if enableCron {
		dirs = append([]string{cronDir}, dirs...)
	}

	for _, dir := range dirs {
		scripts, err := readSQLScripts(dir)
		if err != nil {
			return err
		}
		for _, script := range scripts {
			logger.Debug().Str("script", script.name).Msg("applying migration")
			if _, err := db.ExecContext(ctx, script.content); err != nil {
				return fmt.Errorf("migration %s: %w", script.name, err)
			}
		}
	}

	return nil
}

type sqlScript struct {
	name    string
	content string
}

func readSQLScripts(dir string) ([]sqlScript, error) {
	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return nil, err
	}

	var scripts []sqlScript
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := path.Join(dir, entry.Name())
		content, err := fs.ReadFile(migrations, name)
		if err != nil {
			return nil, err
		}

		scripts = append(scripts, sqlScript{name: name, content: string(content)})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].name < scripts[j].name })
	return scripts, nil
}
