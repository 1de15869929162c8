// Package migrate applies the goose migrations for the dashboard schema.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/blenvi/blenvi/db"
)

const embeddedDir = "migrations"

// Runner wraps database migration capabilities.
type Runner struct {
	pool *pgxpool.Pool
	fsys fs.FS
	dir  string
	log  *slog.Logger
}

// New returns a migration runner backed by goose. An empty migrationsDir
// selects the migrations compiled into the binary.
func New(pool *pgxpool.Pool, migrationsDir string, log *slog.Logger) (Runner, error) {
	if pool == nil {
		return Runner{}, errors.New("nil pool provided")
	}
	if log == nil {
		log = slog.Default()
	}
	fsys, dir, err := Source(migrationsDir)
	if err != nil {
		return Runner{}, err
	}
	return Runner{pool: pool, fsys: fsys, dir: dir, log: log}, nil
}

// Source resolves where migrations are read from.
func Source(migrationsDir string) (fs.FS, string, error) {
	if migrationsDir == "" {
		return db.Migrations, embeddedDir, nil
	}
	info, err := os.Stat(migrationsDir)
	if err != nil {
		return nil, "", fmt.Errorf("locate migrations dir: %w", err)
	}
	if !info.IsDir() {
		return nil, "", fmt.Errorf("migrations path %s is not a directory", migrationsDir)
	}
	return os.DirFS(migrationsDir), ".", nil
}

// Ensure applies pending migrations.
func (r Runner) Ensure(ctx context.Context) error {
	return r.withDB(func(db *sql.DB) error {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		r.log.Info("applying migrations", "dir", r.dir)
		if err := goose.UpContext(runCtx, db, r.dir); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		r.log.Info("migrations applied")
		return nil
	})
}

// Status reports applied and pending migrations.
func (r Runner) Status(ctx context.Context) error {
	return r.withDB(func(db *sql.DB) error {
		r.log.Info("migration status", "dir", r.dir)
		if err := goose.StatusContext(ctx, db, r.dir); err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		return nil
	})
}

// Down rolls back migrations either to the previous version or a specific target version.
func (r Runner) Down(ctx context.Context, targetVersion int64) error {
	return r.withDB(func(db *sql.DB) error {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		if targetVersion > 0 {
			r.log.Info("rolling back migrations", "target", targetVersion)
			if err := goose.DownToContext(runCtx, db, r.dir, targetVersion); err != nil {
				return fmt.Errorf("rollback to version %d: %w", targetVersion, err)
			}
		} else {
			r.log.Info("rolling back latest migration")
			if err := goose.DownContext(runCtx, db, r.dir); err != nil {
				return fmt.Errorf("rollback latest migration: %w", err)
			}
		}

		r.log.Info("rollback complete")
		return nil
	})
}

// Ping ensures the database connection is alive.
func (r Runner) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close releases underlying connections.
func (r Runner) Close() {
	r.pool.Close()
}

// withDB runs fn against a database/sql handle sharing the pgx pool.
// goose keeps its dialect and filesystem in package state.
func (r Runner) withDB(fn func(*sql.DB) error) error {
	goose.SetBaseFS(r.fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}

	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()
	return fn(db)
}
