package db

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationDir = "migrations"

// Migrate runs the named goose command (up, down, status, version, reset)
// against the embedded schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, command string) error {
	if pool == nil {
		return errors.New("platform/db: pool required")
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer func() {
		_ = sqlDB.Close()
	}()

	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("platform/db: goose dialect: %w", err)
	}

	var err error
	switch command {
	case "", "up":
		err = goose.UpContext(ctx, sqlDB, migrationDir)
	case "down":
		err = goose.DownContext(ctx, sqlDB, migrationDir)
	case "status":
		err = goose.StatusContext(ctx, sqlDB, migrationDir)
	case "version":
		err = goose.VersionContext(ctx, sqlDB, migrationDir)
	case "reset":
		err = goose.ResetContext(ctx, sqlDB, migrationDir)
	default:
		return fmt.Errorf("platform/db: unknown migrate command %q", command)
	}
	if err != nil {
		return fmt.Errorf("platform/db: migrate %s: %w", command, err)
	}
	return nil
}

// MigrationFiles lists the embedded migration file names in apply order.
func MigrationFiles() ([]string, error) {
	entries, err := migrationFS.ReadDir(migrationDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
