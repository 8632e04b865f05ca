// Package migrations embeds the goose SQL migrations for each backend.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// FS holds the migrations; use the backend name as the directory
//
//go:embed clickhouse/*.sql postgres/*.sql
var FS embed.FS

const (
	ClickHouseDir = "clickhouse"
	PostgresDir   = "postgres"
)

// Prepare points goose at the embedded directory for dialect and returns it
func Prepare(dialect string) (string, error) {
	var dir string
	switch dialect {
	case "clickhouse":
		dir = ClickHouseDir
	case "postgres":
		dir = PostgresDir
	default:
		return "", fmt.Errorf("no migrations for dialect %q", dialect)
	}

	goose.SetBaseFS(FS)
	if err := goose.SetDialect(dialect); err != nil {
		return "", fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return dir, nil
}

// Up applies every pending migration for dialect
func Up(ctx context.Context, db *sql.DB, dialect string) error {
	dir, err := Prepare(dialect)
	if err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
