package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by the repositories.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

//go:embed migrations/*.sql
var migrations embed.FS

// MigrateUp applies every *.up.sql file in lexical order. Scripts are idempotent.
func MigrateUp(ctx context.Context, db DB) error {
	return runMigrations(ctx, db, ".up.sql", false)
}

// MigrateDown applies *.down.sql files in reverse order.
func MigrateDown(ctx context.Context, db DB) error {
	return runMigrations(ctx, db, ".down.sql", true)
}

func runMigrations(ctx context.Context, db DB, suffix string, reverse bool) error {
	files, err := fs.Glob(migrations, "migrations/*"+suffix)
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)
	if reverse {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}

	for _, file := range files {
		sqlBytes, err := migrations.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		if _, err := db.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", strings.TrimPrefix(file, "migrations/"), err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
