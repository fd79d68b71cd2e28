package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/pathgen/page/internal/platform/database"
	"github.com/pathgen/page/internal/platform/database/dbtest"
)

func TestMigrate_Idempotent(t *testing.T) {
	db := dbtest.Start(t)
	ctx := t.Context()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	var count int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	names, _ := database.Migrations()
	if count != len(names) {
		t.Errorf("schema_migrations rows = %d, want %d", count, len(names))
	}
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	db := dbtest.Start(t)
	ctx := t.Context()
	boom := errors.New("boom")

	err := database.WithinTx(ctx, db.Pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO topics (id, name) VALUES ('t1', 'Fractions')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx() error = %v, want boom", err)
	}

	var n int
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM topics`).Scan(&n); err != nil {
		t.Fatalf("count topics: %v", err)
	}
	if n != 0 {
		t.Errorf("topics after rollback = %d, want 0", n)
	}
}
