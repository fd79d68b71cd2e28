// Package dbtest starts a disposable PostgreSQL container for store
// integration tests.
package dbtest

import (
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/pathgen/page/internal/platform/database"
)

// Start runs a postgres container, applies migrations and returns a connected
// DB. The test is skipped in short mode.
func Start(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := t.Context()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("page"),
		postgres.WithUsername("page"),
		postgres.WithPassword("page"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := database.New(ctx, url, 5, 1)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}
