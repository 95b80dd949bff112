// Package dbtest connects integration tests to a disposable Postgres
// database configured through the *_TEST environment variables.
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/config"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/db"
)

const tables = "storefront.order_items, storefront.payment_intents, storefront.orders, " +
	"storefront.cart_items, storefront.carts, storefront.products"

// Open migrates the test database, empties every table and returns a
// connection closed at the end of the test. It skips the test when
// DB_HOST_TEST is not set.
func Open(tb testing.TB) *db.Postgres {
	tb.Helper()

	host := os.Getenv("DB_HOST_TEST")
	if host == "" {
		tb.Skip("DB_HOST_TEST not set, skipping postgres integration tests")
	}

	cfg := config.PostgresConfig{
		Host:            host,
		Port:            getenv("DB_PORT_TEST", "5432"),
		User:            getenv("DB_USER_TEST", "postgres"),
		Password:        getenv("DB_PASSWORD_TEST", "postgres"),
		DBName:          getenv("DB_NAME_TEST", "storefront_test"),
		SSLMode:         getenv("DB_SSLMODE_TEST", "disable"),
		Schema:          "storefront",
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: time.Minute,
		MigrationsPath:  migrationsPath(tb),
	}
	require.NoError(tb, db.ApplyMigrations(cfg), "failed to migrate test database")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pg, err := db.New(ctx, cfg)
	require.NoError(tb, err, "failed to connect to test database")
	tb.Cleanup(pg.Close)

	_, err = pg.Pool.Exec(ctx, "TRUNCATE TABLE "+tables+" CASCADE")
	require.NoError(tb, err, "failed to truncate tables")

	return pg
}

// migrationsPath resolves the repository's migrations directory from this
// file's location, so tests work from any package directory.
func migrationsPath(tb testing.TB) string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		tb.Fatal("failed to get current file path")
	}
	root := filepath.Join(filepath.Dir(filename), "..", "..", "..")
	return filepath.Join(root, "migrations")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
