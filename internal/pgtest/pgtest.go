// Package pgtest connects integration tests to the database named by
// TEST_DB_DSN. Tests skip when it is unset.
package pgtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"templatestore/internal/migrate"
)

// Pool returns a migrated pool with every table truncated. The pool is closed
// when the test finishes.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := migrate.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	const q = `TRUNCATE notification_queue, download_tokens, payments, orders, referral_codes,
affiliates, bonus_codes, product_files, products, customers RESTART IDENTITY CASCADE`
	if _, err := pool.Exec(ctx, q); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return pool
}

// Exec runs a fixture statement and fails the test on error.
func Exec(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) {
	t.Helper()
	if _, err := pool.Exec(context.Background(), sql, args...); err != nil {
		t.Fatalf("exec fixture: %v", err)
	}
}

// InsertProductWithFile creates a digital product with one file and returns
// their ids.
func InsertProductWithFile(t *testing.T, pool *pgxpool.Pool, key string) (productID, fileID string) {
	t.Helper()
	ctx := context.Background()
	err := pool.QueryRow(ctx, `
INSERT INTO products (key, sku, name, price_cents, currency)
VALUES ($1, $1, $1, 5000, 'USD') RETURNING id::text`, key).Scan(&productID)
	if err != nil {
		t.Fatalf("insert product: %v", err)
	}
	err = pool.QueryRow(ctx, `
INSERT INTO product_files (product_id, file_name, content_type, size_bytes, storage_key)
VALUES ($1, $2, 'application/zip', 4, $2) RETURNING id::text`, productID, key+".zip").Scan(&fileID)
	if err != nil {
		t.Fatalf("insert file: %v", err)
	}
	return productID, fileID
}
