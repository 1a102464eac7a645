// Package testutil provides shared testing utilities for the assistant service.
//
// It contains reusable test infrastructure usable across packages, following
// the pattern of standard library packages like net/http/httptest.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/garyalexisjeremiahchan/smartshop-sub001/db"
)

// TestDB wraps a PostgreSQL test container with a ready connection pool.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB starts an isolated PostgreSQL container, applies the embedded
// migrations, and returns a connection pool plus a cleanup function that must
// be called to terminate the container.
//
//	db, cleanup := testutil.SetupTestDB(t)
//	defer cleanup()
func SetupTestDB(t *testing.T) (*TestDB, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("smartshop_test"),
		postgres.WithUsername("smartshop_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("starting PostgreSQL container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("getting connection string: %v", err)
	}

	if err := db.Migrate(connStr); err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("running migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("creating connection pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
		t.Fatalf("pinging database: %v", err)
	}

	tdb := &TestDB{
		Container: pgContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(context.Background())
	}

	return tdb, cleanup
}

// SeedCatalog inserts a small deterministic product catalog for tests.
// Category "electronics" holds three laptops at different price points and
// one accessory; "clothing" holds a single shirt.
func SeedCatalog(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	const seed = `
	INSERT INTO categories (id, name, slug, description) VALUES
		(1, 'Electronics', 'electronics', 'Computers and gadgets'),
		(2, 'Clothing', 'clothing', 'Apparel');

	INSERT INTO products (id, category_id, name, slug, description, price, stock, units_sold, image_url) VALUES
		(101, 1, 'Aero 13 Laptop',  'aero-13-laptop',  'Light 13 inch laptop',  899.00, 12, 340, '/img/aero13.jpg'),
		(102, 1, 'Volt 15 Laptop',  'volt-15-laptop',  'Budget 15 inch laptop', 749.00,  3, 510, '/img/volt15.jpg'),
		(103, 1, 'Titan 17 Laptop', 'titan-17-laptop', 'Workstation laptop',   1899.00,  8, 120, '/img/titan17.jpg'),
		(104, 1, 'USB-C Hub',       'usb-c-hub',       'Seven port hub',         49.00,  0, 900, '/img/hub.jpg'),
		(201, 2, 'Linen Shirt',     'linen-shirt',     'Summer shirt',           39.00, 25, 200, '/img/shirt.jpg');

	INSERT INTO reviews (product_id, rating, title, comment, is_approved) VALUES
		(101, 5, 'Great', 'Very light', TRUE),
		(101, 4, 'Good',  'Solid build', TRUE),
		(102, 3, 'Okay',  'Screen is dim', TRUE),
		(102, 2, 'Meh',   'Fan is loud', FALSE),
		(103, 5, 'Beast', 'Compiles fast', TRUE);

	SELECT setval('categories_id_seq', 1000);
	SELECT setval('products_id_seq', 1000);
	`
	if _, err := pool.Exec(ctx, seed); err != nil {
		t.Fatalf("seeding catalog: %v", err)
	}
}
