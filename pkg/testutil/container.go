// Package testutil provides testing utilities for PharmaFlow backend
// services. It includes testcontainers for PostgreSQL, sqlmock factories,
// and common test fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "pharmaflow_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    // Run tests
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "pharmaflow_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// ApplySchema creates the pharmacy service tables. Mirrors
// migrations/0001_init.sql.
func (c *PostgresContainer) ApplySchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS medicines (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			generic_name    TEXT NOT NULL DEFAULT '',
			sku             TEXT,
			form            TEXT NOT NULL DEFAULT '',
			strength        TEXT NOT NULL DEFAULT '',
			unit            TEXT NOT NULL DEFAULT '',
			manufacturer    TEXT NOT NULL DEFAULT '',
			brand           TEXT NOT NULL DEFAULT '',
			category        TEXT NOT NULL DEFAULT '',
			description     TEXT NOT NULL DEFAULT '',
			reorder_level   INTEGER NOT NULL DEFAULT 20 CHECK (reorder_level >= 0),
			tax_percent     NUMERIC(5,2),
			status          TEXT NOT NULL DEFAULT 'In Stock',
			archived_at     TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE UNIQUE INDEX IF NOT EXISTS medicines_sku_key
			ON medicines (sku) WHERE sku IS NOT NULL AND sku <> '';

		CREATE TABLE IF NOT EXISTS medicine_batches (
			id              TEXT PRIMARY KEY,
			medicine_id     TEXT NOT NULL REFERENCES medicines(id),
			batch_number    TEXT NOT NULL DEFAULT '',
			expiry_date     TIMESTAMPTZ,
			quantity        INTEGER NOT NULL DEFAULT 0 CONSTRAINT batch_quantity_non_negative CHECK (quantity >= 0),
			purchase_price  NUMERIC(12,2) NOT NULL DEFAULT 0 CONSTRAINT batch_purchase_price_non_negative CHECK (purchase_price >= 0),
			sale_price      NUMERIC(12,2) NOT NULL DEFAULT 0 CONSTRAINT batch_sale_price_non_negative CHECK (sale_price >= 0),
			supplier        TEXT NOT NULL DEFAULT '',
			location        TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_batches_medicine_expiry
			ON medicine_batches (medicine_id, expiry_date);

		CREATE TABLE IF NOT EXISTS ledger_entries (
			id              TEXT PRIMARY KEY,
			code            TEXT NOT NULL UNIQUE,
			entry_type      TEXT NOT NULL CONSTRAINT ledger_entry_type_valid
								CHECK (entry_type IN ('Dispense', 'PurchaseReceive', 'Adjustment')),
			patient_id      TEXT,
			patient_name    TEXT NOT NULL DEFAULT '',
			appointment_id  TEXT,
			total           NUMERIC(12,2) NOT NULL DEFAULT 0,
			paid            BOOLEAN NOT NULL DEFAULT FALSE,
			payment_method  TEXT,
			notes           TEXT NOT NULL DEFAULT '',
			created_by      TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS ledger_items (
			id              TEXT PRIMARY KEY,
			entry_id        TEXT NOT NULL REFERENCES ledger_entries(id),
			medicine_id     TEXT NOT NULL REFERENCES medicines(id),
			batch_id        TEXT NOT NULL,
			sku             TEXT NOT NULL DEFAULT '',
			name            TEXT NOT NULL,
			quantity        INTEGER NOT NULL,
			unit_price      NUMERIC(12,2) NOT NULL DEFAULT 0,
			tax_percent     NUMERIC(5,2) NOT NULL DEFAULT 0,
			tax_amount      NUMERIC(12,2) NOT NULL DEFAULT 0,
			line_total      NUMERIC(12,2) NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS pharmacy_sequences (
			name  TEXT PRIMARY KEY,
			value BIGINT NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS stock_alerts (
			id              TEXT PRIMARY KEY,
			alert_type      TEXT NOT NULL,
			medicine_id     TEXT NOT NULL,
			medicine_name   TEXT NOT NULL DEFAULT '',
			batch_id        TEXT,
			batch_number    TEXT,
			severity        TEXT NOT NULL DEFAULT 'warning',
			message         TEXT NOT NULL DEFAULT '',
			current_stock   INTEGER,
			reorder_level   INTEGER,
			expiry_date     TIMESTAMPTZ,
			resolved_at     TIMESTAMPTZ,
			acknowledged_at TIMESTAMPTZ,
			acknowledged_by TEXT,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_stock_alerts_open
			ON stock_alerts (alert_type, medicine_id) WHERE resolved_at IS NULL;

		CREATE TABLE IF NOT EXISTS patient_refs (
			patient_id  TEXT PRIMARY KEY,
			full_name   TEXT NOT NULL DEFAULT '',
			phone       TEXT NOT NULL DEFAULT '',
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`

	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create pharmacy schema: %w", err)
	}

	return nil
}

// TruncateAll empties every pharmacy table between tests
func (c *PostgresContainer) TruncateAll(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		TRUNCATE ledger_items, ledger_entries, stock_alerts, medicine_batches,
			medicines, pharmacy_sequences, patient_refs CASCADE`)
	return err
}
