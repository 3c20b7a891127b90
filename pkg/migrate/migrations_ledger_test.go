package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marketloop/marketloop-backend/pkg/migrate"
)

func TestLedgerMigrationsContainSchemas(t *testing.T) {
	cases := map[string][]string{
		"*_create_transactions_table.sql": {
			"CREATE TABLE IF NOT EXISTS transactions",
			"type order_type_enum NOT NULL",
			"source payment_source_enum NOT NULL DEFAULT 'stripe'",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_external_payment",
			"DROP TABLE IF EXISTS transactions",
		},
		"*_create_vendor_sales.sql": {
			"CREATE TABLE IF NOT EXISTS vendor_sales",
			"id TEXT PRIMARY KEY",
			"line_items JSONB NOT NULL",
			"DROP TABLE IF EXISTS vendor_sales",
		},
		"*_create_outbox_tables.sql": {
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
			"WHERE published_at IS NULL",
		},
	}

	for pattern, checks := range cases {
		matches, err := filepath.Glob(filepath.Join("migrations", pattern))
		if err != nil {
			t.Fatalf("glob %s: %v", pattern, err)
		}
		if len(matches) == 0 {
			t.Fatalf("no migration matching %s", pattern)
		}

		data, err := os.ReadFile(matches[0])
		if err != nil {
			t.Fatalf("read %s: %v", matches[0], err)
		}
		content := string(data)

		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", matches[0], sub)
			}
		}
	}
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}
