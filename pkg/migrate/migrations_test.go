package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitMigrationContainsSchemas(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_init.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no init migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE products",
		"CREATE TABLE inventory_batches",
		"CREATE TABLE orders",
		"CREATE TABLE allocation_line_items",
		"CREATE UNIQUE INDEX idx_products_name ON products (LOWER(name))",
		"CREATE UNIQUE INDEX idx_inventory_batches_seq",
		"CREATE INDEX idx_inventory_batches_fifo ON inventory_batches (product_id, received_at, seq)",
		"remaining_quantity >= 0 AND remaining_quantity <= quantity_received",
		"stock_state TEXT NOT NULL DEFAULT 'unallocated'",
		"CREATE INDEX idx_allocation_line_items_order",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestInitMigrationHasDownSection(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_init.sql"))
	if err != nil || len(matches) == 0 {
		t.Fatalf("no init migration file found: %v", err)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "-- +goose Down") {
		t.Fatalf("migration missing goose down marker")
	}
	up := strings.Index(content, "-- +goose Up")
	down := strings.Index(content, "-- +goose Down")
	if up < 0 || down < up {
		t.Fatalf("goose markers out of order")
	}
	for _, table := range []string{"allocation_line_items", "orders", "inventory_batches", "products"} {
		if !strings.Contains(content[down:], "DROP TABLE "+table) {
			t.Errorf("down section missing drop for %s", table)
		}
	}
}
