package store

import (
	"context"
	"fmt"
)

var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id BIGINT REFERENCES categories(id) ON DELETE SET NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		sku TEXT UNIQUE,
		sale_price NUMERIC(12,2),
		cost_price NUMERIC(12,2),
		unit TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		stock_quantity NUMERIC(12,3) NOT NULL DEFAULT 0,
		category_id BIGINT REFERENCES categories(id) ON DELETE SET NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sellers (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT PRIMARY KEY,
		order_number TEXT NOT NULL DEFAULT '',
		order_date DATE,
		customer_name TEXT NOT NULL DEFAULT '',
		customer_tax_id TEXT NOT NULL DEFAULT '',
		customer_email TEXT NOT NULL DEFAULT '',
		customer_phone TEXT NOT NULL DEFAULT '',
		seller_id BIGINT REFERENCES sellers(id) ON DELETE SET NULL,
		status TEXT NOT NULL DEFAULT '',
		total_value NUMERIC(12,2),
		discount_value NUMERIC(12,2),
		payment_method TEXT NOT NULL DEFAULT '',
		payment_terms TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS order_line_items (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id BIGINT REFERENCES products(id) ON DELETE SET NULL,
		sku TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT '',
		quantity NUMERIC(12,3) NOT NULL DEFAULT 0,
		unit_price NUMERIC(12,2),
		line_total NUMERIC(12,2)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_progress (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// addColumnStatements carries columns introduced after a table's first
// release; ADD COLUMN IF NOT EXISTS keeps the migration incremental.
var addColumnStatements = []string{
	`ALTER TABLE products ADD COLUMN IF NOT EXISTS cost_price NUMERIC(12,2)`,
	`ALTER TABLE products ADD COLUMN IF NOT EXISTS stock_quantity NUMERIC(12,3) NOT NULL DEFAULT 0`,
	`ALTER TABLE products ADD COLUMN IF NOT EXISTS category_id BIGINT REFERENCES categories(id) ON DELETE SET NULL`,
	`ALTER TABLE orders ADD COLUMN IF NOT EXISTS payment_method TEXT NOT NULL DEFAULT ''`,
	`ALTER TABLE orders ADD COLUMN IF NOT EXISTS payment_terms TEXT NOT NULL DEFAULT ''`,
}

var createIndexStatements = []string{
	`CREATE INDEX IF NOT EXISTS categories_parent_id_idx ON categories (parent_id)`,
	`CREATE INDEX IF NOT EXISTS products_category_id_idx ON products (category_id)`,
	`CREATE INDEX IF NOT EXISTS orders_seller_id_idx ON orders (seller_id)`,
	`CREATE INDEX IF NOT EXISTS order_line_items_order_id_idx ON order_line_items (order_id)`,
	`CREATE INDEX IF NOT EXISTS order_line_items_product_id_idx ON order_line_items (product_id)`,
	`CREATE INDEX IF NOT EXISTS order_line_items_sku_idx ON order_line_items (sku)`,
}

// Migrate ensures every destination table, column and index exists. It runs at
// the start of every invocation and is a no-op on an up-to-date schema.
func (d *DB) Migrate(ctx context.Context) error {
	db, err := d.Ensure(ctx)
	if err != nil {
		return err
	}
	for _, group := range [][]string{createTableStatements, addColumnStatements, createIndexStatements} {
		for _, stmt := range group {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("store: migrate: %w", err)
			}
		}
	}
	return nil
}
