package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// These tests need a real Postgres. Point TINYSYNC_TEST_POSTGRES_DSN at a
// disposable database to run them; tables are migrated and emptied per test.
func testDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TINYSYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TINYSYNC_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	d, err := Open(ctx, DBOptions{DSN: dsn, MaxAttempts: 1, RetryDelay: time.Millisecond, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db, err := d.Ensure(ctx)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for _, table := range []string{"order_line_items", "orders", "products", "sellers", "categories", "sync_progress"} {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("empty %s: %v", table, err)
		}
	}
	return d
}

func countRows(t *testing.T, d *DB, query string, args ...any) int {
	t.Helper()
	db, err := d.Ensure(context.Background())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	var n int
	if err := db.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return n
}

func TestUpsertProductIsIdempotent(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	w := NewWriter(d)

	price := 12.5
	sku := "CAN-01"
	product := Product{ID: 10, Name: "Caneta", SKU: &sku, SalePrice: &price, Unit: "UN", StockQuantity: 5}
	if err := w.UpsertProduct(ctx, product); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	product.Name = "Caneta Azul"
	product.StockQuantity = 3
	if err := w.UpsertProduct(ctx, product); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	if n := countRows(t, d, `SELECT COUNT(*) FROM products`); n != 1 {
		t.Fatalf("expected 1 product row, got %d", n)
	}
	db, _ := d.Ensure(ctx)
	var name string
	var stock float64
	if err := db.QueryRowContext(ctx, `SELECT name, stock_quantity FROM products WHERE id = 10`).Scan(&name, &stock); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if name != "Caneta Azul" || stock != 3 {
		t.Fatalf("expected last write to win, got name=%q stock=%v", name, stock)
	}
}

func TestUpsertProductSoftensUnknownCategory(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	w := NewWriter(d)

	missing := int64(999)
	if err := w.UpsertProduct(ctx, Product{ID: 10, Name: "Caneta", CategoryID: &missing}); err != nil {
		t.Fatalf("upsert with unknown category failed: %v", err)
	}
	if n := countRows(t, d, `SELECT COUNT(*) FROM products WHERE category_id IS NULL`); n != 1 {
		t.Fatalf("expected unknown category to soften to NULL")
	}

	if err := w.ReplaceCategories(ctx, []Category{{ID: 999, Name: "Papelaria"}}); err != nil {
		t.Fatalf("replace categories failed: %v", err)
	}
	if err := w.UpsertProduct(ctx, Product{ID: 10, Name: "Caneta", CategoryID: &missing}); err != nil {
		t.Fatalf("re-upsert failed: %v", err)
	}
	if n := countRows(t, d, `SELECT COUNT(*) FROM products WHERE category_id = 999`); n != 1 {
		t.Fatalf("expected category reference kept once the category exists")
	}
}

func TestReplaceCategoriesKeepsHierarchy(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	w := NewWriter(d)

	parent := int64(1)
	rows := []Category{
		{ID: 1, Name: "Papelaria"},
		{ID: 2, Name: "Canetas", ParentID: &parent},
	}
	if err := w.ReplaceCategories(ctx, rows); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if err := w.ReplaceCategories(ctx, rows); err != nil {
		t.Fatalf("second replace failed: %v", err)
	}
	if n := countRows(t, d, `SELECT COUNT(*) FROM categories`); n != 2 {
		t.Fatalf("expected 2 category rows, got %d", n)
	}
	if n := countRows(t, d, `SELECT COUNT(*) FROM categories WHERE id = 2 AND parent_id = 1`); n != 1 {
		t.Fatalf("expected child to keep its parent reference")
	}
}

func TestUpsertOrderReplacesLineItems(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	w := NewWriter(d)

	price := 12.5
	total := 37.5
	order := Order{
		ID:     900,
		Number: "900",
		Items: []OrderLineItem{
			{SKU: "CAN-01", Description: "Caneta", Quantity: 3, UnitPrice: &price, LineTotal: &total},
			{Description: "Caderno", Quantity: 1},
			{Description: "Frete", Quantity: 1},
		},
	}
	if err := w.UpsertOrder(ctx, order); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if n := countRows(t, d, `SELECT COUNT(*) FROM order_line_items WHERE order_id = 900`); n != 3 {
		t.Fatalf("expected 3 line items, got %d", n)
	}

	order.Items = order.Items[:1]
	if err := w.UpsertOrder(ctx, order); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if n := countRows(t, d, `SELECT COUNT(*) FROM order_line_items WHERE order_id = 900`); n != 1 {
		t.Fatalf("expected item set replaced, got %d rows", n)
	}
	if n := countRows(t, d, `SELECT COUNT(*) FROM orders`); n != 1 {
		t.Fatalf("expected 1 order row, got %d", n)
	}
}

func TestUpsertOrderSoftensUnknownRefs(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	w := NewWriter(d)

	missingSeller := int64(77)
	missingProduct := int64(555)
	order := Order{
		ID:       901,
		Number:   "901",
		SellerID: &missingSeller,
		Items: []OrderLineItem{
			{ProductID: &missingProduct, Description: "Item órfão", Quantity: 1},
		},
	}
	if err := w.UpsertOrder(ctx, order); err != nil {
		t.Fatalf("upsert with unknown refs failed: %v", err)
	}
	if n := countRows(t, d, `SELECT COUNT(*) FROM orders WHERE id = 901 AND seller_id IS NULL`); n != 1 {
		t.Fatalf("expected unknown seller softened to NULL")
	}
	if n := countRows(t, d, `SELECT COUNT(*) FROM order_line_items WHERE order_id = 901 AND product_id IS NULL`); n != 1 {
		t.Fatalf("expected unknown product softened to NULL")
	}
}

func TestProgressRoundTrip(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	p := NewProgressStore(d)

	if v, err := p.Read(ctx, KeyProductsPage); err != nil || v != "" {
		t.Fatalf("expected absent key to read empty, got %q %v", v, err)
	}
	if err := p.Write(ctx, KeyProductsPage, "7"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := p.Write(ctx, KeyProductsPage, "8"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if v, _ := p.Read(ctx, KeyProductsPage); v != "8" {
		t.Fatalf("expected overwritten value, got %q", v)
	}
	if err := p.Clear(ctx, KeyProductsPage); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if v, _ := p.Read(ctx, KeyProductsPage); v != "" {
		t.Fatalf("expected cleared key to read empty, got %q", v)
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	d := testDB(t)
	if err := d.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}
