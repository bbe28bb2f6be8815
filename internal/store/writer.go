package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Writer applies normalized records transactionally: one transaction per
// logical unit (the whole category tree, one product, the seller batch, one
// order plus all its line items). Conflicts on the provider id overwrite every
// non-key field; last write wins.
type Writer struct {
	db *DB
}

func NewWriter(db *DB) *Writer {
	return &Writer{db: db}
}

// ReplaceCategories upserts the full category tree in one transaction.
// Callers pass rows parents-first so the self-referencing FK is satisfiable.
func (w *Writer) ReplaceCategories(ctx context.Context, categories []Category) error {
	tx, err := w.db.begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, category := range categories {
		parentID := category.ParentID
		if parentID != nil {
			exists, err := rowExists(ctx, tx, `SELECT 1 FROM categories WHERE id = $1`, *parentID)
			if err != nil {
				return err
			}
			if !exists {
				parentID = nil
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO categories (id, name, parent_id, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (id)
			DO UPDATE SET name = EXCLUDED.name, parent_id = EXCLUDED.parent_id, updated_at = NOW()`,
			category.ID, category.Name, parentID)
		if err != nil {
			return fmt.Errorf("upsert category %d: %w", category.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (w *Writer) UpsertProduct(ctx context.Context, product Product) error {
	tx, err := w.db.begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// An unknown category softens to NULL rather than failing the row; the
	// orchestrator's categories-before-products ordering makes this rare.
	categoryID := product.CategoryID
	if categoryID != nil {
		exists, err := rowExists(ctx, tx, `SELECT 1 FROM categories WHERE id = $1`, *categoryID)
		if err != nil {
			return err
		}
		if !exists {
			categoryID = nil
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, sku, sale_price, cost_price, unit, status, stock_quantity, category_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			sku = EXCLUDED.sku,
			sale_price = EXCLUDED.sale_price,
			cost_price = EXCLUDED.cost_price,
			unit = EXCLUDED.unit,
			status = EXCLUDED.status,
			stock_quantity = EXCLUDED.stock_quantity,
			category_id = EXCLUDED.category_id,
			updated_at = NOW()`,
		product.ID, product.Name, product.SKU, product.SalePrice, product.CostPrice,
		product.Unit, product.Status, product.StockQuantity, categoryID)
	if err != nil {
		return fmt.Errorf("upsert product %d: %w", product.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ReplaceSellers upserts the full seller collection in one transaction.
func (w *Writer) ReplaceSellers(ctx context.Context, sellers []Seller) error {
	tx, err := w.db.begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, seller := range sellers {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sellers (id, name, status, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (id)
			DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status, updated_at = NOW()`,
			seller.ID, seller.Name, seller.Status)
		if err != nil {
			return fmt.Errorf("upsert seller %d: %w", seller.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// UpsertOrder writes the order row and replaces its line items (delete-all,
// reinsert) inside one transaction, so a failure leaves either the fully-old
// or the fully-new item set.
func (w *Writer) UpsertOrder(ctx context.Context, order Order) error {
	tx, err := w.db.begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sellerID := order.SellerID
	if sellerID != nil {
		exists, err := rowExists(ctx, tx, `SELECT 1 FROM sellers WHERE id = $1`, *sellerID)
		if err != nil {
			return err
		}
		if !exists {
			sellerID = nil
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, order_date, customer_name, customer_tax_id, customer_email,
			customer_phone, seller_id, status, total_value, discount_value, payment_method, payment_terms, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		ON CONFLICT (id)
		DO UPDATE SET
			order_number = EXCLUDED.order_number,
			order_date = EXCLUDED.order_date,
			customer_name = EXCLUDED.customer_name,
			customer_tax_id = EXCLUDED.customer_tax_id,
			customer_email = EXCLUDED.customer_email,
			customer_phone = EXCLUDED.customer_phone,
			seller_id = EXCLUDED.seller_id,
			status = EXCLUDED.status,
			total_value = EXCLUDED.total_value,
			discount_value = EXCLUDED.discount_value,
			payment_method = EXCLUDED.payment_method,
			payment_terms = EXCLUDED.payment_terms,
			updated_at = NOW()`,
		order.ID, order.Number, order.Date, order.CustomerName, order.CustomerTaxID,
		order.CustomerEmail, order.CustomerPhone, sellerID, order.Status,
		order.TotalValue, order.DiscountValue, order.PaymentMethod, order.PaymentTerms)
	if err != nil {
		return fmt.Errorf("upsert order %d: %w", order.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_line_items WHERE order_id = $1`, order.ID); err != nil {
		return fmt.Errorf("clear line items for order %d: %w", order.ID, err)
	}
	for _, item := range order.Items {
		productID := item.ProductID
		if productID != nil {
			exists, err := rowExists(ctx, tx, `SELECT 1 FROM products WHERE id = $1`, *productID)
			if err != nil {
				return err
			}
			if !exists {
				productID = nil
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_line_items (order_id, product_id, sku, description, unit, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			order.ID, productID, item.SKU, item.Description, item.Unit,
			item.Quantity, item.UnitPrice, item.LineTotal)
		if err != nil {
			return fmt.Errorf("insert line item for order %d: %w", order.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func rowExists(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
