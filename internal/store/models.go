package store

import "time"

// Destination row shapes. Pointer fields map to nullable columns; provider ids
// are the primary keys everywhere.

type Category struct {
	ID       int64
	Name     string
	ParentID *int64
}

type Product struct {
	ID            int64
	Name          string
	SKU           *string
	SalePrice     *float64
	CostPrice     *float64
	Unit          string
	Status        string
	StockQuantity float64
	CategoryID    *int64
}

type Seller struct {
	ID     int64
	Name   string
	Status string
}

type Order struct {
	ID            int64
	Number        string
	Date          *time.Time
	CustomerName  string
	CustomerTaxID string
	CustomerEmail string
	CustomerPhone string
	SellerID      *int64
	Status        string
	TotalValue    *float64
	DiscountValue *float64
	PaymentMethod string
	PaymentTerms  string
	Items         []OrderLineItem
}

// OrderLineItem rows are owned by their order and fully replaced on every
// re-sync; the provider exposes no stable line-item identifier.
type OrderLineItem struct {
	ProductID   *int64
	SKU         string
	Description string
	Unit        string
	Quantity    float64
	UnitPrice   *float64
	LineTotal   *float64
}
