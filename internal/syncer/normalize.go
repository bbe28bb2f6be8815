package syncer

import (
	"strconv"
	"strings"
	"time"

	"github.com/leonardofuson/tinysync/internal/store"
	"github.com/leonardofuson/tinysync/internal/tiny"
)

// Normalization is pure: raw provider maps in, typed destination rows out.
// A false return means skip — mandatory identifying fields are missing — and
// never an error; the orchestrator logs and moves on to the next record.

func normalizeProduct(raw map[string]any) (store.Product, bool) {
	id, ok := asInt64(raw["id"])
	name := asString(raw["nome"])
	if !ok || id == 0 || name == "" {
		return store.Product{}, false
	}
	product := store.Product{
		ID:            id,
		Name:          name,
		SalePrice:     moneyField(raw, "preco"),
		CostPrice:     moneyField(raw, "preco_custo"),
		Unit:          asString(raw["unidade"]),
		Status:        asString(raw["situacao"]),
		StockQuantity: quantityField(raw, "estoque_atual", "estoque"),
	}
	if sku := asString(raw["codigo"]); sku != "" {
		product.SKU = &sku
	}
	if categoryID, ok := asInt64(raw["id_categoria"]); ok && categoryID != 0 {
		product.CategoryID = &categoryID
	}
	return product, true
}

func normalizeSeller(raw map[string]any) (store.Seller, bool) {
	id, ok := asInt64(raw["id"])
	name := asString(raw["nome"])
	if !ok || id == 0 || name == "" {
		return store.Seller{}, false
	}
	return store.Seller{
		ID:     id,
		Name:   name,
		Status: asString(raw["situacao"]),
	}, true
}

func normalizeOrder(raw map[string]any) (store.Order, bool) {
	id, ok := asInt64(raw["id"])
	number := asString(raw["numero"])
	if !ok || id == 0 || number == "" {
		return store.Order{}, false
	}
	order := store.Order{
		ID:            id,
		Number:        number,
		Date:          dateField(raw, "data_pedido"),
		Status:        asString(raw["situacao"]),
		TotalValue:    moneyField(raw, "total_pedido"),
		DiscountValue: moneyField(raw, "valor_desconto", "desconto"),
		PaymentMethod: asString(raw["forma_pagamento"]),
		PaymentTerms:  asString(raw["condicao_pagamento"]),
	}
	if customer, ok := raw["cliente"].(map[string]any); ok {
		order.CustomerName = asString(customer["nome"])
		order.CustomerTaxID = asString(customer["cpf_cnpj"])
		order.CustomerEmail = asString(customer["email"])
		order.CustomerPhone = asString(customer["fone"])
	}
	if sellerID, ok := asInt64(raw["id_vendedor"]); ok && sellerID != 0 {
		order.SellerID = &sellerID
	}
	if items, ok := tiny.ExtractRecords(raw["itens"], "item"); ok {
		order.Items = make([]store.OrderLineItem, 0, len(items))
		for _, item := range items {
			order.Items = append(order.Items, normalizeLineItem(item))
		}
	}
	return order, true
}

func normalizeLineItem(raw map[string]any) store.OrderLineItem {
	item := store.OrderLineItem{
		SKU:         asString(raw["codigo"]),
		Description: asString(raw["descricao"]),
		Unit:        asString(raw["unidade"]),
		Quantity:    quantityField(raw, "quantidade"),
		UnitPrice:   moneyField(raw, "valor_unitario"),
	}
	if productID, ok := asInt64(raw["id_produto"]); ok && productID != 0 {
		item.ProductID = &productID
	}
	if item.UnitPrice != nil {
		total := item.Quantity * *item.UnitPrice
		item.LineTotal = &total
	}
	return item
}

// categoryRows flattens the nested category tree into parent-before-child
// order using an explicit worklist. A visited set guards against cycles in a
// corrupted tree; a node seen twice is dropped.
func categoryRows(nodes []map[string]any) []store.Category {
	type workItem struct {
		node     map[string]any
		parentID *int64
	}
	queue := make([]workItem, 0, len(nodes))
	for _, node := range nodes {
		queue = append(queue, workItem{node: node})
	}
	visited := map[int64]struct{}{}
	rows := make([]store.Category, 0, len(nodes))

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		id, ok := asInt64(item.node["id"])
		name := asString(item.node["descricao"])
		if name == "" {
			name = asString(item.node["nome"])
		}
		if !ok || id == 0 || name == "" {
			continue
		}
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}
		rows = append(rows, store.Category{ID: id, Name: name, ParentID: item.parentID})

		if children, ok := tiny.ExtractRecords(item.node["nodes"], "categoria"); ok {
			parent := id
			for _, child := range children {
				queue = append(queue, workItem{node: child, parentID: &parent})
			}
		}
	}
	return rows
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		trimmed := strings.ReplaceAll(strings.TrimSpace(n), ",", ".")
		if trimmed == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// moneyField defaults to NULL when absent or unparseable: an unknown price is
// not a zero price.
func moneyField(m map[string]any, keys ...string) *float64 {
	for _, key := range keys {
		if value, ok := asFloat(m[key]); ok {
			return &value
		}
	}
	return nil
}

// quantityField defaults to zero: an absent stock or item count means none.
func quantityField(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if value, ok := asFloat(m[key]); ok {
			return value
		}
	}
	return 0
}

var dateLayouts = []string{"02/01/2006 15:04:05", "02/01/2006"}

func dateField(m map[string]any, key string) *time.Time {
	raw := asString(m[key])
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed
		}
	}
	return nil
}
