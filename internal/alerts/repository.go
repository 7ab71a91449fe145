package alerts

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements RepositoryPort backed by Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListLowStock returns active items at or below their minimum stock level.
// A zero locationID compares the cached global total; otherwise the item's
// balance at that location is compared. Items with no minimum never alert.
func (r *Repository) ListLowStock(ctx context.Context, locationID int64) ([]LowStockAlert, error) {
	var rows pgx.Rows
	var err error
	if locationID != 0 {
		rows, err = r.pool.Query(ctx, `SELECT i.id, $1::bigint, i.sku, i.name, i.unit,
  ls.current_stock, i.minimum_stock, i.reorder_qty
FROM inventory_items i
JOIN location_stocks ls ON ls.item_id = i.id AND ls.location_id = $1
WHERE i.is_active AND i.minimum_stock > 0 AND ls.current_stock <= i.minimum_stock
ORDER BY ls.current_stock / i.minimum_stock, i.sku`, locationID)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT id, 0::bigint, sku, name, unit,
  current_stock, minimum_stock, reorder_qty
FROM inventory_items
WHERE is_active AND minimum_stock > 0 AND current_stock <= minimum_stock
ORDER BY current_stock / minimum_stock, sku`)
	}
	if err != nil {
		return nil, fmt.Errorf("alerts: list low stock: %w", err)
	}
	defer rows.Close()

	var alerts []LowStockAlert
	for rows.Next() {
		var a LowStockAlert
		if err := rows.Scan(&a.ItemID, &a.LocationID, &a.SKU, &a.Name, &a.Unit,
			&a.CurrentStock, &a.MinimumStock, &a.ReorderQty); err != nil {
			return nil, fmt.Errorf("alerts: scan low stock: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
