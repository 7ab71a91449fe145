package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/larder-erp/larder-erp/internal/platform/db"
)

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetItem(ctx context.Context, itemID int64) (ItemInfo, error)
	LocationExists(ctx context.Context, locationID int64) (bool, error)
	GetStockForUpdate(ctx context.Context, itemID, locationID int64) (LocationStock, error)
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	UpsertLocationStock(ctx context.Context, ls LocationStock) error
	TouchCountMetadata(ctx context.Context, itemID, locationID, countedBy int64) error
	RecomputeItemTotal(ctx context.Context, itemID int64) (float64, error)
	InsertLot(ctx context.Context, lot Lot) (int64, error)
	GetAvailableLotsForUpdate(ctx context.Context, itemID, locationID int64) ([]Lot, error)
	UpdateLotRemaining(ctx context.Context, lotID int64, remaining float64, status LotStatus) error
	UpdateItemCost(ctx context.Context, itemID int64, cost decimal.Decimal) error
	GetOrderLineForUpdate(ctx context.Context, lineID int64) (OrderLineState, error)
	SetOrderLineReceived(ctx context.Context, lineID int64, receivedQty float64) error
}

type txRepository struct {
	tx pgx.Tx
}

// ErrStockNotFound indicates a missing location_stocks row.
var ErrStockNotFound = errors.New("stock: location stock not found")

// WithTx executes the callback inside a repeatable-read transaction, retrying
// serialization conflicts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTxRetry(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetLocationStock reads the aggregate row without locking.
func (r *Repository) GetLocationStock(ctx context.Context, itemID, locationID int64) (LocationStock, error) {
	row := r.pool.QueryRow(ctx, `SELECT location_id, item_id, current_stock, last_counted_at, last_counted_by, updated_at
FROM location_stocks WHERE item_id=$1 AND location_id=$2`, itemID, locationID)
	return scanLocationStock(row, itemID, locationID)
}

// ListMovements lists ledger history ordered oldest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, movement_number, item_id, location_id, COALESCE(lot_id,0), movement_type,
  quantity, previous_stock, new_stock, COALESCE(unit_cost,0), COALESCE(total_cost,0),
  COALESCE(reference_type,''), COALESCE(reference_id,''), COALESCE(destination_location_id,0),
  COALESCE(reason,''), COALESCE(notes,''), performed_by, created_at
FROM stock_movements
WHERE item_id=$1
  AND ($2::bigint = 0 OR location_id=$2)
  AND ($3::text = '' OR movement_type=$3)
  AND created_at BETWEEN COALESCE($4::timestamptz, '-infinity'::timestamptz) AND COALESCE($5::timestamptz, 'infinity'::timestamptz)
ORDER BY created_at ASC, id ASC
LIMIT $6`, filter.ItemID, filter.LocationID, string(filter.Type), nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.Number, &m.ItemID, &m.LocationID, &m.LotID, &m.Type,
			&m.Quantity, &m.PreviousStock, &m.NewStock, &m.UnitCost, &m.TotalCost,
			&m.ReferenceType, &m.ReferenceID, &m.DestinationLocationID,
			&m.Reason, &m.Notes, &m.PerformedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ListLotsExpiringBy lists available lots expiring on or before horizon.
func (r *Repository) ListLotsExpiringBy(ctx context.Context, horizon time.Time, locationID int64) ([]Lot, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, lot_number, item_id, location_id, quantity, remaining_qty, cost_price,
  received_date, expiry_date, COALESCE(supplier_id,0), COALESCE(purchase_order_id,0), status
FROM inventory_lots
WHERE status='AVAILABLE' AND remaining_qty > 0
  AND expiry_date IS NOT NULL AND expiry_date <= $1
  AND ($2::bigint = 0 OR location_id=$2)
ORDER BY expiry_date ASC, received_date ASC, id ASC`, horizon, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLots(rows)
}

func (r *txRepository) GetItem(ctx context.Context, itemID int64) (ItemInfo, error) {
	var item ItemInfo
	err := r.tx.QueryRow(ctx, `SELECT id, sku, name, track_lots, track_expiry FROM inventory_items WHERE id=$1`, itemID).
		Scan(&item.ID, &item.SKU, &item.Name, &item.TrackLots, &item.TrackExpiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ItemInfo{}, fmt.Errorf("%w: inventory item", ErrNotFound)
		}
		return ItemInfo{}, err
	}
	return item, nil
}

func (r *txRepository) LocationExists(ctx context.Context, locationID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM locations WHERE id=$1)`, locationID).Scan(&exists)
	return exists, err
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, itemID, locationID int64) (LocationStock, error) {
	row := r.tx.QueryRow(ctx, `SELECT location_id, item_id, current_stock, last_counted_at, last_counted_by, updated_at
FROM location_stocks WHERE item_id=$1 AND location_id=$2 FOR UPDATE`, itemID, locationID)
	return scanLocationStock(row, itemID, locationID)
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements
  (movement_number, item_id, location_id, lot_id, movement_type, quantity, previous_stock, new_stock,
   unit_cost, total_cost, reference_type, reference_id, destination_location_id, reason, notes, performed_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
RETURNING id`,
		m.Number, m.ItemID, m.LocationID, nullInt(m.LotID), string(m.Type), m.Quantity, m.PreviousStock, m.NewStock,
		nullDecimal(m.UnitCost), nullDecimal(m.TotalCost), nullString(m.ReferenceType), nullString(m.ReferenceID),
		nullInt(m.DestinationLocationID), nullString(m.Reason), nullString(m.Notes), m.PerformedBy, m.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) UpsertLocationStock(ctx context.Context, ls LocationStock) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO location_stocks (location_id, item_id, current_stock, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (location_id, item_id) DO UPDATE SET current_stock=EXCLUDED.current_stock, updated_at=NOW()`,
		ls.LocationID, ls.ItemID, ls.CurrentStock)
	return err
}

func (r *txRepository) TouchCountMetadata(ctx context.Context, itemID, locationID, countedBy int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO location_stocks (location_id, item_id, current_stock, last_counted_at, last_counted_by, updated_at)
VALUES ($1,$2,0,NOW(),$3,NOW())
ON CONFLICT (location_id, item_id) DO UPDATE SET last_counted_at=NOW(), last_counted_by=$3, updated_at=NOW()`,
		locationID, itemID, nullInt(countedBy))
	return err
}

// RecomputeItemTotal refreshes the denormalised global total inside the same
// transaction that changed a per-location row.
func (r *txRepository) RecomputeItemTotal(ctx context.Context, itemID int64) (float64, error) {
	var total float64
	err := r.tx.QueryRow(ctx, `UPDATE inventory_items
SET current_stock = COALESCE((SELECT SUM(current_stock) FROM location_stocks WHERE item_id=$1), 0), updated_at=NOW()
WHERE id=$1
RETURNING current_stock`, itemID).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: inventory item", ErrNotFound)
	}
	return total, err
}

func (r *txRepository) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_lots
  (lot_number, item_id, location_id, quantity, remaining_qty, cost_price, received_date, expiry_date,
   supplier_id, purchase_order_id, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id`,
		lot.Number, lot.ItemID, lot.LocationID, lot.Quantity, lot.RemainingQty, lot.CostPrice,
		lot.ReceivedDate, nullTime(lot.ExpiryDate), nullInt(lot.SupplierID), nullInt(lot.PurchaseOrderID),
		string(lot.Status)).Scan(&id)
	return id, err
}

func (r *txRepository) GetAvailableLotsForUpdate(ctx context.Context, itemID, locationID int64) ([]Lot, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, lot_number, item_id, location_id, quantity, remaining_qty, cost_price,
  received_date, expiry_date, COALESCE(supplier_id,0), COALESCE(purchase_order_id,0), status
FROM inventory_lots
WHERE item_id=$1 AND location_id=$2 AND status='AVAILABLE' AND remaining_qty > 0
ORDER BY expiry_date ASC NULLS LAST, received_date ASC, id ASC
FOR UPDATE`, itemID, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLots(rows)
}

func (r *txRepository) UpdateLotRemaining(ctx context.Context, lotID int64, remaining float64, status LotStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_lots SET remaining_qty=$2, status=$3 WHERE id=$1`,
		lotID, remaining, string(status))
	return err
}

// UpdateItemCost applies the last-in cost policy: the previous cost moves to
// last_cost_price before the new one lands.
func (r *txRepository) UpdateItemCost(ctx context.Context, itemID int64, cost decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_items SET last_cost_price=cost_price, cost_price=$2, updated_at=NOW() WHERE id=$1`,
		itemID, cost)
	return err
}

func (r *txRepository) GetOrderLineForUpdate(ctx context.Context, lineID int64) (OrderLineState, error) {
	var line OrderLineState
	err := r.tx.QueryRow(ctx, `SELECT id, quantity, received_quantity FROM purchase_order_items WHERE id=$1 FOR UPDATE`, lineID).
		Scan(&line.ID, &line.Quantity, &line.ReceivedQty)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderLineState{}, fmt.Errorf("%w: purchase order line", ErrNotFound)
	}
	return line, err
}

func (r *txRepository) SetOrderLineReceived(ctx context.Context, lineID int64, receivedQty float64) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_order_items SET received_quantity=$2 WHERE id=$1`, lineID, receivedQty)
	return err
}

func scanLocationStock(row pgx.Row, itemID, locationID int64) (LocationStock, error) {
	var ls LocationStock
	var countedAt *time.Time
	var countedBy *int64
	err := row.Scan(&ls.LocationID, &ls.ItemID, &ls.CurrentStock, &countedAt, &countedBy, &ls.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LocationStock{ItemID: itemID, LocationID: locationID}, ErrStockNotFound
		}
		return LocationStock{}, err
	}
	if countedAt != nil {
		ls.LastCountedAt = *countedAt
	}
	if countedBy != nil {
		ls.LastCountedBy = *countedBy
	}
	return ls, nil
}

func scanLots(rows pgx.Rows) ([]Lot, error) {
	lots := []Lot{}
	for rows.Next() {
		var lot Lot
		var expiry *time.Time
		if err := rows.Scan(&lot.ID, &lot.Number, &lot.ItemID, &lot.LocationID, &lot.Quantity, &lot.RemainingQty,
			&lot.CostPrice, &lot.ReceivedDate, &expiry, &lot.SupplierID, &lot.PurchaseOrderID, &lot.Status); err != nil {
			return nil, err
		}
		if expiry != nil {
			lot.ExpiryDate = *expiry
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullDecimal(d decimal.Decimal) any {
	if d.IsZero() {
		return nil
	}
	return d
}
