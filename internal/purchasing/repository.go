package purchasing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/larder-erp/larder-erp/internal/platform/db"
	"github.com/larder-erp/larder-erp/internal/shared"
)

// Repository implements RepositoryPort backed by Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	SupplierExists(ctx context.Context, supplierID int64) (bool, error)
	LocationExists(ctx context.Context, locationID int64) (bool, error)
	InsertOrder(ctx context.Context, order PurchaseOrder) (int64, error)
	InsertOrderLine(ctx context.Context, line OrderLine) (int64, error)
	GetOrderForUpdate(ctx context.Context, orderID int64) (PurchaseOrder, error)
	GetOrderLines(ctx context.Context, orderID int64) ([]OrderLine, error)
	UpdateOrderStatus(ctx context.Context, order PurchaseOrder) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction, retrying
// serialization conflicts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("purchasing repository not initialised")
	}
	return db.WithTxRetry(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const orderColumns = `id, po_number, supplier_id, location_id, status,
  order_date, expected_date, received_date, COALESCE(approved_by,0), approved_at,
  subtotal, tax_amount, total_amount, COALESCE(notes,''), created_by, created_at, updated_at`

// GetOrder returns the header and lines without locking.
func (r *Repository) GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM purchase_orders WHERE id=$1`, orderColumns), id)
	order, err := scanOrder(row)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, purchase_order_id, item_id, quantity, received_quantity,
  unit_price, line_total, COALESCE(notes,'')
FROM purchase_order_items WHERE purchase_order_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, nil, fmt.Errorf("purchasing: list lines: %w", err)
	}
	defer rows.Close()

	lines, err := scanLines(rows)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return order, lines, nil
}

// ListOrders lists order headers newest first.
func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter, page shared.Pagination) ([]PurchaseOrder, error) {
	perPage := page.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	offset := 0
	if page.Page > 1 {
		offset = (page.Page - 1) * perPage
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM purchase_orders
WHERE ($1 = '' OR status = $1)
  AND ($2 = 0 OR supplier_id = $2)
  AND ($3 = 0 OR location_id = $3)
ORDER BY id DESC
LIMIT $4 OFFSET $5`, orderColumns), string(filter.Status), filter.SupplierID, filter.LocationID, perPage, offset)
	if err != nil {
		return nil, fmt.Errorf("purchasing: list orders: %w", err)
	}
	defer rows.Close()

	var orders []PurchaseOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (tx *txRepository) SupplierExists(ctx context.Context, supplierID int64) (bool, error) {
	var exists bool
	err := tx.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM suppliers WHERE id=$1 AND is_active)`, supplierID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("purchasing: check supplier: %w", err)
	}
	return exists, nil
}

func (tx *txRepository) LocationExists(ctx context.Context, locationID int64) (bool, error) {
	var exists bool
	err := tx.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM locations WHERE id=$1 AND is_active)`, locationID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("purchasing: check location: %w", err)
	}
	return exists, nil
}

func (tx *txRepository) InsertOrder(ctx context.Context, order PurchaseOrder) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO purchase_orders
  (po_number, supplier_id, location_id, status, expected_date, subtotal, tax_amount, total_amount, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
RETURNING id`,
		order.Number, order.SupplierID, order.LocationID, order.Status,
		nullTime(order.ExpectedDate), order.Subtotal, order.TaxAmount, order.Total,
		nullString(order.Notes), order.CreatedBy, order.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("purchasing: insert order: %w", err)
	}
	return id, nil
}

func (tx *txRepository) InsertOrderLine(ctx context.Context, line OrderLine) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO purchase_order_items
  (purchase_order_id, item_id, quantity, received_quantity, unit_price, line_total, notes)
VALUES ($1,$2,$3,0,$4,$5,$6)
RETURNING id`,
		line.OrderID, line.ItemID, line.Quantity, line.UnitPrice, line.LineTotal, nullString(line.Notes)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("purchasing: insert order line: %w", err)
	}
	return id, nil
}

func (tx *txRepository) GetOrderForUpdate(ctx context.Context, orderID int64) (PurchaseOrder, error) {
	row := tx.tx.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM purchase_orders WHERE id=$1 FOR UPDATE`, orderColumns), orderID)
	return scanOrder(row)
}

func (tx *txRepository) GetOrderLines(ctx context.Context, orderID int64) ([]OrderLine, error) {
	rows, err := tx.tx.Query(ctx, `SELECT id, purchase_order_id, item_id, quantity, received_quantity,
  unit_price, line_total, COALESCE(notes,'')
FROM purchase_order_items WHERE purchase_order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("purchasing: list lines: %w", err)
	}
	defer rows.Close()
	return scanLines(rows)
}

func (tx *txRepository) UpdateOrderStatus(ctx context.Context, order PurchaseOrder) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE purchase_orders
SET status=$2, approved_by=$3, approved_at=$4, order_date=$5, received_date=$6, updated_at=$7
WHERE id=$1`,
		order.ID, order.Status, nullInt(order.ApprovedBy), nullTime(order.ApprovedAt),
		nullTime(order.OrderDate), nullTime(order.ReceivedDate), order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("purchasing: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %d", ErrNotFound, order.ID)
	}
	return nil
}

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var (
		order        PurchaseOrder
		orderDate    *time.Time
		expectedDate *time.Time
		receivedDate *time.Time
		approvedAt   *time.Time
	)
	err := row.Scan(&order.ID, &order.Number, &order.SupplierID, &order.LocationID, &order.Status,
		&orderDate, &expectedDate, &receivedDate, &order.ApprovedBy, &approvedAt,
		&order.Subtotal, &order.TaxAmount, &order.Total, &order.Notes,
		&order.CreatedBy, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, fmt.Errorf("%w: purchase order", ErrNotFound)
	}
	if err != nil {
		return PurchaseOrder{}, fmt.Errorf("purchasing: scan order: %w", err)
	}
	if orderDate != nil {
		order.OrderDate = *orderDate
	}
	if expectedDate != nil {
		order.ExpectedDate = *expectedDate
	}
	if receivedDate != nil {
		order.ReceivedDate = *receivedDate
	}
	if approvedAt != nil {
		order.ApprovedAt = *approvedAt
	}
	return order, nil
}

func scanLines(rows pgx.Rows) ([]OrderLine, error) {
	var lines []OrderLine
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ItemID, &line.Quantity, &line.ReceivedQty,
			&line.UnitPrice, &line.LineTotal, &line.Notes); err != nil {
			return nil, fmt.Errorf("purchasing: scan line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value
}
