package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/larder-erp/larder-erp/internal/platform/db"
)

type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates the Postgres-backed catalog repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repo{db: pool}
}

const itemColumns = `id, sku, name, COALESCE(description,''), COALESCE(category,''), unit,
  cost_price, last_cost_price, sale_price, minimum_stock, maximum_stock, reorder_point, reorder_qty,
  track_lots, track_expiry, current_stock, is_active, created_at, updated_at`

func (r *repo) ListItems(ctx context.Context, filters ListFilters) ([]Item, int, error) {
	limit, offset := pageBounds(filters)
	active := activeArg(filters)

	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM inventory_items
WHERE ($1 = '' OR sku ILIKE '%%'||$1||'%%' OR name ILIKE '%%'||$1||'%%')
  AND ($2 = '' OR category = $2)
  AND ($3::boolean IS NULL OR is_active = $3)
ORDER BY name
LIMIT $4 OFFSET $5`, itemColumns), filters.Search, filters.Category, active, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = r.db.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_items
WHERE ($1 = '' OR sku ILIKE '%'||$1||'%' OR name ILIKE '%'||$1||'%')
  AND ($2 = '' OR category = $2)
  AND ($3::boolean IS NULL OR is_active = $3)`, filters.Search, filters.Category, active).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: count items: %w", err)
	}
	return items, total, nil
}

func (r *repo) GetItem(ctx context.Context, id int64) (Item, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM inventory_items WHERE id=$1`, itemColumns), id)
	return scanItem(row)
}

func (r *repo) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM inventory_items WHERE sku=$1`, itemColumns), sku)
	return scanItem(row)
}

func (r *repo) CreateItem(ctx context.Context, item Item) (Item, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `INSERT INTO inventory_items
  (sku, name, description, category, unit, cost_price, last_cost_price, sale_price,
   minimum_stock, maximum_stock, reorder_point, reorder_qty, track_lots, track_expiry, current_stock, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6,$7,$8,$9,$10,$11,$12,$13,0,$14,$15,$15)
RETURNING id`,
		item.SKU, item.Name, nullString(item.Description), nullString(item.Category), item.Unit,
		item.CostPrice, item.SalePrice, item.MinimumStock, item.MaximumStock, item.ReorderPoint, item.ReorderQty,
		item.TrackLots, item.TrackExpiry, item.IsActive, now).Scan(&item.ID)
	if db.IsUniqueViolation(err) {
		return Item{}, fmt.Errorf("%w: sku %s", ErrDuplicate, item.SKU)
	}
	if err != nil {
		return Item{}, fmt.Errorf("catalog: create item: %w", err)
	}
	item.LastCostPrice = item.CostPrice
	item.CreatedAt = now
	item.UpdatedAt = now
	return item, nil
}

func (r *repo) UpdateItem(ctx context.Context, id int64, item Item) error {
	tag, err := r.db.Exec(ctx, `UPDATE inventory_items
SET sku=$2, name=$3, description=$4, category=$5, unit=$6, sale_price=$7,
    minimum_stock=$8, maximum_stock=$9, reorder_point=$10, reorder_qty=$11,
    track_lots=$12, track_expiry=$13, updated_at=$14
WHERE id=$1`,
		id, item.SKU, item.Name, nullString(item.Description), nullString(item.Category), item.Unit,
		item.SalePrice, item.MinimumStock, item.MaximumStock, item.ReorderPoint, item.ReorderQty,
		item.TrackLots, item.TrackExpiry, time.Now().UTC())
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: sku %s", ErrDuplicate, item.SKU)
	}
	if err != nil {
		return fmt.Errorf("catalog: update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	return nil
}

func (r *repo) SetItemActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE inventory_items SET is_active=$2, updated_at=$3 WHERE id=$1`,
		id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("catalog: set item active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	return nil
}

const locationColumns = `id, code, name, kind, COALESCE(address,''), is_active, created_at, updated_at`

func (r *repo) ListLocations(ctx context.Context, filters ListFilters) ([]Location, int, error) {
	limit, offset := pageBounds(filters)
	active := activeArg(filters)

	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM locations
WHERE ($1 = '' OR code ILIKE '%%'||$1||'%%' OR name ILIKE '%%'||$1||'%%')
  AND ($2::boolean IS NULL OR is_active = $2)
ORDER BY name
LIMIT $3 OFFSET $4`, locationColumns), filters.Search, active, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list locations: %w", err)
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Code, &l.Name, &l.Kind, &l.Address, &l.IsActive, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("catalog: scan location: %w", err)
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = r.db.QueryRow(ctx, `SELECT COUNT(*) FROM locations
WHERE ($1 = '' OR code ILIKE '%'||$1||'%' OR name ILIKE '%'||$1||'%')
  AND ($2::boolean IS NULL OR is_active = $2)`, filters.Search, active).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: count locations: %w", err)
	}
	return locations, total, nil
}

func (r *repo) GetLocation(ctx context.Context, id int64) (Location, error) {
	var l Location
	err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM locations WHERE id=$1`, locationColumns), id).
		Scan(&l.ID, &l.Code, &l.Name, &l.Kind, &l.Address, &l.IsActive, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Location{}, fmt.Errorf("%w: location %d", ErrNotFound, id)
	}
	if err != nil {
		return Location{}, fmt.Errorf("catalog: get location: %w", err)
	}
	return l, nil
}

func (r *repo) CreateLocation(ctx context.Context, location Location) (Location, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `INSERT INTO locations (code, name, kind, address, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6) RETURNING id`,
		location.Code, location.Name, location.Kind, nullString(location.Address), location.IsActive, now).Scan(&location.ID)
	if db.IsUniqueViolation(err) {
		return Location{}, fmt.Errorf("%w: code %s", ErrDuplicate, location.Code)
	}
	if err != nil {
		return Location{}, fmt.Errorf("catalog: create location: %w", err)
	}
	location.CreatedAt = now
	location.UpdatedAt = now
	return location, nil
}

func (r *repo) UpdateLocation(ctx context.Context, id int64, location Location) error {
	tag, err := r.db.Exec(ctx, `UPDATE locations SET code=$2, name=$3, kind=$4, address=$5, updated_at=$6 WHERE id=$1`,
		id, location.Code, location.Name, location.Kind, nullString(location.Address), time.Now().UTC())
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: code %s", ErrDuplicate, location.Code)
	}
	if err != nil {
		return fmt.Errorf("catalog: update location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: location %d", ErrNotFound, id)
	}
	return nil
}

func (r *repo) SetLocationActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE locations SET is_active=$2, updated_at=$3 WHERE id=$1`,
		id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("catalog: set location active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: location %d", ErrNotFound, id)
	}
	return nil
}

const supplierColumns = `id, code, name, COALESCE(contact_name,''), COALESCE(phone,''),
  COALESCE(email,''), COALESCE(address,''), is_active, created_at, updated_at`

func (r *repo) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	limit, offset := pageBounds(filters)
	active := activeArg(filters)

	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM suppliers
WHERE ($1 = '' OR code ILIKE '%%'||$1||'%%' OR name ILIKE '%%'||$1||'%%')
  AND ($2::boolean IS NULL OR is_active = $2)
ORDER BY name
LIMIT $3 OFFSET $4`, supplierColumns), filters.Search, active, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.ContactName, &s.Phone, &s.Email, &s.Address,
			&s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("catalog: scan supplier: %w", err)
		}
		suppliers = append(suppliers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = r.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers
WHERE ($1 = '' OR code ILIKE '%'||$1||'%' OR name ILIKE '%'||$1||'%')
  AND ($2::boolean IS NULL OR is_active = $2)`, filters.Search, active).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: count suppliers: %w", err)
	}
	return suppliers, total, nil
}

func (r *repo) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM suppliers WHERE id=$1`, supplierColumns), id).
		Scan(&s.ID, &s.Code, &s.Name, &s.ContactName, &s.Phone, &s.Email, &s.Address,
			&s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, fmt.Errorf("%w: supplier %d", ErrNotFound, id)
	}
	if err != nil {
		return Supplier{}, fmt.Errorf("catalog: get supplier: %w", err)
	}
	return s, nil
}

func (r *repo) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, `INSERT INTO suppliers (code, name, contact_name, phone, email, address, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8) RETURNING id`,
		supplier.Code, supplier.Name, nullString(supplier.ContactName), nullString(supplier.Phone),
		nullString(supplier.Email), nullString(supplier.Address), supplier.IsActive, now).Scan(&supplier.ID)
	if db.IsUniqueViolation(err) {
		return Supplier{}, fmt.Errorf("%w: code %s", ErrDuplicate, supplier.Code)
	}
	if err != nil {
		return Supplier{}, fmt.Errorf("catalog: create supplier: %w", err)
	}
	supplier.CreatedAt = now
	supplier.UpdatedAt = now
	return supplier, nil
}

func (r *repo) UpdateSupplier(ctx context.Context, id int64, supplier Supplier) error {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers
SET code=$2, name=$3, contact_name=$4, phone=$5, email=$6, address=$7, updated_at=$8
WHERE id=$1`,
		id, supplier.Code, supplier.Name, nullString(supplier.ContactName), nullString(supplier.Phone),
		nullString(supplier.Email), nullString(supplier.Address), time.Now().UTC())
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: code %s", ErrDuplicate, supplier.Code)
	}
	if err != nil {
		return fmt.Errorf("catalog: update supplier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: supplier %d", ErrNotFound, id)
	}
	return nil
}

func (r *repo) SetSupplierActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET is_active=$2, updated_at=$3 WHERE id=$1`,
		id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("catalog: set supplier active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: supplier %d", ErrNotFound, id)
	}
	return nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.SKU, &item.Name, &item.Description, &item.Category, &item.Unit,
		&item.CostPrice, &item.LastCostPrice, &item.SalePrice, &item.MinimumStock, &item.MaximumStock,
		&item.ReorderPoint, &item.ReorderQty,
		&item.TrackLots, &item.TrackExpiry, &item.CurrentStock, &item.IsActive, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: item", ErrNotFound)
	}
	if err != nil {
		return Item{}, fmt.Errorf("catalog: scan item: %w", err)
	}
	return item, nil
}

func pageBounds(filters ListFilters) (limit, offset int) {
	limit = filters.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if filters.Page > 1 {
		offset = (filters.Page - 1) * limit
	}
	return limit, offset
}

func activeArg(filters ListFilters) any {
	if filters.IsActive == nil {
		return nil
	}
	return *filters.IsActive
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
