package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Item represents a stocked inventory item. CurrentStock is the cached global
// total maintained by the ledger and is read-only here.
type Item struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Category      string          `json:"category,omitempty"`
	Unit          string          `json:"unit"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	LastCostPrice decimal.Decimal `json:"last_cost_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	MinimumStock  float64         `json:"minimum_stock"`
	MaximumStock  float64         `json:"maximum_stock"`
	ReorderPoint  float64         `json:"reorder_point"`
	ReorderQty    float64         `json:"reorder_qty"`
	TrackLots     bool            `json:"track_lots"`
	TrackExpiry   bool            `json:"track_expiry"`
	CurrentStock  float64         `json:"current_stock"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Location represents a stock-holding site.
type Location struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Address   string    `json:"address,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location kinds.
const (
	LocationWarehouse = "WAREHOUSE"
	LocationStore     = "STORE"
	LocationKitchen   = "KITCHEN"
)

// Supplier represents a goods supplier.
type Supplier struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	ContactName string    `json:"contact_name,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	Address     string    `json:"address,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListFilters represents standard list filters.
type ListFilters struct {
	Page     int
	Limit    int
	Search   string
	Category string
	IsActive *bool
}

// Repository is the persistence interface for catalog masterdata.
type Repository interface {
	ListItems(ctx context.Context, filters ListFilters) ([]Item, int, error)
	GetItem(ctx context.Context, id int64) (Item, error)
	GetItemBySKU(ctx context.Context, sku string) (Item, error)
	CreateItem(ctx context.Context, item Item) (Item, error)
	UpdateItem(ctx context.Context, id int64, item Item) error
	SetItemActive(ctx context.Context, id int64, active bool) error

	ListLocations(ctx context.Context, filters ListFilters) ([]Location, int, error)
	GetLocation(ctx context.Context, id int64) (Location, error)
	CreateLocation(ctx context.Context, location Location) (Location, error)
	UpdateLocation(ctx context.Context, id int64, location Location) error
	SetLocationActive(ctx context.Context, id int64, active bool) error

	ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error)
	UpdateSupplier(ctx context.Context, id int64, supplier Supplier) error
	SetSupplierActive(ctx context.Context, id int64, active bool) error
}

var (
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("catalog: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("catalog: invalid input")
	// ErrDuplicate indicates a SKU or code collision.
	ErrDuplicate = errors.New("catalog: duplicate code")
)
