package catalog

import (
	"context"
	"fmt"
	"strings"
)

// Service exposes catalog masterdata operations.
type Service struct {
	repo Repository
}

// NewService creates the catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Item operations.

func (s *Service) ListItems(ctx context.Context, filters ListFilters) ([]Item, int, error) {
	return s.repo.ListItems(ctx, filters)
}

func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	if id <= 0 {
		return Item{}, fmt.Errorf("%w: invalid item id", ErrValidation)
	}
	return s.repo.GetItem(ctx, id)
}

func (s *Service) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return Item{}, fmt.Errorf("%w: sku required", ErrValidation)
	}
	return s.repo.GetItemBySKU(ctx, sku)
}

func (s *Service) CreateItem(ctx context.Context, item Item) (Item, error) {
	if err := validateItem(&item); err != nil {
		return Item{}, err
	}
	item.IsActive = true
	return s.repo.CreateItem(ctx, item)
}

func (s *Service) UpdateItem(ctx context.Context, id int64, item Item) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid item id", ErrValidation)
	}
	if err := validateItem(&item); err != nil {
		return err
	}
	return s.repo.UpdateItem(ctx, id, item)
}

// DeactivateItem soft-deletes an item. Ledger history keeps referencing it.
func (s *Service) DeactivateItem(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid item id", ErrValidation)
	}
	return s.repo.SetItemActive(ctx, id, false)
}

func validateItem(item *Item) error {
	item.SKU = strings.TrimSpace(item.SKU)
	item.Name = strings.TrimSpace(item.Name)
	if item.SKU == "" || item.Name == "" {
		return fmt.Errorf("%w: sku and name required", ErrValidation)
	}
	if item.Unit == "" {
		item.Unit = "unit"
	}
	if item.CostPrice.IsNegative() || item.SalePrice.IsNegative() {
		return fmt.Errorf("%w: prices cannot be negative", ErrValidation)
	}
	if item.MinimumStock < 0 || item.MaximumStock < 0 {
		return fmt.Errorf("%w: stock thresholds cannot be negative", ErrValidation)
	}
	if item.MaximumStock > 0 && item.MaximumStock < item.MinimumStock {
		return fmt.Errorf("%w: maximum stock below minimum stock", ErrValidation)
	}
	if item.ReorderPoint < 0 || item.ReorderQty < 0 {
		return fmt.Errorf("%w: reorder settings cannot be negative", ErrValidation)
	}
	// expiry tracking implies lots, the expiry date lives on the lot
	if item.TrackExpiry {
		item.TrackLots = true
	}
	return nil
}

// Location operations.

func (s *Service) ListLocations(ctx context.Context, filters ListFilters) ([]Location, int, error) {
	return s.repo.ListLocations(ctx, filters)
}

func (s *Service) GetLocation(ctx context.Context, id int64) (Location, error) {
	if id <= 0 {
		return Location{}, fmt.Errorf("%w: invalid location id", ErrValidation)
	}
	return s.repo.GetLocation(ctx, id)
}

func (s *Service) CreateLocation(ctx context.Context, location Location) (Location, error) {
	if err := validateLocation(&location); err != nil {
		return Location{}, err
	}
	location.IsActive = true
	return s.repo.CreateLocation(ctx, location)
}

func (s *Service) UpdateLocation(ctx context.Context, id int64, location Location) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid location id", ErrValidation)
	}
	if err := validateLocation(&location); err != nil {
		return err
	}
	return s.repo.UpdateLocation(ctx, id, location)
}

func (s *Service) DeactivateLocation(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid location id", ErrValidation)
	}
	return s.repo.SetLocationActive(ctx, id, false)
}

func validateLocation(location *Location) error {
	location.Code = strings.TrimSpace(location.Code)
	location.Name = strings.TrimSpace(location.Name)
	if location.Code == "" || location.Name == "" {
		return fmt.Errorf("%w: code and name required", ErrValidation)
	}
	switch location.Kind {
	case "":
		location.Kind = LocationWarehouse
	case LocationWarehouse, LocationStore, LocationKitchen:
	default:
		return fmt.Errorf("%w: unknown location kind %q", ErrValidation, location.Kind)
	}
	return nil
}

// Supplier operations.

func (s *Service) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	return s.repo.ListSuppliers(ctx, filters)
}

func (s *Service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, fmt.Errorf("%w: invalid supplier id", ErrValidation)
	}
	return s.repo.GetSupplier(ctx, id)
}

func (s *Service) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	if err := validateSupplier(&supplier); err != nil {
		return Supplier{}, err
	}
	supplier.IsActive = true
	return s.repo.CreateSupplier(ctx, supplier)
}

func (s *Service) UpdateSupplier(ctx context.Context, id int64, supplier Supplier) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid supplier id", ErrValidation)
	}
	if err := validateSupplier(&supplier); err != nil {
		return err
	}
	return s.repo.UpdateSupplier(ctx, id, supplier)
}

func (s *Service) DeactivateSupplier(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid supplier id", ErrValidation)
	}
	return s.repo.SetSupplierActive(ctx, id, false)
}

func validateSupplier(supplier *Supplier) error {
	supplier.Code = strings.TrimSpace(supplier.Code)
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Code == "" || supplier.Name == "" {
		return fmt.Errorf("%w: code and name required", ErrValidation)
	}
	return nil
}
