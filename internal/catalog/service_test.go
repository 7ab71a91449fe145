package catalog

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	items     map[int64]Item
	locations map[int64]Location
	suppliers map[int64]Supplier
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		items:     make(map[int64]Item),
		locations: make(map[int64]Location),
		suppliers: make(map[int64]Supplier),
	}
}

func (r *memoryRepo) ListItems(ctx context.Context, filters ListFilters) ([]Item, int, error) {
	var result []Item
	for _, item := range r.items {
		if filters.Search != "" && !strings.Contains(item.Name, filters.Search) && !strings.Contains(item.SKU, filters.Search) {
			continue
		}
		if filters.IsActive != nil && item.IsActive != *filters.IsActive {
			continue
		}
		result = append(result, item)
	}
	return result, len(result), nil
}

func (r *memoryRepo) GetItem(ctx context.Context, id int64) (Item, error) {
	if item, ok := r.items[id]; ok {
		return item, nil
	}
	return Item{}, fmt.Errorf("%w: item", ErrNotFound)
}

func (r *memoryRepo) GetItemBySKU(ctx context.Context, sku string) (Item, error) {
	for _, item := range r.items {
		if item.SKU == sku {
			return item, nil
		}
	}
	return Item{}, fmt.Errorf("%w: item", ErrNotFound)
}

func (r *memoryRepo) CreateItem(ctx context.Context, item Item) (Item, error) {
	for _, existing := range r.items {
		if existing.SKU == item.SKU {
			return Item{}, fmt.Errorf("%w: sku %s", ErrDuplicate, item.SKU)
		}
	}
	r.nextID++
	item.ID = r.nextID
	item.LastCostPrice = item.CostPrice
	item.CreatedAt = time.Now().UTC()
	item.UpdatedAt = item.CreatedAt
	r.items[item.ID] = item
	return item, nil
}

func (r *memoryRepo) UpdateItem(ctx context.Context, id int64, item Item) error {
	existing, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	item.ID = id
	item.IsActive = existing.IsActive
	r.items[id] = item
	return nil
}

func (r *memoryRepo) SetItemActive(ctx context.Context, id int64, active bool) error {
	item, ok := r.items[id]
	if !ok {
		return fmt.Errorf("%w: item %d", ErrNotFound, id)
	}
	item.IsActive = active
	r.items[id] = item
	return nil
}

func (r *memoryRepo) ListLocations(ctx context.Context, filters ListFilters) ([]Location, int, error) {
	var result []Location
	for _, l := range r.locations {
		result = append(result, l)
	}
	return result, len(result), nil
}

func (r *memoryRepo) GetLocation(ctx context.Context, id int64) (Location, error) {
	if l, ok := r.locations[id]; ok {
		return l, nil
	}
	return Location{}, fmt.Errorf("%w: location %d", ErrNotFound, id)
}

func (r *memoryRepo) CreateLocation(ctx context.Context, location Location) (Location, error) {
	r.nextID++
	location.ID = r.nextID
	r.locations[location.ID] = location
	return location, nil
}

func (r *memoryRepo) UpdateLocation(ctx context.Context, id int64, location Location) error {
	if _, ok := r.locations[id]; !ok {
		return fmt.Errorf("%w: location %d", ErrNotFound, id)
	}
	location.ID = id
	r.locations[id] = location
	return nil
}

func (r *memoryRepo) SetLocationActive(ctx context.Context, id int64, active bool) error {
	l, ok := r.locations[id]
	if !ok {
		return fmt.Errorf("%w: location %d", ErrNotFound, id)
	}
	l.IsActive = active
	r.locations[id] = l
	return nil
}

func (r *memoryRepo) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	var result []Supplier
	for _, s := range r.suppliers {
		result = append(result, s)
	}
	return result, len(result), nil
}

func (r *memoryRepo) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	if s, ok := r.suppliers[id]; ok {
		return s, nil
	}
	return Supplier{}, fmt.Errorf("%w: supplier %d", ErrNotFound, id)
}

func (r *memoryRepo) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	r.nextID++
	supplier.ID = r.nextID
	r.suppliers[supplier.ID] = supplier
	return supplier, nil
}

func (r *memoryRepo) UpdateSupplier(ctx context.Context, id int64, supplier Supplier) error {
	if _, ok := r.suppliers[id]; !ok {
		return fmt.Errorf("%w: supplier %d", ErrNotFound, id)
	}
	supplier.ID = id
	r.suppliers[id] = supplier
	return nil
}

func (r *memoryRepo) SetSupplierActive(ctx context.Context, id int64, active bool) error {
	s, ok := r.suppliers[id]
	if !ok {
		return fmt.Errorf("%w: supplier %d", ErrNotFound, id)
	}
	s.IsActive = active
	r.suppliers[id] = s
	return nil
}

func TestCreateItemValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, Item{Name: "no sku"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateItem(ctx, Item{SKU: "X-1", Name: "Neg", CostPrice: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateItem(ctx, Item{SKU: "X-2", Name: "Neg Min", MinimumStock: -1})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateItem(ctx, Item{SKU: "X-3", Name: "Max Below Min", MinimumStock: 10, MaximumStock: 5})
	require.ErrorIs(t, err, ErrValidation)

	item, err := svc.CreateItem(ctx, Item{SKU: "  X-1 ", Name: " Flour "})
	require.NoError(t, err)
	require.Equal(t, "X-1", item.SKU)
	require.Equal(t, "Flour", item.Name)
	require.Equal(t, "unit", item.Unit)
	require.True(t, item.IsActive)
}

func TestCreateItemExpiryImpliesLots(t *testing.T) {
	svc := NewService(newMemoryRepo())

	item, err := svc.CreateItem(context.Background(), Item{SKU: "MLK-1", Name: "Milk", TrackExpiry: true})
	require.NoError(t, err)
	require.True(t, item.TrackLots)
	require.True(t, item.TrackExpiry)
}

func TestCreateItemDuplicateSKU(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, Item{SKU: "X-1", Name: "First"})
	require.NoError(t, err)
	_, err = svc.CreateItem(ctx, Item{SKU: "X-1", Name: "Second"})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestDeactivateItemKeepsRecord(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, Item{SKU: "X-1", Name: "Flour"})
	require.NoError(t, err)
	require.NoError(t, svc.DeactivateItem(ctx, item.ID))

	got, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestCreateLocationKinds(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	location, err := svc.CreateLocation(ctx, Location{Code: "WH-1", Name: "Main"})
	require.NoError(t, err)
	require.Equal(t, LocationWarehouse, location.Kind)

	_, err = svc.CreateLocation(ctx, Location{Code: "Z-1", Name: "Bad", Kind: "SPACESHIP"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSupplierValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateSupplier(ctx, Supplier{Name: "missing code"})
	require.ErrorIs(t, err, ErrValidation)

	supplier, err := svc.CreateSupplier(ctx, Supplier{Code: "SUP-1", Name: "Acme Foods"})
	require.NoError(t, err)
	require.True(t, supplier.IsActive)
}
