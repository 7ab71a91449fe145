package alerts

import (
	"context"
	"fmt"
	"strconv"

	"github.com/larder-erp/larder-erp/internal/stock"
)

// Severity classifies how urgent a low-stock alert is.
type Severity string

const (
	SeverityOut Severity = "out_of_stock"
	SeverityLow Severity = "low_stock"
)

// LowStockAlert flags an item at or below its minimum stock level.
// LocationID is zero when the alert compares the global total.
type LowStockAlert struct {
	ItemID       int64    `json:"item_id"`
	LocationID   int64    `json:"location_id,omitempty"`
	SKU          string   `json:"sku"`
	Name         string   `json:"name"`
	Unit         string   `json:"unit"`
	CurrentStock float64  `json:"current_stock"`
	MinimumStock float64  `json:"minimum_stock"`
	ReorderQty   float64  `json:"reorder_qty"`
	Deficit      float64  `json:"deficit"`
	Severity     Severity `json:"severity"`
}

// RepositoryPort reads alert candidates. The at-or-below comparison happens in
// the store against the cached stock balances, not in Go.
type RepositoryPort interface {
	ListLowStock(ctx context.Context, locationID int64) ([]LowStockAlert, error)
}

// ExpiryPort delegates expiring-lot reporting to the ledger.
type ExpiryPort interface {
	ListExpiring(ctx context.Context, withinDays int, locationID int64) (stock.ExpiryReport, error)
}

// Service produces low-stock and expiry alerts.
type Service struct {
	repo   RepositoryPort
	expiry ExpiryPort
	cache  *Cache
}

// NewService constructs the alert service.
func NewService(repo RepositoryPort, expiry ExpiryPort, cache *Cache) *Service {
	return &Service{repo: repo, expiry: expiry, cache: cache}
}

// LowStock returns items whose stock sits at or below the minimum level. A
// zero locationID checks the cached global total, otherwise the per-location
// balance. Results are cached behind the Redis version key.
func (s *Service) LowStock(ctx context.Context, locationID int64) ([]LowStockAlert, error) {
	key, err := s.cache.BuildKey(ctx, "alerts", "low-stock", strconv.FormatInt(locationID, 10))
	if err != nil {
		return nil, err
	}
	var result []LowStockAlert
	err = s.cache.FetchJSON(ctx, key, &result, func(ctx context.Context) (any, error) {
		alerts, err := s.repo.ListLowStock(ctx, locationID)
		if err != nil {
			return nil, err
		}
		for i := range alerts {
			alerts[i].Deficit = alerts[i].MinimumStock - alerts[i].CurrentStock
			if alerts[i].CurrentStock <= 0 {
				alerts[i].Severity = SeverityOut
			} else {
				alerts[i].Severity = SeverityLow
			}
		}
		return alerts, nil
	})
	if err != nil {
		return nil, fmt.Errorf("alerts: low stock: %w", err)
	}
	return result, nil
}

// Expiring reports lots expiring within the window, bucketed by urgency.
func (s *Service) Expiring(ctx context.Context, withinDays int, locationID int64) (stock.ExpiryReport, error) {
	return s.expiry.ListExpiring(ctx, withinDays, locationID)
}

// Invalidate bumps the cache version so the next read recomputes.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// Warm recomputes the global low-stock alerts into a fresh cache generation.
// The background scheduler calls this so interactive reads stay warm.
func (s *Service) Warm(ctx context.Context) (int, error) {
	if err := s.Invalidate(ctx); err != nil {
		return 0, err
	}
	alerts, err := s.LowStock(ctx, 0)
	if err != nil {
		return 0, err
	}
	return len(alerts), nil
}
