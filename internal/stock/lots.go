package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/larder-erp/larder-erp/internal/shared"
)

// LotInput describes a batch to register.
type LotInput struct {
	ItemID          int64
	LocationID      int64
	Quantity        float64
	CostPrice       decimal.Decimal
	Number          string
	ReceivedDate    time.Time
	ExpiryDate      time.Time
	SupplierID      int64
	PurchaseOrderID int64
	PerformedBy     int64
}

// CreateLot registers a batch for a lot- or expiry-tracked item. The lot
// starts AVAILABLE with its full quantity remaining. CreateLot does not move
// stock; receipts that should also post a PURCHASE movement go through Receive.
func (s *Service) CreateLot(ctx context.Context, input LotInput) (Lot, error) {
	if input.ItemID == 0 || input.LocationID == 0 {
		return Lot{}, fmt.Errorf("%w: item and location required", ErrNotFound)
	}
	if input.Quantity <= 0 {
		return Lot{}, ErrInvalidQuantity
	}
	if input.CostPrice.IsNegative() {
		return Lot{}, fmt.Errorf("%w: cost price cannot be negative", ErrValidation)
	}

	var created Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItem(ctx, input.ItemID)
		if err != nil {
			return err
		}
		if !item.TrackLots && !item.TrackExpiry {
			return fmt.Errorf("%w: item %s does not track lots", ErrValidation, item.SKU)
		}
		if ok, err := tx.LocationExists(ctx, input.LocationID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: location %d", ErrNotFound, input.LocationID)
		}

		created = buildLot(input)
		created.ID, err = tx.InsertLot(ctx, created)
		return err
	})
	if err != nil {
		return Lot{}, translateTxErr(err)
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.PerformedBy,
			Action:   "stock:LOT_CREATE",
			Entity:   "inventory_lot",
			EntityID: created.Number,
			Meta:     map[string]any{"item_id": created.ItemID, "location_id": created.LocationID, "qty": created.Quantity},
		})
	}
	return created, nil
}

func buildLot(input LotInput) Lot {
	received := input.ReceivedDate
	if received.IsZero() {
		received = time.Now().UTC()
	}
	number := input.Number
	if number == "" {
		number = newLotNumber(received)
	}
	return Lot{
		Number:          number,
		ItemID:          input.ItemID,
		LocationID:      input.LocationID,
		Quantity:        input.Quantity,
		RemainingQty:    input.Quantity,
		CostPrice:       input.CostPrice,
		ReceivedDate:    received,
		ExpiryDate:      input.ExpiryDate,
		SupplierID:      input.SupplierID,
		PurchaseOrderID: input.PurchaseOrderID,
		Status:          LotStatusAvailable,
	}
}

// ExpiryReport buckets soon-to-expire lots by urgency.
type ExpiryReport struct {
	Critical []ExpiringLot
	Warning  []ExpiringLot
	Upcoming []ExpiringLot
}

// Total returns the number of lots across all buckets.
func (r ExpiryReport) Total() int {
	return len(r.Critical) + len(r.Warning) + len(r.Upcoming)
}

// ListExpiring returns available lots whose expiry falls within the window
// [now, now+withinDays], bucketed by urgency. Zero locationID means all
// locations.
func (s *Service) ListExpiring(ctx context.Context, withinDays int, locationID int64) (ExpiryReport, error) {
	if withinDays <= 0 {
		withinDays = 7
	}
	now := time.Now().UTC()
	horizon := now.AddDate(0, 0, withinDays)

	lots, err := s.repo.ListLotsExpiringBy(ctx, horizon, locationID)
	if err != nil {
		return ExpiryReport{}, err
	}

	var report ExpiryReport
	for _, lot := range lots {
		if lot.ExpiryDate.IsZero() || lot.ExpiryDate.Before(now.Truncate(24*time.Hour)) {
			continue
		}
		daysLeft := int(lot.ExpiryDate.Sub(now).Hours() / 24)
		entry := ExpiringLot{Lot: lot, DaysLeft: daysLeft, Urgency: urgencyFor(daysLeft)}
		switch entry.Urgency {
		case UrgencyCritical:
			report.Critical = append(report.Critical, entry)
		case UrgencyWarning:
			report.Warning = append(report.Warning, entry)
		default:
			report.Upcoming = append(report.Upcoming, entry)
		}
	}
	return report, nil
}

func newLotNumber(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:4])
	return fmt.Sprintf("LOT-%s-%s", now.Format("20060102"), suffix)
}
