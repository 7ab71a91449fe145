package stock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/larder-erp/larder-erp/internal/shared"
)

// CountLineInput is one physically counted item.
type CountLineInput struct {
	ItemID     int64
	CountedQty float64
}

// CountInput describes a physical stock count at one location.
type CountInput struct {
	LocationID  int64
	Lines       []CountLineInput
	Notes       string
	PerformedBy int64
}

// CountLineResult reports the reconciliation outcome for one line.
type CountLineResult struct {
	ItemID         int64
	SystemQty      float64
	CountedQty     float64
	Difference     float64
	MovementID     int64
	MovementNumber string
	Err            error
}

// CountResult aggregates per-line outcomes of a stock count.
type CountResult struct {
	LocationID int64
	CountedAt  time.Time
	Lines      []CountLineResult
}

// RecordCount reconciles physical counts against the aggregate. Lines are
// processed independently: each line runs in its own transaction and a failed
// line never aborts its siblings. Zero-difference lines only stamp the
// last-counted metadata.
func (s *Service) RecordCount(ctx context.Context, input CountInput) (CountResult, error) {
	if input.LocationID == 0 {
		return CountResult{}, fmt.Errorf("%w: location required", ErrNotFound)
	}
	if len(input.Lines) == 0 {
		return CountResult{}, fmt.Errorf("%w: at least one count line required", ErrValidation)
	}

	result := CountResult{LocationID: input.LocationID, CountedAt: time.Now().UTC()}
	for _, line := range input.Lines {
		result.Lines = append(result.Lines, s.countLine(ctx, input, line))
	}

	if s.audit != nil {
		adjusted := 0
		for _, line := range result.Lines {
			if line.MovementID != 0 {
				adjusted++
			}
		}
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.PerformedBy,
			Action:   "stock:COUNT",
			Entity:   "stock_count",
			EntityID: fmt.Sprintf("location:%d", input.LocationID),
			Meta:     map[string]any{"lines": len(result.Lines), "adjusted": adjusted},
		})
	}
	return result, nil
}

func (s *Service) countLine(ctx context.Context, input CountInput, line CountLineInput) CountLineResult {
	result := CountLineResult{ItemID: line.ItemID, CountedQty: line.CountedQty}
	if line.ItemID == 0 {
		result.Err = fmt.Errorf("%w: item required", ErrNotFound)
		return result
	}
	if line.CountedQty < 0 {
		result.Err = fmt.Errorf("%w: counted quantity cannot be negative", ErrValidation)
		return result
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetItem(ctx, line.ItemID); err != nil {
			return err
		}
		current, err := tx.GetStockForUpdate(ctx, line.ItemID, input.LocationID)
		if err != nil && !errors.Is(err, ErrStockNotFound) {
			return err
		}
		if errors.Is(err, ErrStockNotFound) {
			current = LocationStock{ItemID: line.ItemID, LocationID: input.LocationID}
		}

		result.SystemQty = current.CurrentStock
		result.Difference = line.CountedQty - current.CurrentStock

		if math.Abs(result.Difference) >= qtyEpsilon {
			posted, err := s.applyMovement(ctx, tx, movementParams{
				ItemID:      line.ItemID,
				LocationID:  input.LocationID,
				Quantity:    result.Difference,
				Type:        MovementCount,
				Reason:      "stock count reconciliation",
				Notes:       input.Notes,
				PerformedBy: input.PerformedBy,
			})
			if err != nil {
				return err
			}
			result.MovementID = posted.Movement.ID
			result.MovementNumber = posted.Movement.Number
		}

		return tx.TouchCountMetadata(ctx, line.ItemID, input.LocationID, input.PerformedBy)
	})
	if err != nil {
		result.Err = translateTxErr(err)
		return result
	}
	if result.MovementID != 0 && s.metrics != nil {
		s.metrics.MovementPosted(string(MovementCount))
	}
	return result
}
