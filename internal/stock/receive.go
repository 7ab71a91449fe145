package stock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptInput describes goods arriving at a location, usually against a
// purchase-order line.
type ReceiptInput struct {
	ItemID          int64
	LocationID      int64
	Quantity        float64
	UnitCost        decimal.Decimal
	LotNumber       string
	ExpiryDate      time.Time
	SupplierID      int64
	PurchaseOrderID int64
	OrderLineID     int64
	ReferenceID     string
	Notes           string
	PerformedBy     int64
}

// ReceiptResult carries the posted movement plus the lot created for tracked
// items.
type ReceiptResult struct {
	PostResult
	Lot *Lot
}

// Receive posts a PURCHASE movement for arrived goods. Everything happens in
// one transaction: the order-line over-receipt guard, the ledger write, the
// aggregate update, the lot creation for tracked items and the last-in cost
// update. A failure rolls the whole receipt back.
func (s *Service) Receive(ctx context.Context, input ReceiptInput) (ReceiptResult, error) {
	if input.Quantity <= 0 {
		return ReceiptResult{}, ErrInvalidQuantity
	}
	if input.UnitCost.IsNegative() {
		return ReceiptResult{}, fmt.Errorf("%w: unit cost cannot be negative", ErrValidation)
	}

	params := movementParams{
		ItemID:        input.ItemID,
		LocationID:    input.LocationID,
		Quantity:      input.Quantity,
		Type:          MovementPurchase,
		UnitCost:      input.UnitCost,
		ReferenceType: "PURCHASE_ORDER",
		ReferenceID:   input.ReferenceID,
		Notes:         input.Notes,
		PerformedBy:   input.PerformedBy,
	}
	release, err := s.reserveIdempotency(ctx, params)
	if err != nil {
		return ReceiptResult{}, err
	}
	if params.ReferenceID == "" && input.PurchaseOrderID != 0 {
		params.ReferenceID = strconv.FormatInt(input.PurchaseOrderID, 10)
	}

	var result ReceiptResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.OrderLineID != 0 {
			line, err := tx.GetOrderLineForUpdate(ctx, input.OrderLineID)
			if err != nil {
				return err
			}
			if line.ReceivedQty+input.Quantity > line.Quantity+qtyEpsilon {
				return fmt.Errorf("%w: line %d has %.2f of %.2f received",
					ErrOverReceipt, line.ID, line.ReceivedQty, line.Quantity)
			}
			if err := tx.SetOrderLineReceived(ctx, line.ID, line.ReceivedQty+input.Quantity); err != nil {
				return err
			}
		}

		item, err := tx.GetItem(ctx, input.ItemID)
		if err != nil {
			return err
		}

		if item.TrackLots || item.TrackExpiry {
			lot := buildLot(LotInput{
				ItemID:          input.ItemID,
				LocationID:      input.LocationID,
				Quantity:        input.Quantity,
				CostPrice:       input.UnitCost,
				Number:          input.LotNumber,
				ExpiryDate:      input.ExpiryDate,
				SupplierID:      input.SupplierID,
				PurchaseOrderID: input.PurchaseOrderID,
			})
			lot.ID, err = tx.InsertLot(ctx, lot)
			if err != nil {
				return err
			}
			params.LotID = lot.ID
			result.Lot = &lot
		}

		posted, err := s.applyMovement(ctx, tx, params)
		if err != nil {
			return err
		}
		result.PostResult = posted

		if !input.UnitCost.IsZero() {
			if err := tx.UpdateItemCost(ctx, input.ItemID, input.UnitCost); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		release(ctx)
		return ReceiptResult{}, translateTxErr(err)
	}

	s.recordAudit(ctx, params, result.PostResult)
	if s.metrics != nil {
		s.metrics.MovementPosted(string(MovementPurchase))
	}
	return result, nil
}

// OrderLineState is the fulfillment projection of a purchase-order line used
// by the over-receipt guard.
type OrderLineState struct {
	ID          int64
	Quantity    float64
	ReceivedQty float64
}
