package stock

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/larder-erp/larder-erp/internal/shared"
)

// TransferInput describes a location-to-location move.
type TransferInput struct {
	ItemID         int64
	SourceLocation int64
	DestLocation   int64
	Quantity       float64
	UnitCost       decimal.Decimal
	ReferenceID    string
	Notes          string
	PerformedBy    int64
}

// TransferResult carries both halves of the linked movement pair.
type TransferResult struct {
	Out PostResult
	In  PostResult
}

// Transfer moves stock between locations using a TRANSFER_OUT and a
// TRANSFER_IN inside one transaction. The inbound half references the
// outbound movement id.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if input.ItemID == 0 || input.SourceLocation == 0 || input.DestLocation == 0 {
		return TransferResult{}, fmt.Errorf("%w: item and locations required", ErrNotFound)
	}
	if input.SourceLocation == input.DestLocation {
		return TransferResult{}, ErrSameLocation
	}
	if input.Quantity <= 0 {
		return TransferResult{}, ErrInvalidQuantity
	}

	outParams := movementParams{
		ItemID:        input.ItemID,
		LocationID:    input.SourceLocation,
		Quantity:      -input.Quantity,
		Type:          MovementTransferOut,
		UnitCost:      input.UnitCost,
		ReferenceID:   input.ReferenceID,
		DestinationID: input.DestLocation,
		Notes:         input.Notes,
		PerformedBy:   input.PerformedBy,
	}
	release, err := s.reserveIdempotency(ctx, outParams)
	if err != nil {
		return TransferResult{}, err
	}

	var result TransferResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Lock both aggregate rows in location-id order so two opposing
		// transfers cannot deadlock.
		if input.DestLocation < input.SourceLocation {
			if _, err := tx.GetStockForUpdate(ctx, input.ItemID, input.DestLocation); err != nil && !errors.Is(err, ErrStockNotFound) {
				return err
			}
		}

		out, err := s.applyMovement(ctx, tx, outParams)
		if err != nil {
			return err
		}

		in, err := s.applyMovement(ctx, tx, movementParams{
			ItemID:        input.ItemID,
			LocationID:    input.DestLocation,
			Quantity:      input.Quantity,
			Type:          MovementTransferIn,
			UnitCost:      input.UnitCost,
			ReferenceType: "STOCK_MOVEMENT",
			ReferenceID:   strconv.FormatInt(out.Movement.ID, 10),
			Notes:         input.Notes,
			PerformedBy:   input.PerformedBy,
		})
		if err != nil {
			return err
		}

		result = TransferResult{Out: out, In: in}
		return nil
	})
	if err != nil {
		release(ctx)
		return TransferResult{}, translateTxErr(err)
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.PerformedBy,
			Action:   "stock:TRANSFER",
			Entity:   "stock_movement",
			EntityID: result.Out.Movement.Number,
			Meta: map[string]any{
				"item_id": input.ItemID,
				"from":    input.SourceLocation,
				"to":      input.DestLocation,
				"qty":     input.Quantity,
			},
		})
	}
	if s.metrics != nil {
		s.metrics.MovementPosted(string(MovementTransferOut))
		s.metrics.MovementPosted(string(MovementTransferIn))
	}
	return result, nil
}
