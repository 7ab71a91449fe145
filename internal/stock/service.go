package stock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/larder-erp/larder-erp/internal/platform/db"
	"github.com/larder-erp/larder-erp/internal/shared"
)

// qtyEpsilon absorbs float noise when comparing quantities.
const qtyEpsilon = 1e-4

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	GetLocationStock(ctx context.Context, itemID, locationID int64) (LocationStock, error)
	ListLotsExpiringBy(ctx context.Context, horizon time.Time, locationID int64) ([]Lot, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts posted movements for observability.
type MetricsPort interface {
	MovementPosted(movementType string)
}

// Service coordinates ledger operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	metrics     MetricsPort
	allowNeg    bool
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, metrics MetricsPort, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, metrics: metrics, allowNeg: cfg.AllowNegativeStock}
}

// MovementInput describes a single ledger mutation.
type MovementInput struct {
	ItemID        int64
	LocationID    int64
	Quantity      float64
	Type          MovementType
	UnitCost      decimal.Decimal
	ReferenceType string
	ReferenceID   string
	Reason        string
	Notes         string
	PerformedBy   int64
}

// PostResult is returned by every mutating ledger operation.
type PostResult struct {
	Movement    Movement
	Stock       LocationStock
	ItemTotal   float64
	Allocations []LotAllocation
}

// RecordMovement appends a movement of any non-transfer type. Transfers go
// through Transfer so both halves share one transaction.
func (s *Service) RecordMovement(ctx context.Context, input MovementInput) (PostResult, error) {
	if !input.Type.Valid() {
		return PostResult{}, fmt.Errorf("%w: unknown movement type %q", ErrInvalidQuantity, input.Type)
	}
	if input.Type == MovementTransferOut || input.Type == MovementTransferIn {
		return PostResult{}, fmt.Errorf("%w: transfer movements must be posted via Transfer", ErrValidation)
	}
	return s.post(ctx, movementParams{
		ItemID:        input.ItemID,
		LocationID:    input.LocationID,
		Quantity:      input.Quantity,
		Type:          input.Type,
		UnitCost:      input.UnitCost,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		Reason:        input.Reason,
		Notes:         input.Notes,
		PerformedBy:   input.PerformedBy,
	})
}

// Adjust posts a manual adjustment, positive or negative.
func (s *Service) Adjust(ctx context.Context, input MovementInput) (PostResult, error) {
	input.Type = MovementAdjustment
	return s.RecordMovement(ctx, input)
}

// movementParams is the internal shape fed to applyMovement.
type movementParams struct {
	ItemID        int64
	LocationID    int64
	Quantity      float64
	Type          MovementType
	UnitCost      decimal.Decimal
	ReferenceType string
	ReferenceID   string
	DestinationID int64
	LotID         int64
	Reason        string
	Notes         string
	PerformedBy   int64
}

// post wraps applyMovement in its own transaction plus idempotency and audit.
func (s *Service) post(ctx context.Context, params movementParams) (PostResult, error) {
	release, err := s.reserveIdempotency(ctx, params)
	if err != nil {
		return PostResult{}, err
	}

	var result PostResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.applyMovement(ctx, tx, params)
		return err
	})
	if err != nil {
		release(ctx)
		return PostResult{}, translateTxErr(err)
	}
	s.recordAudit(ctx, params, result)
	if s.metrics != nil {
		s.metrics.MovementPosted(string(params.Type))
	}
	return result, nil
}

// applyMovement runs the read-lock, compute, write sequence inside the
// caller's transaction. The location_stocks row is locked FOR UPDATE for the
// whole sequence, so concurrent writers to the same (item, location) pair
// serialize here.
func (s *Service) applyMovement(ctx context.Context, tx TxRepository, params movementParams) (PostResult, error) {
	if math.Abs(params.Quantity) < qtyEpsilon {
		return PostResult{}, ErrInvalidQuantity
	}
	if params.ItemID == 0 || params.LocationID == 0 {
		return PostResult{}, fmt.Errorf("%w: item and location required", ErrNotFound)
	}

	item, err := tx.GetItem(ctx, params.ItemID)
	if err != nil {
		return PostResult{}, err
	}
	if ok, err := tx.LocationExists(ctx, params.LocationID); err != nil {
		return PostResult{}, err
	} else if !ok {
		return PostResult{}, fmt.Errorf("%w: location %d", ErrNotFound, params.LocationID)
	}

	current, err := tx.GetStockForUpdate(ctx, params.ItemID, params.LocationID)
	if err != nil && !errors.Is(err, ErrStockNotFound) {
		return PostResult{}, err
	}
	if errors.Is(err, ErrStockNotFound) {
		current = LocationStock{ItemID: params.ItemID, LocationID: params.LocationID}
	}

	newStock := current.CurrentStock + params.Quantity
	if math.Abs(newStock) < qtyEpsilon {
		newStock = 0
	}
	if newStock < 0 && params.Type.depleting() && !s.allowNeg {
		return PostResult{}, fmt.Errorf("%w: %.2f available at location %d, need %.2f",
			ErrInsufficientStock, current.CurrentStock, params.LocationID, -params.Quantity)
	}

	var allocations []LotAllocation
	lotID := params.LotID
	if params.Quantity < 0 && params.Type.consuming() && item.TrackLots {
		allocations, err = s.consumeLots(ctx, tx, item.ID, params.LocationID, -params.Quantity)
		if err != nil {
			return PostResult{}, err
		}
		if lotID == 0 && len(allocations) == 1 {
			lotID = allocations[0].LotID
		}
	}

	now := time.Now().UTC()
	movement := Movement{
		Number:                newMovementNumber(now),
		ItemID:                params.ItemID,
		LocationID:            params.LocationID,
		LotID:                 lotID,
		Type:                  params.Type,
		Quantity:              params.Quantity,
		PreviousStock:         current.CurrentStock,
		NewStock:              newStock,
		UnitCost:              params.UnitCost,
		ReferenceType:         params.ReferenceType,
		ReferenceID:           params.ReferenceID,
		DestinationLocationID: params.DestinationID,
		Reason:                params.Reason,
		Notes:                 params.Notes,
		PerformedBy:           params.PerformedBy,
		CreatedAt:             now,
	}
	if !params.UnitCost.IsZero() {
		movement.TotalCost = params.UnitCost.Mul(decimal.NewFromFloat(math.Abs(params.Quantity)))
	}

	movement.ID, err = tx.InsertMovement(ctx, movement)
	if err != nil {
		return PostResult{}, err
	}

	current.CurrentStock = newStock
	current.UpdatedAt = now
	if err := tx.UpsertLocationStock(ctx, current); err != nil {
		return PostResult{}, err
	}

	total, err := tx.RecomputeItemTotal(ctx, params.ItemID)
	if err != nil {
		return PostResult{}, err
	}

	return PostResult{Movement: movement, Stock: current, ItemTotal: total, Allocations: allocations}, nil
}

// consumeLots debits available lots soonest-expiry-first until qty is covered.
// Stock predating lot tracking may leave the lots short of the aggregate; the
// shortfall is consumed untracked rather than rejected.
func (s *Service) consumeLots(ctx context.Context, tx TxRepository, itemID, locationID int64, qty float64) ([]LotAllocation, error) {
	lots, err := tx.GetAvailableLotsForUpdate(ctx, itemID, locationID)
	if err != nil {
		return nil, err
	}
	var allocations []LotAllocation
	remaining := qty
	for _, lot := range lots {
		if remaining < qtyEpsilon {
			break
		}
		take := math.Min(lot.RemainingQty, remaining)
		if take < qtyEpsilon {
			continue
		}
		left := lot.RemainingQty - take
		status := LotStatusAvailable
		if left < qtyEpsilon {
			left = 0
			status = LotStatusDepleted
		}
		if err := tx.UpdateLotRemaining(ctx, lot.ID, left, status); err != nil {
			return nil, err
		}
		allocations = append(allocations, LotAllocation{LotID: lot.ID, LotNumber: lot.Number, Quantity: take})
		remaining -= take
	}
	return allocations, nil
}

// CurrentStock returns the aggregate row for one (item, location) pair.
func (s *Service) CurrentStock(ctx context.Context, itemID, locationID int64) (LocationStock, error) {
	if itemID == 0 || locationID == 0 {
		return LocationStock{}, fmt.Errorf("%w: item and location required", ErrNotFound)
	}
	return s.repo.GetLocationStock(ctx, itemID, locationID)
}

// ListMovements lists ledger history for an item at a location.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ItemID == 0 {
		return nil, fmt.Errorf("%w: item required", ErrNotFound)
	}
	return s.repo.ListMovements(ctx, filter)
}

// reserveIdempotency claims the movement's reference key when one is present.
// The returned release func undoes the claim after a failed transaction.
func (s *Service) reserveIdempotency(ctx context.Context, params movementParams) (func(context.Context), error) {
	noop := func(context.Context) {}
	if s.idempotency == nil || params.ReferenceID == "" {
		return noop, nil
	}
	if _, err := uuid.Parse(params.ReferenceID); err != nil {
		return noop, fmt.Errorf("stock: invalid reference id: %w", err)
	}
	key := fmt.Sprintf("%s:%s:%d:%d", params.Type, params.ReferenceID, params.LocationID, params.ItemID)
	if err := s.idempotency.CheckAndInsert(ctx, key, "stock"); err != nil {
		return noop, err
	}
	return func(ctx context.Context) {
		_ = s.idempotency.Delete(ctx, key)
	}, nil
}

func (s *Service) recordAudit(ctx context.Context, params movementParams, result PostResult) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  params.PerformedBy,
		Action:   fmt.Sprintf("stock:%s", params.Type),
		Entity:   "stock_movement",
		EntityID: result.Movement.Number,
		Meta: map[string]any{
			"item_id":     params.ItemID,
			"location_id": params.LocationID,
			"qty":         params.Quantity,
			"new_stock":   result.Movement.NewStock,
		},
	})
}

// translateTxErr converts platform conflicts into the domain error.
func translateTxErr(err error) error {
	if errors.Is(err, db.ErrTxConflict) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// newMovementNumber builds a time-prefixed advisory identifier. The column
// carries a UNIQUE constraint, so the random suffix is wide enough that a
// collision within one timestamp second is not a practical concern.
func newMovementNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	return fmt.Sprintf("MOV-%s-%s", now.Format("20060102150405"), suffix)
}
