package stock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/larder-erp/larder-erp/internal/platform/db"
)

type memoryRepo struct {
	items      map[int64]ItemInfo
	locations  map[int64]bool
	stocks     map[string]LocationStock
	movements  []Movement
	lots       map[int64]Lot
	orderLines map[int64]OrderLineState
	costs      map[int64]decimal.Decimal
	expiring   []Lot

	nextMovementID int64
	nextLotID      int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		items:      make(map[int64]ItemInfo),
		locations:  make(map[int64]bool),
		stocks:     make(map[string]LocationStock),
		lots:       make(map[int64]Lot),
		orderLines: make(map[int64]OrderLineState),
		costs:      make(map[int64]decimal.Decimal),
	}
}

func stockKey(itemID, locationID int64) string {
	return fmt.Sprintf("%d:%d", locationID, itemID)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var result []Movement
	for _, m := range r.movements {
		if m.ItemID != filter.ItemID {
			continue
		}
		if filter.LocationID != 0 && m.LocationID != filter.LocationID {
			continue
		}
		result = append(result, m)
	}
	return result, nil
}

func (r *memoryRepo) GetLocationStock(ctx context.Context, itemID, locationID int64) (LocationStock, error) {
	if ls, ok := r.stocks[stockKey(itemID, locationID)]; ok {
		return ls, nil
	}
	return LocationStock{ItemID: itemID, LocationID: locationID}, ErrStockNotFound
}

func (r *memoryRepo) ListLotsExpiringBy(ctx context.Context, horizon time.Time, locationID int64) ([]Lot, error) {
	var result []Lot
	for _, lot := range r.expiring {
		if locationID != 0 && lot.LocationID != locationID {
			continue
		}
		if lot.ExpiryDate.After(horizon) {
			continue
		}
		result = append(result, lot)
	}
	return result, nil
}

func (tx *memoryTx) GetItem(ctx context.Context, itemID int64) (ItemInfo, error) {
	item, ok := tx.repo.items[itemID]
	if !ok {
		return ItemInfo{}, fmt.Errorf("%w: item %d", ErrNotFound, itemID)
	}
	return item, nil
}

func (tx *memoryTx) LocationExists(ctx context.Context, locationID int64) (bool, error) {
	return tx.repo.locations[locationID], nil
}

func (tx *memoryTx) GetStockForUpdate(ctx context.Context, itemID, locationID int64) (LocationStock, error) {
	return tx.repo.GetLocationStock(ctx, itemID, locationID)
}

func (tx *memoryTx) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	tx.repo.nextMovementID++
	movement.ID = tx.repo.nextMovementID
	tx.repo.movements = append(tx.repo.movements, movement)
	return movement.ID, nil
}

func (tx *memoryTx) UpsertLocationStock(ctx context.Context, ls LocationStock) error {
	tx.repo.stocks[stockKey(ls.ItemID, ls.LocationID)] = ls
	return nil
}

func (tx *memoryTx) TouchCountMetadata(ctx context.Context, itemID, locationID, countedBy int64) error {
	key := stockKey(itemID, locationID)
	ls, ok := tx.repo.stocks[key]
	if !ok {
		ls = LocationStock{ItemID: itemID, LocationID: locationID}
	}
	ls.LastCountedAt = time.Now().UTC()
	ls.LastCountedBy = countedBy
	tx.repo.stocks[key] = ls
	return nil
}

func (tx *memoryTx) RecomputeItemTotal(ctx context.Context, itemID int64) (float64, error) {
	var total float64
	for _, ls := range tx.repo.stocks {
		if ls.ItemID == itemID {
			total += ls.CurrentStock
		}
	}
	return total, nil
}

func (tx *memoryTx) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	tx.repo.nextLotID++
	lot.ID = tx.repo.nextLotID
	tx.repo.lots[lot.ID] = lot
	return lot.ID, nil
}

func (tx *memoryTx) GetAvailableLotsForUpdate(ctx context.Context, itemID, locationID int64) ([]Lot, error) {
	var result []Lot
	for id := int64(1); id <= tx.repo.nextLotID; id++ {
		lot, ok := tx.repo.lots[id]
		if !ok || lot.ItemID != itemID || lot.LocationID != locationID || lot.Status != LotStatusAvailable {
			continue
		}
		result = append(result, lot)
	}
	// soonest expiry first, lots without expiry last
	for i := 0; i < len(result); i++ {
		for j := i + 1; j < len(result); j++ {
			if expiresBefore(result[j], result[i]) {
				result[i], result[j] = result[j], result[i]
			}
		}
	}
	return result, nil
}

func expiresBefore(a, b Lot) bool {
	switch {
	case a.ExpiryDate.IsZero():
		return false
	case b.ExpiryDate.IsZero():
		return true
	default:
		return a.ExpiryDate.Before(b.ExpiryDate)
	}
}

func (tx *memoryTx) UpdateLotRemaining(ctx context.Context, lotID int64, remaining float64, status LotStatus) error {
	lot, ok := tx.repo.lots[lotID]
	if !ok {
		return fmt.Errorf("%w: lot %d", ErrNotFound, lotID)
	}
	lot.RemainingQty = remaining
	lot.Status = status
	tx.repo.lots[lotID] = lot
	return nil
}

func (tx *memoryTx) UpdateItemCost(ctx context.Context, itemID int64, cost decimal.Decimal) error {
	tx.repo.costs[itemID] = cost
	return nil
}

func (tx *memoryTx) GetOrderLineForUpdate(ctx context.Context, lineID int64) (OrderLineState, error) {
	line, ok := tx.repo.orderLines[lineID]
	if !ok {
		return OrderLineState{}, fmt.Errorf("%w: order line %d", ErrNotFound, lineID)
	}
	return line, nil
}

func (tx *memoryTx) SetOrderLineReceived(ctx context.Context, lineID int64, receivedQty float64) error {
	line := tx.repo.orderLines[lineID]
	line.ReceivedQty = receivedQty
	tx.repo.orderLines[lineID] = line
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, nil, nil, nil, ServiceConfig{})
}

func seedRepo() *memoryRepo {
	repo := newMemoryRepo()
	repo.items[1] = ItemInfo{ID: 1, SKU: "FLR-001", Name: "Bread Flour"}
	repo.items[2] = ItemInfo{ID: 2, SKU: "MLK-002", Name: "Whole Milk", TrackLots: true, TrackExpiry: true}
	repo.locations[10] = true
	repo.locations[20] = true
	return repo
}

func TestAdjustKeepsLedgerArithmetic(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	result, err := svc.Adjust(ctx, MovementInput{ItemID: 1, LocationID: 10, Quantity: 25, PerformedBy: 7})
	require.NoError(t, err)
	require.Equal(t, MovementAdjustment, result.Movement.Type)
	require.InDelta(t, 0.0, result.Movement.PreviousStock, qtyEpsilon)
	require.InDelta(t, 25.0, result.Movement.NewStock, qtyEpsilon)
	require.InDelta(t, 25.0, result.Stock.CurrentStock, qtyEpsilon)
	require.InDelta(t, 25.0, result.ItemTotal, qtyEpsilon)
	require.Contains(t, result.Movement.Number, "MOV-")

	result, err = svc.Adjust(ctx, MovementInput{ItemID: 1, LocationID: 10, Quantity: -10, Reason: "damage", PerformedBy: 7})
	require.NoError(t, err)
	require.InDelta(t, 25.0, result.Movement.PreviousStock, qtyEpsilon)
	require.InDelta(t, 15.0, result.Movement.NewStock, qtyEpsilon)
	require.InDelta(t, result.Movement.PreviousStock+result.Movement.Quantity, result.Movement.NewStock, qtyEpsilon)
}

func TestAdjustRejectsOverdraw(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, MovementInput{ItemID: 1, LocationID: 10, Quantity: 5, PerformedBy: 7})
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, MovementInput{ItemID: 1, LocationID: 10, Quantity: -8, PerformedBy: 7})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Len(t, repo.movements, 1)

	ls, err := repo.GetLocationStock(ctx, 1, 10)
	require.NoError(t, err)
	require.InDelta(t, 5.0, ls.CurrentStock, qtyEpsilon)
}

func TestAdjustRejectsZeroQuantity(t *testing.T) {
	svc := newTestService(seedRepo())

	_, err := svc.Adjust(context.Background(), MovementInput{ItemID: 1, LocationID: 10, Quantity: 0, PerformedBy: 7})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAdjustUnknownItemOrLocation(t *testing.T) {
	svc := newTestService(seedRepo())
	ctx := context.Background()

	_, err := svc.Adjust(ctx, MovementInput{ItemID: 99, LocationID: 10, Quantity: 5, PerformedBy: 7})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Adjust(ctx, MovementInput{ItemID: 1, LocationID: 99, Quantity: 5, PerformedBy: 7})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecordMovementRejectsTransferTypes(t *testing.T) {
	svc := newTestService(seedRepo())

	_, err := svc.RecordMovement(context.Background(), MovementInput{
		ItemID: 1, LocationID: 10, Quantity: -5, Type: MovementTransferOut, PerformedBy: 7,
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.RecordMovement(context.Background(), MovementInput{
		ItemID: 1, LocationID: 10, Quantity: 5, Type: MovementTransferIn, PerformedBy: 7,
	})
	require.ErrorIs(t, err, ErrValidation)
}

// conflictRepo simulates a transaction that lost its serialization race on
// every retry attempt.
type conflictRepo struct {
	*memoryRepo
}

func (r *conflictRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fmt.Errorf("%w: retries exhausted", db.ErrTxConflict)
}

func TestPostSurfacesConflictWhenRetriesExhausted(t *testing.T) {
	svc := NewService(&conflictRepo{memoryRepo: seedRepo()}, nil, nil, nil, ServiceConfig{})

	_, err := svc.Adjust(context.Background(), MovementInput{
		ItemID: 1, LocationID: 10, Quantity: 5, PerformedBy: 7,
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestMovementNumbersDistinctWithinOneSecond(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		number := newMovementNumber(now)
		_, dup := seen[number]
		require.False(t, dup, "duplicate movement number %s", number)
		seen[number] = struct{}{}
	}
}

func TestTransferMovesStockBetweenLocations(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, MovementInput{ItemID: 1, LocationID: 10, Quantity: 30, PerformedBy: 7})
	require.NoError(t, err)

	result, err := svc.Transfer(ctx, TransferInput{
		ItemID: 1, SourceLocation: 10, DestLocation: 20, Quantity: 12, PerformedBy: 7,
	})
	require.NoError(t, err)

	require.Equal(t, MovementTransferOut, result.Out.Movement.Type)
	require.Equal(t, MovementTransferIn, result.In.Movement.Type)
	require.InDelta(t, -12.0, result.Out.Movement.Quantity, qtyEpsilon)
	require.InDelta(t, 12.0, result.In.Movement.Quantity, qtyEpsilon)
	require.Equal(t, int64(20), result.Out.Movement.DestinationLocationID)
	require.Equal(t, "STOCK_MOVEMENT", result.In.Movement.ReferenceType)
	require.Equal(t, fmt.Sprintf("%d", result.Out.Movement.ID), result.In.Movement.ReferenceID)

	src, err := repo.GetLocationStock(ctx, 1, 10)
	require.NoError(t, err)
	dst, err := repo.GetLocationStock(ctx, 1, 20)
	require.NoError(t, err)
	require.InDelta(t, 18.0, src.CurrentStock, qtyEpsilon)
	require.InDelta(t, 12.0, dst.CurrentStock, qtyEpsilon)
	require.InDelta(t, 30.0, result.In.ItemTotal, qtyEpsilon)
}

func TestTransferSameLocationRejected(t *testing.T) {
	svc := newTestService(seedRepo())

	_, err := svc.Transfer(context.Background(), TransferInput{
		ItemID: 1, SourceLocation: 10, DestLocation: 10, Quantity: 5, PerformedBy: 7,
	})
	require.ErrorIs(t, err, ErrSameLocation)
}

func TestTransferInsufficientStockLeavesNoMovements(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, MovementInput{ItemID: 1, LocationID: 10, Quantity: 3, PerformedBy: 7})
	require.NoError(t, err)
	posted := len(repo.movements)

	_, err = svc.Transfer(ctx, TransferInput{
		ItemID: 1, SourceLocation: 10, DestLocation: 20, Quantity: 5, PerformedBy: 7,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Len(t, repo.movements, posted)

	_, err = repo.GetLocationStock(ctx, 1, 20)
	require.ErrorIs(t, err, ErrStockNotFound)
}

func TestCountReconciliation(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, MovementInput{ItemID: 1, LocationID: 10, Quantity: 50, PerformedBy: 7})
	require.NoError(t, err)

	result, err := svc.RecordCount(ctx, CountInput{
		LocationID:  10,
		PerformedBy: 7,
		Lines:       []CountLineInput{{ItemID: 1, CountedQty: 47.5}},
	})
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)

	line := result.Lines[0]
	require.NoError(t, line.Err)
	require.InDelta(t, 50.0, line.SystemQty, qtyEpsilon)
	require.InDelta(t, -2.5, line.Difference, qtyEpsilon)
	require.NotZero(t, line.MovementID)

	ls, err := repo.GetLocationStock(ctx, 1, 10)
	require.NoError(t, err)
	require.InDelta(t, 47.5, ls.CurrentStock, qtyEpsilon)
	require.Equal(t, int64(7), ls.LastCountedBy)
	require.False(t, ls.LastCountedAt.IsZero())
}

func TestCountIsIdempotentAtSameQuantity(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, MovementInput{ItemID: 1, LocationID: 10, Quantity: 40, PerformedBy: 7})
	require.NoError(t, err)

	input := CountInput{LocationID: 10, PerformedBy: 7, Lines: []CountLineInput{{ItemID: 1, CountedQty: 38}}}

	first, err := svc.RecordCount(ctx, input)
	require.NoError(t, err)
	require.NotZero(t, first.Lines[0].MovementID)
	posted := len(repo.movements)

	second, err := svc.RecordCount(ctx, input)
	require.NoError(t, err)
	require.Zero(t, second.Lines[0].MovementID)
	require.InDelta(t, 0.0, second.Lines[0].Difference, qtyEpsilon)
	require.Len(t, repo.movements, posted)
}

func TestCountLineFailureDoesNotAbortSiblings(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, MovementInput{ItemID: 1, LocationID: 10, Quantity: 10, PerformedBy: 7})
	require.NoError(t, err)

	result, err := svc.RecordCount(ctx, CountInput{
		LocationID:  10,
		PerformedBy: 7,
		Lines: []CountLineInput{
			{ItemID: 99, CountedQty: 5},
			{ItemID: 1, CountedQty: 8},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Lines, 2)
	require.ErrorIs(t, result.Lines[0].Err, ErrNotFound)
	require.NoError(t, result.Lines[1].Err)
	require.NotZero(t, result.Lines[1].MovementID)

	ls, err := repo.GetLocationStock(ctx, 1, 10)
	require.NoError(t, err)
	require.InDelta(t, 8.0, ls.CurrentStock, qtyEpsilon)
}

func TestConsumptionDebitsLotsSoonestExpiryFirst(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	soon := time.Now().UTC().AddDate(0, 0, 3)
	later := time.Now().UTC().AddDate(0, 0, 30)

	// the later-expiring lot is registered first on purpose
	lotB, err := svc.CreateLot(ctx, LotInput{ItemID: 2, LocationID: 10, Quantity: 20, ExpiryDate: later, PerformedBy: 7})
	require.NoError(t, err)
	lotA, err := svc.CreateLot(ctx, LotInput{ItemID: 2, LocationID: 10, Quantity: 10, ExpiryDate: soon, PerformedBy: 7})
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, MovementInput{ItemID: 2, LocationID: 10, Quantity: 30, PerformedBy: 7})
	require.NoError(t, err)

	result, err := svc.RecordMovement(ctx, MovementInput{
		ItemID: 2, LocationID: 10, Quantity: -15, Type: MovementSale, PerformedBy: 7,
	})
	require.NoError(t, err)

	require.Len(t, result.Allocations, 2)
	require.Equal(t, lotA.ID, result.Allocations[0].LotID)
	require.InDelta(t, 10.0, result.Allocations[0].Quantity, qtyEpsilon)
	require.Equal(t, lotB.ID, result.Allocations[1].LotID)
	require.InDelta(t, 5.0, result.Allocations[1].Quantity, qtyEpsilon)

	require.Equal(t, LotStatusDepleted, repo.lots[lotA.ID].Status)
	require.InDelta(t, 0.0, repo.lots[lotA.ID].RemainingQty, qtyEpsilon)
	require.Equal(t, LotStatusAvailable, repo.lots[lotB.ID].Status)
	require.InDelta(t, 15.0, repo.lots[lotB.ID].RemainingQty, qtyEpsilon)
}

func TestConsumptionShortfallIsUntracked(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	lot, err := svc.CreateLot(ctx, LotInput{ItemID: 2, LocationID: 10, Quantity: 4, PerformedBy: 7})
	require.NoError(t, err)

	// aggregate carries stock that predates lot tracking
	_, err = svc.Adjust(ctx, MovementInput{ItemID: 2, LocationID: 10, Quantity: 10, PerformedBy: 7})
	require.NoError(t, err)

	result, err := svc.RecordMovement(ctx, MovementInput{
		ItemID: 2, LocationID: 10, Quantity: -7, Type: MovementWaste, PerformedBy: 7,
	})
	require.NoError(t, err)
	require.Len(t, result.Allocations, 1)
	require.InDelta(t, 4.0, result.Allocations[0].Quantity, qtyEpsilon)
	require.Equal(t, LotStatusDepleted, repo.lots[lot.ID].Status)
	require.InDelta(t, 3.0, result.Stock.CurrentStock, qtyEpsilon)
}

func TestSingleLotAllocationStampsMovement(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	lot, err := svc.CreateLot(ctx, LotInput{ItemID: 2, LocationID: 10, Quantity: 8, PerformedBy: 7})
	require.NoError(t, err)
	_, err = svc.Adjust(ctx, MovementInput{ItemID: 2, LocationID: 10, Quantity: 8, PerformedBy: 7})
	require.NoError(t, err)

	result, err := svc.RecordMovement(ctx, MovementInput{
		ItemID: 2, LocationID: 10, Quantity: -3, Type: MovementSale, PerformedBy: 7,
	})
	require.NoError(t, err)
	require.Equal(t, lot.ID, result.Movement.LotID)
}

func TestCreateLotRequiresTrackedItem(t *testing.T) {
	svc := newTestService(seedRepo())

	_, err := svc.CreateLot(context.Background(), LotInput{ItemID: 1, LocationID: 10, Quantity: 5, PerformedBy: 7})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateLotDefaults(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo)

	lot, err := svc.CreateLot(context.Background(), LotInput{ItemID: 2, LocationID: 10, Quantity: 6, PerformedBy: 7})
	require.NoError(t, err)
	require.Contains(t, lot.Number, "LOT-")
	require.InDelta(t, 6.0, lot.RemainingQty, qtyEpsilon)
	require.Equal(t, LotStatusAvailable, lot.Status)
	require.False(t, lot.ReceivedDate.IsZero())
}

func TestReceiveAgainstOrderLine(t *testing.T) {
	repo := seedRepo()
	repo.orderLines[5] = OrderLineState{ID: 5, Quantity: 20}
	svc := newTestService(repo)
	ctx := context.Background()

	result, err := svc.Receive(ctx, ReceiptInput{
		ItemID:      2,
		LocationID:  10,
		Quantity:    12,
		UnitCost:    decimal.NewFromFloat(3.50),
		OrderLineID: 5,
		ExpiryDate:  time.Now().UTC().AddDate(0, 1, 0),
		PerformedBy: 7,
	})
	require.NoError(t, err)
	require.Equal(t, MovementPurchase, result.Movement.Type)
	require.Equal(t, "PURCHASE_ORDER", result.Movement.ReferenceType)
	require.NotNil(t, result.Lot)
	require.Equal(t, result.Lot.ID, result.Movement.LotID)
	require.InDelta(t, 12.0, result.Stock.CurrentStock, qtyEpsilon)
	require.InDelta(t, 12.0, repo.orderLines[5].ReceivedQty, qtyEpsilon)
	require.True(t, repo.costs[2].Equal(decimal.NewFromFloat(3.50)))
}

func TestReceiveRejectsOverReceipt(t *testing.T) {
	repo := seedRepo()
	repo.orderLines[5] = OrderLineState{ID: 5, Quantity: 10, ReceivedQty: 8}
	svc := newTestService(repo)

	_, err := svc.Receive(context.Background(), ReceiptInput{
		ItemID: 2, LocationID: 10, Quantity: 5, OrderLineID: 5, PerformedBy: 7,
	})
	require.ErrorIs(t, err, ErrOverReceipt)
	require.Empty(t, repo.movements)
	require.InDelta(t, 8.0, repo.orderLines[5].ReceivedQty, qtyEpsilon)
}

func TestReceiveUntrackedItemSkipsLot(t *testing.T) {
	repo := seedRepo()
	svc := newTestService(repo)

	result, err := svc.Receive(context.Background(), ReceiptInput{
		ItemID: 1, LocationID: 10, Quantity: 9, PerformedBy: 7,
	})
	require.NoError(t, err)
	require.Nil(t, result.Lot)
	require.Zero(t, result.Movement.LotID)
	require.Empty(t, repo.lots)
}

func TestReceiveRejectsNonPositiveQuantity(t *testing.T) {
	svc := newTestService(seedRepo())

	_, err := svc.Receive(context.Background(), ReceiptInput{ItemID: 1, LocationID: 10, Quantity: -1, PerformedBy: 7})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestListExpiringBucketsByUrgency(t *testing.T) {
	repo := seedRepo()
	now := time.Now().UTC()
	repo.expiring = []Lot{
		{ID: 1, Number: "LOT-A", ItemID: 2, LocationID: 10, RemainingQty: 5, ExpiryDate: now.AddDate(0, 0, 1), Status: LotStatusAvailable},
		{ID: 2, Number: "LOT-B", ItemID: 2, LocationID: 10, RemainingQty: 5, ExpiryDate: now.AddDate(0, 0, 4), Status: LotStatusAvailable},
		{ID: 3, Number: "LOT-C", ItemID: 2, LocationID: 10, RemainingQty: 5, ExpiryDate: now.AddDate(0, 0, 9), Status: LotStatusAvailable},
	}
	svc := newTestService(repo)

	report, err := svc.ListExpiring(context.Background(), 14, 0)
	require.NoError(t, err)
	require.Equal(t, 3, report.Total())
	require.Len(t, report.Critical, 1)
	require.Len(t, report.Warning, 1)
	require.Len(t, report.Upcoming, 1)
	require.Equal(t, "LOT-A", report.Critical[0].Lot.Number)
	require.Equal(t, "LOT-C", report.Upcoming[0].Lot.Number)
}

func TestListMovementsRequiresItem(t *testing.T) {
	svc := newTestService(seedRepo())

	_, err := svc.ListMovements(context.Background(), MovementFilter{})
	require.ErrorIs(t, err, ErrNotFound)
}
