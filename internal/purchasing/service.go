package purchasing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/larder-erp/larder-erp/internal/shared"
	"github.com/larder-erp/larder-erp/internal/stock"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error)
	ListOrders(ctx context.Context, filter OrderFilter, page shared.Pagination) ([]PurchaseOrder, error)
}

// StockPort is the ledger integration used by goods receipt.
type StockPort interface {
	Receive(ctx context.Context, input stock.ReceiptInput) (stock.ReceiptResult, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the purchase-order lifecycle.
type Service struct {
	repo  RepositoryPort
	stock StockPort
	audit AuditPort
}

// NewService constructs the purchasing service.
func NewService(repo RepositoryPort, stockPort StockPort, audit AuditPort) *Service {
	return &Service{repo: repo, stock: stockPort, audit: audit}
}

// OrderLineInput describes one ordered item.
type OrderLineInput struct {
	ItemID    int64
	Quantity  float64
	UnitPrice decimal.Decimal
	Notes     string
}

// CreateOrderInput describes order creation.
type CreateOrderInput struct {
	Number       string
	SupplierID   int64
	LocationID   int64
	ExpectedDate time.Time
	TaxRate      decimal.Decimal
	Notes        string
	CreatedBy    int64
	Lines        []OrderLineInput
}

// CreateOrder persists a DRAFT order with its lines. Line totals and the
// header totals are computed here, never taken from the caller.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (PurchaseOrder, []OrderLine, error) {
	if input.SupplierID == 0 || input.LocationID == 0 {
		return PurchaseOrder{}, nil, fmt.Errorf("%w: supplier and location required", ErrValidation)
	}
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, nil, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	if input.TaxRate.IsNegative() {
		return PurchaseOrder{}, nil, fmt.Errorf("%w: tax rate cannot be negative", ErrValidation)
	}

	lines := make([]OrderLine, 0, len(input.Lines))
	subtotal := decimal.Zero
	for _, line := range input.Lines {
		if line.ItemID == 0 || line.Quantity <= 0 {
			return PurchaseOrder{}, nil, fmt.Errorf("%w: line needs an item and a positive quantity", ErrValidation)
		}
		if line.UnitPrice.IsNegative() {
			return PurchaseOrder{}, nil, fmt.Errorf("%w: unit price cannot be negative", ErrValidation)
		}
		total := line.UnitPrice.Mul(decimal.NewFromFloat(line.Quantity)).Round(2)
		subtotal = subtotal.Add(total)
		lines = append(lines, OrderLine{
			ItemID:    line.ItemID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: total,
			Notes:     line.Notes,
		})
	}

	now := time.Now().UTC()
	order := PurchaseOrder{
		Number:       input.Number,
		SupplierID:   input.SupplierID,
		LocationID:   input.LocationID,
		Status:       StatusDraft,
		ExpectedDate: input.ExpectedDate,
		Subtotal:     subtotal,
		TaxAmount:    subtotal.Mul(input.TaxRate).Round(2),
		Notes:        input.Notes,
		CreatedBy:    input.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	order.Total = order.Subtotal.Add(order.TaxAmount)
	if order.Number == "" {
		order.Number = newOrderNumber(now)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if ok, err := tx.SupplierExists(ctx, input.SupplierID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: supplier %d", ErrNotFound, input.SupplierID)
		}
		if ok, err := tx.LocationExists(ctx, input.LocationID); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: location %d", ErrNotFound, input.LocationID)
		}

		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		for i := range lines {
			lines[i].OrderID = id
			lines[i].ID, err = tx.InsertOrderLine(ctx, lines[i])
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, nil, err
	}

	s.recordAudit(ctx, input.CreatedBy, "PO_CREATE", order.Number, map[string]any{
		"supplier_id": order.SupplierID,
		"lines":       len(lines),
		"total":       order.Total,
	})
	return order, lines, nil
}

// GetOrder returns the header and lines.
func (s *Service) GetOrder(ctx context.Context, id int64) (PurchaseOrder, []OrderLine, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders lists order headers.
func (s *Service) ListOrders(ctx context.Context, filter OrderFilter, page shared.Pagination) ([]PurchaseOrder, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	return s.repo.ListOrders(ctx, filter, page)
}

// UpdateStatus moves an order along its lifecycle. Approval stamps the actor
// and timestamp; ORDERED stamps the order date. PARTIAL and RECEIVED cannot
// be set here, goods receipt owns them.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, next OrderStatus, actorID int64) (PurchaseOrder, error) {
	if !next.Valid() {
		return PurchaseOrder{}, fmt.Errorf("%w: unknown status %q", ErrValidation, next)
	}
	if next == StatusPartial || next == StatusReceived {
		return PurchaseOrder{}, fmt.Errorf("%w: %s is set by goods receipt", ErrInvalidTransition, next)
	}

	var updated PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, next)
		}

		now := time.Now().UTC()
		order.Status = next
		order.UpdatedAt = now
		switch next {
		case StatusApproved:
			order.ApprovedBy = actorID
			order.ApprovedAt = now
		case StatusOrdered:
			order.OrderDate = now
		}
		if err := tx.UpdateOrderStatus(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}

	s.recordAudit(ctx, actorID, fmt.Sprintf("PO_%s", next), updated.Number, map[string]any{"order_id": updated.ID})
	return updated, nil
}

// ReceiveLineInput describes goods arriving for one order line.
type ReceiveLineInput struct {
	LineID     int64
	Quantity   float64
	LotNumber  string
	ExpiryDate time.Time
}

// ReceiveInput describes a goods receipt against an order.
type ReceiveInput struct {
	OrderID     int64
	Lines       []ReceiveLineInput
	Notes       string
	PerformedBy int64
}

// ReceiveLineResult reports the outcome for one received line.
type ReceiveLineResult struct {
	LineID         int64
	ItemID         int64
	Quantity       float64
	MovementNumber string
	LotNumber      string
	Err            error
}

// ReceiveResult aggregates the receipt outcome.
type ReceiveResult struct {
	Order PurchaseOrder
	Lines []ReceiveLineResult
}

// ReceiveGoods receives stock against a receivable order. Lines are
// processed independently: each line posts through the ledger in its own
// transaction and a failed line never aborts its siblings. Afterwards the
// order status settles to PARTIAL or RECEIVED from the lines' fulfillment.
func (s *Service) ReceiveGoods(ctx context.Context, input ReceiveInput) (ReceiveResult, error) {
	if len(input.Lines) == 0 {
		return ReceiveResult{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}

	order, orderLines, err := s.repo.GetOrder(ctx, input.OrderID)
	if err != nil {
		return ReceiveResult{}, err
	}
	if !order.Status.Receivable() {
		return ReceiveResult{}, fmt.Errorf("%w: order %s is %s", ErrNotReceivable, order.Number, order.Status)
	}

	byID := make(map[int64]OrderLine, len(orderLines))
	for _, line := range orderLines {
		byID[line.ID] = line
	}

	result := ReceiveResult{Order: order}
	for _, line := range input.Lines {
		result.Lines = append(result.Lines, s.receiveLine(ctx, order, byID, line, input))
	}

	settled, err := s.settleOrderStatus(ctx, order.ID, input.PerformedBy)
	if err != nil {
		return result, err
	}
	result.Order = settled

	s.recordAudit(ctx, input.PerformedBy, "PO_RECEIVE", order.Number, map[string]any{
		"order_id": order.ID,
		"lines":    len(result.Lines),
		"status":   settled.Status,
	})
	return result, nil
}

func (s *Service) receiveLine(ctx context.Context, order PurchaseOrder, byID map[int64]OrderLine, line ReceiveLineInput, input ReceiveInput) ReceiveLineResult {
	result := ReceiveLineResult{LineID: line.LineID, Quantity: line.Quantity, LotNumber: line.LotNumber}

	orderLine, ok := byID[line.LineID]
	if !ok {
		result.Err = fmt.Errorf("%w: line %d does not belong to order %d", ErrNotFound, line.LineID, order.ID)
		return result
	}
	result.ItemID = orderLine.ItemID
	if line.Quantity <= 0 {
		result.Err = fmt.Errorf("%w: quantity must be positive", ErrValidation)
		return result
	}

	received, err := s.stock.Receive(ctx, stock.ReceiptInput{
		ItemID:          orderLine.ItemID,
		LocationID:      order.LocationID,
		Quantity:        line.Quantity,
		UnitCost:        orderLine.UnitPrice,
		LotNumber:       line.LotNumber,
		ExpiryDate:      line.ExpiryDate,
		SupplierID:      order.SupplierID,
		PurchaseOrderID: order.ID,
		OrderLineID:     orderLine.ID,
		Notes:           input.Notes,
		PerformedBy:     input.PerformedBy,
	})
	if err != nil {
		result.Err = err
		return result
	}

	result.MovementNumber = received.Movement.Number
	if received.Lot != nil {
		result.LotNumber = received.Lot.Number
	}
	return result
}

// settleOrderStatus recomputes the order status from line fulfillment after a
// receipt. Fully received lines everywhere means RECEIVED, any progress means
// PARTIAL, no progress leaves the status alone.
func (s *Service) settleOrderStatus(ctx context.Context, orderID, actorID int64) (PurchaseOrder, error) {
	var settled PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		lines, err := tx.GetOrderLines(ctx, orderID)
		if err != nil {
			return err
		}

		next := order.Status
		complete := len(lines) > 0
		anyReceived := false
		for _, line := range lines {
			if line.ReceivedQty > 0 {
				anyReceived = true
			}
			if line.Outstanding() > qtyEpsilon {
				complete = false
			}
		}
		switch {
		case complete:
			next = StatusReceived
		case anyReceived:
			next = StatusPartial
		}

		if next != order.Status {
			order.Status = next
			order.UpdatedAt = time.Now().UTC()
			if next == StatusReceived {
				order.ReceivedDate = order.UpdatedAt
			}
			if err := tx.UpdateOrderStatus(ctx, order); err != nil {
				return err
			}
		}
		settled = order
		return nil
	})
	return settled, err
}

const qtyEpsilon = 1e-4

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, number string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   fmt.Sprintf("purchasing:%s", action),
		Entity:   "purchase_order",
		EntityID: number,
		Meta:     meta,
	})
}

func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(uuid.NewString()[:4])
	return fmt.Sprintf("PO-%s-%s", now.Format("20060102"), suffix)
}
