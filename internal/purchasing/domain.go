package purchasing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the purchase-order lifecycle state.
type OrderStatus string

const (
	StatusDraft     OrderStatus = "DRAFT"
	StatusPending   OrderStatus = "PENDING"
	StatusApproved  OrderStatus = "APPROVED"
	StatusOrdered   OrderStatus = "ORDERED"
	StatusPartial   OrderStatus = "PARTIAL"
	StatusReceived  OrderStatus = "RECEIVED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// orderTransitions is the full lifecycle graph. PARTIAL and RECEIVED are
// reached through goods receipt, never by a direct status update. A partially
// received order can still be cancelled; already-received lines stay on the
// shelf. A cancelled or fully received order is terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusDraft:    {StatusPending, StatusCancelled},
	StatusPending:  {StatusApproved, StatusCancelled},
	StatusApproved: {StatusOrdered, StatusCancelled},
	StatusOrdered:  {StatusPartial, StatusReceived, StatusCancelled},
	StatusPartial:  {StatusReceived, StatusCancelled},
}

// Valid reports whether the status is a known lifecycle state.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusOrdered,
		StatusPartial, StatusReceived, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether s may move to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Receivable reports whether goods may be received against the order.
// Suppliers sometimes ship before the order is formally placed, so an
// approved order accepts receipts too.
func (s OrderStatus) Receivable() bool {
	return s == StatusApproved || s == StatusOrdered || s == StatusPartial
}

// Editable reports whether header and lines may still change.
func (s OrderStatus) Editable() bool {
	return s == StatusDraft || s == StatusPending
}

// PurchaseOrder is the order header.
type PurchaseOrder struct {
	ID           int64
	Number       string
	SupplierID   int64
	LocationID   int64
	Status       OrderStatus
	OrderDate    time.Time
	ExpectedDate time.Time
	ReceivedDate time.Time
	ApprovedBy   int64
	ApprovedAt   time.Time
	Subtotal     decimal.Decimal
	TaxAmount    decimal.Decimal
	Total        decimal.Decimal
	Notes        string
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrderLine is one ordered item with its fulfillment progress.
type OrderLine struct {
	ID          int64
	OrderID     int64
	ItemID      int64
	Quantity    float64
	ReceivedQty float64
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
	Notes       string
}

// Outstanding returns the quantity still to be received.
func (l OrderLine) Outstanding() float64 {
	if out := l.Quantity - l.ReceivedQty; out > 0 {
		return out
	}
	return 0
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status     OrderStatus
	SupplierID int64
	LocationID int64
}

var (
	// ErrNotFound indicates a missing order or line.
	ErrNotFound = errors.New("purchasing: not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("purchasing: invalid input")
	// ErrInvalidTransition occurs when a status update violates the lifecycle.
	ErrInvalidTransition = errors.New("purchasing: invalid state transition")
	// ErrNotReceivable occurs when receiving against an order outside ORDERED or PARTIAL.
	ErrNotReceivable = errors.New("purchasing: order is not receivable")
	// ErrNotEditable occurs when mutating an order past PENDING.
	ErrNotEditable = errors.New("purchasing: order can no longer be edited")
)
