package stock

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementAdjustment represents a manual correction, up or down.
	MovementAdjustment MovementType = "ADJUSTMENT"
	// MovementPurchase represents goods received against a purchase order.
	MovementPurchase MovementType = "PURCHASE"
	// MovementTransferOut represents the outbound half of a transfer.
	MovementTransferOut MovementType = "TRANSFER_OUT"
	// MovementTransferIn represents the inbound half of a transfer.
	MovementTransferIn MovementType = "TRANSFER_IN"
	// MovementCount represents a physical count correction.
	MovementCount MovementType = "COUNT"
	// MovementSale represents consumption by a sale.
	MovementSale MovementType = "SALE"
	// MovementWaste represents spoilage or breakage write-offs.
	MovementWaste MovementType = "WASTE"
)

// depleting movement types must never drive a location below zero.
func (t MovementType) depleting() bool {
	switch t {
	case MovementAdjustment, MovementTransferOut, MovementCount, MovementSale, MovementWaste:
		return true
	}
	return false
}

// consuming movement types debit lots FIFO-by-expiry when the item tracks lots.
func (t MovementType) consuming() bool {
	switch t {
	case MovementAdjustment, MovementCount, MovementSale, MovementWaste:
		return true
	}
	return false
}

// Valid reports whether the movement type is known.
func (t MovementType) Valid() bool {
	switch t {
	case MovementAdjustment, MovementPurchase, MovementTransferOut, MovementTransferIn,
		MovementCount, MovementSale, MovementWaste:
		return true
	}
	return false
}

// Movement is an append-only ledger fact. Quantity is signed; NewStock always
// equals PreviousStock + Quantity.
type Movement struct {
	ID                    int64
	Number                string
	ItemID                int64
	LocationID            int64
	LotID                 int64
	Type                  MovementType
	Quantity              float64
	PreviousStock         float64
	NewStock              float64
	UnitCost              decimal.Decimal
	TotalCost             decimal.Decimal
	ReferenceType         string
	ReferenceID           string
	DestinationLocationID int64
	Reason                string
	Notes                 string
	PerformedBy           int64
	CreatedAt             time.Time
}

// LocationStock is the current quantity snapshot per (item, location).
type LocationStock struct {
	LocationID    int64
	ItemID        int64
	CurrentStock  float64
	LastCountedAt time.Time
	LastCountedBy int64
	UpdatedAt     time.Time
}

// ItemInfo is the projection of an inventory item the ledger needs.
type ItemInfo struct {
	ID          int64
	SKU         string
	Name        string
	TrackLots   bool
	TrackExpiry bool
}

// LotStatus enumerates lot lifecycle states.
type LotStatus string

const (
	LotStatusAvailable LotStatus = "AVAILABLE"
	LotStatusDepleted  LotStatus = "DEPLETED"
	LotStatusExpired   LotStatus = "EXPIRED"
)

// Lot is a traceable batch of a lot- or expiry-tracked item.
type Lot struct {
	ID              int64
	Number          string
	ItemID          int64
	LocationID      int64
	Quantity        float64
	RemainingQty    float64
	CostPrice       decimal.Decimal
	ReceivedDate    time.Time
	ExpiryDate      time.Time
	SupplierID      int64
	PurchaseOrderID int64
	Status          LotStatus
}

// LotAllocation records how much a consumption movement debited from a lot.
type LotAllocation struct {
	LotID     int64
	LotNumber string
	Quantity  float64
}

// ExpiryUrgency buckets lots by days until expiry.
type ExpiryUrgency string

const (
	UrgencyCritical ExpiryUrgency = "critical"
	UrgencyWarning  ExpiryUrgency = "warning"
	UrgencyUpcoming ExpiryUrgency = "upcoming"
)

// urgencyFor classifies days-to-expiry: critical <=2, warning 3-5, upcoming >5.
func urgencyFor(daysLeft int) ExpiryUrgency {
	switch {
	case daysLeft <= 2:
		return UrgencyCritical
	case daysLeft <= 5:
		return UrgencyWarning
	default:
		return UrgencyUpcoming
	}
}

// ExpiringLot pairs a lot with its urgency classification.
type ExpiringLot struct {
	Lot      Lot
	DaysLeft int
	Urgency  ExpiryUrgency
}

// MovementFilter filters ledger history listings.
type MovementFilter struct {
	ItemID     int64
	LocationID int64
	Type       MovementType
	From       time.Time
	To         time.Time
	Limit      int
}

var (
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("stock: invalid input")
	// ErrNotFound indicates a referenced item, location or lot is missing.
	ErrNotFound = errors.New("stock: not found")
	// ErrInsufficientStock triggered when a movement would drive stock negative.
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	// ErrInvalidQuantity indicates a zero or wrongly signed quantity.
	ErrInvalidQuantity = errors.New("stock: quantity must be non zero")
	// ErrSameLocation indicates a transfer with identical endpoints.
	ErrSameLocation = errors.New("stock: source and destination location must differ")
	// ErrConflict indicates a concurrent mutation lost its serialization race.
	ErrConflict = errors.New("stock: concurrent modification, retry")
	// ErrOverReceipt indicates a receipt exceeding the ordered quantity.
	ErrOverReceipt = errors.New("stock: received quantity exceeds ordered quantity")
)
