package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/larder-erp/larder-erp/internal/platform/httpx"
	"github.com/larder-erp/larder-erp/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/adjustments", h.handleAdjustment)
	r.Post("/movements", h.handleMovement)
	r.Post("/transfers", h.handleTransfer)
	r.Post("/counts", h.handleCount)
	r.Post("/lots", h.handleCreateLot)
	r.Get("/lots/expiring", h.handleExpiringLots)
	r.Get("/levels", h.handleLevels)
	r.Get("/movements", h.handleListMovements)
}

type movementRequest struct {
	ItemID        int64   `json:"item_id" validate:"required"`
	LocationID    int64   `json:"location_id" validate:"required"`
	Quantity      float64 `json:"quantity" validate:"required"`
	Type          string  `json:"movement_type"`
	UnitCost      string  `json:"unit_cost"`
	ReferenceType string  `json:"reference_type"`
	ReferenceID   string  `json:"reference_id"`
	Reason        string  `json:"reason"`
	Notes         string  `json:"notes"`
	PerformedBy   int64   `json:"performed_by" validate:"required"`
}

type transferRequest struct {
	ItemID         int64   `json:"item_id" validate:"required"`
	SourceLocation int64   `json:"source_location_id" validate:"required"`
	DestLocation   int64   `json:"destination_location_id" validate:"required"`
	Quantity       float64 `json:"quantity" validate:"required,gt=0"`
	UnitCost       string  `json:"unit_cost"`
	ReferenceID    string  `json:"reference_id"`
	Notes          string  `json:"notes"`
	PerformedBy    int64   `json:"performed_by" validate:"required"`
}

type countRequest struct {
	LocationID  int64              `json:"location_id" validate:"required"`
	Notes       string             `json:"notes"`
	PerformedBy int64              `json:"performed_by" validate:"required"`
	Lines       []countLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type countLineRequest struct {
	ItemID     int64   `json:"item_id" validate:"required"`
	CountedQty float64 `json:"counted_qty" validate:"gte=0"`
}

type lotRequest struct {
	ItemID          int64   `json:"item_id" validate:"required"`
	LocationID      int64   `json:"location_id" validate:"required"`
	Quantity        float64 `json:"quantity" validate:"required,gt=0"`
	CostPrice       string  `json:"cost_price"`
	Number          string  `json:"lot_number"`
	ReceivedDate    string  `json:"received_date"`
	ExpiryDate      string  `json:"expiry_date"`
	SupplierID      int64   `json:"supplier_id"`
	PurchaseOrderID int64   `json:"purchase_order_id"`
	PerformedBy     int64   `json:"performed_by" validate:"required"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeMovement(w, r)
	if !ok {
		return
	}
	input, err := req.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Adjust(r.Context(), input)
	if err != nil {
		h.respondErr(w, "post adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, postResultResponse(result))
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeMovement(w, r)
	if !ok {
		return
	}
	input, err := req.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input.Type = MovementType(req.Type)
	result, err := h.service.RecordMovement(r.Context(), input)
	if err != nil {
		h.respondErr(w, "post movement", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, postResultResponse(result))
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	unitCost, err := parseDecimal(req.UnitCost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid unit_cost")
		return
	}
	result, err := h.service.Transfer(r.Context(), TransferInput{
		ItemID:         req.ItemID,
		SourceLocation: req.SourceLocation,
		DestLocation:   req.DestLocation,
		Quantity:       req.Quantity,
		UnitCost:       unitCost,
		ReferenceID:    req.ReferenceID,
		Notes:          req.Notes,
		PerformedBy:    req.PerformedBy,
	})
	if err != nil {
		h.respondErr(w, "post transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"out": postResultResponse(result.Out),
		"in":  postResultResponse(result.In),
	})
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CountInput{LocationID: req.LocationID, Notes: req.Notes, PerformedBy: req.PerformedBy}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, CountLineInput{ItemID: line.ItemID, CountedQty: line.CountedQty})
	}
	result, err := h.service.RecordCount(r.Context(), input)
	if err != nil {
		h.respondErr(w, "record count", err)
		return
	}
	httpx.JSON(w, http.StatusOK, countResultResponse(result))
}

func (h *Handler) handleCreateLot(w http.ResponseWriter, r *http.Request) {
	var req lotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cost, err := parseDecimal(req.CostPrice)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid cost_price")
		return
	}
	received, err := parseDate(req.ReceivedDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid received_date")
		return
	}
	expiry, err := parseDate(req.ExpiryDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expiry_date")
		return
	}
	lot, err := h.service.CreateLot(r.Context(), LotInput{
		ItemID:          req.ItemID,
		LocationID:      req.LocationID,
		Quantity:        req.Quantity,
		CostPrice:       cost,
		Number:          req.Number,
		ReceivedDate:    received,
		ExpiryDate:      expiry,
		SupplierID:      req.SupplierID,
		PurchaseOrderID: req.PurchaseOrderID,
		PerformedBy:     req.PerformedBy,
	})
	if err != nil {
		h.respondErr(w, "create lot", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lotResponse(lot))
}

func (h *Handler) handleExpiringLots(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)
	report, err := h.service.ListExpiring(r.Context(), days, locationID)
	if err != nil {
		h.respondErr(w, "list expiring lots", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"critical": expiringResponse(report.Critical),
		"warning":  expiringResponse(report.Warning),
		"upcoming": expiringResponse(report.Upcoming),
		"total":    report.Total(),
	})
}

func (h *Handler) handleLevels(w http.ResponseWriter, r *http.Request) {
	itemID, _ := strconv.ParseInt(r.URL.Query().Get("item_id"), 10, 64)
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)
	if itemID == 0 || locationID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item_id and location_id are required")
		return
	}
	ls, err := h.service.CurrentStock(r.Context(), itemID, locationID)
	if err != nil && !errors.Is(err, ErrStockNotFound) {
		h.respondErr(w, "get stock level", err)
		return
	}
	httpx.JSON(w, http.StatusOK, locationStockResponse(ls))
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	itemID, _ := strconv.ParseInt(q.Get("item_id"), 10, 64)
	if itemID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item_id is required")
		return
	}
	locationID, _ := strconv.ParseInt(q.Get("location_id"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := MovementFilter{ItemID: itemID, LocationID: locationID, Type: MovementType(q.Get("movement_type")), Limit: limit}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondErr(w, "list movements", err)
		return
	}
	out := make([]map[string]any, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": out})
}

func (h *Handler) decodeMovement(w http.ResponseWriter, r *http.Request) (movementRequest, bool) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return movementRequest{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return movementRequest{}, false
	}
	return req, true
}

func (req movementRequest) toInput() (MovementInput, error) {
	unitCost, err := parseDecimal(req.UnitCost)
	if err != nil {
		return MovementInput{}, errors.New("invalid unit_cost")
	}
	return MovementInput{
		ItemID:        req.ItemID,
		LocationID:    req.LocationID,
		Quantity:      req.Quantity,
		UnitCost:      unitCost,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Reason:        req.Reason,
		Notes:         req.Notes,
		PerformedBy:   req.PerformedBy,
	}, nil
}

// respondErr maps ledger errors onto the transport taxonomy.
func (h *Handler) respondErr(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrSameLocation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrOverReceipt):
		httpx.Problem(w, http.StatusConflict, "Over Receipt", err.Error())
	case errors.Is(err, ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func postResultResponse(result PostResult) map[string]any {
	resp := map[string]any{
		"movement":   movementResponse(result.Movement),
		"stock":      locationStockResponse(result.Stock),
		"item_total": result.ItemTotal,
	}
	if len(result.Allocations) > 0 {
		allocs := make([]map[string]any, 0, len(result.Allocations))
		for _, a := range result.Allocations {
			allocs = append(allocs, map[string]any{"lot_id": a.LotID, "lot_number": a.LotNumber, "quantity": a.Quantity})
		}
		resp["lot_allocations"] = allocs
	}
	return resp
}

func movementResponse(m Movement) map[string]any {
	resp := map[string]any{
		"id":              m.ID,
		"movement_number": m.Number,
		"item_id":         m.ItemID,
		"location_id":     m.LocationID,
		"movement_type":   m.Type,
		"quantity":        m.Quantity,
		"previous_stock":  m.PreviousStock,
		"new_stock":       m.NewStock,
		"performed_by":    m.PerformedBy,
		"created_at":      m.CreatedAt,
	}
	if m.LotID != 0 {
		resp["lot_id"] = m.LotID
	}
	if !m.UnitCost.IsZero() {
		resp["unit_cost"] = m.UnitCost
		resp["total_cost"] = m.TotalCost
	}
	if m.ReferenceType != "" {
		resp["reference_type"] = m.ReferenceType
		resp["reference_id"] = m.ReferenceID
	}
	if m.DestinationLocationID != 0 {
		resp["destination_location_id"] = m.DestinationLocationID
	}
	if m.Reason != "" {
		resp["reason"] = m.Reason
	}
	return resp
}

func locationStockResponse(ls LocationStock) map[string]any {
	resp := map[string]any{
		"location_id":   ls.LocationID,
		"item_id":       ls.ItemID,
		"current_stock": ls.CurrentStock,
	}
	if !ls.LastCountedAt.IsZero() {
		resp["last_counted_at"] = ls.LastCountedAt
		resp["last_counted_by"] = ls.LastCountedBy
	}
	return resp
}

func lotResponse(lot Lot) map[string]any {
	resp := map[string]any{
		"id":            lot.ID,
		"lot_number":    lot.Number,
		"item_id":       lot.ItemID,
		"location_id":   lot.LocationID,
		"quantity":      lot.Quantity,
		"remaining_qty": lot.RemainingQty,
		"cost_price":    lot.CostPrice,
		"received_date": lot.ReceivedDate,
		"status":        lot.Status,
	}
	if !lot.ExpiryDate.IsZero() {
		resp["expiry_date"] = lot.ExpiryDate.Format("2006-01-02")
	}
	if lot.SupplierID != 0 {
		resp["supplier_id"] = lot.SupplierID
	}
	if lot.PurchaseOrderID != 0 {
		resp["purchase_order_id"] = lot.PurchaseOrderID
	}
	return resp
}

func expiringResponse(lots []ExpiringLot) []map[string]any {
	out := make([]map[string]any, 0, len(lots))
	for _, entry := range lots {
		resp := lotResponse(entry.Lot)
		resp["days_left"] = entry.DaysLeft
		resp["urgency"] = entry.Urgency
		out = append(out, resp)
	}
	return out
}

func countResultResponse(result CountResult) map[string]any {
	lines := make([]map[string]any, 0, len(result.Lines))
	for _, line := range result.Lines {
		entry := map[string]any{
			"item_id":     line.ItemID,
			"system_qty":  line.SystemQty,
			"counted_qty": line.CountedQty,
			"difference":  line.Difference,
		}
		if line.MovementID != 0 {
			entry["movement_id"] = line.MovementID
			entry["movement_number"] = line.MovementNumber
		}
		if line.Err != nil {
			entry["error"] = line.Err.Error()
		}
		lines = append(lines, entry)
	}
	return map[string]any{
		"location_id": result.LocationID,
		"counted_at":  result.CountedAt,
		"lines":       lines,
	}
}

func parseDecimal(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Decimal{}, nil
	}
	return decimal.NewFromString(value)
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}
