package purchasing

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
	"github.com/larder-erp/larder-erp/internal/stock"
)

// Handler wires HTTP endpoints for purchase orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the purchasing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{orderID}", h.handleGet)
	r.Patch("/{orderID}/status", h.handleUpdateStatus)
	r.Post("/{orderID}/receive", h.handleReceive)
}

type createOrderRequest struct {
	Number       string             `json:"po_number"`
	SupplierID   int64              `json:"supplier_id" validate:"required"`
	LocationID   int64              `json:"location_id" validate:"required"`
	ExpectedDate string             `json:"expected_date"`
	TaxRate      string             `json:"tax_rate"`
	Notes        string             `json:"notes"`
	CreatedBy    int64              `json:"created_by" validate:"required"`
	Lines        []orderLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type orderLineRequest struct {
	ItemID    int64   `json:"item_id" validate:"required"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice string  `json:"unit_price"`
	Notes     string  `json:"notes"`
}

type updateStatusRequest struct {
	Status  string `json:"status" validate:"required"`
	ActorID int64  `json:"actor_id" validate:"required"`
}

type receiveRequest struct {
	Notes       string               `json:"notes"`
	PerformedBy int64                `json:"performed_by" validate:"required"`
	Lines       []receiveLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type receiveLineRequest struct {
	LineID     int64   `json:"line_id" validate:"required"`
	Quantity   float64 `json:"quantity" validate:"required,gt=0"`
	LotNumber  string  `json:"lot_number"`
	ExpiryDate string  `json:"expiry_date"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	taxRate, err := parseDecimal(req.TaxRate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid tax_rate")
		return
	}
	expected, err := parseDate(req.ExpectedDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expected_date")
		return
	}

	input := CreateOrderInput{
		Number:       req.Number,
		SupplierID:   req.SupplierID,
		LocationID:   req.LocationID,
		ExpectedDate: expected,
		TaxRate:      taxRate,
		Notes:        req.Notes,
		CreatedBy:    req.CreatedBy,
	}
	for _, line := range req.Lines {
		price, err := parseDecimal(line.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid unit_price")
			return
		}
		input.Lines = append(input.Lines, OrderLineInput{
			ItemID:    line.ItemID,
			Quantity:  line.Quantity,
			UnitPrice: price,
			Notes:     line.Notes,
		})
	}

	order, lines, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		h.respondErr(w, "create purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, orderResponse(order, lines))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := OrderFilter{Status: OrderStatus(q.Get("status"))}
	filter.SupplierID, _ = strconv.ParseInt(q.Get("supplier_id"), 10, 64)
	filter.LocationID, _ = strconv.ParseInt(q.Get("location_id"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	orders, err := h.service.ListOrders(r.Context(), filter, shared.Pagination{Page: page, PerPage: perPage})
	if err != nil {
		h.respondErr(w, "list purchase orders", err)
		return
	}
	out := make([]map[string]any, 0, len(orders))
	for _, order := range orders {
		out = append(out, orderHeaderResponse(order))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || orderID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	order, lines, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.respondErr(w, "get purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse(order, lines))
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || orderID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), orderID, OrderStatus(req.Status), req.ActorID)
	if err != nil {
		h.respondErr(w, "update purchase order status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderHeaderResponse(order))
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil || orderID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid order id")
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := ReceiveInput{OrderID: orderID, Notes: req.Notes, PerformedBy: req.PerformedBy}
	for _, line := range req.Lines {
		expiry, err := parseDate(line.ExpiryDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid expiry_date")
			return
		}
		input.Lines = append(input.Lines, ReceiveLineInput{
			LineID:     line.LineID,
			Quantity:   line.Quantity,
			LotNumber:  line.LotNumber,
			ExpiryDate: expiry,
		})
	}

	result, err := h.service.ReceiveGoods(r.Context(), input)
	if err != nil {
		h.respondErr(w, "receive goods", err)
		return
	}

	lines := make([]map[string]any, 0, len(result.Lines))
	for _, line := range result.Lines {
		entry := map[string]any{
			"line_id":  line.LineID,
			"item_id":  line.ItemID,
			"quantity": line.Quantity,
		}
		if line.MovementNumber != "" {
			entry["movement_number"] = line.MovementNumber
		}
		if line.LotNumber != "" {
			entry["lot_number"] = line.LotNumber
		}
		if line.Err != nil {
			entry["error"] = line.Err.Error()
		}
		lines = append(lines, entry)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"order": orderHeaderResponse(result.Order),
		"lines": lines,
	})
}

func (h *Handler) respondErr(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotReceivable), errors.Is(err, ErrNotEditable):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid State", err.Error())
	case errors.Is(err, stock.ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func orderHeaderResponse(order PurchaseOrder) map[string]any {
	resp := map[string]any{
		"id":          order.ID,
		"po_number":   order.Number,
		"supplier_id": order.SupplierID,
		"location_id": order.LocationID,
		"status":      order.Status,
		"subtotal":    order.Subtotal,
		"tax_amount":  order.TaxAmount,
		"total":       order.Total,
		"created_by":  order.CreatedBy,
		"created_at":  order.CreatedAt,
		"updated_at":  order.UpdatedAt,
	}
	if !order.OrderDate.IsZero() {
		resp["order_date"] = order.OrderDate
	}
	if !order.ExpectedDate.IsZero() {
		resp["expected_date"] = order.ExpectedDate.Format("2006-01-02")
	}
	if !order.ReceivedDate.IsZero() {
		resp["received_date"] = order.ReceivedDate
	}
	if order.ApprovedBy != 0 {
		resp["approved_by"] = order.ApprovedBy
		resp["approved_at"] = order.ApprovedAt
	}
	if order.Notes != "" {
		resp["notes"] = order.Notes
	}
	return resp
}

func orderResponse(order PurchaseOrder, lines []OrderLine) map[string]any {
	resp := orderHeaderResponse(order)
	out := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		out = append(out, map[string]any{
			"id":           line.ID,
			"item_id":      line.ItemID,
			"quantity":     line.Quantity,
			"received_qty": line.ReceivedQty,
			"unit_price":   line.UnitPrice,
			"line_total":   line.LineTotal,
		})
	}
	resp["lines"] = out
	return resp
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
