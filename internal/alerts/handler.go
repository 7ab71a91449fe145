package alerts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/larder-erp/larder-erp/internal/platform/httpx"
	"github.com/larder-erp/larder-erp/internal/stock"
)

// Handler serves alert endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers alert routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/low-stock", h.handleLowStock)
	r.Get("/expiring", h.handleExpiring)
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)

	alerts, err := h.service.LowStock(r.Context(), locationID)
	if err != nil {
		h.logger.Error("low stock alerts", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if alerts == nil {
		alerts = []LowStockAlert{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (h *Handler) handleExpiring(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	locationID, _ := strconv.ParseInt(r.URL.Query().Get("location_id"), 10, 64)

	report, err := h.service.Expiring(r.Context(), days, locationID)
	if err != nil {
		h.logger.Error("expiring alerts", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"critical": expiringEntries(report.Critical),
		"warning":  expiringEntries(report.Warning),
		"upcoming": expiringEntries(report.Upcoming),
		"total":    report.Total(),
	})
}

func expiringEntries(lots []stock.ExpiringLot) []map[string]any {
	out := make([]map[string]any, 0, len(lots))
	for _, entry := range lots {
		out = append(out, map[string]any{
			"lot_id":        entry.Lot.ID,
			"lot_number":    entry.Lot.Number,
			"item_id":       entry.Lot.ItemID,
			"location_id":   entry.Lot.LocationID,
			"remaining_qty": entry.Lot.RemainingQty,
			"expiry_date":   entry.Lot.ExpiryDate.Format("2006-01-02"),
			"days_left":     entry.DaysLeft,
			"urgency":       entry.Urgency,
		})
	}
	return out
}
