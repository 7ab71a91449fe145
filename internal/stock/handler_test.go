package stock

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	_ "github.com/larder-erp/larder-erp/testing"
)

func newTestRouter(repo *memoryRepo) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, newTestService(repo))
	r := chi.NewRouter()
	r.Route("/stock", handler.MountRoutes)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAdjustmentEndpointCreatesMovement(t *testing.T) {
	router := newTestRouter(seedRepo())

	rec := doJSON(t, router, http.MethodPost, "/stock/adjustments", map[string]any{
		"item_id": 1, "location_id": 10, "quantity": 12.5, "reason": "opening", "performed_by": 7,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Movement struct {
			Number   string  `json:"movement_number"`
			NewStock float64 `json:"new_stock"`
		} `json:"movement"`
		ItemTotal float64 `json:"item_total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp.Movement.Number, "MOV-")
	require.InDelta(t, 12.5, resp.Movement.NewStock, qtyEpsilon)
	require.InDelta(t, 12.5, resp.ItemTotal, qtyEpsilon)
}

func TestAdjustmentEndpointRejectsMissingFields(t *testing.T) {
	router := newTestRouter(seedRepo())

	rec := doJSON(t, router, http.MethodPost, "/stock/adjustments", map[string]any{"quantity": 3})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestAdjustmentEndpointOverdrawConflicts(t *testing.T) {
	router := newTestRouter(seedRepo())

	rec := doJSON(t, router, http.MethodPost, "/stock/adjustments", map[string]any{
		"item_id": 1, "location_id": 10, "quantity": -4, "performed_by": 7,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestTransferEndpoint(t *testing.T) {
	repo := seedRepo()
	router := newTestRouter(repo)

	rec := doJSON(t, router, http.MethodPost, "/stock/adjustments", map[string]any{
		"item_id": 1, "location_id": 10, "quantity": 20, "performed_by": 7,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/stock/transfers", map[string]any{
		"item_id": 1, "source_location_id": 10, "destination_location_id": 20,
		"quantity": 8, "performed_by": 7,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Out struct {
			Stock struct {
				CurrentStock float64 `json:"current_stock"`
			} `json:"stock"`
		} `json:"out"`
		In struct {
			Stock struct {
				CurrentStock float64 `json:"current_stock"`
			} `json:"stock"`
		} `json:"in"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.InDelta(t, 12.0, resp.Out.Stock.CurrentStock, qtyEpsilon)
	require.InDelta(t, 8.0, resp.In.Stock.CurrentStock, qtyEpsilon)
}

func TestTransferEndpointSameLocation(t *testing.T) {
	router := newTestRouter(seedRepo())

	rec := doJSON(t, router, http.MethodPost, "/stock/transfers", map[string]any{
		"item_id": 1, "source_location_id": 10, "destination_location_id": 10,
		"quantity": 5, "performed_by": 7,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLevelsEndpointRequiresParams(t *testing.T) {
	router := newTestRouter(seedRepo())

	rec := doJSON(t, router, http.MethodGet, "/stock/levels", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLevelsEndpointReturnsZeroRowForUnseenPair(t *testing.T) {
	router := newTestRouter(seedRepo())

	rec := doJSON(t, router, http.MethodGet, "/stock/levels?item_id=1&location_id=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		CurrentStock float64 `json:"current_stock"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Zero(t, resp.CurrentStock)
}

func TestListMovementsEndpointRequiresItem(t *testing.T) {
	router := newTestRouter(seedRepo())

	rec := doJSON(t, router, http.MethodGet, "/stock/movements", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMovementEndpointRejectsTransferType(t *testing.T) {
	router := newTestRouter(seedRepo())

	rec := doJSON(t, router, http.MethodPost, "/stock/movements", map[string]any{
		"item_id": 1, "location_id": 10, "quantity": 5,
		"movement_type": "TRANSFER_OUT", "performed_by": 7,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
