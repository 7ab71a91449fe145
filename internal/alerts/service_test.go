package alerts

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/larder-erp/larder-erp/internal/stock"
)

type mockRepo struct {
	alerts   map[int64][]LowStockAlert
	calls    int
	lastLoc  int64
	fallback []LowStockAlert
}

func (m *mockRepo) ListLowStock(ctx context.Context, locationID int64) ([]LowStockAlert, error) {
	m.calls++
	m.lastLoc = locationID
	source := m.fallback
	if scoped, ok := m.alerts[locationID]; ok {
		source = scoped
	}
	result := make([]LowStockAlert, len(source))
	copy(result, source)
	return result, nil
}

type mockExpiry struct {
	report stock.ExpiryReport
	days   int
}

func (m *mockExpiry) ListExpiring(ctx context.Context, withinDays int, locationID int64) (stock.ExpiryReport, error) {
	m.days = withinDays
	return m.report, nil
}

func newTestService(t *testing.T, repo *mockRepo) (*Service, *mockExpiry) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	expiry := &mockExpiry{}
	return NewService(repo, expiry, NewCache(client, time.Minute)), expiry
}

func TestLowStockClassifiesSeverity(t *testing.T) {
	repo := &mockRepo{fallback: []LowStockAlert{
		{ItemID: 1, SKU: "FLR-001", CurrentStock: 0, MinimumStock: 10, ReorderQty: 25},
		{ItemID: 2, SKU: "MLK-002", CurrentStock: 3, MinimumStock: 5, ReorderQty: 12},
	}}
	svc, _ := newTestService(t, repo)

	alerts, err := svc.LowStock(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	require.Equal(t, SeverityOut, alerts[0].Severity)
	require.InDelta(t, 10.0, alerts[0].Deficit, 1e-9)
	require.Equal(t, SeverityLow, alerts[1].Severity)
	require.InDelta(t, 2.0, alerts[1].Deficit, 1e-9)
}

func TestLowStockScopedToLocation(t *testing.T) {
	repo := &mockRepo{alerts: map[int64][]LowStockAlert{
		0: {
			{ItemID: 1, SKU: "FLR-001", CurrentStock: 8, MinimumStock: 10},
			{ItemID: 2, SKU: "MLK-002", CurrentStock: 2, MinimumStock: 5},
		},
		3: {
			{ItemID: 2, LocationID: 3, SKU: "MLK-002", CurrentStock: 0, MinimumStock: 5},
		},
	}}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	global, err := svc.LowStock(ctx, 0)
	require.NoError(t, err)
	require.Len(t, global, 2)

	scoped, err := svc.LowStock(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, int64(3), repo.lastLoc)
	require.Len(t, scoped, 1)
	require.Equal(t, int64(3), scoped[0].LocationID)
	require.Equal(t, SeverityOut, scoped[0].Severity)

	// the two scopes cache under separate keys
	_, err = svc.LowStock(ctx, 0)
	require.NoError(t, err)
	_, err = svc.LowStock(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
}

func TestLowStockCachesUntilInvalidated(t *testing.T) {
	repo := &mockRepo{fallback: []LowStockAlert{{ItemID: 1, CurrentStock: 1, MinimumStock: 4}}}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.LowStock(ctx, 0)
	require.NoError(t, err)
	_, err = svc.LowStock(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, repo.calls)

	require.NoError(t, svc.Invalidate(ctx))
	_, err = svc.LowStock(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
}

func TestWarmPrimesFreshGeneration(t *testing.T) {
	repo := &mockRepo{fallback: []LowStockAlert{{ItemID: 1, CurrentStock: 1, MinimumStock: 4}}}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.LowStock(ctx, 0)
	require.NoError(t, err)

	count, err := svc.Warm(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, 2, repo.calls)

	// interactive read after warmup hits the cache
	_, err = svc.LowStock(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
}

func TestExpiringDelegates(t *testing.T) {
	svc, expiry := newTestService(t, &mockRepo{})
	expiry.report = stock.ExpiryReport{Critical: []stock.ExpiringLot{{DaysLeft: 1, Urgency: stock.UrgencyCritical}}}

	report, err := svc.Expiring(context.Background(), 7, 0)
	require.NoError(t, err)
	require.Equal(t, 1, report.Total())
	require.Equal(t, 7, expiry.days)
}
