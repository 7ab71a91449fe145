package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/larder-erp/larder-erp/internal/jobs"
)

// CacheInvalidator bumps downstream caches after a sweep changed lot states.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ExpirySweepJob marks lots past their expiry date as EXPIRED.
type ExpirySweepJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Cache   CacheInvalidator
	clock   func() time.Time
}

// NewExpirySweepJob initialises the sweep handler.
func NewExpirySweepJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics, cache CacheInvalidator) *ExpirySweepJob {
	return &ExpirySweepJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		Cache:   cache,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the expiry sweep.
func (j *ExpirySweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("expiry sweep: handler not configured")
	}
	var payload ExpirySweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.GraceDays < 0 {
		payload.GraceDays = 0
	}

	tracker := j.metrics().Track(TaskStockExpirySweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().AddDate(0, 0, -payload.GraceDays).Truncate(24 * time.Hour)
	logger := j.logger().With(slog.Time("cutoff", cutoff))
	logger.Info("starting expiry sweep")

	rows, err := j.Pool.Query(ctx, `UPDATE inventory_lots
SET status='EXPIRED', updated_at=now()
WHERE status='AVAILABLE' AND expiry_date IS NOT NULL AND expiry_date < $1
RETURNING id, lot_number, item_id, location_id, remaining_qty`, cutoff)
	if err != nil {
		resultErr = err
		logger.Error("sweep failed", slog.Any("error", err))
		return resultErr
	}
	defer rows.Close()

	expired := 0
	for rows.Next() {
		var (
			id, itemID, locationID int64
			number                 string
			remaining              float64
		)
		if err := rows.Scan(&id, &number, &itemID, &locationID, &remaining); err != nil {
			resultErr = err
			return resultErr
		}
		expired++
		if remaining > 0 {
			logger.Warn("expired lot still holds stock",
				slog.String("lot", number),
				slog.Int64("item_id", itemID),
				slog.Int64("location_id", locationID),
				slog.Float64("remaining_qty", remaining),
			)
		}
	}
	if err := rows.Err(); err != nil {
		resultErr = err
		return resultErr
	}

	j.metrics().AddExpiredLots(expired)
	if expired > 0 && j.Cache != nil {
		if err := j.Cache.Invalidate(ctx); err != nil {
			logger.Warn("cache invalidation failed", slog.Any("error", err))
		}
	}

	logger.Info("completed expiry sweep", slog.Int("expired", expired))
	return resultErr
}

func (j *ExpirySweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockExpirySweep))
	}
	return slog.Default().With(slog.String("job", TaskStockExpirySweep))
}

func (j *ExpirySweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *ExpirySweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
