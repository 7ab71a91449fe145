package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/larder-erp/larder-erp/internal/jobs"
)

// AlertWarmer recomputes the low-stock alert cache.
type AlertWarmer interface {
	Warm(ctx context.Context) (int, error)
}

// AlertsWarmupJob keeps the low-stock alert cache hot so interactive reads
// never pay for the scan.
type AlertsWarmupJob struct {
	Alerts  AlertWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAlertsWarmupJob initialises the warmup handler.
func NewAlertsWarmupJob(alerts AlertWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *AlertsWarmupJob {
	return &AlertsWarmupJob{Alerts: alerts, Logger: logger, Metrics: metrics}
}

// Handle executes the warmup.
func (j *AlertsWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Alerts == nil {
		return errors.New("alerts warmup: handler not configured")
	}

	tracker := j.metrics().Track(TaskAlertsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	count, err := j.Alerts.Warm(ctx)
	if err != nil {
		resultErr = err
		j.logger().Error("warmup failed", slog.Any("error", err))
		return resultErr
	}

	j.logger().Info("alert cache warmed", slog.Int("low_stock_items", count))
	return resultErr
}

func (j *AlertsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAlertsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskAlertsWarmup))
}

func (j *AlertsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}
