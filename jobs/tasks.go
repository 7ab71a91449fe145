package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockExpirySweep marks expired lots and surfaces what spoiled.
	TaskStockExpirySweep = "stock:expiry_sweep"
	// TaskAlertsWarmup recomputes the low-stock alert cache.
	TaskAlertsWarmup = "alerts:warmup"
	// TaskIdempotencyCleanup prunes stale idempotency claims.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// ExpirySweepPayload tunes the expiry sweep run.
type ExpirySweepPayload struct {
	// GraceDays keeps lots alive for N days past expiry before marking them.
	GraceDays int `json:"grace_days"`
}

// NewExpirySweepTask constructs the expiry sweep task.
func NewExpirySweepTask(payload ExpirySweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockExpirySweep, data), nil
}

// NewAlertsWarmupTask constructs the alerts warmup task.
func NewAlertsWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskAlertsWarmup, nil)
}

// IdempotencyCleanupPayload tunes the cleanup window.
type IdempotencyCleanupPayload struct {
	// MaxAgeHours drops claims older than this. Defaults to 48.
	MaxAgeHours int `json:"max_age_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
