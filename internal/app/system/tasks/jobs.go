// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Job is a periodic maintenance task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// LeaseReleaser clears enrichment leases that expired before now.
type LeaseReleaser interface {
	ReleaseExpiredLeases(ctx context.Context, now time.Time) (int64, error)
}

// LeaseReaperJob creates a job that frees applications whose enrichment
// lease outlived the process holding it, so the next view retries the
// fiscal lookup. The lifecycle also ignores expired leases; this keeps the
// stored state tidy.
func LeaseReaperJob(store LeaseReleaser, logger *zap.Logger, interval time.Duration) Job {
	if interval <= 0 {
		interval = time.Minute
	}
	return Job{
		Name:     "enrichment-lease-reaper",
		Interval: interval,
		Run: func(ctx context.Context) error {
			count, err := store.ReleaseExpiredLeases(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			if count > 0 {
				logger.Info("released expired enrichment leases", zap.Int64("count", count))
			}
			return nil
		},
	}
}
