package quizforge

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// ProgressPruner deletes progress events older than a cutoff
type ProgressPruner interface {
	DeleteProgressBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PruneProgress removes events older than retention relative to now
func PruneProgress(ctx context.Context, p ProgressPruner, retention time.Duration, now time.Time) (int64, error) {
	n, err := p.DeleteProgressBefore(ctx, now.Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Infow("pruned progress events", "count", n, "retention", retention.String())
	}
	return n, nil
}

// StartRetention schedules hourly pruning and returns the running scheduler
func StartRetention(p ProgressPruner, retention time.Duration) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := PruneProgress(ctx, p, retention, time.Now()); err != nil {
			logger.Errorw("progress retention failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
