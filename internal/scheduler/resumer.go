package scheduler

import (
	"context"
	"fmt"
	"time"

	"leadcrm_backend/internal/leads/repository"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"

	"github.com/robfig/cron/v3"
)

const (
	DefaultResumeSchedule = "@every 1m"
	defaultQuietPeriod    = 24 * time.Hour
	resumeTimeout         = time.Minute
	defaultResumeBatch    = 100

	reasonQuietPeriod = "QUIET_PERIOD"
)

// Resumer reactivates nurturing that was paused by an inbound message once the
// lead has been silent for the quiet period. Manual pauses are left alone.
type Resumer struct {
	store    Store
	log      *logger.Logger
	metrics  *metrics.Metrics
	quiet    time.Duration
	schedule string
	batch    int
	now      func() time.Time
}

// NewResumer takes a cron spec such as "@every 1m" or "*/5 * * * *".
func NewResumer(store Store, log *logger.Logger, m *metrics.Metrics, quiet time.Duration, schedule string) *Resumer {
	if quiet <= 0 {
		quiet = defaultQuietPeriod
	}
	if schedule == "" {
		schedule = DefaultResumeSchedule
	}
	return &Resumer{
		store:    store,
		log:      log,
		metrics:  m,
		quiet:    quiet,
		schedule: schedule,
		batch:    defaultResumeBatch,
		now:      time.Now,
	}
}

// Run resumes once immediately, then on every schedule tick until ctx ends.
func (r *Resumer) Run(ctx context.Context) error {
	if r == nil || r.store == nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() {
		jobCtx, cancel := context.WithTimeout(ctx, resumeTimeout)
		defer cancel()
		r.resume(jobCtx)
	}); err != nil {
		return fmt.Errorf("invalid resume schedule %q: %w", r.schedule, err)
	}

	r.resume(ctx)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (r *Resumer) resume(ctx context.Context) int {
	now := r.now()
	resumed, err := r.store.ResumeQuietNurturing(ctx, now.Add(-r.quiet), now, r.batch)
	if err != nil {
		r.log.Warn("nurturing resume failed", "error", err)
		return 0
	}

	for range resumed {
		r.metrics.NurturingTransition(repository.NurturingActive, reasonQuietPeriod)
	}
	if len(resumed) > 0 {
		r.log.Info("nurturing resumed after quiet period", "count", len(resumed))
	}
	return len(resumed)
}
