package scheduler

import (
	"context"
	"time"

	"leadcrm_backend/platform/logger"
)

const (
	defaultDispatchInterval = 2 * time.Second
	defaultDispatchBatch    = 50
)

// Dispatcher claims due nurturing steps and enqueues them for the worker.
type Dispatcher struct {
	store    Store
	enqueuer Enqueuer
	log      *logger.Logger
	interval time.Duration
	batch    int
	now      func() time.Time
}

func NewDispatcher(store Store, enqueuer Enqueuer, log *logger.Logger, interval time.Duration, batch int) *Dispatcher {
	if interval <= 0 {
		interval = defaultDispatchInterval
	}
	if batch <= 0 {
		batch = defaultDispatchBatch
	}
	return &Dispatcher{
		store:    store,
		enqueuer: enqueuer,
		log:      log,
		interval: interval,
		batch:    batch,
		now:      time.Now,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	if d == nil || d.store == nil || d.enqueuer == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		d.dispatch(ctx)
	}
}

// dispatch runs one claim round and returns how many steps were enqueued.
func (d *Dispatcher) dispatch(ctx context.Context) int {
	states, err := d.store.ClaimDueNurturing(ctx, d.now(), d.batch)
	if err != nil {
		d.log.Warn("nurturing claim failed", "error", err)
		return 0
	}

	enqueued := 0
	for _, st := range states {
		if st.NextSendAt == nil {
			continue
		}
		payload := NurturingStepDuePayload{LeadID: st.LeadID, Step: st.CurrentStep, ScheduledAt: *st.NextSendAt}
		if err := d.enqueuer.EnqueueNurturingStep(ctx, payload); err != nil {
			d.log.Warn("nurturing enqueue failed", "error", err, "leadId", st.LeadID, "step", st.CurrentStep)
			if err := d.store.RestoreNextSendAt(ctx, st.LeadID, *st.NextSendAt); err != nil {
				d.log.Error("failed to restore nurturing send time", "error", err, "leadId", st.LeadID)
			}
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		d.log.Debug("nurturing steps dispatched", "count", enqueued)
	}
	return enqueued
}
