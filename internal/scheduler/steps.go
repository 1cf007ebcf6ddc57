package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadcrm_backend/internal/leads/repository"
	"leadcrm_backend/internal/realtime"
	"leadcrm_backend/internal/whatsapp"
	"leadcrm_backend/platform/errtrack"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"

	"github.com/hibiken/asynq"
)

const (
	maxSendRetries = 3
	// retryDelay is how long a step waits after asynq gives up on it.
	retryDelay = 30 * time.Minute

	kindNurturing = "nurturing"
)

// StepHandler sends one due nurturing step.
type StepHandler struct {
	store    Store
	sender   Sender
	notifier Notifier
	catalog  StepCatalog
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewStepHandler(store Store, sender Sender, notifier Notifier, catalog StepCatalog, log *logger.Logger, m *metrics.Metrics) *StepHandler {
	return &StepHandler{
		store:    store,
		sender:   sender,
		notifier: notifier,
		catalog:  catalog,
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

// ProcessTask implements asynq.Handler.
func (h *StepHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseNurturingStepDuePayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return h.Handle(ctx, payload)
}

// Handle re-reads the state and sends the step only if the lead is still
// ACTIVE on the claimed step. Pauses and stops that landed after the claim win.
func (h *StepHandler) Handle(ctx context.Context, p NurturingStepDuePayload) error {
	log := h.log.WithContext(ctx).With("leadId", p.LeadID, "step", p.Step)

	state, err := h.store.GetNurturingState(ctx, p.LeadID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load nurturing state: %w", err)
	}
	if state.Status != repository.NurturingActive || state.CurrentStep != p.Step || state.PlanID == nil {
		log.Debug("nurturing step skipped", "status", state.Status, "currentStep", state.CurrentStep)
		return nil
	}
	planID := *state.PlanID

	step, ok := h.catalog.Step(planID, state.CurrentStep)
	if !ok {
		log.Warn("nurturing step not in catalog", "planId", planID)
		return nil
	}

	lead, err := h.store.GetLead(ctx, p.LeadID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load lead: %w", err)
	}
	if lead.IsExcluded {
		return nil
	}
	if lead.Phone == nil || *lead.Phone == "" {
		log.Warn("nurturing step skipped: lead has no phone")
		return nil
	}

	sales, err := h.store.GetSalesUser(ctx, lead.SalesID)
	if err != nil {
		return fmt.Errorf("load sales user: %w", err)
	}
	settings, err := h.store.GetGeneralSettings(ctx)
	if err != nil {
		log.Warn("failed to load general settings", "error", err)
	}

	body := whatsapp.Render(step.Template, map[string]string{
		"name":    lead.Name,
		"sales":   sales.Name,
		"company": settings.CompanyName,
	})

	providerID, err := h.send(ctx, sales.ID, *lead.Phone, body, step.Key)
	h.metrics.OutboundSend(kindNurturing, err)
	if err != nil {
		return h.sendFailed(ctx, log, p, err)
	}

	sentAt := h.now()
	if _, err := h.store.InsertMessage(ctx, repository.InsertMessageParams{
		LeadID:             lead.ID,
		SalesID:            sales.ID,
		WAMessageID:        optional(providerID),
		Direction:          repository.DirectionOutbound,
		Content:            body,
		FromPhone:          sales.Phone,
		ToPhone:            lead.Phone,
		Status:             repository.MessageStatusSent,
		IsNurturingMessage: true,
		SentAt:             sentAt,
	}); err != nil {
		log.Warn("nurturing message sent but not recorded", "error", err, "providerId", providerID)
	}

	var nextSendAt *time.Time
	if next, ok := h.catalog.Step(planID, state.CurrentStep+1); ok {
		at := sentAt.Add(time.Duration(next.DelayHours) * time.Hour)
		nextSendAt = &at
	}

	advanced, err := h.store.AdvanceNurturingStep(ctx, repository.AdvanceNurturingParams{
		LeadID:     lead.ID,
		FromStep:   state.CurrentStep,
		SentAt:     sentAt,
		MessageKey: step.Key,
		NextSendAt: nextSendAt,
	})
	if err != nil {
		// the message is out; a retry would send it twice
		errtrack.Capture(ctx, err, map[string]string{"component": "scheduler", "op": "advance_step"})
		return fmt.Errorf("advance nurturing step: %v: %w", err, asynq.SkipRetry)
	}
	if !advanced {
		log.Info("nurturing state changed while sending")
	}

	if err := h.store.TouchLeadOutbound(ctx, lead.ID, sentAt); err != nil {
		log.Warn("failed to update lead outbound timestamp", "error", err)
	}

	h.emit(ctx, lead, step.Key, sentAt)
	log.Info("nurturing step sent", "planId", planID, "messageKey", step.Key, "finished", nextSendAt == nil)
	return nil
}

func (h *StepHandler) send(ctx context.Context, salesID int64, to, body, key string) (string, error) {
	if h.sender == nil {
		return "", whatsapp.ErrNotConfigured
	}
	if err := h.sender.EnsureSession(ctx, salesID); err != nil {
		return "", fmt.Errorf("ensure whatsapp session: %w", err)
	}
	return h.sender.SendMessage(ctx, whatsapp.OutboundMessage{
		SalesID: salesID,
		To:      to,
		Body:    body,
		Meta:    map[string]string{"kind": kindNurturing, "key": key},
	})
}

// sendFailed returns the error so asynq retries. On the last attempt, or when
// running outside asynq, the step goes back to the dispatcher after retryDelay.
func (h *StepHandler) sendFailed(ctx context.Context, log *logger.Logger, p NurturingStepDuePayload, sendErr error) error {
	retried, inTask := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if !inTask || retried >= maxRetry {
		if err := h.store.RestoreNextSendAt(ctx, p.LeadID, h.now().Add(retryDelay)); err != nil {
			log.Error("failed to restore nurturing send time", "error", err)
		}
		errtrack.Capture(ctx, sendErr, map[string]string{"component": "scheduler", "op": "send_step"})
	}
	log.Warn("nurturing send failed", "error", sendErr, "attempt", retried)
	return fmt.Errorf("send nurturing step: %w", sendErr)
}

func (h *StepHandler) emit(ctx context.Context, lead repository.Lead, key string, at time.Time) {
	if h.notifier == nil {
		return
	}
	payload := map[string]any{"leadId": lead.ID, "messageKey": key, "at": at}
	for _, room := range []string{realtime.LeadRoom(lead.ID), realtime.SalesRoom(lead.SalesID)} {
		if err := h.notifier.Emit(ctx, room, realtime.EventNurturingSent, payload); err != nil {
			h.log.WithContext(ctx).Warn("realtime emit failed", "error", err, "room", room)
		}
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
