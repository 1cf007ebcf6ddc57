package inbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadcrm_backend/internal/leads/repository"
	"leadcrm_backend/internal/nurturing"
)

// applyOptOut stops nurturing when the message is a keyword reply to a recent
// nurturing send. It reports whether the lead opted out.
func (s *Service) applyOptOut(ctx context.Context, sales repository.SalesUser, lead repository.Lead, senderPhone, body string, inboundAt time.Time) (bool, error) {
	if !nurturing.ContainsOptOutKeyword(body) {
		return false, nil
	}

	state, err := s.store.GetNurturingState(ctx, lead.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load nurturing state: %w", err)
	}

	lastSent, err := s.store.LastNurturingSentAt(ctx, lead.ID)
	if err != nil {
		return false, fmt.Errorf("load last nurturing message: %w", err)
	}

	if !nurturing.ShouldHonorOptOut(nurturing.OptOutCheck{
		Body:            body,
		Status:          nurturing.Status(state.Status),
		LastNurturingAt: lastSent,
		InboundAt:       inboundAt,
		Window:          s.optOutWindow,
	}) {
		return false, nil
	}

	now := s.now()
	stopped := false
	err = s.store.InTx(ctx, func(tx Store) error {
		changed, err := tx.StopNurturing(ctx, lead.ID, now)
		if err != nil {
			return fmt.Errorf("stop nurturing: %w", err)
		}
		if !changed {
			return nil
		}
		stopped = true
		if err := tx.InsertOptOut(ctx, repository.InsertOptOutParams{
			LeadID:  lead.ID,
			SalesID: sales.ID,
			Phone:   optional(firstNonEmpty(senderPhone, deref(lead.Phone))),
			Message: body,
			Channel: repository.ChannelWhatsApp,
		}); err != nil {
			return fmt.Errorf("insert opt-out: %w", err)
		}
		return tx.AddActivity(ctx, repository.ActivityParams{
			LeadID:      lead.ID,
			Kind:        repository.ActivityNurturingOptOut,
			Title:       "Lead berhenti menerima pesan otomatis",
			Description: fmt.Sprintf("%s membalas %q setelah pesan nurturing. Nurturing dihentikan permanen.", lead.Name, body),
			Metadata: map[string]any{
				"channel":         repository.ChannelWhatsApp,
				"lastNurturingAt": lastSent,
				"inboundAt":       inboundAt,
			},
		})
	})
	if err != nil {
		return false, err
	}
	if !stopped {
		s.log.WithContext(ctx).Info("opt-out ignored, nurturing state changed concurrently", "leadId", lead.ID)
		return false, nil
	}

	s.metrics.NurturingTransition(repository.NurturingStopped, repository.PauseReasonManualToggle)
	s.log.WithContext(ctx).Info("lead opted out of nurturing", "leadId", lead.ID, "salesId", sales.ID)
	return true, nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
