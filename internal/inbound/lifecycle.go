package inbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadcrm_backend/internal/followups"
	"leadcrm_backend/internal/leads/repository"
	"leadcrm_backend/internal/nurturing"
	"leadcrm_backend/platform/sanitize"
)

const (
	// DefaultLeadName is used when the contact has no usable display name.
	DefaultLeadName  = "Lead WhatsApp"
	leadNameMaxRunes = 60

	defaultStageCode  = "NEW"
	defaultStageName  = "New"
	defaultStatusCode = "NEW"
	defaultStatusName = "New"
	sourceCode        = "WHATSAPP"
	sourceName        = "WhatsApp"

	autoAssignNote = "Otomatis dari pesan WhatsApp masuk"
)

// resolveLead finds the agent's lead by phone, then by chat thread, and
// creates one when neither matches. A lead found without a phone gets the
// resolved phone backfilled; a phone that is already set is never replaced.
func (s *Service) resolveLead(ctx context.Context, sales repository.SalesUser, senderPhone, chatID, displayName string) (repository.Lead, bool, error) {
	if senderPhone != "" {
		lead, err := s.store.FindLeadByPhone(ctx, sales.ID, senderPhone)
		if err == nil {
			return lead, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return repository.Lead{}, false, fmt.Errorf("find lead by phone: %w", err)
		}
	}

	if chatID != "" {
		lead, err := s.store.FindLeadByChatID(ctx, sales.ID, chatID)
		if err == nil {
			if lead.Phone == nil && senderPhone != "" {
				updated, err := s.store.BackfillLeadPhone(ctx, lead.ID, senderPhone)
				if err != nil {
					return repository.Lead{}, false, fmt.Errorf("backfill lead phone: %w", err)
				}
				if updated {
					p := senderPhone
					lead.Phone = &p
				}
			}
			return lead, false, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return repository.Lead{}, false, fmt.Errorf("find lead by chat id: %w", err)
		}
	}

	lead, err := s.createLead(ctx, sales, senderPhone, displayName)
	if err != nil {
		return repository.Lead{}, false, err
	}
	return lead, true, nil
}

// leadDefaults are resolved before the transaction opens.
type leadDefaults struct {
	stage      *repository.LookupValue
	status     *repository.LookupValue
	source     *repository.LookupValue
	planID     string
	nextSendAt *time.Time
}

func (s *Service) resolveDefaults(ctx context.Context, createdAt time.Time) (leadDefaults, error) {
	var d leadDefaults
	var err error

	if d.stage, err = optionalLookup(s.store.LookupStage(ctx, defaultStageCode, defaultStageName)); err != nil {
		return d, fmt.Errorf("lookup default stage: %w", err)
	}
	if d.status, err = optionalLookup(s.store.LookupStatus(ctx, defaultStatusCode, defaultStatusName)); err != nil {
		return d, fmt.Errorf("lookup default status: %w", err)
	}
	if d.source, err = optionalLookup(s.store.LookupSource(ctx, sourceCode, sourceName)); err != nil {
		return d, fmt.Errorf("lookup whatsapp source: %w", err)
	}

	if s.plans == nil {
		return d, nil
	}
	attrs := nurturing.LeadAttributes{StatusCode: defaultStatusCode}
	if d.status != nil {
		attrs.StatusCode = d.status.Code
	}
	if d.source != nil {
		attrs.SourceID = &d.source.ID
	}
	planID, ok := s.plans.PickPlanForLead(attrs)
	if !ok {
		return d, nil
	}
	hours, ok := s.plans.FirstStepDelayHours(planID)
	if !ok {
		return d, nil
	}
	next := createdAt.Add(time.Duration(hours) * time.Hour)
	d.planID = planID
	d.nextSendAt = &next
	return d, nil
}

// createLead writes the lead and everything it starts with in one transaction:
// follow-ups, a PAUSED nurturing state and the initial stage/status history.
func (s *Service) createLead(ctx context.Context, sales repository.SalesUser, senderPhone, displayName string) (repository.Lead, error) {
	createdAt := s.now()

	// lookups stay outside the transaction to keep it short
	defaults, err := s.resolveDefaults(ctx, createdAt)
	if err != nil {
		return repository.Lead{}, err
	}

	var lead repository.Lead
	err = s.store.InTx(ctx, func(tx Store) error {
		var err error
		lead, err = tx.CreateLead(ctx, repository.CreateLeadParams{
			Name:      sanitize.DisplayName(displayName, leadNameMaxRunes, DefaultLeadName),
			Phone:     optional(senderPhone),
			SalesID:   sales.ID,
			StageID:   lookupID(defaults.stage),
			StatusID:  lookupID(defaults.status),
			SourceID:  lookupID(defaults.source),
			CreatedAt: createdAt,
		})
		if err != nil {
			return fmt.Errorf("create lead: %w", err)
		}

		seeded, err := followups.CreateAutoFollowUps(ctx, tx, lead.ID, sales.ID, lead.CreatedAt)
		if err != nil {
			return fmt.Errorf("seed follow-ups: %w", err)
		}
		if len(seeded) > 0 {
			if err := tx.AddActivity(ctx, repository.ActivityParams{
				LeadID:      lead.ID,
				Kind:        repository.ActivityFollowUpScheduled,
				Title:       "Follow up otomatis dibuat",
				Description: followups.CadenceSummary(seeded),
				Metadata:    map[string]any{"source": "whatsapp_inbound", "startAt": lead.CreatedAt},
			}); err != nil {
				return fmt.Errorf("log follow-up activity: %w", err)
			}
		}

		reason := repository.PauseReasonInboundRecent
		if _, err := tx.CreateNurturingState(ctx, repository.CreateNurturingStateParams{
			LeadID:      lead.ID,
			Status:      repository.NurturingPaused,
			PauseReason: &reason,
			PausedAt:    &createdAt,
		}); err != nil {
			return fmt.Errorf("create nurturing state: %w", err)
		}
		if defaults.planID != "" {
			if err := tx.AssignNurturingPlan(ctx, lead.ID, defaults.planID, *defaults.nextSendAt); err != nil {
				return fmt.Errorf("assign nurturing plan: %w", err)
			}
		}

		if err := tx.InsertStageHistory(ctx, repository.HistoryParams{LeadID: lead.ID, ValueID: lookupID(defaults.stage), Note: autoAssignNote}); err != nil {
			return fmt.Errorf("insert stage history: %w", err)
		}
		if err := tx.InsertStatusHistory(ctx, repository.HistoryParams{LeadID: lead.ID, ValueID: lookupID(defaults.status), Note: autoAssignNote}); err != nil {
			return fmt.Errorf("insert status history: %w", err)
		}
		return nil
	})
	if err != nil {
		return repository.Lead{}, err
	}

	s.metrics.LeadCreated()
	s.log.WithContext(ctx).Info("lead created from whatsapp", "leadId", lead.ID, "salesId", sales.ID, "planId", defaults.planID)
	return lead, nil
}

func optionalLookup(v repository.LookupValue, err error) (*repository.LookupValue, error) {
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func lookupID(v *repository.LookupValue) *int64 {
	if v == nil {
		return nil
	}
	id := v.ID
	return &id
}
