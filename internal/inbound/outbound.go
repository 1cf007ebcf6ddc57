package inbound

import (
	"context"
	"fmt"
	"strings"

	"leadcrm_backend/internal/leads/repository"
	"leadcrm_backend/internal/whatsapp"
)

// DefaultOptOutConfirmation is sent when no confirmation text is configured.
const DefaultOptOutConfirmation = "Baik, kami tidak akan mengirim pesan otomatis lagi. Anda tetap bisa menghubungi kami kapan saja."

const (
	kindOptOutConfirmation = "optout_confirmation"
	kindWelcome            = "welcome"
)

func (s *Service) sendOptOutConfirmation(ctx context.Context, sales repository.SalesUser, lead repository.Lead, chatID string, settings repository.GeneralSettings) bool {
	body := strings.TrimSpace(settings.OptOutConfirmation)
	if body == "" {
		body = DefaultOptOutConfirmation
	}
	body = whatsapp.Render(body, templateVars(sales, lead, settings))
	return s.sendAndRecord(ctx, kindOptOutConfirmation, sales, lead, chatID, body)
}

// sendWelcome greets a brand-new lead when welcome messages are enabled.
func (s *Service) sendWelcome(ctx context.Context, sales repository.SalesUser, lead repository.Lead, chatID string, settings repository.GeneralSettings) {
	if !settings.WelcomeEnabled || strings.TrimSpace(settings.WelcomeTemplate) == "" {
		return
	}
	body := whatsapp.Render(settings.WelcomeTemplate, templateVars(sales, lead, settings))
	if body == "" {
		return
	}
	s.sendAndRecord(ctx, kindWelcome, sales, lead, chatID, body)
}

// sendAndRecord sends a message outside any transaction and stores it as
// OUTBOUND. Failures are logged and never propagated; the result reports
// whether the message left the gateway.
func (s *Service) sendAndRecord(ctx context.Context, kind string, sales repository.SalesUser, lead repository.Lead, chatID, body string) bool {
	log := s.log.WithContext(ctx).With("kind", kind, "leadId", lead.ID, "salesId", sales.ID)
	if s.sender == nil {
		log.Warn("outbound whatsapp skipped: no sender")
		return false
	}

	to := firstNonEmpty(deref(lead.Phone), chatID)
	if to == "" {
		log.Warn("outbound whatsapp skipped: no recipient")
		return false
	}

	providerID, err := s.send(ctx, sales.ID, to, body, kind)
	s.metrics.OutboundSend(kind, err)
	if err != nil {
		log.Warn("outbound whatsapp failed", "error", err)
		return false
	}

	sentAt := s.now()
	if _, err := s.store.InsertMessage(ctx, repository.InsertMessageParams{
		LeadID:      lead.ID,
		SalesID:     sales.ID,
		WAMessageID: optional(providerID),
		Direction:   repository.DirectionOutbound,
		Content:     body,
		WAChatID:    optional(chatID),
		FromPhone:   sales.Phone,
		ToPhone:     lead.Phone,
		Status:      repository.MessageStatusSent,
		SentAt:      sentAt,
	}); err != nil {
		log.Warn("outbound whatsapp sent but not recorded", "error", err, "providerId", providerID)
	}
	if err := s.store.TouchLeadOutbound(ctx, lead.ID, sentAt); err != nil {
		log.Warn("failed to update lead outbound timestamp", "error", err)
	}
	return true
}

func (s *Service) send(ctx context.Context, salesID int64, to, body, kind string) (string, error) {
	if err := s.sender.EnsureSession(ctx, salesID); err != nil {
		return "", fmt.Errorf("ensure whatsapp session: %w", err)
	}
	return s.sender.SendMessage(ctx, whatsapp.OutboundMessage{
		SalesID: salesID,
		To:      to,
		Body:    body,
		Meta:    map[string]string{"kind": kind},
	})
}

func templateVars(sales repository.SalesUser, lead repository.Lead, settings repository.GeneralSettings) map[string]string {
	return map[string]string{
		"company": settings.CompanyName,
		"sales":   sales.Name,
		"name":    lead.Name,
	}
}
