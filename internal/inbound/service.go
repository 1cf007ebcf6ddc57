// Package inbound processes WhatsApp messages delivered by the gateway webhook:
// it deduplicates deliveries, filters internal senders, resolves or creates the
// lead, records the message and drives the nurturing state machine.
package inbound

import (
	"context"
	"errors"
	"strings"
	"time"

	"leadcrm_backend/internal/leads/repository"
	"leadcrm_backend/internal/realtime"
	"leadcrm_backend/platform/apperr"
	"leadcrm_backend/platform/errtrack"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"
	"leadcrm_backend/platform/phone"
	"leadcrm_backend/platform/sanitize"
)

const (
	notifyPreviewMaxRunes = 120
	emitTimeout           = 2 * time.Second
)

// Options tunes the service. Zero values fall back to defaults.
type Options struct {
	OptOutWindow time.Duration
}

type Service struct {
	store        Store
	sender       Sender
	notifier     Notifier
	plans        PlanCatalog
	log          *logger.Logger
	metrics      *metrics.Metrics
	optOutWindow time.Duration
	now          func() time.Time
}

func NewService(store Store, sender Sender, notifier Notifier, plans PlanCatalog, log *logger.Logger, m *metrics.Metrics, opts Options) *Service {
	return &Service{
		store:        store,
		sender:       sender,
		notifier:     notifier,
		plans:        plans,
		log:          log,
		metrics:      m,
		optOutWindow: opts.OptOutWindow,
		now:          time.Now,
	}
}

// Process handles one inbound message end to end. Returned errors are
// *apperr.Error values whose Message is the wire error code.
func (s *Service) Process(ctx context.Context, msg Message) (Result, error) {
	log := s.log.WithContext(ctx)
	waMessageID := strings.TrimSpace(msg.WAMessageID)

	if waMessageID != "" {
		exists, err := s.store.MessageExists(ctx, waMessageID)
		if err != nil {
			return Result{}, s.fail(ctx, CodeServerError, "check duplicate message", err, "waMessageId", waMessageID)
		}
		if exists {
			return Result{Duplicated: true}, nil
		}
	}

	chatID := msg.ChatID()
	senderPhone := phone.Resolve(msg.WAPhone, chatID)

	isSales, err := s.store.IsSalesSender(ctx, msg.SenderJIDs(), msg.SenderPhones(senderPhone))
	if err != nil {
		return Result{}, s.fail(ctx, CodeServerError, "classify sender", err, "salesId", msg.UserID)
	}
	if isSales {
		log.Debug("inbound message from internal agent skipped", "salesId", msg.UserID, "chatId", chatID)
		return Result{Skipped: SkipFromIsSales}, nil
	}

	excluded, err := s.store.IsExcludedContact(ctx, msg.UserID, senderPhone)
	if err != nil {
		return Result{}, s.fail(ctx, CodeServerError, "check excluded contact", err, "salesId", msg.UserID)
	}
	if excluded {
		log.Debug("inbound message from excluded contact skipped", "salesId", msg.UserID)
		return Result{Skipped: SkipExcludedContact}, nil
	}

	sales, err := s.store.GetSalesUser(ctx, msg.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return Result{}, apperr.NotFound(CodeSalesNotFound)
	}
	if err != nil {
		return Result{}, s.fail(ctx, CodeServerError, "load sales user", err, "salesId", msg.UserID)
	}

	inboundAt := msg.SentAt(s.now())

	lead, created, err := s.resolveLead(ctx, sales, senderPhone, chatID, msg.WADisplayName)
	if err != nil {
		return Result{}, s.fail(ctx, CodeLeadNotFound, "resolve lead", err, "salesId", sales.ID, "chatId", chatID)
	}

	stored, err := s.store.InsertMessage(ctx, repository.InsertMessageParams{
		LeadID:      lead.ID,
		SalesID:     sales.ID,
		WAMessageID: optional(waMessageID),
		Direction:   repository.DirectionInbound,
		Content:     msg.Body,
		WAChatID:    optional(chatID),
		FromPhone:   optional(firstNonEmpty(senderPhone, strings.TrimSpace(msg.From))),
		ToPhone:     optional(firstNonEmpty(phone.Resolve("", msg.To), strings.TrimSpace(msg.To))),
		Status:      repository.MessageStatusDelivered,
		SentAt:      inboundAt,
	})
	if err != nil && !errors.Is(err, repository.ErrDuplicateMessage) {
		return Result{}, s.fail(ctx, CodeServerError, "insert inbound message", err, "leadId", lead.ID)
	}

	optedOut, err := s.applyOptOut(ctx, sales, lead, senderPhone, msg.Body, inboundAt)
	if err != nil {
		return Result{}, s.fail(ctx, CodeServerError, "apply opt-out", err, "leadId", lead.ID)
	}

	var settings repository.GeneralSettings
	if optedOut || created {
		settings = s.loadSettings(ctx)
	}

	confirmationSent := false
	if optedOut {
		confirmationSent = s.sendOptOutConfirmation(ctx, sales, lead, chatID, settings)
	}

	// a sent confirmation owns lastMessageAt
	if err := s.store.TouchLeadInbound(ctx, lead.ID, inboundAt, !confirmationSent); err != nil {
		return Result{}, s.fail(ctx, CodeServerError, "update lead timestamps", err, "leadId", lead.ID)
	}

	if !optedOut {
		if err := s.pauseForEngagement(ctx, lead.ID); err != nil {
			return Result{}, s.fail(ctx, CodeServerError, "pause nurturing", err, "leadId", lead.ID)
		}
	}

	s.notify(ctx, sales, lead, stored, msg, created, optedOut, inboundAt)

	if created {
		s.sendWelcome(ctx, sales, lead, chatID, settings)
	}

	return Result{LeadID: lead.ID, LeadCreated: created, OptedOut: optedOut}, nil
}

// pauseForEngagement suspends automated sends while the lead is talking. The
// upsert never touches a STOPPED state.
func (s *Service) pauseForEngagement(ctx context.Context, leadID int64) error {
	changed, err := s.store.PauseNurturingForInbound(ctx, leadID, s.now())
	if err != nil {
		return err
	}
	if changed {
		s.metrics.NurturingTransition(repository.NurturingPaused, repository.PauseReasonInboundRecent)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, sales repository.SalesUser, lead repository.Lead, stored repository.Message, msg Message, created, optedOut bool, at time.Time) {
	if s.notifier == nil {
		return
	}

	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()

	var messageID *int64
	if stored.ID != 0 {
		messageID = &stored.ID
	}

	events := []struct {
		room    string
		event   string
		payload map[string]any
	}{
		{realtime.LeadRoom(lead.ID), realtime.EventWAInbound, map[string]any{
			"leadId":      lead.ID,
			"messageId":   messageID,
			"waMessageId": optional(strings.TrimSpace(msg.WAMessageID)),
			"waChatId":    msg.ChatID(),
			"at":          at,
		}},
		{realtime.SalesRoom(sales.ID), realtime.EventWANotify, map[string]any{
			"leadId":   lead.ID,
			"leadName": lead.Name,
			"preview":  sanitize.Truncate(sanitize.CollapseWhitespace(msg.Body), notifyPreviewMaxRunes),
			"optedOut": optedOut,
			"at":       at,
		}},
		{realtime.SalesRoom(sales.ID), realtime.EventLeadListChanged, map[string]any{
			"leadId": lead.ID,
			"isNew":  created,
		}},
	}

	for _, e := range events {
		if err := s.notifier.Emit(emitCtx, e.room, e.event, e.payload); err != nil {
			s.log.WithContext(ctx).Warn("realtime emit failed", "error", err, "event", e.event, "room", e.room)
		}
	}
}

func (s *Service) loadSettings(ctx context.Context) repository.GeneralSettings {
	settings, err := s.store.GetGeneralSettings(ctx)
	if err != nil {
		s.log.WithContext(ctx).Warn("failed to load general settings", "error", err)
		return repository.GeneralSettings{}
	}
	return settings
}

func (s *Service) fail(ctx context.Context, code, op string, err error, attrs ...any) error {
	fields := append([]any{"op", op, "code", code, "error", err}, attrs...)
	s.log.WithContext(ctx).Error("inbound processing failed", fields...)
	errtrack.Capture(ctx, err, map[string]string{"component": "inbound", "op": op, "code": code})
	return apperr.Wrap(apperr.KindInternal, code, err).WithOp(op)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
