package inbound

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadcrm_backend/internal/leads/repository"
	"leadcrm_backend/internal/nurturing"
	"leadcrm_backend/internal/realtime"
	"leadcrm_backend/platform/apperr"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPlans = `
plans:
  - id: wa-new
    priority: 10
    match:
      statusCodes: [NEW]
    steps:
      - key: intro
        delayHours: 24
        template: "Halo {{name}}"
`

var testNow = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

type harness struct {
	store    *memStore
	sender   *fakeSender
	notifier *fakeNotifier
	svc      *Service
}

func strPtr(v string) *string { return &v }

func epoch(t time.Time) *float64 {
	v := float64(t.Unix())
	return &v
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	catalog, err := nurturing.ParseCatalog([]byte(testPlans))
	require.NoError(t, err)

	store := newMemStore()
	store.d.users[7] = repository.SalesUser{ID: 7, Name: "Rina", Phone: strPtr("6281111111111"), Role: "sales"}
	store.d.settings = repository.GeneralSettings{
		CompanyName:     "Acme",
		WelcomeEnabled:  true,
		WelcomeTemplate: "Halo {{name}}, saya {{sales}} dari {{company}}.",
	}

	h := &harness{store: store, sender: &fakeSender{}, notifier: &fakeNotifier{}}
	h.svc = NewService(store, h.sender, h.notifier, catalog, logger.Nop(), metrics.New(), Options{OptOutWindow: nurturing.DefaultOptOutWindow})
	h.svc.now = func() time.Time { return testNow }
	return h
}

// seedLead stores an existing lead with an ACTIVE nurturing state. A non-nil
// lastNurturing adds an outbound nurturing message sent at that time.
func (h *harness) seedLead(phone string, status string, lastNurturing *time.Time) repository.Lead {
	lead, _ := h.store.CreateLead(context.Background(), repository.CreateLeadParams{
		Name:      "Budi",
		Phone:     optional(phone),
		SalesID:   7,
		CreatedAt: testNow.Add(-10 * 24 * time.Hour),
	})
	planID := "wa-new"
	next := testNow.Add(time.Hour)
	h.store.d.states[lead.ID] = repository.NurturingState{
		ID:          h.store.id(),
		LeadID:      lead.ID,
		Status:      status,
		CurrentStep: 1,
		PlanID:      &planID,
		NextSendAt:  &next,
	}
	if lastNurturing != nil {
		_, _ = h.store.InsertMessage(context.Background(), repository.InsertMessageParams{
			LeadID:             lead.ID,
			SalesID:            7,
			Direction:          repository.DirectionOutbound,
			Content:            "Halo Budi",
			Status:             repository.MessageStatusSent,
			IsNurturingMessage: true,
			SentAt:             *lastNurturing,
		})
	}
	return lead
}

func newContactMessage() Message {
	return Message{
		UserID:        7,
		From:          "6281200000000@c.us",
		To:            "6281111111111@c.us",
		Body:          "Halo, mau tanya harga",
		WAMessageID:   "abc-1",
		WADisplayName: "Budi <b>Santoso</b>",
	}
}

func TestProcessCreatesLeadForNewContact(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Process(context.Background(), newContactMessage())
	require.NoError(t, err)
	assert.True(t, res.LeadCreated)
	assert.False(t, res.Duplicated)
	assert.Empty(t, res.Skipped)

	require.Len(t, h.store.d.leads, 1)
	lead := h.store.d.leads[res.LeadID]
	assert.Equal(t, "Budi Santoso", lead.Name)
	require.NotNil(t, lead.Phone)
	assert.Equal(t, "6281200000000", *lead.Phone)
	assert.Equal(t, int64(1), *lead.StageID)
	assert.Equal(t, int64(11), *lead.StatusID)
	assert.Equal(t, int64(21), *lead.SourceID)

	state := h.store.d.states[lead.ID]
	assert.Equal(t, repository.NurturingPaused, state.Status)
	require.NotNil(t, state.PauseReason)
	assert.Equal(t, repository.PauseReasonInboundRecent, *state.PauseReason)
	require.NotNil(t, state.PlanID)
	assert.Equal(t, "wa-new", *state.PlanID)
	require.NotNil(t, state.NextSendAt)
	assert.Equal(t, testNow.Add(24*time.Hour), *state.NextSendAt)

	require.Len(t, h.store.d.followUps, 3)
	assert.Equal(t, testNow.Add(24*time.Hour), h.store.d.followUps[0].NextActionAt)
	assert.Equal(t, testNow.Add(4*24*time.Hour), h.store.d.followUps[1].NextActionAt)
	assert.Len(t, h.store.d.stageHist, 1)
	assert.Len(t, h.store.d.statusHist, 1)
	assert.Equal(t, autoAssignNote, h.store.d.statusHist[0].Note)
	require.NotEmpty(t, h.store.d.activities)
	assert.Equal(t, repository.ActivityFollowUpScheduled, h.store.d.activities[0].Kind)

	inbound := h.store.messagesByDirection(repository.DirectionInbound)
	require.Len(t, inbound, 1)
	assert.Equal(t, "abc-1", *inbound[0].WAMessageID)
	assert.Equal(t, "6281200000000@c.us", *inbound[0].WAChatID)
	assert.Equal(t, repository.MessageStatusDelivered, inbound[0].Status)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, "Halo Budi Santoso, saya Rina dari Acme.", h.sender.sent[0].Body)
	assert.Equal(t, "6281200000000", h.sender.sent[0].To)
	outbound := h.store.messagesByDirection(repository.DirectionOutbound)
	require.Len(t, outbound, 1)
	assert.False(t, outbound[0].IsNurturingMessage)
	assert.Equal(t, "prov-welcome", *outbound[0].WAMessageID)

	require.Len(t, h.notifier.events, 3)
	assert.Equal(t, realtime.LeadRoom(lead.ID), h.notifier.events[0].room)
	assert.Equal(t, realtime.EventWAInbound, h.notifier.events[0].event)
	assert.Equal(t, realtime.SalesRoom(7), h.notifier.events[1].room)
	assert.Equal(t, realtime.EventWANotify, h.notifier.events[1].event)
	assert.Equal(t, realtime.EventLeadListChanged, h.notifier.events[2].event)
}

func TestProcessSummarizesOnlySeededFollowUps(t *testing.T) {
	h := newHarness(t)
	h.store.d.followUpTypes = h.store.d.followUpTypes[:1]

	res, err := h.svc.Process(context.Background(), newContactMessage())
	require.NoError(t, err)
	require.True(t, res.LeadCreated)

	require.Len(t, h.store.d.followUps, 1)
	require.NotEmpty(t, h.store.d.activities)
	assert.Equal(t, "Jadwal follow up otomatis: FU1 2026-01-11", h.store.d.activities[0].Description)
}

func TestProcessIsIdempotentOnMessageID(t *testing.T) {
	h := newHarness(t)
	msg := newContactMessage()

	first, err := h.svc.Process(context.Background(), msg)
	require.NoError(t, err)
	require.True(t, first.LeadCreated)

	second, err := h.svc.Process(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, second.Duplicated)

	assert.Len(t, h.store.d.leads, 1)
	assert.Len(t, h.store.messagesByDirection(repository.DirectionInbound), 1)
	assert.Len(t, h.store.d.followUps, 3)
	assert.Len(t, h.sender.sent, 1)
	assert.Len(t, h.notifier.events, 3)
}

func TestProcessSwallowsConcurrentDuplicateInsert(t *testing.T) {
	h := newHarness(t)
	lead := h.seedLead("6281200000000", repository.NurturingActive, nil)
	_, err := h.store.InsertMessage(context.Background(), repository.InsertMessageParams{
		LeadID: lead.ID, SalesID: 7, WAMessageID: strPtr("abc-1"), Direction: repository.DirectionInbound,
		Content: "Halo", Status: repository.MessageStatusDelivered, SentAt: testNow,
	})
	require.NoError(t, err)
	h.store.hideExisting = true

	res, err := h.svc.Process(context.Background(), newContactMessage())
	require.NoError(t, err)
	assert.False(t, res.Duplicated)
	assert.Equal(t, lead.ID, res.LeadID)
	assert.Len(t, h.store.messagesByDirection(repository.DirectionInbound), 1)
	require.NotEmpty(t, h.notifier.events)
	assert.Nil(t, h.notifier.events[0].payload.(map[string]any)["messageId"])
}

func TestProcessBackfillsPhoneOnlyOnce(t *testing.T) {
	h := newHarness(t)
	lead := h.seedLead("", repository.NurturingPaused, nil)
	_, err := h.store.InsertMessage(context.Background(), repository.InsertMessageParams{
		LeadID: lead.ID, SalesID: 7, Direction: repository.DirectionInbound, WAChatID: strPtr("998877@lid"),
		Content: "Halo", Status: repository.MessageStatusDelivered, SentAt: testNow.Add(-time.Hour),
	})
	require.NoError(t, err)

	_, err = h.svc.Process(context.Background(), Message{
		UserID: 7, From: "998877@lid", To: "6281111111111@c.us", Body: "Halo lagi",
		WAMessageID: "m-1", WAChatID: "998877@lid", WAPhone: "081234567890",
	})
	require.NoError(t, err)
	require.NotNil(t, h.store.d.leads[lead.ID].Phone)
	assert.Equal(t, "6281234567890", *h.store.d.leads[lead.ID].Phone)

	res, err := h.svc.Process(context.Background(), Message{
		UserID: 7, From: "998877@lid", To: "6281111111111@c.us", Body: "Masih di sini",
		WAMessageID: "m-2", WAChatID: "998877@lid", WAPhone: "6289999999999",
	})
	require.NoError(t, err)
	assert.Equal(t, lead.ID, res.LeadID)
	assert.False(t, res.LeadCreated)
	assert.Len(t, h.store.d.leads, 1)
	assert.Equal(t, "6281234567890", *h.store.d.leads[lead.ID].Phone)
}

func TestProcessRollsBackLeadCreationOnFailure(t *testing.T) {
	h := newHarness(t)
	h.store.failInsertFollowUp = errors.New("follow-up table locked")

	_, err := h.svc.Process(context.Background(), newContactMessage())
	require.Error(t, err)
	domainErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, CodeLeadNotFound, domainErr.Message)
	assert.Equal(t, apperr.KindInternal, domainErr.Kind)

	assert.Empty(t, h.store.d.leads)
	assert.Empty(t, h.store.d.states)
	assert.Empty(t, h.store.d.followUps)
	assert.Empty(t, h.store.d.stageHist)
	assert.Empty(t, h.store.d.statusHist)
	assert.Empty(t, h.store.d.activities)
	assert.Empty(t, h.store.d.messages)
	assert.Empty(t, h.sender.sent)
	assert.Empty(t, h.notifier.events)
}

func TestProcessHonorsOptOutAfterRecentNurturing(t *testing.T) {
	h := newHarness(t)
	lastSent := testNow.Add(-2 * time.Hour)
	lead := h.seedLead("6281200000000", repository.NurturingActive, &lastSent)
	inboundAt := testNow.Add(-time.Minute)

	res, err := h.svc.Process(context.Background(), Message{
		UserID: 7, From: "6281200000000@c.us", To: "6281111111111@c.us", Body: "stop ya",
		WAMessageID: "opt-1", Timestamp: epoch(inboundAt),
	})
	require.NoError(t, err)
	assert.True(t, res.OptedOut)
	assert.False(t, res.LeadCreated)

	state := h.store.d.states[lead.ID]
	assert.Equal(t, repository.NurturingStopped, state.Status)
	assert.True(t, state.ManualPaused)
	assert.Nil(t, state.NextSendAt)

	require.Len(t, h.store.d.optOuts, 1)
	assert.Equal(t, "stop ya", h.store.d.optOuts[0].Message)
	assert.Equal(t, "6281200000000", *h.store.d.optOuts[0].Phone)
	require.Len(t, h.store.d.activities, 1)
	assert.Equal(t, repository.ActivityNurturingOptOut, h.store.d.activities[0].Kind)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, DefaultOptOutConfirmation, h.sender.sent[0].Body)
	outbound := h.store.messagesByDirection(repository.DirectionOutbound)
	require.Len(t, outbound, 2)
	assert.False(t, outbound[1].IsNurturingMessage)

	updated := h.store.d.leads[lead.ID]
	assert.Equal(t, inboundAt, *updated.LastInboundAt)
	assert.Equal(t, testNow, *updated.LastMessageAt)
	assert.Equal(t, testNow, *updated.LastOutboundAt)
}

func TestProcessOptOutConfirmationFailureStillStops(t *testing.T) {
	h := newHarness(t)
	h.store.d.settings.OptOutConfirmation = "Oke {{name}}, tidak ada pesan otomatis lagi dari {{company}}."
	h.sender.sessionErr = errors.New("session disconnected")
	lastSent := testNow.Add(-time.Hour)
	lead := h.seedLead("6281200000000", repository.NurturingActive, &lastSent)
	inboundAt := testNow.Add(-time.Minute)

	res, err := h.svc.Process(context.Background(), Message{
		UserID: 7, From: "6281200000000@c.us", To: "6281111111111@c.us", Body: "STOP",
		WAMessageID: "opt-2", Timestamp: epoch(inboundAt),
	})
	require.NoError(t, err)
	assert.True(t, res.OptedOut)
	assert.Equal(t, repository.NurturingStopped, h.store.d.states[lead.ID].Status)
	assert.Len(t, h.store.messagesByDirection(repository.DirectionOutbound), 1)
	assert.Equal(t, inboundAt, *h.store.d.leads[lead.ID].LastMessageAt)
}

func TestProcessOptOutLosesToConcurrentPause(t *testing.T) {
	h := newHarness(t)
	lastSent := testNow.Add(-2 * time.Hour)
	lead := h.seedLead("6281200000000", repository.NurturingActive, &lastSent)
	pausedAt := testNow.Add(-30 * time.Second)
	h.store.afterStateRead = func(d *memData) {
		st := d.states[lead.ID]
		reason := repository.PauseReasonInboundRecent
		st.Status = repository.NurturingPaused
		st.PauseReason = &reason
		st.PausedAt = &pausedAt
		d.states[lead.ID] = st
	}

	res, err := h.svc.Process(context.Background(), Message{
		UserID: 7, From: "6281200000000@c.us", To: "6281111111111@c.us", Body: "stop ya",
		WAMessageID: "opt-race", Timestamp: epoch(testNow.Add(-time.Minute)),
	})
	require.NoError(t, err)
	assert.False(t, res.OptedOut)

	state := h.store.d.states[lead.ID]
	assert.Equal(t, repository.NurturingPaused, state.Status)
	assert.False(t, state.ManualPaused)
	assert.Empty(t, h.store.d.optOuts)
	assert.Empty(t, h.store.d.activities)
	assert.Empty(t, h.sender.sent)
}

func TestProcessRepeatedStopOptsOutOnce(t *testing.T) {
	h := newHarness(t)
	lastSent := testNow.Add(-2 * time.Hour)
	h.seedLead("6281200000000", repository.NurturingActive, &lastSent)

	for i, id := range []string{"stop-a", "stop-b"} {
		res, err := h.svc.Process(context.Background(), Message{
			UserID: 7, From: "6281200000000@c.us", To: "6281111111111@c.us", Body: "stop",
			WAMessageID: id, Timestamp: epoch(testNow.Add(-time.Minute)),
		})
		require.NoError(t, err)
		assert.Equal(t, i == 0, res.OptedOut, id)
	}
	assert.Len(t, h.store.d.optOuts, 1)
	assert.Len(t, h.sender.sent, 1)
}

func TestProcessOptOutGating(t *testing.T) {
	recent := testNow.Add(-2 * time.Hour)
	stale := testNow.Add(-25 * time.Hour)

	tests := []struct {
		name          string
		status        string
		lastNurturing *time.Time
		body          string
		wantStatus    string
	}{
		{name: "no prior nurturing message", status: repository.NurturingActive, body: "stop", wantStatus: repository.NurturingPaused},
		{name: "nurturing outside window", status: repository.NurturingActive, lastNurturing: &stale, body: "stop", wantStatus: repository.NurturingPaused},
		{name: "state not active", status: repository.NurturingPaused, lastNurturing: &recent, body: "stop", wantStatus: repository.NurturingPaused},
		{name: "no keyword", status: repository.NurturingActive, lastNurturing: &recent, body: "boleh minta katalog?", wantStatus: repository.NurturingPaused},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			lead := h.seedLead("6281200000000", tt.status, tt.lastNurturing)

			res, err := h.svc.Process(context.Background(), Message{
				UserID: 7, From: "6281200000000@c.us", To: "6281111111111@c.us", Body: tt.body,
				WAMessageID: "gate-1", Timestamp: epoch(testNow.Add(-time.Minute)),
			})
			require.NoError(t, err)
			assert.False(t, res.OptedOut)
			assert.Equal(t, tt.wantStatus, h.store.d.states[lead.ID].Status)
			assert.Empty(t, h.store.d.optOuts)
			assert.Empty(t, h.sender.sent)
		})
	}
}

func TestProcessNeverRevivesStoppedNurturing(t *testing.T) {
	h := newHarness(t)
	recent := testNow.Add(-time.Hour)
	lead := h.seedLead("6281200000000", repository.NurturingStopped, &recent)

	for i, body := range []string{"Halo, masih ada stok?", "stop"} {
		_, err := h.svc.Process(context.Background(), Message{
			UserID: 7, From: "6281200000000@c.us", To: "6281111111111@c.us", Body: body,
			WAMessageID: "after-stop-" + string(rune('a'+i)),
		})
		require.NoError(t, err)
	}

	assert.Equal(t, repository.NurturingStopped, h.store.d.states[lead.ID].Status)
	assert.Empty(t, h.store.d.optOuts)
	assert.Empty(t, h.sender.sent)
}

func TestProcessPausesActiveNurturingOnEngagement(t *testing.T) {
	h := newHarness(t)
	lead := h.seedLead("6281200000000", repository.NurturingActive, nil)

	_, err := h.svc.Process(context.Background(), Message{
		UserID: 7, From: "6281200000000@c.us", To: "6281111111111@c.us", Body: "Boleh minta katalog?", WAMessageID: "eng-1",
	})
	require.NoError(t, err)

	state := h.store.d.states[lead.ID]
	assert.Equal(t, repository.NurturingPaused, state.Status)
	assert.Equal(t, repository.PauseReasonInboundRecent, *state.PauseReason)
	assert.Equal(t, testNow, *state.PausedAt)
	assert.Equal(t, "wa-new", *state.PlanID)
	assert.Equal(t, 1, state.CurrentStep)
	assert.Equal(t, testNow, *h.store.d.leads[lead.ID].LastInboundAt)
	assert.Equal(t, testNow, *h.store.d.leads[lead.ID].LastMessageAt)
}

func TestProcessCreatesMissingNurturingStateOnEngagement(t *testing.T) {
	h := newHarness(t)
	lead := h.seedLead("6281200000000", repository.NurturingActive, nil)
	delete(h.store.d.states, lead.ID)

	_, err := h.svc.Process(context.Background(), Message{
		UserID: 7, From: "6281200000000@c.us", To: "6281111111111@c.us", Body: "Halo", WAMessageID: "eng-2",
	})
	require.NoError(t, err)
	require.Contains(t, h.store.d.states, lead.ID)
	assert.Equal(t, repository.NurturingPaused, h.store.d.states[lead.ID].Status)
}

func TestProcessSkipsInternalSenders(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*memStore)
		from  string
		chat  string
	}{
		{
			name:  "connected session jid",
			setup: func(s *memStore) { s.d.sessionJIDs = []string{"6281300000000:12@s.whatsapp.net"} },
			from:  "6281300000000@c.us",
		},
		{
			name: "agent phone on file",
			setup: func(s *memStore) {
				s.d.users[8] = repository.SalesUser{ID: 8, Name: "Dewi", Phone: strPtr("+62 813-0000-0001")}
			},
			from: "6281300000001@c.us",
		},
		{
			name:  "lid chat id with agent jid as sender",
			setup: func(s *memStore) { s.d.sessionJIDs = []string{"6281300000000@c.us"} },
			from:  "6281300000000@c.us",
			chat:  "98765432100123@lid",
		},
		{
			name: "lid chat id with agent phone in sender",
			setup: func(s *memStore) {
				s.d.users[8] = repository.SalesUser{ID: 8, Name: "Dewi", Phone: strPtr("+62 813 0000 0001")}
			},
			from: "6281300000001@c.us",
			chat: "98765432100124@lid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h.store)

			res, err := h.svc.Process(context.Background(), Message{
				UserID: 7, From: tt.from, WAChatID: tt.chat, To: "6281111111111@c.us", Body: "Halo", WAMessageID: "int-1",
			})
			require.NoError(t, err)
			assert.Equal(t, SkipFromIsSales, res.Skipped)
			assert.Empty(t, h.store.d.leads)
			assert.Empty(t, h.store.d.messages)
			assert.Empty(t, h.notifier.events)
		})
	}
}

func TestProcessSkipsExcludedContact(t *testing.T) {
	h := newHarness(t)
	h.store.d.excluded[7] = []string{"6281200000000"}

	res, err := h.svc.Process(context.Background(), newContactMessage())
	require.NoError(t, err)
	assert.Equal(t, SkipExcludedContact, res.Skipped)
	assert.Empty(t, h.store.d.leads)
	assert.Empty(t, h.store.d.messages)
}

func TestProcessUnknownSalesUser(t *testing.T) {
	h := newHarness(t)
	msg := newContactMessage()
	msg.UserID = 99

	_, err := h.svc.Process(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	domainErr, _ := apperr.As(err)
	assert.Equal(t, CodeSalesNotFound, domainErr.Message)
	assert.Empty(t, h.store.d.leads)
}

func TestProcessMessageInsertFailure(t *testing.T) {
	h := newHarness(t)
	h.seedLead("6281200000000", repository.NurturingActive, nil)
	h.store.failInsertMessage = errors.New("connection reset")

	_, err := h.svc.Process(context.Background(), newContactMessage())
	require.Error(t, err)
	domainErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, CodeServerError, domainErr.Message)
}

func TestProcessWelcomeFailureDoesNotFail(t *testing.T) {
	h := newHarness(t)
	h.sender.sendErr = errors.New("gateway timeout")

	res, err := h.svc.Process(context.Background(), newContactMessage())
	require.NoError(t, err)
	assert.True(t, res.LeadCreated)
	assert.Empty(t, h.store.messagesByDirection(repository.DirectionOutbound))
	assert.Equal(t, testNow, *h.store.d.leads[res.LeadID].LastMessageAt)
	assert.Nil(t, h.store.d.leads[res.LeadID].LastOutboundAt)
}

func TestProcessWelcomeDisabled(t *testing.T) {
	h := newHarness(t)
	h.store.d.settings.WelcomeEnabled = false

	res, err := h.svc.Process(context.Background(), newContactMessage())
	require.NoError(t, err)
	assert.True(t, res.LeadCreated)
	assert.Empty(t, h.sender.sent)
}

func TestProcessNotifierFailureDoesNotFail(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("redis down")

	res, err := h.svc.Process(context.Background(), newContactMessage())
	require.NoError(t, err)
	assert.True(t, res.LeadCreated)
	assert.Len(t, h.notifier.events, 3)
}

func TestProcessWithoutCatalogLeavesPlanUnset(t *testing.T) {
	h := newHarness(t)
	h.svc.plans = nil

	res, err := h.svc.Process(context.Background(), newContactMessage())
	require.NoError(t, err)
	state := h.store.d.states[res.LeadID]
	assert.Nil(t, state.PlanID)
	assert.Nil(t, state.NextSendAt)
}

func TestMessageSentAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := 1767225600.5

	assert.Equal(t, now, Message{}.SentAt(now))
	zero := 0.0
	assert.Equal(t, now, Message{Timestamp: &zero}.SentAt(now))
	assert.Equal(t, time.Unix(1767225600, 500000000).UTC(), Message{Timestamp: &ts}.SentAt(now))
}

func TestMessageChatIDFallsBackToSender(t *testing.T) {
	assert.Equal(t, "123@g.us", Message{From: "6281200000000@c.us", WAChatID: " 123@g.us "}.ChatID())
	assert.Equal(t, "6281200000000@c.us", Message{From: "6281200000000@c.us"}.ChatID())
}

func TestMessageSenderAddresses(t *testing.T) {
	msg := Message{From: " 6281300000000@c.us ", WAChatID: "98765432100123@lid"}
	assert.Equal(t, []string{"6281300000000@c.us", "98765432100123@lid"}, msg.SenderJIDs())
	assert.Equal(t, []string{"6281300000000"}, msg.SenderPhones(""))
	assert.Equal(t, []string{"6281200000000", "6281300000000"}, msg.SenderPhones("6281200000000"))

	same := Message{From: "6281300000000@c.us", WAChatID: "6281300000000@c.us"}
	assert.Equal(t, []string{"6281300000000@c.us"}, same.SenderJIDs())
	assert.Equal(t, []string{"6281300000000"}, same.SenderPhones("6281300000000"))
	assert.Empty(t, Message{}.SenderJIDs())
}
