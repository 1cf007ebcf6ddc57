package inbound

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"leadcrm_backend/internal/leads/repository"
	"leadcrm_backend/internal/whatsapp"
)

var nonDigit = regexp.MustCompile(`\D`)

type memData struct {
	users         map[int64]repository.SalesUser
	sessionJIDs   []string
	excluded      map[int64][]string
	settings      repository.GeneralSettings
	stages        []repository.LookupValue
	statuses      []repository.LookupValue
	sources       []repository.LookupValue
	followUpTypes []repository.FollowUpType

	leads      map[int64]repository.Lead
	messages   []repository.Message
	states     map[int64]repository.NurturingState
	optOuts    []repository.InsertOptOutParams
	followUps  []repository.InsertFollowUpParams
	stageHist  []repository.HistoryParams
	statusHist []repository.HistoryParams
	activities []repository.ActivityParams
	nextID     int64
}

func (d *memData) clone() *memData {
	c := *d
	c.leads = make(map[int64]repository.Lead, len(d.leads))
	for k, v := range d.leads {
		c.leads[k] = v
	}
	c.states = make(map[int64]repository.NurturingState, len(d.states))
	for k, v := range d.states {
		c.states[k] = v
	}
	c.messages = append([]repository.Message(nil), d.messages...)
	c.optOuts = append([]repository.InsertOptOutParams(nil), d.optOuts...)
	c.followUps = append([]repository.InsertFollowUpParams(nil), d.followUps...)
	c.stageHist = append([]repository.HistoryParams(nil), d.stageHist...)
	c.statusHist = append([]repository.HistoryParams(nil), d.statusHist...)
	c.activities = append([]repository.ActivityParams(nil), d.activities...)
	return &c
}

// memStore implements Store in memory. InTx snapshots the data and restores
// it when fn fails.
type memStore struct {
	d *memData

	failInsertFollowUp error
	failInsertMessage  error
	// hideExisting makes MessageExists miss so the unique constraint path is exercised.
	hideExisting bool
	// afterStateRead runs once after GetNurturingState, standing in for a
	// concurrent writer.
	afterStateRead func(*memData)
}

func newMemStore() *memStore {
	return &memStore{d: &memData{
		users:    map[int64]repository.SalesUser{},
		excluded: map[int64][]string{},
		stages:   []repository.LookupValue{{ID: 1, Code: "NEW", Name: "New"}},
		statuses: []repository.LookupValue{{ID: 11, Code: "NEW", Name: "New"}},
		sources:  []repository.LookupValue{{ID: 21, Code: "WHATSAPP", Name: "WhatsApp"}},
		followUpTypes: []repository.FollowUpType{
			{ID: 1, Code: "FU1", Sequence: 1},
			{ID: 2, Code: "FU2", Sequence: 2},
			{ID: 3, Code: "FU3", Sequence: 3},
		},
		leads:  map[int64]repository.Lead{},
		states: map[int64]repository.NurturingState{},
		nextID: 100,
	}}
}

func (s *memStore) id() int64 {
	s.d.nextID++
	return s.d.nextID
}

func (s *memStore) InTx(_ context.Context, fn func(tx Store) error) error {
	snapshot := s.d.clone()
	if err := fn(s); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

func (s *memStore) ListFollowUpTypes(context.Context) ([]repository.FollowUpType, error) {
	return s.d.followUpTypes, nil
}

func (s *memStore) InsertFollowUp(_ context.Context, p repository.InsertFollowUpParams) (bool, error) {
	if s.failInsertFollowUp != nil {
		return false, s.failInsertFollowUp
	}
	s.d.followUps = append(s.d.followUps, p)
	return true, nil
}

// IsSalesSender mirrors the ANY($1)/ANY($2) matching in repository.IsSalesSender.
func (s *memStore) IsSalesSender(_ context.Context, jids, phones []string) (bool, error) {
	for _, jid := range s.d.sessionJIDs {
		if slices.Contains(jids, jid) {
			return true, nil
		}
		user := strings.SplitN(strings.SplitN(jid, "@", 2)[0], ":", 2)[0]
		if slices.Contains(phones, user) {
			return true, nil
		}
	}
	for _, u := range s.d.users {
		if u.Phone != nil && slices.Contains(phones, nonDigit.ReplaceAllString(*u.Phone, "")) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) IsExcludedContact(_ context.Context, salesID int64, phone string) (bool, error) {
	for _, p := range s.d.excluded[salesID] {
		if phone != "" && p == phone {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) GetSalesUser(_ context.Context, id int64) (repository.SalesUser, error) {
	u, ok := s.d.users[id]
	if !ok {
		return repository.SalesUser{}, repository.ErrNotFound
	}
	return u, nil
}

func (s *memStore) GetGeneralSettings(context.Context) (repository.GeneralSettings, error) {
	return s.d.settings, nil
}

func lookupIn(values []repository.LookupValue, code, name string) (repository.LookupValue, error) {
	for _, v := range values {
		if v.Code == code {
			return v, nil
		}
	}
	for _, v := range values {
		if strings.EqualFold(v.Name, name) {
			return v, nil
		}
	}
	return repository.LookupValue{}, repository.ErrNotFound
}

func (s *memStore) LookupStage(_ context.Context, code, name string) (repository.LookupValue, error) {
	return lookupIn(s.d.stages, code, name)
}

func (s *memStore) LookupStatus(_ context.Context, code, name string) (repository.LookupValue, error) {
	return lookupIn(s.d.statuses, code, name)
}

func (s *memStore) LookupSource(_ context.Context, code, name string) (repository.LookupValue, error) {
	return lookupIn(s.d.sources, code, name)
}

func (s *memStore) sortedLeads() []repository.Lead {
	leads := make([]repository.Lead, 0, len(s.d.leads))
	for _, l := range s.d.leads {
		leads = append(leads, l)
	}
	sort.Slice(leads, func(i, j int) bool { return leads[i].ID < leads[j].ID })
	return leads
}

func (s *memStore) FindLeadByPhone(_ context.Context, salesID int64, phone string) (repository.Lead, error) {
	for _, l := range s.sortedLeads() {
		if l.SalesID == salesID && !l.IsExcluded && l.Phone != nil && *l.Phone == phone {
			return l, nil
		}
	}
	return repository.Lead{}, repository.ErrNotFound
}

func (s *memStore) FindLeadByChatID(_ context.Context, salesID int64, chatID string) (repository.Lead, error) {
	for _, l := range s.sortedLeads() {
		if l.SalesID != salesID || l.IsExcluded {
			continue
		}
		for _, m := range s.d.messages {
			if m.LeadID == l.ID && m.WAChatID != nil && *m.WAChatID == chatID {
				return l, nil
			}
		}
	}
	return repository.Lead{}, repository.ErrNotFound
}

// BackfillLeadPhone mirrors the phone IS NULL guard in repository.BackfillLeadPhone.
func (s *memStore) BackfillLeadPhone(_ context.Context, leadID int64, phone string) (bool, error) {
	l, ok := s.d.leads[leadID]
	if !ok || l.Phone != nil {
		return false, nil
	}
	l.Phone = &phone
	s.d.leads[leadID] = l
	return true, nil
}

func (s *memStore) CreateLead(_ context.Context, p repository.CreateLeadParams) (repository.Lead, error) {
	l := repository.Lead{
		ID:        s.id(),
		Name:      p.Name,
		Phone:     p.Phone,
		SalesID:   p.SalesID,
		StageID:   p.StageID,
		StatusID:  p.StatusID,
		SourceID:  p.SourceID,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.CreatedAt,
	}
	s.d.leads[l.ID] = l
	return l, nil
}

func (s *memStore) TouchLeadInbound(_ context.Context, leadID int64, at time.Time, touchLastMessage bool) error {
	l := s.d.leads[leadID]
	l.LastInboundAt = &at
	if touchLastMessage {
		l.LastMessageAt = &at
	}
	s.d.leads[leadID] = l
	return nil
}

func (s *memStore) TouchLeadOutbound(_ context.Context, leadID int64, at time.Time) error {
	l := s.d.leads[leadID]
	l.LastOutboundAt = &at
	l.LastMessageAt = &at
	s.d.leads[leadID] = l
	return nil
}

func (s *memStore) MessageExists(_ context.Context, waMessageID string) (bool, error) {
	if s.hideExisting {
		return false, nil
	}
	for _, m := range s.d.messages {
		if m.WAMessageID != nil && *m.WAMessageID == waMessageID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) InsertMessage(_ context.Context, p repository.InsertMessageParams) (repository.Message, error) {
	if s.failInsertMessage != nil {
		return repository.Message{}, s.failInsertMessage
	}
	if p.WAMessageID != nil {
		for _, m := range s.d.messages {
			if m.WAMessageID != nil && *m.WAMessageID == *p.WAMessageID {
				return repository.Message{}, repository.ErrDuplicateMessage
			}
		}
	}
	sentAt := p.SentAt
	m := repository.Message{
		ID:                 s.id(),
		LeadID:             p.LeadID,
		SalesID:            p.SalesID,
		WAMessageID:        p.WAMessageID,
		Direction:          p.Direction,
		Channel:            repository.ChannelWhatsApp,
		Content:            p.Content,
		WAChatID:           p.WAChatID,
		FromPhone:          p.FromPhone,
		ToPhone:            p.ToPhone,
		Status:             p.Status,
		IsNurturingMessage: p.IsNurturingMessage,
		SentAt:             &sentAt,
		CreatedAt:          sentAt,
	}
	s.d.messages = append(s.d.messages, m)
	return m, nil
}

func (s *memStore) LastNurturingSentAt(_ context.Context, leadID int64) (*time.Time, error) {
	var last *time.Time
	for _, m := range s.d.messages {
		if m.LeadID != leadID || m.Direction != repository.DirectionOutbound || !m.IsNurturingMessage {
			continue
		}
		if last == nil || m.SentAt.After(*last) {
			at := *m.SentAt
			last = &at
		}
	}
	return last, nil
}

func (s *memStore) GetNurturingState(_ context.Context, leadID int64) (repository.NurturingState, error) {
	st, ok := s.d.states[leadID]
	if hook := s.afterStateRead; hook != nil {
		s.afterStateRead = nil
		hook(s.d)
	}
	if !ok {
		return repository.NurturingState{}, repository.ErrNotFound
	}
	return st, nil
}

func (s *memStore) CreateNurturingState(_ context.Context, p repository.CreateNurturingStateParams) (repository.NurturingState, error) {
	if _, exists := s.d.states[p.LeadID]; exists {
		return repository.NurturingState{}, errors.New("duplicate nurturing state")
	}
	st := repository.NurturingState{ID: s.id(), LeadID: p.LeadID, Status: p.Status, PauseReason: p.PauseReason, PausedAt: p.PausedAt}
	s.d.states[p.LeadID] = st
	return st, nil
}

// AssignNurturingPlan mirrors the status <> 'STOPPED' guard in repository.AssignNurturingPlan.
func (s *memStore) AssignNurturingPlan(_ context.Context, leadID int64, planID string, nextSendAt time.Time) error {
	st, ok := s.d.states[leadID]
	if !ok || st.Status == repository.NurturingStopped {
		return nil
	}
	st.PlanID = &planID
	st.NextSendAt = &nextSendAt
	st.CurrentStep = 0
	s.d.states[leadID] = st
	return nil
}

// StopNurturing mirrors the status = 'ACTIVE' guard in repository.StopNurturing.
func (s *memStore) StopNurturing(_ context.Context, leadID int64, at time.Time) (bool, error) {
	st, ok := s.d.states[leadID]
	if !ok || st.Status != repository.NurturingActive {
		return false, nil
	}
	reason := repository.PauseReasonManualToggle
	st.Status = repository.NurturingStopped
	st.ManualPaused = true
	st.PauseReason = &reason
	st.PausedAt = &at
	st.NextSendAt = nil
	s.d.states[leadID] = st
	return true, nil
}

// PauseNurturingForInbound mirrors the ON CONFLICT ... status <> 'STOPPED'
// guard in repository.PauseNurturingForInbound.
func (s *memStore) PauseNurturingForInbound(_ context.Context, leadID int64, at time.Time) (bool, error) {
	reason := repository.PauseReasonInboundRecent
	st, ok := s.d.states[leadID]
	if !ok {
		s.d.states[leadID] = repository.NurturingState{ID: s.id(), LeadID: leadID, Status: repository.NurturingPaused, PauseReason: &reason, PausedAt: &at}
		return true, nil
	}
	if st.Status == repository.NurturingStopped {
		return false, nil
	}
	st.Status = repository.NurturingPaused
	st.PauseReason = &reason
	st.PausedAt = &at
	s.d.states[leadID] = st
	return true, nil
}

func (s *memStore) InsertOptOut(_ context.Context, p repository.InsertOptOutParams) error {
	s.d.optOuts = append(s.d.optOuts, p)
	return nil
}

func (s *memStore) InsertStageHistory(_ context.Context, p repository.HistoryParams) error {
	s.d.stageHist = append(s.d.stageHist, p)
	return nil
}

func (s *memStore) InsertStatusHistory(_ context.Context, p repository.HistoryParams) error {
	s.d.statusHist = append(s.d.statusHist, p)
	return nil
}

func (s *memStore) AddActivity(_ context.Context, p repository.ActivityParams) error {
	s.d.activities = append(s.d.activities, p)
	return nil
}

func (s *memStore) messagesByDirection(direction string) []repository.Message {
	out := make([]repository.Message, 0)
	for _, m := range s.d.messages {
		if m.Direction == direction {
			out = append(out, m)
		}
	}
	return out
}

type sentMessage struct {
	whatsapp.OutboundMessage
}

type fakeSender struct {
	sent       []sentMessage
	sendErr    error
	sessionErr error
}

func (f *fakeSender) EnsureSession(context.Context, int64) error {
	return f.sessionErr
}

func (f *fakeSender) SendMessage(_ context.Context, msg whatsapp.OutboundMessage) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, sentMessage{msg})
	return "prov-" + msg.Meta["kind"], nil
}

type emitted struct {
	room    string
	event   string
	payload any
}

type fakeNotifier struct {
	events []emitted
	err    error
}

func (f *fakeNotifier) Emit(_ context.Context, room, event string, payload any) error {
	f.events = append(f.events, emitted{room: room, event: event, payload: payload})
	return f.err
}

var _ Store = (*memStore)(nil)
