package nurturing

import (
	"context"
	"errors"
	"time"

	"leadcrm_backend/internal/leads/repository"
	"leadcrm_backend/platform/apperr"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"
)

const roleAdmin = "admin"

var (
	ErrLeadNotFound      = apperr.NotFound("lead_not_found")
	ErrNurturingNotFound = apperr.NotFound("nurturing_not_found")
	ErrNurturingStopped  = apperr.Conflict("nurturing_stopped")
	ErrForbidden         = apperr.Forbidden("forbidden")
)

// Store is the persistence used by the toggle service.
type Store interface {
	GetLead(ctx context.Context, id int64) (repository.Lead, error)
	GetNurturingState(ctx context.Context, leadID int64) (repository.NurturingState, error)
	SetManualPause(ctx context.Context, leadID int64, at time.Time) (repository.NurturingState, error)
	ResumeNurturing(ctx context.Context, leadID int64, now time.Time) (repository.NurturingState, error)
	AddActivity(ctx context.Context, params repository.ActivityParams) error
}

// Actor is the agent calling the toggle API.
type Actor struct {
	UserID int64
	Roles  []string
}

func (a Actor) isAdmin() bool {
	for _, r := range a.Roles {
		if r == roleAdmin {
			return true
		}
	}
	return false
}

// Service lets agents inspect, pause and resume nurturing for their leads.
type Service struct {
	store   Store
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(store Store, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, log: log, metrics: m, now: time.Now}
}

func (s *Service) Get(ctx context.Context, actor Actor, leadID int64) (repository.NurturingState, error) {
	if _, err := s.authorize(ctx, actor, leadID); err != nil {
		return repository.NurturingState{}, err
	}
	state, err := s.store.GetNurturingState(ctx, leadID)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.NurturingState{}, ErrNurturingNotFound
	}
	return state, err
}

// Pause stops automated sends until the agent resumes.
func (s *Service) Pause(ctx context.Context, actor Actor, leadID int64) (repository.NurturingState, error) {
	if err := s.guard(ctx, actor, leadID); err != nil {
		return repository.NurturingState{}, err
	}

	state, err := s.store.SetManualPause(ctx, leadID, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		// stopped between the guard and the update
		return repository.NurturingState{}, ErrNurturingStopped
	}
	if err != nil {
		return repository.NurturingState{}, err
	}

	s.metrics.NurturingTransition(string(StatusPaused), ReasonManualToggle)
	s.recordActivity(ctx, actor, leadID, repository.ActivityNurturingPaused, "Nurturing dijeda", "Pesan otomatis dijeda oleh sales.")
	return state, nil
}

// Resume reactivates nurturing. A STOPPED state can never be resumed.
func (s *Service) Resume(ctx context.Context, actor Actor, leadID int64) (repository.NurturingState, error) {
	if err := s.guard(ctx, actor, leadID); err != nil {
		return repository.NurturingState{}, err
	}

	state, err := s.store.ResumeNurturing(ctx, leadID, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return repository.NurturingState{}, ErrNurturingStopped
	}
	if err != nil {
		return repository.NurturingState{}, err
	}

	s.metrics.NurturingTransition(string(StatusActive), ReasonManualToggle)
	s.recordActivity(ctx, actor, leadID, repository.ActivityNurturingResumed, "Nurturing dilanjutkan", "Pesan otomatis diaktifkan kembali oleh sales.")
	return state, nil
}

func (s *Service) guard(ctx context.Context, actor Actor, leadID int64) error {
	if _, err := s.authorize(ctx, actor, leadID); err != nil {
		return err
	}
	state, err := s.store.GetNurturingState(ctx, leadID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNurturingNotFound
	}
	if err != nil {
		return err
	}
	if Status(state.Status).IsTerminal() {
		return ErrNurturingStopped
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, actor Actor, leadID int64) (repository.Lead, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Lead{}, ErrLeadNotFound
	}
	if err != nil {
		return repository.Lead{}, err
	}
	if lead.SalesID != actor.UserID && !actor.isAdmin() {
		return repository.Lead{}, ErrForbidden
	}
	return lead, nil
}

func (s *Service) recordActivity(ctx context.Context, actor Actor, leadID int64, kind, title, description string) {
	actorID := actor.UserID
	err := s.store.AddActivity(ctx, repository.ActivityParams{
		LeadID:      leadID,
		ActorID:     &actorID,
		Kind:        kind,
		Title:       title,
		Description: description,
		Metadata:    map[string]any{"source": "manual_toggle"},
	})
	if err != nil {
		s.log.WithContext(ctx).Warn("failed to write nurturing activity", "error", err, "leadId", leadID, "kind", kind)
	}
}
