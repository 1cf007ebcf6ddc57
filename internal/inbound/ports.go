package inbound

import (
	"context"
	"time"

	"leadcrm_backend/internal/followups"
	"leadcrm_backend/internal/leads/repository"
	"leadcrm_backend/internal/nurturing"
	"leadcrm_backend/internal/whatsapp"
)

// Store is the persistence used while processing one inbound message.
type Store interface {
	// InTx runs fn in one transaction; fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx Store) error) error

	followups.Writer

	IsSalesSender(ctx context.Context, jids, phones []string) (bool, error)
	IsExcludedContact(ctx context.Context, salesID int64, phone string) (bool, error)
	GetSalesUser(ctx context.Context, id int64) (repository.SalesUser, error)
	GetGeneralSettings(ctx context.Context) (repository.GeneralSettings, error)
	LookupStage(ctx context.Context, code, name string) (repository.LookupValue, error)
	LookupStatus(ctx context.Context, code, name string) (repository.LookupValue, error)
	LookupSource(ctx context.Context, code, name string) (repository.LookupValue, error)

	FindLeadByPhone(ctx context.Context, salesID int64, phone string) (repository.Lead, error)
	FindLeadByChatID(ctx context.Context, salesID int64, chatID string) (repository.Lead, error)
	BackfillLeadPhone(ctx context.Context, leadID int64, phone string) (bool, error)
	CreateLead(ctx context.Context, params repository.CreateLeadParams) (repository.Lead, error)
	TouchLeadInbound(ctx context.Context, leadID int64, at time.Time, touchLastMessage bool) error
	TouchLeadOutbound(ctx context.Context, leadID int64, at time.Time) error

	MessageExists(ctx context.Context, waMessageID string) (bool, error)
	InsertMessage(ctx context.Context, params repository.InsertMessageParams) (repository.Message, error)
	LastNurturingSentAt(ctx context.Context, leadID int64) (*time.Time, error)

	GetNurturingState(ctx context.Context, leadID int64) (repository.NurturingState, error)
	CreateNurturingState(ctx context.Context, params repository.CreateNurturingStateParams) (repository.NurturingState, error)
	AssignNurturingPlan(ctx context.Context, leadID int64, planID string, nextSendAt time.Time) error
	StopNurturing(ctx context.Context, leadID int64, at time.Time) (bool, error)
	PauseNurturingForInbound(ctx context.Context, leadID int64, at time.Time) (bool, error)
	InsertOptOut(ctx context.Context, params repository.InsertOptOutParams) error

	InsertStageHistory(ctx context.Context, params repository.HistoryParams) error
	InsertStatusHistory(ctx context.Context, params repository.HistoryParams) error
	AddActivity(ctx context.Context, params repository.ActivityParams) error
}

// Sender is the outbound WhatsApp channel.
type Sender interface {
	EnsureSession(ctx context.Context, salesID int64) error
	SendMessage(ctx context.Context, msg whatsapp.OutboundMessage) (string, error)
}

// Notifier publishes realtime events for dashboards.
type Notifier interface {
	Emit(ctx context.Context, room, event string, payload any) error
}

// PlanCatalog picks the nurturing plan for a new lead.
type PlanCatalog interface {
	PickPlanForLead(attrs nurturing.LeadAttributes) (string, bool)
	FirstStepDelayHours(planID string) (int, bool)
}

// repoStore adapts the pgx repository to Store.
type repoStore struct {
	*repository.Repository
}

// NewStore wraps repo as a Store.
func NewStore(repo *repository.Repository) Store {
	return repoStore{Repository: repo}
}

func (s repoStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	return s.Repository.InTx(ctx, func(tx *repository.Repository) error {
		return fn(repoStore{Repository: tx})
	})
}
