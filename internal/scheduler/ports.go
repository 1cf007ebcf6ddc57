package scheduler

import (
	"context"
	"time"

	"leadcrm_backend/internal/leads/repository"
	"leadcrm_backend/internal/nurturing"
	"leadcrm_backend/internal/whatsapp"
)

// Store is the persistence the scheduler needs. *repository.Repository satisfies it.
type Store interface {
	GetLead(ctx context.Context, id int64) (repository.Lead, error)
	GetSalesUser(ctx context.Context, id int64) (repository.SalesUser, error)
	GetGeneralSettings(ctx context.Context) (repository.GeneralSettings, error)
	GetNurturingState(ctx context.Context, leadID int64) (repository.NurturingState, error)
	InsertMessage(ctx context.Context, params repository.InsertMessageParams) (repository.Message, error)
	TouchLeadOutbound(ctx context.Context, leadID int64, at time.Time) error

	ClaimDueNurturing(ctx context.Context, now time.Time, limit int) ([]repository.NurturingState, error)
	RestoreNextSendAt(ctx context.Context, leadID int64, at time.Time) error
	AdvanceNurturingStep(ctx context.Context, params repository.AdvanceNurturingParams) (bool, error)
	ResumeQuietNurturing(ctx context.Context, cutoff, now time.Time, limit int) ([]repository.NurturingState, error)
}

type Sender interface {
	EnsureSession(ctx context.Context, salesID int64) error
	SendMessage(ctx context.Context, msg whatsapp.OutboundMessage) (string, error)
}

type Notifier interface {
	Emit(ctx context.Context, room, event string, payload any) error
}

// StepCatalog resolves plan steps by index.
type StepCatalog interface {
	Step(planID string, index int) (nurturing.Step, bool)
}

// Enqueuer hands a claimed step to the worker queue.
type Enqueuer interface {
	EnqueueNurturingStep(ctx context.Context, payload NurturingStepDuePayload) error
}

var (
	_ Store       = (*repository.Repository)(nil)
	_ Enqueuer    = (*Client)(nil)
	_ StepCatalog = (*nurturing.Catalog)(nil)
)
