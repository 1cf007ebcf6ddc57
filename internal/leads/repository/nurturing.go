package repository

import (
	"context"
	"time"
)

const (
	NurturingActive  = "ACTIVE"
	NurturingPaused  = "PAUSED"
	NurturingStopped = "STOPPED"

	PauseReasonInboundRecent = "INBOUND_RECENT"
	PauseReasonManualToggle  = "MANUAL_TOGGLE"
)

// NurturingState is the 1:1 nurturing lifecycle row of a lead.
type NurturingState struct {
	ID             int64
	LeadID         int64
	Status         string
	ManualPaused   bool
	PauseReason    *string
	PausedAt       *time.Time
	CurrentStep    int
	NextSendAt     *time.Time
	PlanID         *string
	StartedAt      *time.Time
	LastSentAt     *time.Time
	LastMessageKey *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type CreateNurturingStateParams struct {
	LeadID      int64
	Status      string
	PauseReason *string
	PausedAt    *time.Time
}

type InsertOptOutParams struct {
	LeadID  int64
	SalesID int64
	Phone   *string
	Message string
	Channel string
}

// AdvanceNurturingParams records a delivered nurturing step.
type AdvanceNurturingParams struct {
	LeadID     int64
	FromStep   int
	SentAt     time.Time
	MessageKey string
	NextSendAt *time.Time
}

const nurturingColumns = `
	id, lead_id, status, manual_paused, pause_reason, paused_at, current_step, next_send_at,
	plan_id, started_at, last_sent_at, last_message_key, created_at, updated_at`

func scanNurturing(row rowScanner) (NurturingState, error) {
	var s NurturingState
	err := row.Scan(
		&s.ID, &s.LeadID, &s.Status, &s.ManualPaused, &s.PauseReason, &s.PausedAt, &s.CurrentStep, &s.NextSendAt,
		&s.PlanID, &s.StartedAt, &s.LastSentAt, &s.LastMessageKey, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

func (r *Repository) GetNurturingState(ctx context.Context, leadID int64) (NurturingState, error) {
	s, err := scanNurturing(r.db.QueryRow(ctx, `
		SELECT `+nurturingColumns+` FROM lead_nurturing_states WHERE lead_id = $1
	`, leadID))
	if err != nil {
		return NurturingState{}, notFound(err)
	}
	return s, nil
}

func (r *Repository) CreateNurturingState(ctx context.Context, params CreateNurturingStateParams) (NurturingState, error) {
	return scanNurturing(r.db.QueryRow(ctx, `
		INSERT INTO lead_nurturing_states (lead_id, status, pause_reason, paused_at)
		VALUES ($1, $2, $3, $4)
		RETURNING `+nurturingColumns,
		params.LeadID, params.Status, params.PauseReason, params.PausedAt,
	))
}

// AssignNurturingPlan prepares the schedule without touching the status.
func (r *Repository) AssignNurturingPlan(ctx context.Context, leadID int64, planID string, nextSendAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE lead_nurturing_states
		SET plan_id = $2, next_send_at = $3, current_step = 0, updated_at = now()
		WHERE lead_id = $1 AND status <> 'STOPPED'
	`, leadID, planID, nextSendAt)
	return err
}

// StopNurturing moves an ACTIVE state to the terminal STOPPED status. The
// returned flag is false when the state changed since it was read.
func (r *Repository) StopNurturing(ctx context.Context, leadID int64, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE lead_nurturing_states
		SET status = 'STOPPED', manual_paused = true, pause_reason = 'MANUAL_TOGGLE',
		    paused_at = $2, next_send_at = NULL, updated_at = now()
		WHERE lead_id = $1 AND status = 'ACTIVE'
	`, leadID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// PauseNurturingForInbound upserts a PAUSED/INBOUND_RECENT state. A STOPPED
// row is left untouched; the returned flag reports whether a row changed.
// manual_paused is kept as-is so an agent's manual pause survives.
func (r *Repository) PauseNurturingForInbound(ctx context.Context, leadID int64, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO lead_nurturing_states (lead_id, status, pause_reason, paused_at)
		VALUES ($1, 'PAUSED', 'INBOUND_RECENT', $2)
		ON CONFLICT (lead_id) DO UPDATE
		SET status = 'PAUSED', pause_reason = 'INBOUND_RECENT', paused_at = EXCLUDED.paused_at, updated_at = now()
		WHERE lead_nurturing_states.status <> 'STOPPED'
	`, leadID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetManualPause pauses nurturing on an agent's request. STOPPED rows are not matched.
func (r *Repository) SetManualPause(ctx context.Context, leadID int64, at time.Time) (NurturingState, error) {
	s, err := scanNurturing(r.db.QueryRow(ctx, `
		UPDATE lead_nurturing_states
		SET status = 'PAUSED', manual_paused = true, pause_reason = 'MANUAL_TOGGLE', paused_at = $2, updated_at = now()
		WHERE lead_id = $1 AND status <> 'STOPPED'
		RETURNING `+nurturingColumns,
		leadID, at,
	))
	if err != nil {
		return NurturingState{}, notFound(err)
	}
	return s, nil
}

// ResumeNurturing activates nurturing. A plan without a pending send is
// rescheduled at now. STOPPED rows are not matched.
func (r *Repository) ResumeNurturing(ctx context.Context, leadID int64, now time.Time) (NurturingState, error) {
	s, err := scanNurturing(r.db.QueryRow(ctx, `
		UPDATE lead_nurturing_states
		SET status = 'ACTIVE', manual_paused = false, pause_reason = NULL, paused_at = NULL,
		    started_at = COALESCE(started_at, $2),
		    next_send_at = CASE WHEN plan_id IS NOT NULL THEN COALESCE(next_send_at, $2) ELSE next_send_at END,
		    updated_at = now()
		WHERE lead_id = $1 AND status <> 'STOPPED'
		RETURNING `+nurturingColumns,
		leadID, now,
	))
	if err != nil {
		return NurturingState{}, notFound(err)
	}
	return s, nil
}

func (r *Repository) InsertOptOut(ctx context.Context, params InsertOptOutParams) error {
	channel := params.Channel
	if channel == "" {
		channel = ChannelWhatsApp
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO lead_nurturing_opt_outs (lead_id, sales_id, phone, message, channel)
		VALUES ($1, $2, $3, $4, $5)
	`, params.LeadID, params.SalesID, params.Phone, params.Message, channel)
	return err
}

// ResumeQuietNurturing activates states that were paused by an inbound message
// when the lead has been silent since before cutoff.
func (r *Repository) ResumeQuietNurturing(ctx context.Context, cutoff, now time.Time, limit int) ([]NurturingState, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE lead_nurturing_states s
		SET status = 'ACTIVE', pause_reason = NULL, paused_at = NULL,
		    started_at = COALESCE(s.started_at, $2),
		    next_send_at = COALESCE(s.next_send_at, $2),
		    updated_at = now()
		WHERE s.id IN (
			SELECT n.id
			FROM lead_nurturing_states n
			JOIN leads l ON l.id = n.lead_id
			WHERE n.status = 'PAUSED'
			  AND n.pause_reason = 'INBOUND_RECENT'
			  AND n.manual_paused = false
			  AND n.plan_id IS NOT NULL
			  AND l.is_excluded = false
			  AND (l.last_inbound_at IS NULL OR l.last_inbound_at < $1)
			ORDER BY n.paused_at ASC NULLS FIRST
			LIMIT $3
			FOR UPDATE OF n SKIP LOCKED
		)
		RETURNING `+prefixed("s", nurturingColumns),
		cutoff, now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNurturing(rows)
}

// ClaimDueNurturing takes ACTIVE rows whose send time has passed and clears
// their next_send_at so no other dispatcher picks them up. Returned rows carry
// the claimed send time in NextSendAt.
func (r *Repository) ClaimDueNurturing(ctx context.Context, now time.Time, limit int) ([]NurturingState, error) {
	rows, err := r.db.Query(ctx, `
		WITH due AS (
			SELECT n.id, n.next_send_at
			FROM lead_nurturing_states n
			JOIN leads l ON l.id = n.lead_id
			WHERE n.status = 'ACTIVE'
			  AND n.next_send_at IS NOT NULL
			  AND n.next_send_at <= $1
			  AND n.plan_id IS NOT NULL
			  AND l.is_excluded = false
			ORDER BY n.next_send_at ASC
			LIMIT $2
			FOR UPDATE OF n SKIP LOCKED
		)
		UPDATE lead_nurturing_states s
		SET next_send_at = NULL, updated_at = now()
		FROM due
		WHERE s.id = due.id
		RETURNING s.id, s.lead_id, s.status, s.manual_paused, s.pause_reason, s.paused_at, s.current_step,
			due.next_send_at, s.plan_id, s.started_at, s.last_sent_at, s.last_message_key, s.created_at, s.updated_at
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectNurturing(rows)
}

// RestoreNextSendAt puts a claimed send time back when dispatch failed.
func (r *Repository) RestoreNextSendAt(ctx context.Context, leadID int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE lead_nurturing_states
		SET next_send_at = $2, updated_at = now()
		WHERE lead_id = $1 AND status = 'ACTIVE' AND next_send_at IS NULL
	`, leadID, at)
	return err
}

// AdvanceNurturingStep moves the state past a delivered step. It only matches
// an ACTIVE row still on FromStep, so a concurrent pause or stop wins.
func (r *Repository) AdvanceNurturingStep(ctx context.Context, params AdvanceNurturingParams) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE lead_nurturing_states
		SET current_step = current_step + 1, last_sent_at = $3, last_message_key = $4,
		    next_send_at = $5, updated_at = now()
		WHERE lead_id = $1 AND current_step = $2 AND status = 'ACTIVE'
	`, params.LeadID, params.FromStep, params.SentAt, params.MessageKey, params.NextSendAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type nurturingRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectNurturing(rows nurturingRows) ([]NurturingState, error) {
	items := make([]NurturingState, 0)
	for rows.Next() {
		s, err := scanNurturing(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}
