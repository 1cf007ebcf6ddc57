package repository

import (
	"context"
	"time"
)

// Lead is a prospective customer owned by one sales agent.
type Lead struct {
	ID               int64
	Name             string
	Phone            *string
	Address          *string
	SalesID          int64
	ProductID        *int64
	StageID          *int64
	StatusID         *int64
	SourceID         *int64
	OfferingPrice    *float64
	NegotiationPrice *float64
	ClosingPrice     *float64
	IsExcluded       bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastMessageAt    *time.Time
	LastInboundAt    *time.Time
	LastOutboundAt   *time.Time
}

type CreateLeadParams struct {
	Name      string
	Phone     *string
	SalesID   int64
	StageID   *int64
	StatusID  *int64
	SourceID  *int64
	CreatedAt time.Time
}

const leadColumns = `
	l.id, l.name, l.phone, l.address, l.sales_id, l.product_id, l.stage_id, l.status_id, l.source_id,
	l.offering_price::float8, l.negotiation_price::float8, l.closing_price::float8,
	l.is_excluded, l.created_at, l.updated_at, l.last_message_at, l.last_inbound_at, l.last_outbound_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID, &l.Name, &l.Phone, &l.Address, &l.SalesID, &l.ProductID, &l.StageID, &l.StatusID, &l.SourceID,
		&l.OfferingPrice, &l.NegotiationPrice, &l.ClosingPrice,
		&l.IsExcluded, &l.CreatedAt, &l.UpdatedAt, &l.LastMessageAt, &l.LastInboundAt, &l.LastOutboundAt,
	)
	return l, err
}

func (r *Repository) GetLead(ctx context.Context, id int64) (Lead, error) {
	lead, err := scanLead(r.db.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads l WHERE l.id = $1`, id))
	if err != nil {
		return Lead{}, notFound(err)
	}
	return lead, nil
}

// FindLeadByPhone returns the agent's non-excluded lead with this phone.
func (r *Repository) FindLeadByPhone(ctx context.Context, salesID int64, phone string) (Lead, error) {
	lead, err := scanLead(r.db.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads l
		WHERE l.sales_id = $1 AND l.phone = $2 AND l.is_excluded = false
		ORDER BY l.created_at ASC
		LIMIT 1
	`, salesID, phone))
	if err != nil {
		return Lead{}, notFound(err)
	}
	return lead, nil
}

// FindLeadByChatID returns the agent's non-excluded lead that already has a
// message in the given chat thread.
func (r *Repository) FindLeadByChatID(ctx context.Context, salesID int64, chatID string) (Lead, error) {
	lead, err := scanLead(r.db.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads l
		WHERE l.sales_id = $1 AND l.is_excluded = false
		  AND EXISTS (
			SELECT 1 FROM lead_messages m
			WHERE m.lead_id = l.id AND m.wa_chat_id = $2
		  )
		ORDER BY l.created_at ASC
		LIMIT 1
	`, salesID, chatID))
	if err != nil {
		return Lead{}, notFound(err)
	}
	return lead, nil
}

// BackfillLeadPhone sets the phone only while it is still null.
func (r *Repository) BackfillLeadPhone(ctx context.Context, leadID int64, phone string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE leads SET phone = $2, updated_at = now()
		WHERE id = $1 AND phone IS NULL
	`, leadID, phone)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) CreateLead(ctx context.Context, params CreateLeadParams) (Lead, error) {
	lead, err := scanLead(r.db.QueryRow(ctx, `
		INSERT INTO leads AS l (name, phone, sales_id, stage_id, status_id, source_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING `+leadColumns,
		params.Name, params.Phone, params.SalesID, params.StageID, params.StatusID, params.SourceID, params.CreatedAt,
	))
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}

// TouchLeadInbound records inbound activity. lastMessageAt is only moved when
// touchLastMessage is set.
func (r *Repository) TouchLeadInbound(ctx context.Context, leadID int64, at time.Time, touchLastMessage bool) error {
	_, err := r.db.Exec(ctx, `
		UPDATE leads
		SET last_inbound_at = $2,
		    last_message_at = CASE WHEN $3 THEN $2 ELSE last_message_at END,
		    updated_at = now()
		WHERE id = $1
	`, leadID, at, touchLastMessage)
	return err
}

func (r *Repository) TouchLeadOutbound(ctx context.Context, leadID int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE leads
		SET last_outbound_at = $2, last_message_at = $2, updated_at = now()
		WHERE id = $1
	`, leadID, at)
	return err
}
