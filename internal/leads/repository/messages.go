package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"

	ChannelWhatsApp = "WHATSAPP"

	MessageStatusPending   = "PENDING"
	MessageStatusSent      = "SENT"
	MessageStatusDelivered = "DELIVERED"
	MessageStatusRead      = "READ"
	MessageStatusFailed    = "FAILED"
)

// Message is one stored chat message. Rows are never updated by this service.
type Message struct {
	ID                 int64
	LeadID             int64
	SalesID            int64
	WAMessageID        *string
	Direction          string
	Channel            string
	Content            string
	WAChatID           *string
	FromPhone          *string
	ToPhone            *string
	Status             string
	IsNurturingMessage bool
	SentAt             *time.Time
	CreatedAt          time.Time
}

type InsertMessageParams struct {
	LeadID             int64
	SalesID            int64
	WAMessageID        *string
	Direction          string
	Content            string
	WAChatID           *string
	FromPhone          *string
	ToPhone            *string
	Status             string
	IsNurturingMessage bool
	SentAt             time.Time
}

func (r *Repository) MessageExists(ctx context.Context, waMessageID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM lead_messages WHERE wa_message_id = $1)
	`, waMessageID).Scan(&exists)
	return exists, err
}

// InsertMessage stores a message. A provider id collision yields ErrDuplicateMessage.
func (r *Repository) InsertMessage(ctx context.Context, params InsertMessageParams) (Message, error) {
	var m Message
	err := r.db.QueryRow(ctx, `
		INSERT INTO lead_messages (
			lead_id, sales_id, wa_message_id, direction, channel, content,
			wa_chat_id, from_phone, to_phone, status, is_nurturing_message, sent_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, lead_id, sales_id, wa_message_id, direction, channel, content,
			wa_chat_id, from_phone, to_phone, status, is_nurturing_message, sent_at, created_at
	`,
		params.LeadID, params.SalesID, params.WAMessageID, params.Direction, ChannelWhatsApp, params.Content,
		params.WAChatID, params.FromPhone, params.ToPhone, params.Status, params.IsNurturingMessage, params.SentAt,
	).Scan(
		&m.ID, &m.LeadID, &m.SalesID, &m.WAMessageID, &m.Direction, &m.Channel, &m.Content,
		&m.WAChatID, &m.FromPhone, &m.ToPhone, &m.Status, &m.IsNurturingMessage, &m.SentAt, &m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Message{}, ErrDuplicateMessage
		}
		return Message{}, err
	}
	return m, nil
}

// LastNurturingSentAt returns when the most recent automated nurturing message
// went out to the lead, or nil if none ever did.
func (r *Repository) LastNurturingSentAt(ctx context.Context, leadID int64) (*time.Time, error) {
	var at time.Time
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(sent_at, created_at)
		FROM lead_messages
		WHERE lead_id = $1 AND direction = 'OUTBOUND' AND is_nurturing_message = true
		ORDER BY COALESCE(sent_at, created_at) DESC
		LIMIT 1
	`, leadID).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}
