package repository

import (
	"context"
	"time"
)

// FollowUpType is one slot of the FU1, FU2, FU3 cadence.
type FollowUpType struct {
	ID       int64
	Code     string
	Name     string
	Sequence int
}

type FollowUp struct {
	ID             int64
	LeadID         int64
	SalesID        int64
	FollowUpTypeID int64
	NextActionAt   time.Time
	DoneAt         *time.Time
}

type InsertFollowUpParams struct {
	LeadID         int64
	SalesID        int64
	FollowUpTypeID int64
	NextActionAt   time.Time
}

func (r *Repository) ListFollowUpTypes(ctx context.Context) ([]FollowUpType, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, code, name, sequence FROM follow_up_types ORDER BY sequence ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]FollowUpType, 0)
	for rows.Next() {
		var t FollowUpType
		if err := rows.Scan(&t.ID, &t.Code, &t.Name, &t.Sequence); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// InsertFollowUp seeds one follow-up. A second seed for the same type is ignored.
func (r *Repository) InsertFollowUp(ctx context.Context, params InsertFollowUpParams) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO lead_follow_ups (lead_id, sales_id, follow_up_type_id, next_action_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lead_id, follow_up_type_id) DO NOTHING
	`, params.LeadID, params.SalesID, params.FollowUpTypeID, params.NextActionAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
