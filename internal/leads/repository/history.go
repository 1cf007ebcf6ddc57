package repository

import "context"

// HistoryParams describes one stage or status assignment.
type HistoryParams struct {
	LeadID    int64
	ValueID   *int64
	ChangedBy *int64
	Note      string
}

func (r *Repository) InsertStageHistory(ctx context.Context, params HistoryParams) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO lead_stage_histories (lead_id, stage_id, changed_by, note)
		VALUES ($1, $2, $3, $4)
	`, params.LeadID, params.ValueID, params.ChangedBy, params.Note)
	return err
}

func (r *Repository) InsertStatusHistory(ctx context.Context, params HistoryParams) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO lead_status_histories (lead_id, status_id, changed_by, note)
		VALUES ($1, $2, $3, $4)
	`, params.LeadID, params.ValueID, params.ChangedBy, params.Note)
	return err
}
