package repository

import (
	"context"
	"encoding/json"
	"strings"
)

// Activity kinds written by the WhatsApp flows.
const (
	ActivityFollowUpScheduled = "follow_up_scheduled"
	ActivityNurturingOptOut   = "nurturing_opt_out"
	ActivityNurturingPaused   = "nurturing_paused"
	ActivityNurturingResumed  = "nurturing_resumed"
)

// ActivityDescriptionMaxLen bounds the stored description.
const ActivityDescriptionMaxLen = 400

type ActivityParams struct {
	LeadID      int64
	ActorID     *int64
	Kind        string
	Title       string
	Description string
	Metadata    map[string]any
}

func (r *Repository) AddActivity(ctx context.Context, params ActivityParams) error {
	if params.Metadata == nil {
		params.Metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(params.Metadata)
	if err != nil {
		return err
	}

	var description *string
	if trimmed := strings.TrimSpace(params.Description); trimmed != "" {
		if runes := []rune(trimmed); len(runes) > ActivityDescriptionMaxLen {
			trimmed = string(runes[:ActivityDescriptionMaxLen]) + "..."
		}
		description = &trimmed
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO lead_activity_logs (lead_id, actor_id, kind, title, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, params.LeadID, params.ActorID, params.Kind, params.Title, description, metadataJSON)
	return err
}
