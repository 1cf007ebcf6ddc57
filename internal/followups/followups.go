// Package followups seeds the automatic follow-up cadence of a new lead.
package followups

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadcrm_backend/internal/leads/repository"
)

// Gaps between consecutive follow-ups: FU1 one day after creation, FU2 three
// days after FU1, FU3 six days after FU2.
var Gaps = []time.Duration{
	24 * time.Hour,
	3 * 24 * time.Hour,
	6 * 24 * time.Hour,
}

// Writer is the persistence needed to seed follow-ups. Pass a transaction-bound
// store so the seed commits or rolls back with the lead.
type Writer interface {
	ListFollowUpTypes(ctx context.Context) ([]repository.FollowUpType, error)
	InsertFollowUp(ctx context.Context, params repository.InsertFollowUpParams) (bool, error)
}

// Planned is one computed follow-up.
type Planned struct {
	Type         repository.FollowUpType
	NextActionAt time.Time
}

// Schedule pairs the ordered follow-up types with their due times. Types past
// the end of Gaps are not scheduled.
func Schedule(types []repository.FollowUpType, startAt time.Time) []Planned {
	planned := make([]Planned, 0, len(Gaps))
	at := startAt
	for i, t := range types {
		if i >= len(Gaps) {
			break
		}
		at = at.Add(Gaps[i])
		planned = append(planned, Planned{Type: t, NextActionAt: at})
	}
	return planned
}

// CreateAutoFollowUps seeds the cadence for a lead and returns the follow-ups
// that were actually inserted.
func CreateAutoFollowUps(ctx context.Context, w Writer, leadID, salesID int64, startAt time.Time) ([]Planned, error) {
	types, err := w.ListFollowUpTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list follow-up types: %w", err)
	}

	var seeded []Planned
	for _, p := range Schedule(types, startAt) {
		inserted, err := w.InsertFollowUp(ctx, repository.InsertFollowUpParams{
			LeadID:         leadID,
			SalesID:        salesID,
			FollowUpTypeID: p.Type.ID,
			NextActionAt:   p.NextActionAt,
		})
		if err != nil {
			return nil, fmt.Errorf("insert follow-up %s: %w", p.Type.Code, err)
		}
		if inserted {
			seeded = append(seeded, p)
		}
	}
	return seeded, nil
}

// CadenceSummary describes the seeded follow-ups for activity logs.
func CadenceSummary(planned []Planned) string {
	parts := make([]string, 0, len(planned))
	for _, p := range planned {
		parts = append(parts, fmt.Sprintf("%s %s", p.Type.Code, p.NextActionAt.Format("2006-01-02")))
	}
	return "Jadwal follow up otomatis: " + strings.Join(parts, ", ")
}
