// Package nurturing owns the automated nurturing lifecycle of a lead: the
// ACTIVE/PAUSED/STOPPED state machine, opt-out detection, the plan catalog and
// the agent-facing pause/resume toggle.
package nurturing

import (
	"strings"
	"time"

	"leadcrm_backend/internal/leads/repository"
)

// Status is the lifecycle status of a lead's nurturing state.
type Status string

const (
	StatusActive  Status = repository.NurturingActive
	StatusPaused  Status = repository.NurturingPaused
	StatusStopped Status = repository.NurturingStopped
)

const (
	ReasonInboundRecent = repository.PauseReasonInboundRecent
	ReasonManualToggle  = repository.PauseReasonManualToggle
)

// DefaultOptOutWindow bounds how long after a nurturing message a keyword reply counts as an opt-out.
const DefaultOptOutWindow = 24 * time.Hour

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusStopped
}

// OptOutKeywords are matched as substrings of the lowercased, trimmed body.
var OptOutKeywords = []string{
	"nonaktif",
	"stop",
	"unsubscribe",
	"jangan kirim",
	"tidak mau",
	"hapus saya",
}

// ContainsOptOutKeyword reports whether body asks to stop automated messages.
func ContainsOptOutKeyword(body string) bool {
	normalized := strings.ToLower(strings.TrimSpace(body))
	if normalized == "" {
		return false
	}
	for _, kw := range OptOutKeywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// OptOutCheck carries everything the opt-out gate looks at.
type OptOutCheck struct {
	Body            string
	Status          Status
	LastNurturingAt *time.Time
	InboundAt       time.Time
	Window          time.Duration
}

// ShouldHonorOptOut reports whether an inbound message stops nurturing. The
// keyword must match, nurturing must be ACTIVE, and the message must arrive
// strictly after the last nurturing send and no later than Window after it.
func ShouldHonorOptOut(c OptOutCheck) bool {
	if !ContainsOptOutKeyword(c.Body) {
		return false
	}
	if c.Status != StatusActive || c.LastNurturingAt == nil {
		return false
	}
	window := c.Window
	if window <= 0 {
		window = DefaultOptOutWindow
	}
	elapsed := c.InboundAt.Sub(*c.LastNurturingAt)
	return elapsed > 0 && elapsed <= window
}
