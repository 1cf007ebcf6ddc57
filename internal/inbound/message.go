package inbound

import (
	"math"
	"slices"
	"strings"
	"time"

	"leadcrm_backend/platform/phone"
)

// Skip markers returned when a message is deliberately ignored.
const (
	SkipFromIsSales     = "from_is_sales"
	SkipExcludedContact = "excluded_contact"
)

// Error codes surfaced to the webhook caller.
const (
	CodeSalesNotFound = "sales_not_found"
	CodeLeadNotFound  = "lead_not_found"
	CodeServerError   = "server_error"
)

// Message is one inbound WhatsApp message as delivered by the gateway webhook.
type Message struct {
	UserID        int64
	From          string
	To            string
	Body          string
	Timestamp     *float64
	WAMessageID   string
	WAChatID      string
	WAPhone       string
	WADisplayName string
}

// Result describes what processing did.
type Result struct {
	Duplicated  bool
	Skipped     string
	LeadID      int64
	LeadCreated bool
	OptedOut    bool
}

// ChatID is the thread the message belongs to; the sender address stands in when absent.
func (m Message) ChatID() string {
	if id := strings.TrimSpace(m.WAChatID); id != "" {
		return id
	}
	return strings.TrimSpace(m.From)
}

// SenderJIDs lists the distinct non-empty sender and chat addresses. A chat
// id can be an "@lid" alias while From still carries the real JID.
func (m Message) SenderJIDs() []string {
	return distinct(strings.TrimSpace(m.From), strings.TrimSpace(m.WAChatID))
}

// SenderPhones lists the resolved phone plus the digits embedded in any
// personal JID of the payload.
func (m Message) SenderPhones(resolved string) []string {
	return distinct(
		resolved,
		phone.NormalizeDigits(phone.FromChatID(m.From)),
		phone.NormalizeDigits(phone.FromChatID(m.WAChatID)),
	)
}

func distinct(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// SentAt converts the epoch-seconds timestamp, falling back to now.
func (m Message) SentAt(now time.Time) time.Time {
	if m.Timestamp == nil || *m.Timestamp <= 0 || math.IsInf(*m.Timestamp, 0) || math.IsNaN(*m.Timestamp) {
		return now
	}
	sec, frac := math.Modf(*m.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
