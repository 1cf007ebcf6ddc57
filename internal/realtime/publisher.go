// Package realtime fans lead and agent events out to dashboard clients. Events
// are published on Redis pub/sub so any API instance can serve the SSE stream.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"leadcrm_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

// Event names emitted by the inbound flow.
const (
	EventWAInbound       = "wa_inbound"
	EventWANotify        = "wa_notify"
	EventLeadListChanged = "lead_list_changed"
	EventNurturingSent   = "nurturing_sent"
)

const channelPrefix = "realtime:"

// Envelope is the wire format of one published event.
type Envelope struct {
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// LeadRoom is the room of everyone watching one lead.
func LeadRoom(leadID int64) string {
	return "lead:" + strconv.FormatInt(leadID, 10)
}

// SalesRoom is the room of one agent's dashboards.
func SalesRoom(salesID int64) string {
	return "sales:" + strconv.FormatInt(salesID, 10)
}

func channel(room string) string {
	return channelPrefix + room
}

// Publisher publishes events to Redis. A nil Publisher drops every event.
type Publisher struct {
	rdb redis.UniversalClient
	log *logger.Logger
}

func NewPublisher(rdb redis.UniversalClient, log *logger.Logger) *Publisher {
	if rdb == nil {
		return nil
	}
	return &Publisher{rdb: rdb, log: log}
}

// Emit publishes one event to room. It never blocks on subscribers.
func (p *Publisher) Emit(ctx context.Context, room, event string, payload any) error {
	if p == nil {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal realtime payload: %w", err)
	}
	msg, err := json.Marshal(Envelope{Room: room, Event: event, Payload: data, At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal realtime envelope: %w", err)
	}

	if err := p.rdb.Publish(ctx, channel(room), msg).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event, room, err)
	}
	return nil
}

// Subscribe opens a subscription to the given rooms. Callers must close it.
func (p *Publisher) Subscribe(ctx context.Context, rooms ...string) *redis.PubSub {
	channels := make([]string, len(rooms))
	for i, room := range rooms {
		channels[i] = channel(room)
	}
	return p.rdb.Subscribe(ctx, channels...)
}
