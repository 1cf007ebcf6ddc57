package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	apphttp "leadcrm_backend/internal/http"
	"leadcrm_backend/internal/leads/repository"
	"leadcrm_backend/platform/httpkit"
	"leadcrm_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const keepAliveInterval = 25 * time.Second

// LeadReader checks lead ownership before a lead room is joined.
type LeadReader interface {
	GetLead(ctx context.Context, id int64) (repository.Lead, error)
}

// Module serves the SSE stream at /api/v1/realtime/stream.
type Module struct {
	pub   *Publisher
	leads LeadReader
	log   *logger.Logger
}

func NewModule(pub *Publisher, leads LeadReader, log *logger.Logger) *Module {
	return &Module{pub: pub, leads: leads, log: log}
}

func (m *Module) Name() string {
	return "realtime"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/realtime/stream", m.Stream)
}

// Stream subscribes the caller to their agent room and, with ?leadId=, to
// one lead room, relaying events as Server-Sent Events.
func (m *Module) Stream(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	if m.pub == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, "realtime_disabled")
		return
	}

	rooms := []string{SalesRoom(identity.UserID())}
	if raw := c.Query("leadId"); raw != "" {
		leadID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || leadID <= 0 {
			httpkit.Error(c, http.StatusBadRequest, "invalid_lead_id")
			return
		}
		lead, err := m.leads.GetLead(c.Request.Context(), leadID)
		if errors.Is(err, repository.ErrNotFound) {
			httpkit.Error(c, http.StatusNotFound, "lead_not_found")
			return
		}
		if httpkit.HandleError(c, err) {
			return
		}
		if lead.SalesID != identity.UserID() && !identity.HasRole("admin") {
			httpkit.Error(c, http.StatusForbidden, "forbidden")
			return
		}
		rooms = append(rooms, LeadRoom(leadID))
	}

	ctx := c.Request.Context()
	sub := m.pub.Subscribe(ctx, rooms...)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		m.log.WithContext(ctx).Warn("realtime subscribe failed", "error", err)
		httpkit.Error(c, http.StatusServiceUnavailable, "realtime_unavailable")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent("connected", gin.H{"userId": identity.UserID(), "rooms": rooms})
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			_, _ = c.Writer.Write([]byte(": ping\n\n"))
			c.Writer.Flush()
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				m.log.Warn("dropping malformed realtime event", "error", err, "channel", msg.Channel)
				continue
			}
			c.SSEvent(env.Event, msg.Payload)
			c.Writer.Flush()
		}
	}
}

var _ apphttp.Module = (*Module)(nil)
