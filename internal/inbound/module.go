package inbound

import (
	apphttp "leadcrm_backend/internal/http"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"
	"leadcrm_backend/platform/validator"
)

// Module mounts the WhatsApp inbound webhook. The route is authenticated by
// the shared webhook key rather than JWT and served at /api/whatsapp/inbound.
type Module struct {
	handler *Handler
	service *Service
}

func NewModule(svc *Service, val *validator.Validator, webhookKey string, log *logger.Logger, m *metrics.Metrics) *Module {
	return &Module{handler: NewHandler(svc, val, webhookKey, log, m), service: svc}
}

func (m *Module) Name() string {
	return "inbound"
}

func (m *Module) Service() *Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Engine.Group("/api")
	if ctx.WebhookRateLimiter != nil {
		group.Use(ctx.WebhookRateLimiter.RateLimit())
	}
	m.handler.RegisterRoutes(group)
}

var _ apphttp.Module = (*Module)(nil)
