package nurturing

import (
	apphttp "leadcrm_backend/internal/http"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"
)

// Module exposes the manual nurturing toggle to authenticated agents.
type Module struct {
	handler *Handler
	service *Service
}

func NewModule(store Store, log *logger.Logger, m *metrics.Metrics) *Module {
	svc := NewService(store, log, m)
	return &Module{handler: NewHandler(svc), service: svc}
}

func (m *Module) Name() string {
	return "nurturing"
}

func (m *Module) Service() *Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

var _ apphttp.Module = (*Module)(nil)
