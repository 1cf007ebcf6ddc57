package inbound

import (
	"crypto/subtle"
	"net/http"

	"leadcrm_backend/platform/apperr"
	"leadcrm_backend/platform/httpkit"
	"leadcrm_backend/platform/logger"
	"leadcrm_backend/platform/metrics"
	"leadcrm_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// WebhookKeyHeader carries the shared secret configured on the gateway.
const WebhookKeyHeader = "x-wa-webhook-key"

const (
	errInvalidWebhookKey = "invalid_webhook_key"
	errMissingFields     = "missing_fields"
)

// WebhookRequest is the JSON body posted by the gateway.
type WebhookRequest struct {
	UserID        int64    `json:"userId" validate:"required"`
	From          string   `json:"from" validate:"required"`
	To            string   `json:"to" validate:"required"`
	Body          string   `json:"body" validate:"required"`
	Timestamp     *float64 `json:"timestamp"`
	WAMessageID   string   `json:"waMessageId"`
	WAChatID      string   `json:"waChatId"`
	WAPhone       string   `json:"waPhone"`
	WADisplayName string   `json:"waDisplayName"`
}

// WebhookResponse is the success envelope.
type WebhookResponse struct {
	OK         bool   `json:"ok"`
	Duplicated bool   `json:"duplicated,omitempty"`
	Skipped    string `json:"skipped,omitempty"`
}

type Handler struct {
	svc        *Service
	val        *validator.Validator
	webhookKey string
	log        *logger.Logger
	metrics    *metrics.Metrics
}

func NewHandler(svc *Service, val *validator.Validator, webhookKey string, log *logger.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, val: val, webhookKey: webhookKey, log: log, metrics: m}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/whatsapp/inbound", h.Inbound)
}

func (h *Handler) Inbound(c *gin.Context) {
	if h.webhookKey != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(WebhookKeyHeader)), []byte(h.webhookKey)) != 1 {
		h.metrics.InboundOutcome(errInvalidWebhookKey)
		httpkit.Error(c, http.StatusUnauthorized, errInvalidWebhookKey)
		return
	}

	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.InboundOutcome(errMissingFields)
		httpkit.Error(c, http.StatusBadRequest, errMissingFields)
		return
	}
	if err := h.val.Struct(req); err != nil {
		h.log.WithContext(c.Request.Context()).Debug("inbound webhook rejected", "fields", validator.FailedFields(err))
		h.metrics.InboundOutcome(errMissingFields)
		httpkit.Error(c, http.StatusBadRequest, errMissingFields)
		return
	}

	result, err := h.svc.Process(c.Request.Context(), Message{
		UserID:        req.UserID,
		From:          req.From,
		To:            req.To,
		Body:          req.Body,
		Timestamp:     req.Timestamp,
		WAMessageID:   req.WAMessageID,
		WAChatID:      req.WAChatID,
		WAPhone:       req.WAPhone,
		WADisplayName: req.WADisplayName,
	})
	if err != nil {
		code := CodeServerError
		if domainErr, ok := apperr.As(err); ok {
			code = domainErr.Message
		}
		h.metrics.InboundOutcome(code)
		httpkit.HandleError(c, err)
		return
	}

	h.metrics.InboundOutcome(outcome(result))
	httpkit.OK(c, WebhookResponse{OK: true, Duplicated: result.Duplicated, Skipped: result.Skipped})
}

func outcome(r Result) string {
	switch {
	case r.Duplicated:
		return "duplicated"
	case r.Skipped != "":
		return r.Skipped
	case r.OptedOut:
		return "opted_out"
	case r.LeadCreated:
		return "lead_created"
	default:
		return "ok"
	}
}
