package nurturing

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"leadcrm_backend/internal/leads/repository"
	"leadcrm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// StateResponse is the JSON view of a nurturing state.
type StateResponse struct {
	OK             bool       `json:"ok"`
	LeadID         int64      `json:"leadId"`
	Status         string     `json:"status"`
	ManualPaused   bool       `json:"manualPaused"`
	PauseReason    *string    `json:"pauseReason"`
	PausedAt       *time.Time `json:"pausedAt"`
	CurrentStep    int        `json:"currentStep"`
	NextSendAt     *time.Time `json:"nextSendAt"`
	PlanID         *string    `json:"planId"`
	StartedAt      *time.Time `json:"startedAt"`
	LastSentAt     *time.Time `json:"lastSentAt"`
	LastMessageKey *string    `json:"lastMessageKey"`
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/leads/:leadId/nurturing", h.Get)
	rg.POST("/leads/:leadId/nurturing/pause", h.Pause)
	rg.POST("/leads/:leadId/nurturing/resume", h.Resume)
}

func (h *Handler) Get(c *gin.Context) {
	h.handle(c, h.svc.Get)
}

func (h *Handler) Pause(c *gin.Context) {
	h.handle(c, h.svc.Pause)
}

func (h *Handler) Resume(c *gin.Context) {
	h.handle(c, h.svc.Resume)
}

type stateAction func(ctx context.Context, actor Actor, leadID int64) (repository.NurturingState, error)

func (h *Handler) handle(c *gin.Context, action stateAction) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	leadID, err := strconv.ParseInt(c.Param("leadId"), 10, 64)
	if err != nil || leadID <= 0 {
		httpkit.Error(c, http.StatusBadRequest, "invalid_lead_id")
		return
	}

	state, err := action(c.Request.Context(), Actor{UserID: identity.UserID(), Roles: identity.Roles()}, leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toResponse(state))
}

func toResponse(s repository.NurturingState) StateResponse {
	return StateResponse{
		OK:             true,
		LeadID:         s.LeadID,
		Status:         s.Status,
		ManualPaused:   s.ManualPaused,
		PauseReason:    s.PauseReason,
		PausedAt:       s.PausedAt,
		CurrentStep:    s.CurrentStep,
		NextSendAt:     s.NextSendAt,
		PlanID:         s.PlanID,
		StartedAt:      s.StartedAt,
		LastSentAt:     s.LastSentAt,
		LastMessageKey: s.LastMessageKey,
	}
}
