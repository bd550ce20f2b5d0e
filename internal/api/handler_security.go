package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"solarcore/internal/domain"
)

type securityView struct {
	DoorLocked       bool                 `json:"is_door_locked"`
	SecurityMode     bool                 `json:"is_security_mode"`
	Phase            domain.SecurityPhase `json:"phase"`
	ChangedAt        string               `json:"changed_at,omitempty"`
	AutoShutdown     bool                 `json:"auto_shutdown"`
	CountdownRunning bool                 `json:"countdown_running"`
	CountdownSession string               `json:"countdown_session,omitempty"`
}

func (h *Handler) securityView() securityView {
	s := h.security.State()
	session, running := h.security.Countdown()
	v := securityView{
		DoorLocked:       s.DoorLocked,
		SecurityMode:     s.SecurityMode,
		Phase:            s.Phase(),
		AutoShutdown:     h.security.AutoShutdownEnabled(),
		CountdownRunning: running,
		CountdownSession: session,
	}
	if !s.ChangedAt.IsZero() {
		v.ChangedAt = s.ChangedAt.UTC().Format(time.RFC3339)
	}
	return v
}

// GetSecurity handles GET /api/security.
func (h *Handler) GetSecurity(c *gin.Context) {
	c.JSON(http.StatusOK, h.securityView())
}

// transition wraps one state machine operation as a handler.
func (h *Handler) transition(op func(context.Context) (domain.SecurityState, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := op(c.Request.Context()); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, h.securityView())
	}
}

// CancelCountdown handles POST /api/security/countdown/cancel.
func (h *Handler) CancelCountdown(c *gin.Context) {
	cancelled := h.security.CancelCountdown()
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled})
}

type autoShutdownRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetAutoShutdown handles PUT /api/security/auto-shutdown.
func (h *Handler) SetAutoShutdown(c *gin.Context) {
	var req autoShutdownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	h.security.SetAutoShutdown(*req.Enabled)
	c.JSON(http.StatusOK, h.securityView())
}
