package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"solarcore/internal/application"
	"solarcore/internal/domain"
	"solarcore/internal/mw"
)

// ListRooms handles GET /api/rooms for the calling account.
func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.rooms.ListRooms(c.Request.Context(), mw.AccountID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

// GetRoom handles GET /api/rooms/:room_id.
func (h *Handler) GetRoom(c *gin.Context) {
	room, ok := h.ownedRoom(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, room)
}

// UpdateAppliance handles PATCH /api/rooms/:room_id/appliances/:appliance_id.
// The body is a partial update; omitted fields are left alone.
func (h *Handler) UpdateAppliance(c *gin.Context) {
	if _, ok := h.ownedRoom(c); !ok {
		return
	}

	var fields domain.Fields
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if fields.Empty() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	res, err := h.devices.UpdateState(c.Request.Context(), c.Param("room_id"), c.Param("appliance_id"), fields)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Reconcile answers 429 with the result body when the run was not admitted.
func (h *Handler) Reconcile(c *gin.Context) {
	if _, ok := h.ownedRoom(c); !ok {
		return
	}

	res, err := h.reconciler.Reconcile(c.Request.Context(), c.Param("room_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !res.Admitted {
		c.JSON(http.StatusTooManyRequests, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ownedRoom loads the room named in the path. Rooms of other accounts are
// reported as missing.
func (h *Handler) ownedRoom(c *gin.Context) (*domain.Room, bool) {
	roomID := c.Param("room_id")
	room, err := h.rooms.GetRoom(c.Request.Context(), roomID)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	if room.OwnerID != mw.AccountID(c) {
		h.fail(c, fmt.Errorf("room %s: %w", roomID, domain.ErrNotFound))
		return nil, false
	}
	return room, true
}

var _ DeviceUpdater = (*application.DeviceState)(nil)
