package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"solarcore/internal/domain"
	"solarcore/internal/events"
	"solarcore/internal/mw"
)

// GatewayState handles POST /api/gateway/devices/:device_id/state, the
// webhook a gateway calls after a device changed outside this process.
func (h *Handler) GatewayState(c *gin.Context) {
	deviceID := c.Param("device_id")
	if !h.linkedToAccount(c, deviceID) {
		return
	}

	var state map[string]any
	if err := c.ShouldBindJSON(&state); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if h.canonical != nil && len(state) > 0 {
		if err := h.canonical.UpdateState(c.Request.Context(), deviceID, state); err != nil {
			h.fail(c, err)
			return
		}
	}

	events.Publish(h.bus, events.TopicCanonicalChanged, events.CanonicalChanged{DeviceID: deviceID})
	c.JSON(http.StatusAccepted, gin.H{"device_id": deviceID})
}

// linkedToAccount requires one of the caller's rooms to hold an appliance
// linked to deviceID. Devices of other accounts are reported as missing.
func (h *Handler) linkedToAccount(c *gin.Context, deviceID string) bool {
	rooms, err := h.rooms.ListRooms(c.Request.Context(), mw.AccountID(c))
	if err != nil {
		h.fail(c, err)
		return false
	}
	for _, r := range rooms {
		for _, a := range r.Appliances {
			if a.CanonicalDeviceID == deviceID {
				return true
			}
		}
	}
	h.fail(c, fmt.Errorf("canonical device %s: %w", deviceID, domain.ErrNotFound))
	return false
}

// eventBuffer is how many events a slow client may fall behind before
// events are dropped for it.
const eventBuffer = 32

// Events streams every bus event as server-sent events until the client
// disconnects.
func (h *Handler) Events(c *gin.Context) {
	ch := make(chan events.Envelope, eventBuffer)
	unsubscribe := h.bus.SubscribeAll(func(e events.Envelope) {
		select {
		case ch <- e:
		default:
			h.logger.Debug("dropping event for slow client", "topic", e.Topic)
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"status": "ok"})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e := <-ch:
			c.SSEvent(e.Topic, e)
			return true
		}
	})
}
