package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"solarcore/internal/events"
	"solarcore/internal/mw"
)

// Options configures the middleware stack.
type Options struct {
	RateLimit rate.Limit
	RateBurst int
	CacheTTL  time.Duration
	// Cache holds GET responses. It must be flushed whenever room state
	// changes; see FlushOnUpdate.
	Cache *mw.ResponseCache
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h))

	caching := mw.Cache(opts.Cache, opts.CacheTTL)

	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.Use(mw.Account(), mw.RateLimiter(opts.RateLimit, opts.RateBurst))
	{
		api.GET("/rooms", caching, h.ListRooms)
		api.GET("/rooms/:room_id", caching, h.GetRoom)
		api.PATCH("/rooms/:room_id/appliances/:appliance_id", h.UpdateAppliance)
		api.POST("/rooms/:room_id/reconcile", h.Reconcile)

		api.POST("/assistant/command", h.Command)
		api.POST("/assistant/audio", h.Audio)

		api.GET("/security", h.GetSecurity)
		api.POST("/security/lock", h.transition(h.security.LockDoor))
		api.POST("/security/unlock", h.transition(h.security.UnlockDoor))
		api.POST("/security/away", h.transition(h.security.SetAway))
		api.POST("/security/home", h.transition(h.security.SetHome))
		api.POST("/security/countdown/cancel", h.CancelCountdown)
		api.PUT("/security/auto-shutdown", h.SetAutoShutdown)

		api.POST("/gateway/devices/:device_id/state", h.GatewayState)

		api.GET("/events", h.Events)
	}

	return r
}

// FlushOnUpdate empties the response cache whenever an appliance changes.
func FlushOnUpdate(bus *events.Bus, c *mw.ResponseCache) (unsubscribe func()) {
	return events.Subscribe(bus, events.TopicDeviceUpdated, func(events.DeviceUpdated) {
		c.Flush()
	})
}

func requestLogger(h *Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
