// Package api is the HTTP surface: room state, the assistant, security
// controls, the gateway webhook and a server-sent event stream.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"solarcore/internal/application"
	"solarcore/internal/domain"
	"solarcore/internal/events"
)

// RoomReader loads room documents.
type RoomReader interface {
	ListRooms(ctx context.Context, accountID string) ([]domain.Room, error)
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
}

// DeviceUpdater applies a single appliance update.
type DeviceUpdater interface {
	UpdateState(ctx context.Context, roomID, applianceID string, fields domain.Fields) (application.UpdateResult, error)
}

// RoomReconciler runs an on-demand reconcile.
type RoomReconciler interface {
	Reconcile(ctx context.Context, roomID string) (application.ReconcileResult, error)
}

// Assistant answers text and audio utterances.
type Assistant interface {
	Handle(ctx context.Context, accountID, text string) (application.Reply, error)
	HandleAudio(ctx context.Context, accountID string, audio []byte) (application.Reply, error)
}

// Security is the state machine surface exposed over HTTP.
type Security interface {
	State() domain.SecurityState
	Countdown() (sessionID string, running bool)
	AutoShutdownEnabled() bool
	LockDoor(ctx context.Context) (domain.SecurityState, error)
	UnlockDoor(ctx context.Context) (domain.SecurityState, error)
	SetAway(ctx context.Context) (domain.SecurityState, error)
	SetHome(ctx context.Context) (domain.SecurityState, error)
	CancelCountdown() bool
	SetAutoShutdown(enabled bool)
}

// CanonicalWriter records gateway-reported state. It is nil when the
// canonical records live in the gateway itself.
type CanonicalWriter interface {
	UpdateState(ctx context.Context, id string, state map[string]any) error
}

// Deps are the services the handlers call.
type Deps struct {
	Rooms      RoomReader
	Devices    DeviceUpdater
	Reconciler RoomReconciler
	Assistant  Assistant
	Security   Security
	Canonical  CanonicalWriter
	Bus        *events.Bus
	Logger     *slog.Logger
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	rooms      RoomReader
	devices    DeviceUpdater
	reconciler RoomReconciler
	assistant  Assistant
	security   Security
	canonical  CanonicalWriter
	bus        *events.Bus
	logger     *slog.Logger
}

// NewHandler builds a Handler from its dependencies.
func NewHandler(d Deps) *Handler {
	return &Handler{
		rooms:      d.Rooms,
		devices:    d.Devices,
		reconciler: d.Reconciler,
		assistant:  d.Assistant,
		security:   d.Security,
		canonical:  d.Canonical,
		bus:        d.Bus,
		logger:     d.Logger,
	}
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrTransientIO):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
