package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-course-api/internal/middleware"
	"github.com/noah-isme/gema-course-api/internal/service"
	"github.com/noah-isme/gema-course-api/internal/utils"
)

const streamInstanceLocal = "stream_instance_id"

// EventStreamHandler upgrades instructors to a live feed of one instance's coursework events.
type EventStreamHandler struct {
	stream service.EventStream
	logger zerolog.Logger
}

// NewEventStreamHandler creates the websocket handler.
func NewEventStreamHandler(stream service.EventStream, logger zerolog.Logger) *EventStreamHandler {
	return &EventStreamHandler{
		stream: stream,
		logger: logger.With().Str("component", "event_stream_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *EventStreamHandler) Register(router fiber.Router) {
	router.Get("/ws",
		middleware.WithAuth(h.prepare, middleware.AuthOptions{Role: middleware.AuthRoleInstructor}),
		websocket.New(h.handleConnection),
	)
}

// prepare rejects plain HTTP and unknown instances before the upgrade.
func (h *EventStreamHandler) prepare(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return utils.SendError(c, fiber.StatusUpgradeRequired, "websocket upgrade required")
	}

	instanceID, err := parseOptionalUintQuery(c, "instanceId")
	if err != nil || instanceID == nil {
		return badRequest(c, "instanceId is required")
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))

	if err := h.stream.CheckInstance(ctx, *instanceID); err != nil {
		return respondError(c, h.logger, err)
	}

	c.Locals(streamInstanceLocal, *instanceID)
	c.Locals("request_ctx", ctx)
	return c.Next()
}

func (h *EventStreamHandler) handleConnection(conn *websocket.Conn) {
	instanceID, _ := conn.Locals(streamInstanceLocal).(uint)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	opts := service.EventStreamOptions{
		UserID:        websocketLocal(conn, "user_id"),
		Role:          websocketLocal(conn, "user_role"),
		InstanceID:    instanceID,
		CorrelationID: middleware.CorrelationIDFromContext(baseCtx),
		Context:       baseCtx,
	}

	h.logger.Info().Str("user_id", opts.UserID).Uint("instance_id", instanceID).Msg("event stream connected")
	h.stream.ServeConnection(conn, opts)
	h.logger.Info().Str("user_id", opts.UserID).Uint("instance_id", instanceID).Msg("event stream disconnected")
}

func websocketLocal(conn *websocket.Conn, key string) string {
	switch v := conn.Locals(key).(type) {
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case int:
		return strconv.Itoa(v)
	case string:
		return strings.TrimSpace(v)
	default:
		return ""
	}
}
