package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/response"
	"github.com/stemsi/ieltsmock-backend/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	refreshInterval   = 15 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams live test activity to its admin over SSE.
type MonitorHandler struct {
	monitorService *service.MonitorService
	log            zerolog.Logger

	keepAlive time.Duration
	refresh   time.Duration
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(monitorService *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
		keepAlive:      keepAliveInterval,
		refresh:        refreshInterval,
	}
}

// MonitorTestSSE godoc
// GET /api/v1/admin/tests/:id/monitor
// Sends a snapshot, then forwards monitor events as they are published.
// A fresh snapshot follows periodically once activity has been seen.
func (h *MonitorHandler) MonitorTestSSE(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	testID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()
	snapshot, err := h.monitorService.Snapshot(reqCtx, testID, claims.UserID)
	if err != nil {
		response.FailErr(c, err)
		return
	}

	// Subscribe before the first write so no event between snapshot and
	// stream is lost.
	events, unsubscribe := h.monitorService.Subscribe(reqCtx, testID)
	defer func() { _ = unsubscribe() }()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("snapshot", snapshot)
	c.Writer.Flush()

	keepAliveTicker := time.NewTicker(h.keepAlive)
	defer keepAliveTicker.Stop()
	refreshTicker := time.NewTicker(h.refresh)
	defer refreshTicker.Stop()

	active := len(snapshot.Attempts) > 0 || len(snapshot.Queue) > 0
	log := h.log.With().Str("test_id", testID.String()).Int("admin_id", claims.UserID).Logger()
	log.Info().Msg("Admin attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			log.Info().Msg("Admin disconnected from live monitor SSE")
			return

		case msg, open := <-events:
			if !open {
				return
			}
			// Forward raw JSON directly, no deserialization needed.
			c.SSEvent("event", json.RawMessage(msg))
			c.Writer.Flush()
			active = true

		case <-refreshTicker.C:
			if !active {
				continue
			}
			h.sendRefresh(c, reqCtx, testID, claims.UserID, log)

		case <-keepAliveTicker.C:
			c.SSEvent("ping", gin.H{"type": "ping"})
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) sendRefresh(c *gin.Context, parent context.Context, testID uuid.UUID, adminID int, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	snapshot, err := h.monitorService.Snapshot(ctx, testID, adminID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to refresh monitor snapshot")
		return
	}
	c.SSEvent("snapshot", snapshot)
	c.Writer.Flush()
}
