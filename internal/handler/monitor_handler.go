package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/service"
)

const keepAliveInterval = 30 * time.Second

// MonitorFeed relays raw session events of one assessment, published by
// every gateway replica.
type MonitorFeed interface {
	Subscribe(ctx context.Context, assessmentID string) (<-chan string, func())
}

type MonitorHandler struct {
	sessions *service.SessionService
	feed     MonitorFeed
	refresh  time.Duration
	log      zerolog.Logger
}

func NewMonitorHandler(sessions *service.SessionService, feed MonitorFeed, refresh time.Duration, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		sessions: sessions,
		feed:     feed,
		refresh:  refresh,
		log:      log.With().Str("component", "monitor_handler").Logger(),
	}
}

type monitorStats struct {
	Total      int `json:"total"`
	Running    int `json:"running"`
	Submitting int `json:"submitting"`
	Expired    int `json:"expired"`
	Submitted  int `json:"submitted"`
}

// MonitorSSE godoc
// GET /api/v1/staff/assessments/:assessment_id/monitor
// Sends a snapshot of this replica's live sessions, then relays session
// events of every replica as they happen.
func (h *MonitorHandler) MonitorSSE(c *gin.Context) {
	assessmentID := model.ID(c.Param("assessment_id"))
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	h.sendStates(c, "snapshot", assessmentID)

	feed, stop := h.feed.Subscribe(reqCtx, assessmentID.String())
	defer stop()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	refresh := time.NewTicker(h.refresh)
	defer refresh.Stop()

	monLog := h.log.With().Str("assessment_id", assessmentID.String()).Logger()
	monLog.Info().Msg("Staff attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			monLog.Info().Msg("Staff disconnected from live monitor SSE")
			return

		case payload, ok := <-feed:
			if !ok {
				monLog.Warn().Msg("Monitor feed ended")
				return
			}
			// Forward raw JSON directly, no deserialization needed
			c.Writer.WriteString("data: " + payload + "\n\n")
			c.Writer.Flush()

		case <-refresh.C:
			h.sendStates(c, "refresh", assessmentID)

		case <-keepAlive.C:
			c.SSEvent("message", gin.H{"type": "ping"})
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) sendStates(c *gin.Context, kind string, assessmentID model.ID) {
	states := h.sessions.LiveStates(assessmentID)

	stats := monitorStats{Total: len(states)}
	for i, st := range states {
		// Staff see progress, not the chosen options.
		states[i].Answers = nil
		switch st.Phase {
		case model.SessionPhaseRunning:
			stats.Running++
		case model.SessionPhaseSubmitting:
			stats.Submitting++
		case model.SessionPhaseExpired:
			stats.Expired++
		case model.SessionPhaseSubmitted:
			stats.Submitted++
		}
	}

	c.SSEvent("message", gin.H{
		"type": kind,
		"data": gin.H{
			"assessment_id": assessmentID,
			"stats":         stats,
			"sessions":      states,
		},
	})
	c.Writer.Flush()
}
