package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/middleware"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/quiz"
	"github.com/stemsi/quizrunner/internal/response"
	"github.com/stemsi/quizrunner/internal/service"
	"github.com/stemsi/quizrunner/internal/validator"
	ws "github.com/stemsi/quizrunner/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a session's clock and lifecycle to the learner and
// accepts answer, navigate and submit actions over the same socket.
type WSHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/learner/sessions/:session_id/stream?token=...
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	learnerID := claims.UserID

	// Subscribing first doubles as the ownership check.
	events, cancel, err := h.sessions.Subscribe(learnerID, sessionID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		return
	}
	defer cancel()

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Int("learner_id", learnerID).
		Str("session_id", sessionID.String()).
		Logger()
	wsLog.Info().Msg("Learner connected")

	if view, err := h.sessions.View(learnerID, sessionID); err == nil {
		conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: view.State})
	}

	pushDone := make(chan struct{})
	go func() {
		defer close(pushDone)
		h.pushEvents(conn, events, wsLog)
	}()

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, learnerID, sessionID, &msg)
		case ws.ActionNavigate:
			h.handleNavigate(conn, learnerID, sessionID, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(c, conn, wsLog, learnerID, sessionID)
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.WriteError("unknown action: " + string(msg.Action))
		}
	}

	cancel()
	<-pushDone
	wsLog.Info().Msg("Learner disconnected")
}

// pushEvents relays session events until the subscription ends. When the
// session goes away first, the socket is closed so the read loop ends too.
func (h *WSHandler) pushEvents(conn *ws.Conn, events <-chan quiz.Event, wsLog zerolog.Logger) {
	for e := range events {
		msg, ok := eventMessage(e)
		if !ok {
			continue
		}
		if err := conn.WriteTyped(msg); err != nil {
			wsLog.Debug().Err(err).Str("event", string(e.Type)).Msg("Event write failed")
			return
		}
		if e.Type == quiz.EventClosed {
			conn.WriteClose(websocket.CloseNormalClosure, "session closed")
			conn.Close()
			return
		}
	}
	// Channel closed by eviction or shutdown.
	conn.WriteClose(websocket.CloseGoingAway, "session ended")
	conn.Close()
}

func (h *WSHandler) handleAnswer(conn *ws.Conn, learnerID int, sessionID uuid.UUID, msg *ws.RequestPayload) {
	req := model.RecordAnswerRequest{QuestionID: msg.QuestionID, Choice: msg.Choice}
	if fields := validator.Validate(&req); fields != nil {
		conn.WriteError(firstField(fields))
		return
	}

	state, err := h.sessions.Record(learnerID, sessionID, req)
	if err != nil {
		_, code := sessionErrorStatus(err)
		conn.WriteError(response.GetMessage(code))
		return
	}
	conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: state})
}

func (h *WSHandler) handleNavigate(conn *ws.Conn, learnerID int, sessionID uuid.UUID, msg *ws.RequestPayload) {
	req := model.NavigateRequest{Action: msg.Move, Index: msg.Index}
	if fields := validator.Validate(&req); fields != nil {
		conn.WriteError(firstField(fields))
		return
	}

	state, err := h.sessions.Navigate(learnerID, sessionID, req)
	if err != nil {
		_, code := sessionErrorStatus(err)
		conn.WriteError(response.GetMessage(code))
		return
	}
	conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: state})
}

// handleSubmit only answers what no session event reports: the outcome
// of a duplicate submission and lookup errors. Accepted and failed
// submissions reach the client through pushEvents.
func (h *WSHandler) handleSubmit(c *gin.Context, conn *ws.Conn, wsLog zerolog.Logger, learnerID int, sessionID uuid.UUID) {
	out, err := h.sessions.Submit(c.Request.Context(), learnerID, sessionID)
	switch {
	case err == nil && out.AlreadySubmitted:
		resp := ws.SubmittedResponse{
			Event:            ws.EventSubmitted,
			Reason:           out.State.SubmitReason,
			AttemptID:        out.State.AttemptID,
			AlreadySubmitted: true,
			Result:           out.Result,
		}
		if out.Result != nil {
			resp.TimeSpent = out.Result.TimeSpent
		}
		conn.WriteTyped(resp)
	case err == nil:
		wsLog.Info().Str("attempt_id", out.State.AttemptID.String()).Msg("Submitted over WebSocket")
	case errors.Is(err, quiz.ErrSubmissionFailure):
		wsLog.Warn().Err(err).Msg("Submission rejected")
	default:
		_, code := sessionErrorStatus(err)
		conn.WriteError(response.GetMessage(code))
	}
}

// eventMessage converts a session event into its wire form. Events the
// client does not render are skipped.
func eventMessage(e quiz.Event) (interface{}, bool) {
	switch e.Type {
	case quiz.EventTick:
		return ws.TickResponse{Event: ws.EventTick, RemainingSeconds: e.RemainingSeconds}, true
	case quiz.EventExpired:
		return ws.PhaseResponse{Event: ws.EventExpired, Phase: e.Phase, RemainingSeconds: e.RemainingSeconds}, true
	case quiz.EventClosed:
		return ws.PhaseResponse{Event: ws.EventClosed, Phase: e.Phase, RemainingSeconds: e.RemainingSeconds}, true
	case quiz.EventSubmitted:
		return ws.SubmittedResponse{
			Event:     ws.EventSubmitted,
			Reason:    e.Reason,
			AttemptID: e.AttemptID,
			TimeSpent: e.TimeSpent,
			Result:    e.Result,
		}, true
	case quiz.EventSubmitFailed:
		return ws.SubmitFailedResponse{
			Event:     ws.EventSubmitFailed,
			Reason:    e.Reason,
			Error:     response.GetMessage(response.ErrSubmissionFailed),
			Retryable: e.Retryable,
		}, true
	}
	return nil, false
}

func firstField(fields map[string]string) string {
	for _, msg := range fields {
		return msg
	}
	return response.GetMessage(response.ErrValidation)
}
