package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/apiclient"
	"github.com/stemsi/quizrunner/internal/middleware"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/quiz"
	"github.com/stemsi/quizrunner/internal/response"
	"github.com/stemsi/quizrunner/internal/service"
	"github.com/stemsi/quizrunner/internal/validator"
)

// SessionHandler handles learner-facing session endpoints.
type SessionHandler struct {
	sessions *service.SessionService
	ledger   *service.LedgerService
	log      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService, ledger *service.LedgerService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		ledger:   ledger,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

// OpenSession godoc
// POST /api/v1/learner/assessments/:assessment_id/sessions
// Loads the assessment and starts the clock, or returns the learner's
// running session for it.
func (h *SessionHandler) OpenSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID := model.ID(c.Param("assessment_id"))
	if assessmentID == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, created, err := h.sessions.Open(c.Request.Context(), claims.UserID, middleware.GetToken(c), assessmentID)
	if err != nil {
		h.fail(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(c, status, view)
}

// GetSession godoc
// GET /api/v1/learner/sessions/:session_id
func (h *SessionHandler) GetSession(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	view, err := h.sessions.View(claims.UserID, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// RecordAnswer godoc
// PUT /api/v1/learner/sessions/:session_id/answers
func (h *SessionHandler) RecordAnswer(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	var req model.RecordAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	state, err := h.sessions.Record(claims.UserID, sessionID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": state})
}

// Navigate godoc
// POST /api/v1/learner/sessions/:session_id/navigate
func (h *SessionHandler) Navigate(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	state, err := h.sessions.Navigate(claims.UserID, sessionID, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": state})
}

// Submit godoc
// POST /api/v1/learner/sessions/:session_id/submit
// Manual finish, or a retry after a failed submission. Submitting twice
// is not an error: the response carries already_submitted.
func (h *SessionHandler) Submit(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	out, err := h.sessions.Submit(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		if !errors.Is(err, quiz.ErrSubmissionFailure) {
			h.fail(c, err)
			return
		}

		h.log.Warn().Err(err).
			Int("learner_id", claims.UserID).
			Str("session_id", sessionID.String()).
			Msg("Submission rejected")

		data := gin.H{"retryable": true}
		if view, verr := h.sessions.View(claims.UserID, sessionID); verr == nil {
			data["state"] = view.State
		}
		code := response.ErrSubmissionFailed
		status := http.StatusBadGateway
		if errors.Is(err, service.ErrSubmitInProgress) {
			code, status = response.ErrSubmitInProgress, http.StatusConflict
		}
		response.FailWithData(c, status, code, data)
		return
	}

	response.Success(c, http.StatusOK, out)
}

// GetResult godoc
// GET /api/v1/learner/sessions/:session_id/result
// Returns the scored attempt with correct answers and explanations.
func (h *SessionHandler) GetResult(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	detail, err := h.sessions.Result(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		status, code := sessionErrorStatus(err)
		if status == http.StatusInternalServerError {
			// Anything unclassified here is a transport failure to the platform.
			status, code = http.StatusBadGateway, response.ErrUpstreamFailed
		}
		h.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Fetch result failed")
		response.Fail(c, status, code)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// CloseSession godoc
// DELETE /api/v1/learner/sessions/:session_id
// Stops the clock without submitting.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	claims, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	state, err := h.sessions.Close(claims.UserID, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"state": state})
}

// ListAttempts godoc
// GET /api/v1/learner/attempts
// Returns the learner's submission history from the ledger.
func (h *SessionHandler) ListAttempts(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	page, perPage = service.NormalizePage(page, perPage)

	entries, total, err := h.ledger.ListForLearner(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		h.log.Error().Err(err).Int("learner_id", claims.UserID).Msg("List attempts failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": entries}, response.NewPagination(page, perPage, total))
}

func (h *SessionHandler) sessionParams(c *gin.Context) (*service.Claims, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, uuid.Nil, false
	}
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, uuid.Nil, false
	}
	return claims, sessionID, true
}

func (h *SessionHandler) fail(c *gin.Context, err error) {
	status, code := sessionErrorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Session request failed")
	}
	response.Fail(c, status, code)
}

// sessionErrorStatus maps session errors onto HTTP statuses and codes.
func sessionErrorStatus(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, response.ErrSessionNotFound
	case errors.Is(err, service.ErrNotSubmitted):
		return http.StatusConflict, response.ErrNotSubmitted
	case errors.Is(err, quiz.ErrSessionClosed):
		return http.StatusConflict, response.ErrSessionClosed
	case errors.Is(err, quiz.ErrUnknownQuestion):
		return http.StatusBadRequest, response.ErrUnknownQuestion
	// Upstream statuses take precedence over the generic load failure.
	case apiclient.IsNotFound(err):
		return http.StatusNotFound, response.ErrNotFound
	case apiclient.IsUnauthorized(err):
		return http.StatusForbidden, response.ErrUpstreamForbidden
	case errors.Is(err, quiz.ErrLoadFailure):
		return http.StatusBadGateway, response.ErrLoadFailed
	case errors.Is(err, quiz.ErrSubmissionFailure):
		return http.StatusBadGateway, response.ErrSubmissionFailed
	}

	var se *apiclient.StatusError
	if errors.As(err, &se) {
		return http.StatusBadGateway, response.ErrUpstreamFailed
	}
	return http.StatusInternalServerError, response.ErrInternal
}
