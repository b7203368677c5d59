package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/response"
	"github.com/stemsi/quizrunner/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// LedgerHandler serves the attempt ledger to staff.
type LedgerHandler struct {
	ledger *service.LedgerService
	log    zerolog.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledger *service.LedgerService, log zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger: ledger,
		log:    log.With().Str("component", "ledger_handler").Logger(),
	}
}

// ListAttempts godoc
// GET /api/v1/staff/assessments/:assessment_id/attempts?outcome=FAILED
func (h *LedgerHandler) ListAttempts(c *gin.Context) {
	assessmentID := model.ID(c.Param("assessment_id"))

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	page, perPage = service.NormalizePage(page, perPage)

	var outcome *model.LedgerOutcome
	if raw := c.Query("outcome"); raw != "" {
		o := model.LedgerOutcome(strings.ToUpper(raw))
		if o != model.LedgerOutcomeAccepted && o != model.LedgerOutcomeFailed {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
				map[string]string{"outcome": "outcome must be one of ACCEPTED FAILED"})
			return
		}
		outcome = &o
	}

	entries, total, err := h.ledger.ListForAssessment(c.Request.Context(), assessmentID, page, perPage, outcome)
	if err != nil {
		h.log.Error().Err(err).Str("assessment_id", assessmentID.String()).Msg("List ledger failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": entries}, response.NewPagination(page, perPage, total))
}

// ExportAttempts godoc
// GET /api/v1/staff/assessments/:assessment_id/attempts/export
// Streams the ledger of an assessment as an Excel workbook.
func (h *LedgerHandler) ExportAttempts(c *gin.Context) {
	assessmentID := model.ID(c.Param("assessment_id"))

	buf, err := h.ledger.ExportXLSX(c.Request.Context(), assessmentID)
	if err != nil {
		h.log.Error().Err(err).Str("assessment_id", assessmentID.String()).Msg("Export ledger failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	filename := fmt.Sprintf("attempts_%s_%s.xlsx", safeFilename(assessmentID.String()), time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func safeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, s)
}
