package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/xuri/excelize/v2"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
	exportSheet    = "Attempts"
)

// AttemptLedger reads the persisted attempt ledger.
type AttemptLedger interface {
	ListByLearner(ctx context.Context, learnerID, page, perPage int) ([]model.LedgerEntry, int64, error)
	ListByAssessment(ctx context.Context, assessmentID string, page, perPage int, outcome *model.LedgerOutcome) ([]model.LedgerEntry, int64, error)
	ListAllByAssessment(ctx context.Context, assessmentID string) ([]model.LedgerEntry, error)
}

// LedgerService exposes attempt history to learners and staff.
type LedgerService struct {
	repo AttemptLedger
	log  zerolog.Logger
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(repo AttemptLedger, log zerolog.Logger) *LedgerService {
	return &LedgerService{
		repo: repo,
		log:  log.With().Str("component", "ledger_service").Logger(),
	}
}

// NormalizePage clamps pagination input into sane bounds.
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

// ListForLearner returns the learner's own attempts, newest first.
func (s *LedgerService) ListForLearner(ctx context.Context, learnerID, page, perPage int) ([]model.LedgerEntry, int64, error) {
	page, perPage = NormalizePage(page, perPage)
	return s.repo.ListByLearner(ctx, learnerID, page, perPage)
}

// ListForAssessment returns ledger rows of an assessment for staff.
func (s *LedgerService) ListForAssessment(ctx context.Context, assessmentID model.ID, page, perPage int, outcome *model.LedgerOutcome) ([]model.LedgerEntry, int64, error) {
	page, perPage = NormalizePage(page, perPage)
	return s.repo.ListByAssessment(ctx, assessmentID.String(), page, perPage, outcome)
}

// ExportXLSX renders every ledger row of an assessment as a spreadsheet.
func (s *LedgerService) ExportXLSX(ctx context.Context, assessmentID model.ID) (*bytes.Buffer, error) {
	entries, err := s.repo.ListAllByAssessment(ctx, assessmentID.String())
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}

	header := []interface{}{
		"Created At", "Learner ID", "Session ID", "Attempt ID", "Reason", "Outcome",
		"Time Spent (s)", "Answered", "Questions", "Score", "Passed", "Error",
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetCellStyle(exportSheet, "A1", lastCol+"1", bold); err != nil {
		return nil, err
	}

	for i, e := range entries {
		row := []interface{}{
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.LearnerID,
			e.SessionID.String(),
			deref(e.AttemptID),
			string(e.Reason),
			string(e.Outcome),
			e.TimeSpent,
			e.AnsweredCount,
			e.QuestionCount,
			nil,
			nil,
			deref(e.ErrorMessage),
		}
		if e.Score != nil {
			row[9] = *e.Score
		}
		if e.Passed != nil {
			row[10] = *e.Passed
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}

	s.log.Info().
		Str("assessment_id", assessmentID.String()).
		Int("rows", len(entries)).
		Msg("Ledger exported")
	return buf, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
