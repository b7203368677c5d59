package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizrunner/internal/model"
)

var ledgerColumns = []string{
	"id", "session_id", "assessment_id", "learner_id", "attempt_id",
	"reason", "outcome", "time_spent", "answered_count", "question_count",
	"score", "passed", "error_message", "created_at",
}

const ledgerSelect = `SELECT id, session_id, assessment_id, learner_id, attempt_id,
		reason, outcome, time_spent, answered_count, question_count,
		score, passed, error_message, created_at
	FROM attempt_ledger`

// AttemptRepository handles attempt ledger data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// BulkInsert writes a batch of ledger rows with COPY.
func (r *AttemptRepository) BulkInsert(ctx context.Context, entries []model.LedgerEntry) error {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, ledgerRow(e))
	}
	_, err := r.pool.CopyFrom(ctx, pgx.Identifier{"attempt_ledger"}, ledgerColumns, pgx.CopyFromRows(rows))
	return err
}

// Insert writes a single ledger row. Replays of the same row are ignored.
func (r *AttemptRepository) Insert(ctx context.Context, e model.LedgerEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_ledger (id, session_id, assessment_id, learner_id, attempt_id,
			reason, outcome, time_spent, answered_count, question_count,
			score, passed, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO NOTHING`,
		ledgerRow(e)...,
	)
	return err
}

// ListByLearner retrieves a learner's ledger rows, newest first.
func (r *AttemptRepository) ListByLearner(ctx context.Context, learnerID, page, perPage int) ([]model.LedgerEntry, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempt_ledger WHERE learner_id = $1`, learnerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		ledgerSelect+` WHERE learner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		learnerID, perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, 0, err
	}
	entries, err := scanLedger(rows)
	return entries, total, err
}

// ListByAssessment retrieves ledger rows of an assessment with an optional
// outcome filter and pagination.
func (r *AttemptRepository) ListByAssessment(ctx context.Context, assessmentID string, page, perPage int, outcome *model.LedgerOutcome) ([]model.LedgerEntry, int64, error) {
	where := ` WHERE assessment_id = $1`
	args := []any{assessmentID}
	if outcome != nil && *outcome != "" {
		args = append(args, *outcome)
		where += fmt.Sprintf(" AND outcome = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM attempt_ledger"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := ledgerSelect + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	entries, err := scanLedger(rows)
	return entries, total, err
}

// ListAllByAssessment retrieves every ledger row of an assessment in
// chronological order, for exports.
func (r *AttemptRepository) ListAllByAssessment(ctx context.Context, assessmentID string) ([]model.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		ledgerSelect+` WHERE assessment_id = $1 ORDER BY created_at ASC`, assessmentID,
	)
	if err != nil {
		return nil, err
	}
	return scanLedger(rows)
}

func ledgerRow(e model.LedgerEntry) []any {
	return []any{
		e.ID, e.SessionID, e.AssessmentID, e.LearnerID, e.AttemptID,
		string(e.Reason), string(e.Outcome), e.TimeSpent, e.AnsweredCount, e.QuestionCount,
		e.Score, e.Passed, e.ErrorMessage, e.CreatedAt,
	}
}

func scanLedger(rows pgx.Rows) ([]model.LedgerEntry, error) {
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.AssessmentID, &e.LearnerID, &e.AttemptID,
			&e.Reason, &e.Outcome, &e.TimeSpent, &e.AnsweredCount, &e.QuestionCount,
			&e.Score, &e.Passed, &e.ErrorMessage, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
