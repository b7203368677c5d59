package model

import (
	"time"

	"github.com/google/uuid"
)

// LedgerOutcome enumerates how a submission attempt settled.
type LedgerOutcome string

const (
	LedgerOutcomeAccepted LedgerOutcome = "ACCEPTED"
	LedgerOutcomeFailed   LedgerOutcome = "FAILED"
)

// LedgerEntry is one row of the attempt ledger: every settled submission
// call the gateway made on behalf of a learner.
type LedgerEntry struct {
	ID            uuid.UUID     `json:"id"`
	SessionID     uuid.UUID     `json:"session_id"`
	AssessmentID  string        `json:"assessment_id"`
	LearnerID     int           `json:"learner_id"`
	AttemptID     *string       `json:"attempt_id,omitempty"`
	Reason        SubmitReason  `json:"reason"`
	Outcome       LedgerOutcome `json:"outcome"`
	TimeSpent     int           `json:"time_spent"`
	AnsweredCount int           `json:"answered_count"`
	QuestionCount int           `json:"question_count"`
	Score         *float64      `json:"score,omitempty"`
	Passed        *bool         `json:"passed,omitempty"`
	ErrorMessage  *string       `json:"error_message,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
