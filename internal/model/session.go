package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmitReason records what triggered a submission.
type SubmitReason string

const (
	SubmitReasonManual      SubmitReason = "manual"
	SubmitReasonAutoExpired SubmitReason = "auto_expired"
)

// SessionPhase enumerates the externally visible states of a session.
type SessionPhase string

const (
	SessionPhaseRunning    SessionPhase = "RUNNING"
	SessionPhaseSubmitting SessionPhase = "SUBMITTING"
	// SessionPhaseExpired means time ran out and the submission has not
	// yet been accepted; the learner can only retry the submission.
	SessionPhaseExpired   SessionPhase = "EXPIRED"
	SessionPhaseSubmitted SessionPhase = "SUBMITTED"
	SessionPhaseClosed    SessionPhase = "CLOSED"
)

// Terminal reports whether no further mutation of the session is possible.
func (p SessionPhase) Terminal() bool {
	return p == SessionPhaseSubmitted || p == SessionPhaseClosed
}

// SessionState is a point-in-time snapshot of a runtime session.
type SessionState struct {
	SessionID        uuid.UUID     `json:"session_id"`
	AssessmentID     ID            `json:"assessment_id"`
	LearnerID        int           `json:"learner_id"`
	Phase            SessionPhase  `json:"phase"`
	RemainingSeconds int           `json:"remaining_seconds"`
	Cursor           int           `json:"cursor"`
	IsLastQuestion   bool          `json:"is_last_question"`
	QuestionCount    int           `json:"question_count"`
	AnsweredCount    int           `json:"answered_count"`
	Answers          map[ID]Choice `json:"answers"`
	StartedAt        time.Time     `json:"started_at"`
	SubmitReason     SubmitReason  `json:"submit_reason,omitempty"`
	AttemptID        ID            `json:"attempt_id,omitempty"`
	LastError        string        `json:"last_error,omitempty"`
}

// SessionView is what the learner's client receives when opening or
// reloading a session.
type SessionView struct {
	State      SessionState    `json:"state"`
	Assessment *Assessment     `json:"assessment"`
	Result     *AttemptSummary `json:"result,omitempty"`
}

// RecordAnswerRequest is the payload for recording a choice.
type RecordAnswerRequest struct {
	QuestionID ID     `json:"question_id" binding:"required"`
	Choice     Choice `json:"choice" binding:"required,choice"`
}

// NavigateAction enumerates cursor movements.
type NavigateAction string

const (
	NavigateNext     NavigateAction = "next"
	NavigatePrevious NavigateAction = "previous"
	NavigateGoTo     NavigateAction = "goto"
)

// NavigateRequest is the payload for moving the cursor.
type NavigateRequest struct {
	Action NavigateAction `json:"action" binding:"required,oneof=next previous goto"`
	Index  int            `json:"index"`
}

// SubmitOutcome is returned by the submit endpoint.
type SubmitOutcome struct {
	AlreadySubmitted bool            `json:"already_submitted"`
	State            SessionState    `json:"state"`
	Result           *AttemptSummary `json:"result,omitempty"`
}
