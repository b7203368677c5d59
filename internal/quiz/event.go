package quiz

import (
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/quizrunner/internal/model"
)

// EventType names a session lifecycle event.
type EventType string

const (
	EventStarted      EventType = "started"
	EventTick         EventType = "tick"
	EventAnswered     EventType = "answered"
	EventExpired      EventType = "expired"
	EventSubmitting   EventType = "submitting"
	EventSubmitted    EventType = "submitted"
	EventSubmitFailed EventType = "submit_failed"
	EventClosed       EventType = "closed"
)

// Event is emitted by a Session to its observer.
type Event struct {
	Type             EventType             `json:"type"`
	SessionID        uuid.UUID             `json:"session_id"`
	AssessmentID     model.ID              `json:"assessment_id"`
	LearnerID        int                   `json:"learner_id"`
	Phase            model.SessionPhase    `json:"phase"`
	RemainingSeconds int                   `json:"remaining_seconds"`
	AnsweredCount    int                   `json:"answered_count"`
	QuestionCount    int                   `json:"question_count"`
	Reason           model.SubmitReason    `json:"reason,omitempty"`
	AttemptID        model.ID              `json:"attempt_id,omitempty"`
	TimeSpent        int                   `json:"time_spent,omitempty"`
	Result           *model.AttemptSummary `json:"result,omitempty"`
	Error            string                `json:"error,omitempty"`
	// Retryable is set on submit_failed: the client should offer a retry action.
	Retryable bool      `json:"retryable,omitempty"`
	At        time.Time `json:"at"`
}

// Observer receives session events. It is called without session locks
// held, possibly from the ticking goroutine, and must not block for long.
type Observer func(Event)
