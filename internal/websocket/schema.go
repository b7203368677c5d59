package websocket

import "github.com/stemsi/quizrunner/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionNavigate Action = "navigate"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload is the union of every client action. Fields irrelevant
// to the action are ignored.
type RequestPayload struct {
	Action Action `json:"action"`

	// answer
	QuestionID model.ID     `json:"question_id,omitempty"`
	Choice     model.Choice `json:"choice,omitempty"`

	// navigate
	Move  model.NavigateAction `json:"move,omitempty"`
	Index int                  `json:"index,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState        Event = "state"
	EventTick         Event = "tick"
	EventExpired      Event = "expired"
	EventSubmitted    Event = "submitted"
	EventSubmitFailed Event = "submit_failed"
	EventClosed       Event = "closed"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

// StateResponse carries a full session snapshot. It answers every
// successful answer/navigate action and is sent once on connect.
type StateResponse struct {
	Event Event              `json:"event"`
	State model.SessionState `json:"state"`
}

// TickResponse is pushed every second while the clock runs.
type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

// SubmittedResponse is pushed once a submission is accepted.
type SubmittedResponse struct {
	Event            Event                 `json:"event"`
	Reason           model.SubmitReason    `json:"reason"`
	AttemptID        model.ID              `json:"attempt_id"`
	TimeSpent        int                   `json:"time_spent"`
	AlreadySubmitted bool                  `json:"already_submitted,omitempty"`
	Result           *model.AttemptSummary `json:"result,omitempty"`
}

// SubmitFailedResponse tells the client the submission was not accepted
// and that a retry should be offered.
type SubmitFailedResponse struct {
	Event     Event              `json:"event"`
	Reason    model.SubmitReason `json:"reason"`
	Error     string             `json:"error"`
	Retryable bool               `json:"retryable"`
}

// PhaseResponse announces expiry or closure.
type PhaseResponse struct {
	Event            Event              `json:"event"`
	Phase            model.SessionPhase `json:"phase"`
	RemainingSeconds int                `json:"remaining_seconds"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
