package quiz

import (
	"context"
	"sync"
	"time"

	"github.com/stemsi/quizrunner/internal/model"
)

// Submitter sends a finished attempt to the scoring backend.
type Submitter interface {
	SubmitAssessment(ctx context.Context, id model.ID, req model.SubmitRequest) (*model.AttemptSummary, error)
}

// Submission is the write-once record of an accepted attempt.
type Submission struct {
	Reason      model.SubmitReason
	Answers     map[model.ID]model.Choice
	TimeSpent   int
	Result      *model.AttemptSummary
	SubmittedAt time.Time
}

type guardState int

const (
	guardIdle guardState = iota
	guardInFlight
	guardSubmitted
)

// Finalizer sends the attempt at most once. The first caller to move the
// guard from idle to in-flight wins; everyone else gets ErrAlreadySubmitted.
// A failed call returns the guard to idle so the learner can retry.
type Finalizer struct {
	mu           sync.Mutex
	state        guardState
	submitter    Submitter
	assessmentID model.ID
	startedAt    time.Time
	limit        int
	now          func() time.Time
	submission   *Submission
}

// NewFinalizer creates a Finalizer for one session. limitSeconds caps the
// reported time spent.
func NewFinalizer(s Submitter, assessmentID model.ID, startedAt time.Time, limitSeconds int, now func() time.Time) *Finalizer {
	if now == nil {
		now = time.Now
	}
	return &Finalizer{
		submitter:    s,
		assessmentID: assessmentID,
		startedAt:    startedAt,
		limit:        limitSeconds,
		now:          now,
	}
}

// Submit claims the guard and sends answers.
func (f *Finalizer) Submit(ctx context.Context, reason model.SubmitReason, answers map[model.ID]model.Choice) (*Submission, error) {
	if !f.Begin() {
		return f.Submission(), ErrAlreadySubmitted
	}
	return f.Send(ctx, reason, answers)
}

// Begin moves idle → in-flight. It returns false if a submission is in
// flight or has already succeeded.
func (f *Finalizer) Begin() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != guardIdle {
		return false
	}
	f.state = guardInFlight
	return true
}

// Send performs the backend call for a guard claimed with Begin and
// settles it: submitted on success, idle on failure.
func (f *Finalizer) Send(ctx context.Context, reason model.SubmitReason, answers map[model.ID]model.Choice) (*Submission, error) {
	f.mu.Lock()
	if f.state != guardInFlight {
		f.mu.Unlock()
		return f.Submission(), ErrAlreadySubmitted
	}
	req := model.SubmitRequest{
		Answers:   answers,
		TimeSpent: f.elapsed(),
	}
	f.mu.Unlock()

	result, err := f.submitter.SubmitAssessment(ctx, f.assessmentID, req)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state = guardIdle
		return nil, &SubmissionError{Reason: reason, TimeSpent: req.TimeSpent, Err: err}
	}
	f.state = guardSubmitted
	f.submission = &Submission{
		Reason:      reason,
		Answers:     req.Answers,
		TimeSpent:   req.TimeSpent,
		Result:      result,
		SubmittedAt: f.now(),
	}
	return f.submission, nil
}

// Submission returns the accepted submission, or nil.
func (f *Finalizer) Submission() *Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submission
}

// InFlight reports whether a backend call is pending.
func (f *Finalizer) InFlight() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == guardInFlight
}

// elapsed is wall-clock seconds since the session started, truncated and
// capped at the assessment length. Caller holds f.mu.
func (f *Finalizer) elapsed() int {
	secs := int(f.now().Sub(f.startedAt) / time.Second)
	if secs < 0 {
		return 0
	}
	if f.limit > 0 && secs > f.limit {
		return f.limit
	}
	return secs
}
