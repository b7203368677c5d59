package quiz

import (
	"errors"
	"fmt"

	"github.com/stemsi/quizrunner/internal/model"
)

var (
	// ErrLoadFailure means the assessment could not be fetched; no session exists.
	ErrLoadFailure = errors.New("assessment could not be loaded")
	// ErrAlreadySubmitted is benign: a submission already succeeded or is in flight.
	ErrAlreadySubmitted = errors.New("assessment already submitted")
	// ErrSubmissionFailure means the backend did not accept the submission.
	// The learner may retry; nothing retries automatically.
	ErrSubmissionFailure = errors.New("submission failed")
	// ErrSessionClosed is returned when a session no longer accepts answers.
	ErrSessionClosed = errors.New("session no longer accepts changes")
	// ErrUnknownQuestion is returned for answers to questions outside the assessment.
	ErrUnknownQuestion = errors.New("question does not belong to this assessment")
)

// LoadError wraps the cause of a failed assessment fetch.
type LoadError struct {
	AssessmentID model.ID
	Err          error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load assessment %s: %v", e.AssessmentID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrLoadFailure) hold for every LoadError.
func (e *LoadError) Is(target error) bool { return target == ErrLoadFailure }

// SubmissionError wraps the cause of a failed submission call.
type SubmissionError struct {
	Reason    model.SubmitReason
	TimeSpent int
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit (%s): %v", e.Reason, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSubmissionFailure) hold for every SubmissionError.
func (e *SubmissionError) Is(target error) bool { return target == ErrSubmissionFailure }
