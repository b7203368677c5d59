package quiz

import (
	"context"
	"errors"
	"fmt"

	"github.com/stemsi/quizrunner/internal/model"
)

// AssessmentSource fetches assessment definitions.
type AssessmentSource interface {
	GetAssessment(ctx context.Context, id model.ID) (*model.Assessment, error)
}

// Backend is everything a session needs from the platform API.
type Backend interface {
	AssessmentSource
	Submitter
}

// Loader fetches and checks an assessment before a session may start.
type Loader struct {
	src AssessmentSource
}

// NewLoader creates a Loader.
func NewLoader(src AssessmentSource) *Loader {
	return &Loader{src: src}
}

// Load fetches the assessment once. Every failure is a *LoadError.
func (l *Loader) Load(ctx context.Context, id model.ID) (*model.Assessment, error) {
	if id == "" {
		return nil, &LoadError{AssessmentID: id, Err: errors.New("empty assessment id")}
	}
	a, err := l.src.GetAssessment(ctx, id)
	if err != nil {
		return nil, &LoadError{AssessmentID: id, Err: err}
	}
	if err := checkAssessment(a); err != nil {
		return nil, &LoadError{AssessmentID: id, Err: err}
	}
	return a, nil
}

func checkAssessment(a *model.Assessment) error {
	if a == nil {
		return errors.New("empty response")
	}
	if a.DurationMinutes <= 0 {
		return fmt.Errorf("invalid duration %d", a.DurationMinutes)
	}
	if len(a.Questions) == 0 {
		return errors.New("assessment has no questions")
	}
	seen := make(map[model.ID]struct{}, len(a.Questions))
	for i, q := range a.Questions {
		if q.ID == "" {
			return fmt.Errorf("question %d has no id", i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("duplicate question id %s", q.ID)
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}
