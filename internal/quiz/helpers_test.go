package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stemsi/quizrunner/internal/model"
)

type fakeBackend struct {
	mu         sync.Mutex
	assessment *model.Assessment
	getErr     error
	gets       int
	submitErrs []error
	submits    []model.SubmitRequest
	accepted   int
	release    chan struct{}
}

func newFakeBackend(a *model.Assessment) *fakeBackend {
	return &fakeBackend{assessment: a}
}

func (f *fakeBackend) GetAssessment(_ context.Context, id model.ID) (*model.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.assessment == nil || f.assessment.ID != id {
		return nil, errors.New("not found")
	}
	return f.assessment, nil
}

func (f *fakeBackend) SubmitAssessment(ctx context.Context, id model.ID, req model.SubmitRequest) (*model.AttemptSummary, error) {
	f.mu.Lock()
	release := f.release
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, req)
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.accepted++
	return &model.AttemptSummary{
		ID:        model.ID(fmt.Sprintf("%d", 100+f.accepted)),
		TimeSpent: req.TimeSpent,
	}, nil
}

func (f *fakeBackend) submitCalls() []model.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.SubmitRequest, len(f.submits))
	copy(out, f.submits)
	return out
}

func (f *fakeBackend) acceptedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepted
}

type manualTicker struct {
	ch chan time.Time
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

func (m *manualTicker) factory() TickerFunc {
	return func(time.Duration) Ticker { return m }
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) observe(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) count(t EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func assessmentFixture(id string, minutes, questions int) *model.Assessment {
	a := &model.Assessment{
		ID:              model.ID(id),
		Title:           "Fractions check",
		Subject:         "Mathematics",
		Difficulty:      "easy",
		DurationMinutes: minutes,
		PassingScore:    60,
	}
	for i := 1; i <= questions; i++ {
		a.Questions = append(a.Questions, model.Question{
			ID:           model.ID(fmt.Sprintf("q%d", i)),
			QuestionText: fmt.Sprintf("Question %d", i),
			OptionA:      "1/2",
			OptionB:      "1/3",
			OptionC:      "2/3",
			OptionD:      "3/4",
		})
	}
	return a
}
