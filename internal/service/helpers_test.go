package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/quiz"
)

type fakePlatform struct {
	mu         sync.Mutex
	token      string
	assessment *model.Assessment
	submitErrs []error
	submits    []model.SubmitRequest
	loads      int
}

func (f *fakePlatform) GetAssessment(_ context.Context, id model.ID) (*model.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.assessment == nil || f.assessment.ID != id {
		return nil, errors.New("404 not found")
	}
	return f.assessment, nil
}

func (f *fakePlatform) SubmitAssessment(_ context.Context, _ model.ID, req model.SubmitRequest) (*model.AttemptSummary, error) {
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
	return &model.AttemptSummary{
		ID:        model.ID(fmt.Sprintf("%d", 500+len(f.submits))),
		Score:     75,
		Passed:    true,
		TimeSpent: req.TimeSpent,
	}, nil
}

func (f *fakePlatform) GetAttempt(_ context.Context, id model.ID) (*model.AttemptDetail, error) {
	return &model.AttemptDetail{AttemptSummary: model.AttemptSummary{ID: id, Score: 75, Passed: true}}, nil
}

func (f *fakePlatform) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

type fakeLock struct {
	mu       sync.Mutex
	held     map[string]string
	failWith error
	acquired int
	released int
}

func newFakeLock() *fakeLock { return &fakeLock{held: map[string]string{}} }

func (l *fakeLock) Acquire(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWith != nil {
		return "", false, l.failWith
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	token := fmt.Sprintf("t%d", l.acquired)
	l.held[key] = token
	l.acquired++
	return token, true, nil
}

func (l *fakeLock) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		l.released++
	}
	return nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []quiz.Event
}

func (b *fakeBus) Publish(_ context.Context, e quiz.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *fakeBus) types() []quiz.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]quiz.EventType, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []model.LedgerEntry
}

func (l *fakeLedger) Push(_ context.Context, e model.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *fakeLedger) all() []model.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

type chanTicker struct{ ch chan time.Time }

func (c *chanTicker) C() <-chan time.Time { return c.ch }
func (c *chanTicker) Stop()               {}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:        "test-secret",
		BackendTimeout:   time.Second,
		TickInterval:     time.Hour,
		SessionRetention: 10 * time.Minute,
		SubmitLockTTL:    30 * time.Second,
	}
}

func assessment(id string, minutes, questions int) *model.Assessment {
	a := &model.Assessment{ID: model.ID(id), Title: "Ecosystems", DurationMinutes: minutes, PassingScore: 60}
	for i := 1; i <= questions; i++ {
		a.Questions = append(a.Questions, model.Question{
			ID:           model.ID(fmt.Sprintf("%d", 10+i)),
			QuestionText: fmt.Sprintf("Question %d", i),
			OptionA:      "a", OptionB: "b", OptionC: "c", OptionD: "d",
		})
	}
	return a
}

type serviceRig struct {
	platform *fakePlatform
	lock     *fakeLock
	bus      *fakeBus
	ledger   *fakeLedger
	svc      *SessionService
	tokens   []string
}

func newServiceRig(t *testing.T, a *model.Assessment, extra ...quiz.Option) *serviceRig {
	t.Helper()
	r := &serviceRig{
		platform: &fakePlatform{assessment: a},
		lock:     newFakeLock(),
		bus:      &fakeBus{},
		ledger:   &fakeLedger{},
	}
	var mu sync.Mutex
	r.svc = NewSessionService(testConfig(), SessionDeps{
		Clients: func(token string) PlatformClient {
			mu.Lock()
			r.tokens = append(r.tokens, token)
			mu.Unlock()
			return r.platform
		},
		Lock:           r.lock,
		Bus:            r.bus,
		Ledger:         r.ledger,
		SessionOptions: extra,
	}, zerolog.Nop())
	t.Cleanup(r.svc.shutdown)
	return r
}
