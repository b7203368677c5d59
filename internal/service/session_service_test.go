package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/quiz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionService_OpenIsIdempotentPerLearner(t *testing.T) {
	rig := newServiceRig(t, assessment("3", 10, 2))
	ctx := context.Background()

	first, created, err := rig.svc.Open(ctx, 7, "tok-7", "3")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.SessionPhaseRunning, first.State.Phase)
	assert.Equal(t, 600, first.State.RemainingSeconds)
	assert.Len(t, first.Assessment.Questions, 2)

	again, created, err := rig.svc.Open(ctx, 7, "tok-7", "3")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.State.SessionID, again.State.SessionID)

	other, _, err := rig.svc.Open(ctx, 8, "tok-8", "3")
	require.NoError(t, err)
	assert.NotEqual(t, first.State.SessionID, other.State.SessionID)

	assert.Equal(t, []string{"tok-7", "tok-8"}, rig.tokens)
	assert.Equal(t, 2, rig.platform.loads)
}

func TestSessionService_ConcurrentOpenLoadsOnce(t *testing.T) {
	rig := newServiceRig(t, assessment("3", 10, 2))

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 6)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := rig.svc.Open(context.Background(), 7, "tok", "3")
			if assert.NoError(t, err) {
				ids[i] = v.State.SessionID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, rig.svc.LiveStates("3"), 1)
}

func TestSessionService_OpenLoadFailure(t *testing.T) {
	rig := newServiceRig(t, assessment("3", 10, 2))

	_, _, err := rig.svc.Open(context.Background(), 7, "tok", "99")
	assert.ErrorIs(t, err, quiz.ErrLoadFailure)
	assert.Empty(t, rig.svc.LiveStates("99"))
}

func TestSessionService_AnswerNavigateSubmit(t *testing.T) {
	rig := newServiceRig(t, assessment("4", 30, 3))
	ctx := context.Background()

	v, _, err := rig.svc.Open(ctx, 7, "tok", "4")
	require.NoError(t, err)
	sid := v.State.SessionID

	st, err := rig.svc.Record(7, sid, model.RecordAnswerRequest{QuestionID: "11", Choice: model.ChoiceB})
	require.NoError(t, err)
	assert.Equal(t, 1, st.AnsweredCount)

	st, err = rig.svc.Navigate(7, sid, model.NavigateRequest{Action: model.NavigateGoTo, Index: 9})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Cursor)
	assert.True(t, st.IsLastQuestion)

	st, err = rig.svc.Navigate(7, sid, model.NavigateRequest{Action: model.NavigatePrevious})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Cursor)

	out, err := rig.svc.Submit(ctx, 7, sid)
	require.NoError(t, err)
	assert.False(t, out.AlreadySubmitted)
	assert.Equal(t, model.SessionPhaseSubmitted, out.State.Phase)
	require.NotNil(t, out.Result)
	assert.Equal(t, model.ID("501"), out.Result.ID)

	dup, err := rig.svc.Submit(ctx, 7, sid)
	require.NoError(t, err)
	assert.True(t, dup.AlreadySubmitted)
	assert.Equal(t, out.Result, dup.Result)
	assert.Equal(t, 1, rig.platform.submitCount())

	detail, err := rig.svc.Result(ctx, 7, sid)
	require.NoError(t, err)
	assert.Equal(t, model.ID("501"), detail.ID)

	entries := rig.ledger.all()
	require.Len(t, entries, 1)
	assert.Equal(t, model.LedgerOutcomeAccepted, entries[0].Outcome)
	assert.Equal(t, model.SubmitReasonManual, entries[0].Reason)
	assert.Equal(t, 1, entries[0].AnsweredCount)
	assert.Equal(t, 3, entries[0].QuestionCount)
	require.NotNil(t, entries[0].AttemptID)
	assert.Equal(t, "501", *entries[0].AttemptID)

	assert.Equal(t, 1, rig.lock.acquired)
	assert.Equal(t, 1, rig.lock.released)
	assert.NotContains(t, rig.bus.types(), quiz.EventTick)
	assert.Contains(t, rig.bus.types(), quiz.EventSubmitted)
}

func TestSessionService_SubmitFailureIsRetryable(t *testing.T) {
	rig := newServiceRig(t, assessment("4", 30, 1))
	rig.platform.submitErrs = []error{errors.New("502 bad gateway")}
	ctx := context.Background()

	v, _, err := rig.svc.Open(ctx, 7, "tok", "4")
	require.NoError(t, err)
	sid := v.State.SessionID

	_, err = rig.svc.Submit(ctx, 7, sid)
	require.Error(t, err)
	assert.ErrorIs(t, err, quiz.ErrSubmissionFailure)

	_, err = rig.svc.Result(ctx, 7, sid)
	assert.ErrorIs(t, err, ErrNotSubmitted)

	out, err := rig.svc.Submit(ctx, 7, sid)
	require.NoError(t, err)
	assert.False(t, out.AlreadySubmitted)

	entries := rig.ledger.all()
	require.Len(t, entries, 2)
	assert.Equal(t, model.LedgerOutcomeFailed, entries[0].Outcome)
	require.NotNil(t, entries[0].ErrorMessage)
	assert.Contains(t, *entries[0].ErrorMessage, "502")
	assert.Equal(t, model.LedgerOutcomeAccepted, entries[1].Outcome)
}

func TestSessionService_HeldLockFailsSubmission(t *testing.T) {
	rig := newServiceRig(t, assessment("4", 30, 1))
	ctx := context.Background()

	v, _, err := rig.svc.Open(ctx, 7, "tok", "4")
	require.NoError(t, err)

	rig.lock.held["learner:7:assessment:4:submit_lock"] = "other-replica"

	_, err = rig.svc.Submit(ctx, 7, v.State.SessionID)
	assert.ErrorIs(t, err, quiz.ErrSubmissionFailure)
	assert.ErrorIs(t, err, ErrSubmitInProgress)
	assert.Zero(t, rig.platform.submitCount())
}

func TestSessionService_LockOutageStillSubmits(t *testing.T) {
	rig := newServiceRig(t, assessment("4", 30, 1))
	rig.lock.failWith = errors.New("dial tcp 127.0.0.1:6379: connection refused")
	ctx := context.Background()

	v, _, err := rig.svc.Open(ctx, 7, "tok", "4")
	require.NoError(t, err)

	_, err = rig.svc.Submit(ctx, 7, v.State.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, rig.platform.submitCount())
}

func TestSessionService_OtherLearnerCannotSeeSession(t *testing.T) {
	rig := newServiceRig(t, assessment("4", 30, 1))

	v, _, err := rig.svc.Open(context.Background(), 7, "tok", "4")
	require.NoError(t, err)

	_, err = rig.svc.View(8, v.State.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = rig.svc.Submit(context.Background(), 8, v.State.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = rig.svc.View(7, uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_AutoExpirySubmitsOnce(t *testing.T) {
	tk := &chanTicker{ch: make(chan time.Time)}
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	var (
		clockMu sync.Mutex
		now     = start
	)
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	rig := newServiceRig(t, assessment("5", 1, 2),
		quiz.WithTickerFunc(func(time.Duration) quiz.Ticker { return tk }),
		quiz.WithClock(clock),
	)

	v, _, err := rig.svc.Open(context.Background(), 7, "tok", "5")
	require.NoError(t, err)
	sid := v.State.SessionID

	events, cancel, err := rig.svc.Subscribe(7, sid)
	require.NoError(t, err)
	defer cancel()

	_, err = rig.svc.Record(7, sid, model.RecordAnswerRequest{QuestionID: "11", Choice: model.ChoiceA})
	require.NoError(t, err)

	done := make(chan quiz.Event, 1)
	go func() {
		for e := range events {
			if e.Type == quiz.EventSubmitted {
				done <- e
				return
			}
		}
	}()

	for i := 0; i < 60; i++ {
		clockMu.Lock()
		now = now.Add(time.Second)
		tick := now
		clockMu.Unlock()
		tk.ch <- tick
	}

	var submitted quiz.Event
	select {
	case submitted = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("no submitted event after expiry")
	}
	assert.Equal(t, model.SubmitReasonAutoExpired, submitted.Reason)
	assert.Equal(t, 60, submitted.TimeSpent)

	entries := rig.ledger.all()
	require.Len(t, entries, 1)
	assert.Equal(t, model.SubmitReasonAutoExpired, entries[0].Reason)
	assert.Equal(t, 60, entries[0].TimeSpent)
	assert.Equal(t, 1, rig.platform.submitCount())
}

func TestSessionService_CloseAndEvict(t *testing.T) {
	rig := newServiceRig(t, assessment("6", 10, 1))

	v, _, err := rig.svc.Open(context.Background(), 7, "tok", "6")
	require.NoError(t, err)
	sid := v.State.SessionID

	events, _, err := rig.svc.Subscribe(7, sid)
	require.NoError(t, err)

	st, err := rig.svc.Close(7, sid)
	require.NoError(t, err)
	assert.Equal(t, model.SessionPhaseClosed, st.Phase)
	assert.Empty(t, rig.svc.LiveStates("6"))
	assert.Zero(t, rig.platform.submitCount())

	_, _, err = rig.svc.Open(context.Background(), 7, "tok", "6")
	assert.ErrorIs(t, err, quiz.ErrSessionClosed, "a closed session cannot be restarted with a fresh clock")
	assert.Equal(t, 1, rig.platform.loads)

	assert.Zero(t, rig.svc.evict(time.Now()), "retention has not elapsed")
	assert.Equal(t, 1, rig.svc.evict(time.Now().Add(11*time.Minute)))

	_, err = rig.svc.View(7, sid)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	var last quiz.Event
	for e := range events {
		last = e
	}
	assert.Equal(t, quiz.EventClosed, last.Type)

	reopened, created, err := rig.svc.Open(context.Background(), 7, "tok", "6")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, sid, reopened.State.SessionID)
}
