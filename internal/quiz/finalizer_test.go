package quiz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalizer_SecondSubmitIsBenign(t *testing.T) {
	clock := newFakeClock()
	be := newFakeBackend(nil)
	f := NewFinalizer(be, "7", clock.Now(), 600, clock.Now)

	clock.Advance(90 * time.Second)
	sub, err := f.Submit(context.Background(), model.SubmitReasonManual, map[model.ID]model.Choice{"q1": model.ChoiceB})
	require.NoError(t, err)
	assert.Equal(t, 90, sub.TimeSpent)
	assert.Equal(t, model.ID("101"), sub.Result.ID)

	again, err := f.Submit(context.Background(), model.SubmitReasonAutoExpired, nil)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Same(t, sub, again)
	assert.Len(t, be.submitCalls(), 1)
}

func TestFinalizer_FailureReleasesGuard(t *testing.T) {
	clock := newFakeClock()
	be := newFakeBackend(nil)
	be.submitErrs = []error{errors.New("connection refused")}
	f := NewFinalizer(be, "7", clock.Now(), 600, clock.Now)

	_, err := f.Submit(context.Background(), model.SubmitReasonManual, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubmissionFailure)
	assert.NotErrorIs(t, err, ErrAlreadySubmitted)
	assert.Nil(t, f.Submission())
	assert.False(t, f.InFlight())

	var se *SubmissionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, model.SubmitReasonManual, se.Reason)

	sub, err := f.Submit(context.Background(), model.SubmitReasonManual, nil)
	require.NoError(t, err)
	assert.NotNil(t, sub)
	assert.Equal(t, 1, be.acceptedCount())
	assert.Len(t, be.submitCalls(), 2)
}

func TestFinalizer_ConcurrentCallersSendOnce(t *testing.T) {
	be := newFakeBackend(nil)
	be.release = make(chan struct{})
	f := NewFinalizer(be, "7", time.Now(), 600, nil)

	const callers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		benign   int
		accepted int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Submit(context.Background(), model.SubmitReasonManual, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrAlreadySubmitted):
				benign++
			}
		}()
	}

	require.Eventually(t, f.InFlight, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(be.release)
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, callers-1, benign)
	assert.Len(t, be.submitCalls(), 1)
}

func TestFinalizer_TimeSpentIsCapped(t *testing.T) {
	clock := newFakeClock()
	be := newFakeBackend(nil)
	f := NewFinalizer(be, "7", clock.Now(), 60, clock.Now)

	clock.Advance(75*time.Second + 400*time.Millisecond)
	sub, err := f.Submit(context.Background(), model.SubmitReasonAutoExpired, nil)
	require.NoError(t, err)
	assert.Equal(t, 60, sub.TimeSpent)
}

func TestFinalizer_SendWithoutBegin(t *testing.T) {
	be := newFakeBackend(nil)
	f := NewFinalizer(be, "7", time.Now(), 60, nil)

	_, err := f.Send(context.Background(), model.SubmitReasonManual, nil)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Empty(t, be.submitCalls())
}
