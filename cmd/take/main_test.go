package main

import (
	"context"
	"testing"
	"time"

	"github.com/stemsi/quizrunner/internal/quiz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForward_OutcomesSurviveFullEventBuffer(t *testing.T) {
	events := make(chan quiz.Event, 1)
	outcomes := make(chan quiz.Event, 4)
	observe := forward(context.Background(), events, outcomes)

	observe(quiz.Event{Type: quiz.EventTick, RemainingSeconds: 3})
	observe(quiz.Event{Type: quiz.EventTick, RemainingSeconds: 2})
	observe(quiz.Event{Type: quiz.EventExpired})
	observe(quiz.Event{Type: quiz.EventSubmitFailed, Retryable: true})
	observe(quiz.Event{Type: quiz.EventSubmitted})

	require.Len(t, events, 1)
	assert.Equal(t, 3, (<-events).RemainingSeconds, "later ticks are dropped")

	require.Len(t, outcomes, 3)
	assert.Equal(t, quiz.EventExpired, (<-outcomes).Type)
	assert.Equal(t, quiz.EventSubmitFailed, (<-outcomes).Type)
	assert.Equal(t, quiz.EventSubmitted, (<-outcomes).Type)
}

func TestForward_WaitsForOutcomeReader(t *testing.T) {
	outcomes := make(chan quiz.Event)
	observe := forward(context.Background(), make(chan quiz.Event), outcomes)

	done := make(chan struct{})
	go func() {
		defer close(done)
		observe(quiz.Event{Type: quiz.EventSubmitted})
	}()

	select {
	case e := <-outcomes:
		assert.Equal(t, quiz.EventSubmitted, e.Type)
	case <-time.After(time.Second):
		t.Fatal("submitted event was not delivered")
	}
	<-done
}

func TestForward_GivesUpOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	observe := forward(ctx, make(chan quiz.Event), make(chan quiz.Event))

	done := make(chan struct{})
	go func() {
		defer close(done)
		observe(quiz.Event{Type: quiz.EventSubmitFailed})
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("observer blocked after cancel")
	}
}

func TestClock(t *testing.T) {
	assert.Equal(t, "02:05", clock(125))
}
