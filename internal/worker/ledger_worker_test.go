package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stretchr/testify/assert"
)

type fakeWriter struct {
	bulkErr   error
	insertErr map[uuid.UUID]error
	bulk      [][]model.LedgerEntry
	inserted  []uuid.UUID
}

func (f *fakeWriter) BulkInsert(_ context.Context, entries []model.LedgerEntry) error {
	f.bulk = append(f.bulk, entries)
	return f.bulkErr
}

func (f *fakeWriter) Insert(_ context.Context, e model.LedgerEntry) error {
	if err := f.insertErr[e.ID]; err != nil {
		return err
	}
	f.inserted = append(f.inserted, e.ID)
	return nil
}

func entries(n int) []model.LedgerEntry {
	out := make([]model.LedgerEntry, n)
	for i := range out {
		out[i] = model.LedgerEntry{
			ID:            uuid.New(),
			SessionID:     uuid.New(),
			AssessmentID:  "12",
			LearnerID:     i + 1,
			Reason:        model.SubmitReasonManual,
			Outcome:       model.LedgerOutcomeAccepted,
			QuestionCount: 5,
		}
	}
	return out
}

func TestLedgerWorker_BulkPathSkipsFallback(t *testing.T) {
	w := &fakeWriter{}
	lw := NewLedgerWorker(w, nil, zerolog.Nop())

	batch := entries(3)
	lw.flushSafe(context.Background(), batch)

	assert.Len(t, w.bulk, 1)
	assert.Empty(t, w.inserted)
}

func TestLedgerWorker_FallbackSortsFailures(t *testing.T) {
	batch := entries(4)
	w := &fakeWriter{
		bulkErr: errors.New("copy failed"),
		insertErr: map[uuid.UUID]error{
			batch[1].ID: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}),
			batch[3].ID: errors.New("conn reset by peer"),
		},
	}
	lw := NewLedgerWorker(w, nil, zerolog.Nop())

	retry := lw.fallbackInsert(context.Background(), batch)

	assert.Equal(t, []uuid.UUID{batch[0].ID, batch[2].ID}, w.inserted)
	if assert.Len(t, retry, 1) {
		assert.Equal(t, batch[3].ID, retry[0].ID)
	}
}

func TestIsDataError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&pgconn.PgError{Code: "23514"}, true},
		{&pgconn.PgError{Code: "22P02"}, true},
		{&pgconn.PgError{Code: "57P01"}, false},
		{errors.New("timeout"), false},
		{nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isDataError(tt.err), "%v", tt.err)
	}
}
