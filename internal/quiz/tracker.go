package quiz

import (
	"sync"

	"github.com/stemsi/quizrunner/internal/model"
)

// AnswerTracker holds the latest choice per question. Entries are added or
// overwritten, never removed.
type AnswerTracker struct {
	mu      sync.RWMutex
	answers map[model.ID]model.Choice
}

// NewAnswerTracker creates an empty tracker.
func NewAnswerTracker() *AnswerTracker {
	return &AnswerTracker{answers: make(map[model.ID]model.Choice)}
}

// Record stores choice for qid, replacing any earlier choice.
func (t *AnswerTracker) Record(qid model.ID, choice model.Choice) {
	t.mu.Lock()
	t.answers[qid] = choice
	t.mu.Unlock()
}

// Choice returns the recorded choice for qid.
func (t *AnswerTracker) Choice(qid model.ID) (model.Choice, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.answers[qid]
	return c, ok
}

// Count returns the number of distinct questions answered.
func (t *AnswerTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.answers)
}

// Snapshot returns a copy of the answer record.
func (t *AnswerTracker) Snapshot() map[model.ID]model.Choice {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[model.ID]model.Choice, len(t.answers))
	for k, v := range t.answers {
		out[k] = v
	}
	return out
}
