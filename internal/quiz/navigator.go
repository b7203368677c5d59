package quiz

import "sync"

// Navigator moves a cursor across an ordered question sequence. It knows
// nothing about answers.
type Navigator struct {
	mu     sync.Mutex
	cursor int
	count  int
	frozen bool
}

// NewNavigator creates a cursor at index 0 over count questions.
func NewNavigator(count int) *Navigator {
	if count < 0 {
		count = 0
	}
	return &Navigator{count: count}
}

// GoTo moves to index, clamped to [0, count-1]. No-op once frozen.
func (n *Navigator) GoTo(index int) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.frozen {
		return n.cursor
	}
	n.cursor = n.clamp(index)
	return n.cursor
}

// Next advances by one; no wraparound.
func (n *Navigator) Next() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.frozen {
		n.cursor = n.clamp(n.cursor + 1)
	}
	return n.cursor
}

// Previous moves back by one; no wraparound.
func (n *Navigator) Previous() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.frozen {
		n.cursor = n.clamp(n.cursor - 1)
	}
	return n.cursor
}

// Cursor returns the current index.
func (n *Navigator) Cursor() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cursor
}

// IsLast reports whether the cursor is on the final question, where the
// UI offers "Finish" instead of "Next".
func (n *Navigator) IsLast() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count > 0 && n.cursor == n.count-1
}

// Len returns the number of questions.
func (n *Navigator) Len() int { return n.count }

// Freeze makes every further move a no-op.
func (n *Navigator) Freeze() {
	n.mu.Lock()
	n.frozen = true
	n.mu.Unlock()
}

func (n *Navigator) clamp(i int) int {
	if n.count == 0 || i < 0 {
		return 0
	}
	if i > n.count-1 {
		return n.count - 1
	}
	return i
}
