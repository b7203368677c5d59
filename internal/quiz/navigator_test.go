package quiz

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNavigator_GoToClamps(t *testing.T) {
	tests := []struct {
		name  string
		index int
		want  int
	}{
		{"first", 0, 0},
		{"middle", 2, 2},
		{"last", 4, 4},
		{"past end", 5, 4},
		{"far past end", math.MaxInt32, 4},
		{"negative", -1, 0},
		{"very negative", math.MinInt32, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNavigator(5)
			assert.Equal(t, tt.want, n.GoTo(tt.index))
			assert.Equal(t, tt.want, n.Cursor())
		})
	}
}

func TestNavigator_NextAndPreviousStayInBounds(t *testing.T) {
	n := NewNavigator(3)

	assert.Equal(t, 0, n.Previous(), "previous at first index is a no-op")
	assert.Equal(t, 1, n.Next())
	assert.False(t, n.IsLast())
	assert.Equal(t, 2, n.Next())
	assert.True(t, n.IsLast())
	assert.Equal(t, 2, n.Next(), "next at last index is a no-op")
	assert.Equal(t, 1, n.Previous())
}

func TestNavigator_FrozenIgnoresMoves(t *testing.T) {
	n := NewNavigator(4)
	n.GoTo(2)
	n.Freeze()

	assert.Equal(t, 2, n.Next())
	assert.Equal(t, 2, n.Previous())
	assert.Equal(t, 2, n.GoTo(0))
}

func TestNavigator_Empty(t *testing.T) {
	n := NewNavigator(0)
	assert.Equal(t, 0, n.GoTo(3))
	assert.Equal(t, 0, n.Next())
	assert.False(t, n.IsLast())
}
