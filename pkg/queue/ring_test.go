package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingFIFO(t *testing.T) {
	r := New[int](100)
	for i := 0; i < 20; i++ {
		assert.False(t, r.Push(i))
	}
	require.Equal(t, 20, r.Len())

	for i := 0; i < 20; i++ {
		head, ok := r.Peek()
		require.True(t, ok)
		assert.Equal(t, i, head)

		v, ok := r.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}

	_, ok := r.Pop()
	assert.False(t, ok)
	_, ok = r.Peek()
	assert.False(t, ok)
}

func TestRingDropsOldest(t *testing.T) {
	r := New[string](2)

	assert.False(t, r.Push("A"))
	assert.False(t, r.Push("B"))
	assert.True(t, r.Push("C"))

	assert.Equal(t, []string{"B", "C"}, r.Items())
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 2, r.Cap())
}

func TestRingNeverExceedsCapacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		pushes   int
	}{
		{name: "single slot", capacity: 1, pushes: 10},
		{name: "exactly full", capacity: 16, pushes: 16},
		{name: "wraps many times", capacity: 13, pushes: 500},
		{name: "zero capacity clamps to one", capacity: 0, pushes: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New[int](tt.capacity)
			evictions := 0
			for i := 0; i < tt.pushes; i++ {
				if r.Push(i) {
					evictions++
				}
				assert.LessOrEqual(t, r.Len(), r.Cap())
			}

			kept := r.Items()
			assert.Equal(t, tt.pushes-len(kept), evictions)
			for i, v := range kept {
				assert.Equal(t, tt.pushes-len(kept)+i, v)
			}
		})
	}
}

func TestRingInterleavedPushPop(t *testing.T) {
	r := New[int](3)
	r.Push(1)
	r.Push(2)
	v, _ := r.Pop()
	assert.Equal(t, 1, v)
	r.Push(3)
	r.Push(4)
	assert.True(t, r.Push(5))

	assert.Equal(t, []int{3, 4, 5}, r.Items())
}
