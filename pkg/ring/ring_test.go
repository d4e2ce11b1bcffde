package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidCapacity(t *testing.T) {
	s := New(0)
	assert.Equal(t, DefaultCapacity, s.Cap())
	assert.Equal(t, 0, s.Len())
}

func TestMean_Empty(t *testing.T) {
	s := New(5)
	assert.Equal(t, 0.0, s.Mean())

	_, ok := s.Last()
	assert.False(t, ok)
	assert.Empty(t, s.Values())
}

func TestPush_CountAndMean(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		pushes   []float64
	}{
		{name: "single", capacity: 4, pushes: []float64{3}},
		{name: "partial", capacity: 4, pushes: []float64{1, 2, 3}},
		{name: "exactly full", capacity: 4, pushes: []float64{1, 2, 3, 4}},
		{name: "wrapped once", capacity: 4, pushes: []float64{1, 2, 3, 4, 5, 6}},
		{name: "wrapped many", capacity: 3, pushes: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}},
		{name: "capacity one", capacity: 1, pushes: []float64{7, 8, 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.capacity)
			for _, v := range tt.pushes {
				s.Push(v)
			}

			n := min(len(tt.pushes), tt.capacity)
			require.Equal(t, n, s.Len())

			tail := tt.pushes[len(tt.pushes)-n:]
			var sum float64
			for _, v := range tail {
				sum += v
			}
			assert.InDelta(t, sum/float64(n), s.Mean(), 1e-9)
			assert.Equal(t, tail, s.Values())

			last, ok := s.Last()
			require.True(t, ok)
			assert.Equal(t, tt.pushes[len(tt.pushes)-1], last)
		})
	}
}

func TestMean_IgnoresUnusedCapacity(t *testing.T) {
	s := New(100)
	s.Push(50)
	s.Push(150)

	// Mean over 2 values, not over 100 slots of which 98 are zero.
	assert.Equal(t, 100.0, s.Mean())
}
