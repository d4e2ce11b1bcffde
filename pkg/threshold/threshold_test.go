package threshold

import (
	"errors"
	"math"
	"testing"

	"github.com/itohio/aspol/pkg/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(capacity int, values ...float64) *ring.Samples {
	s := ring.New(capacity)
	for _, v := range values {
		s.Push(v)
	}
	return s
}

func TestEvaluate_Boundary(t *testing.T) {
	hist := filled(5, 100, 100, 100, 100, 100)

	tests := []struct {
		name      string
		live      float64
		anomalous bool
	}{
		{name: "below", live: 110, anomalous: false},
		{name: "exactly threshold", live: 120.0, anomalous: false},
		{name: "just above", live: 120.01, anomalous: true},
		{name: "far above", live: 500, anomalous: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(tt.live, hist, 20)
			assert.Equal(t, 100.0, res.Average)
			assert.Equal(t, 120.0, res.Threshold)
			assert.Equal(t, tt.anomalous, res.Anomalous)
			assert.Equal(t, tt.live, res.Live)
		})
	}
}

func TestEvaluate_EmptyHistory(t *testing.T) {
	res := Evaluate(5, ring.New(3), 20)
	assert.Equal(t, 0.0, res.Average)
	assert.Equal(t, 0.0, res.Threshold)
	assert.True(t, res.Anomalous)
}

func TestObserve_PushesBeforeEvaluating(t *testing.T) {
	hist := filled(4, 100, 100, 100)
	e := NewEvaluator(hist)

	res, err := e.Observe(200, 20)
	require.NoError(t, err)

	// Average includes the new reading: (100*3 + 200) / 4 = 125.
	assert.Equal(t, 125.0, res.Average)
	assert.InDelta(t, 150.0, res.Threshold, 1e-9)
	assert.True(t, res.Anomalous)
	assert.Equal(t, 4, hist.Len())
}

func TestObserve_RejectsInvalidReadings(t *testing.T) {
	tests := []struct {
		name string
		raw  float64
	}{
		{name: "zero", raw: 0},
		{name: "negative", raw: -3.5},
		{name: "NaN", raw: math.NaN()},
		{name: "infinite", raw: math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hist := filled(4, 100, 100)
			e := NewEvaluator(hist)

			_, err := e.Observe(tt.raw, 20)
			assert.True(t, errors.Is(err, ErrSensorUnavailable))
			assert.Equal(t, 2, hist.Len(), "invalid reading must not be pushed")
			assert.Equal(t, 100.0, hist.Mean())
		})
	}
}
