package scope

import (
	"testing"
	"time"

	"github.com/itohio/aspol/pkg/sample"
	"github.com/stretchr/testify/assert"
)

func TestBounds(t *testing.T) {
	lo, hi := bounds(nil)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)

	samples := []sample.Sample{
		{Value: 1000, Average: 1000, Threshold: 50},
		{Value: 1100, Average: 1000, Threshold: 50},
	}
	lo, hi = bounds(samples)
	// values and band span 950..1100, plus 10% of 150 either side
	assert.InDelta(t, 935, lo, 1e-9)
	assert.InDelta(t, 1115, hi, 1e-9)

	lo, hi = bounds([]sample.Sample{{Value: 3}})
	assert.InDelta(t, 2.9, lo, 1e-9)
	assert.InDelta(t, 3.1, hi, 1e-9)
}

func TestPlotProjection(t *testing.T) {
	start := time.Now()
	p := plot{x: 10, y: 20, w: 100, h: 50, yMin: 0, yMax: 10, xMin: start, xMax: start.Add(10 * time.Second)}

	assert.Equal(t, float32(10), p.px(start))
	assert.Equal(t, float32(60), p.px(start.Add(5*time.Second)))
	assert.Equal(t, float32(70), p.py(0))
	assert.Equal(t, float32(20), p.py(10))

	p.xMax = start
	assert.Equal(t, float32(10), p.px(start.Add(time.Second)))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1013.25 hPa", formatValue(1013.25, "hPa"))
	assert.Equal(t, "-0.50", formatValue(-0.5, ""))
	assert.Equal(t, "0.25s", formatTime(250*time.Millisecond))
	assert.Equal(t, "12.5s", formatTime(12500*time.Millisecond))
	assert.Equal(t, "8.0%", formatPercent(8))
}
