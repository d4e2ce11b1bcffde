package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/aspol/pkg/sample"
	"github.com/itohio/aspol/pkg/trace"
)

const maxDisplayPoints = 1000

// ScopeWidget is a Fyne widget that draws the reading, its rolling average,
// the anomaly band around the average and the anomaly episodes.
type ScopeWidget struct {
	widget.BaseWidget

	window time.Duration

	mu       sync.RWMutex
	samples  []sample.Sample // downsampled for display
	episodes []trace.Episode
	unit     string

	yMin, yMax float64
	xMin, xMax time.Time
}

// New creates a scope showing at least window of time.
func New(window time.Duration) *ScopeWidget {
	s := &ScopeWidget{
		window:  window,
		samples: make([]sample.Sample, 0, maxDisplayPoints),
	}
	s.ExtendBaseWidget(s)
	s.mu.Lock()
	s.updateAutoScale()
	s.mu.Unlock()
	return s
}

// UpdateData replaces the displayed data. Call it through fyne.Do from
// trace callbacks.
func (s *ScopeWidget) UpdateData(samples []sample.Sample, episodes []trace.Episode) {
	s.mu.Lock()
	s.samples = sample.DownsampleSamples(s.samples, samples, maxDisplayPoints)
	s.episodes = episodes
	if len(samples) > 0 {
		s.unit = samples[len(samples)-1].Mode.Unit()
	}
	s.updateAutoScale()
	s.mu.Unlock()

	s.Refresh()
}

func (s *ScopeWidget) updateAutoScale() {
	s.yMin, s.yMax = bounds(s.samples)
	if len(s.samples) == 0 {
		s.xMin = time.Now()
		s.xMax = s.xMin.Add(s.window)
		return
	}

	s.xMin = s.samples[0].Timestamp
	s.xMax = s.samples[len(s.samples)-1].Timestamp
	if s.xMax.Sub(s.xMin) < s.window {
		s.xMax = s.xMin.Add(s.window)
	}
}

// bounds returns the Y range covering values and the anomaly band, with a
// 10% margin.
func bounds(samples []sample.Sample) (lo, hi float64) {
	if len(samples) == 0 {
		return 0, 1
	}

	lo, hi = samples[0].Value, samples[0].Value
	for _, s := range samples {
		lo, hi = min(lo, s.Value), max(hi, s.Value)
		if s.Threshold > 0 {
			lo, hi = min(lo, s.Average-s.Threshold), max(hi, s.Average+s.Threshold)
		}
	}

	span := hi - lo
	if span == 0 {
		span = 1
	}
	margin := span * 0.1
	return lo - margin, hi + margin
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:   s,
		bg:      bg,
		objects: []fyne.CanvasObject{bg},
	}
}
