// Package trace keeps a time window of samples for display and marks the
// anomaly episodes inside it.
package trace

import (
	"math"
	"sync"
	"time"

	"github.com/itohio/aspol/pkg/config"
	"github.com/itohio/aspol/pkg/sample"
)

var _ Tracer = (*Trace)(nil)

// Episode is a run of consecutive anomalous samples.
type Episode struct {
	Mode       sample.Mode
	StartIndex int // first anomalous sample in the buffer
	EndIndex   int // last anomalous sample, updated while the episode continues
	StartTime  time.Time
	EndTime    time.Time
	Peak       float64 // largest deviation from the average seen, percent
}

// Duration returns how long the episode has lasted.
func (e Episode) Duration() time.Duration {
	return e.EndTime.Sub(e.StartTime)
}

// UpdateFunc receives copies of the buffers after every sample.
type UpdateFunc func(samples []sample.Sample, deviations []float64, episodes []Episode)

// Tracer processes samples, maintains the window and detects episodes.
type Tracer interface {
	ProcessSamples(input <-chan sample.Sample)
	Samples() []sample.Sample
	Deviations() []float64
	Episodes() []Episode
	OnUpdate(fn UpdateFunc)
}

// Trace implements Tracer.
//
// samples and deviations are FIFO buffers ordered oldest first and trimmed by
// timestamp. deviations[i] is the percent deviation of samples[i] from its
// rolling average. A change of mode clears everything since the units differ.
type Trace struct {
	mu         sync.RWMutex
	samples    []sample.Sample
	deviations []float64
	episodes   []Episode

	cbMu      sync.RWMutex
	callbacks []UpdateFunc

	window     time.Duration
	minEpisode time.Duration

	shutdown bool
}

// New creates a trace from the monitor configuration.
func New(cfg config.MonitorConfig) *Trace {
	return &Trace{
		window:     cfg.Window,
		minEpisode: cfg.MinEpisode,
	}
}

// ProcessSamples consumes input until it is closed. No callbacks are sent
// afterwards until ResetShutdown is called.
func (t *Trace) ProcessSamples(input <-chan sample.Sample) {
	for s := range input {
		t.processSample(s)
	}
	t.mu.Lock()
	t.shutdown = true
	t.mu.Unlock()
}

func (t *Trace) processSample(s sample.Sample) {
	t.mu.Lock()

	if n := len(t.samples); n > 0 && t.samples[n-1].Mode != s.Mode {
		t.samples = t.samples[:0]
		t.deviations = t.deviations[:0]
		t.episodes = t.episodes[:0]
	}

	t.samples = append(t.samples, s)
	t.deviations = append(t.deviations, deviation(s))
	t.trim(s.Timestamp.Add(-t.window))
	t.updateEpisodes()

	notify := !t.shutdown
	t.mu.Unlock()

	if notify {
		t.notifyCallbacks()
	}
}

// trim drops samples at or before cutoff and shifts episode indices.
func (t *Trace) trim(cutoff time.Time) {
	if t.window <= 0 {
		return
	}

	cut := 0
	for cut < len(t.samples)-1 && !t.samples[cut].Timestamp.After(cutoff) {
		cut++
	}
	if cut == 0 {
		return
	}

	t.samples = t.samples[cut:]
	t.deviations = t.deviations[cut:]

	kept := t.episodes[:0]
	for _, e := range t.episodes {
		e.StartIndex -= cut
		e.EndIndex -= cut
		if e.EndIndex < 0 {
			continue
		}
		if e.StartIndex < 0 {
			e.StartIndex = 0
			e.StartTime = t.samples[0].Timestamp
		}
		kept = append(kept, e)
	}
	t.episodes = kept
}

func (t *Trace) updateEpisodes() {
	last := len(t.samples) - 1
	s := t.samples[last]
	if !s.Anomalous {
		return
	}

	dev := math.Abs(t.deviations[last])
	if n := len(t.episodes); n > 0 && t.episodes[n-1].EndIndex == last-1 {
		e := &t.episodes[n-1]
		e.EndIndex = last
		e.EndTime = s.Timestamp
		e.Peak = max(e.Peak, dev)
		return
	}

	t.episodes = append(t.episodes, Episode{
		Mode:       s.Mode,
		StartIndex: last,
		EndIndex:   last,
		StartTime:  s.Timestamp,
		EndTime:    s.Timestamp,
		Peak:       dev,
	})
}

func deviation(s sample.Sample) float64 {
	if s.Average == 0 {
		return 0
	}
	return (s.Value - s.Average) / s.Average * 100
}

// Samples returns a copy of the sample window.
func (t *Trace) Samples() []sample.Sample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]sample.Sample{}, t.samples...)
}

// Deviations returns a copy of the deviations, one per sample.
func (t *Trace) Deviations() []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]float64{}, t.deviations...)
}

// Episodes returns the episodes lasting at least the minimum duration.
func (t *Trace) Episodes() []Episode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.visibleEpisodes()
}

func (t *Trace) visibleEpisodes() []Episode {
	out := make([]Episode, 0, len(t.episodes))
	for _, e := range t.episodes {
		if e.Duration() >= t.minEpisode {
			out = append(out, e)
		}
	}
	return out
}

// OnUpdate registers a callback invoked after every sample. The callback
// gets its own copies and should return quickly.
func (t *Trace) OnUpdate(fn UpdateFunc) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.callbacks = append(t.callbacks, fn)
}

// ResetShutdown allows callbacks again before a new ProcessSamples chain.
func (t *Trace) ResetShutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.shutdown = false
}

// Clear drops all samples and episodes.
func (t *Trace) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = nil
	t.deviations = nil
	t.episodes = nil
}

func (t *Trace) notifyCallbacks() {
	t.mu.RLock()
	samples := append([]sample.Sample{}, t.samples...)
	deviations := append([]float64{}, t.deviations...)
	episodes := t.visibleEpisodes()
	t.mu.RUnlock()

	t.cbMu.RLock()
	callbacks := append([]UpdateFunc(nil), t.callbacks...)
	t.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(samples, deviations, episodes)
		}
	}
}
