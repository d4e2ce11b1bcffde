package trace

import (
	"sync"
	"testing"
	"time"

	"github.com/itohio/aspol/pkg/config"
	"github.com/itohio/aspol/pkg/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTrace(window, minEpisode time.Duration) *Trace {
	return New(config.MonitorConfig{Window: window, MinEpisode: minEpisode})
}

// series builds pressure samples 100 ms apart; marked indices are anomalous.
func series(start time.Time, values []float64, anomalous ...int) []sample.Sample {
	marked := make(map[int]bool, len(anomalous))
	for _, i := range anomalous {
		marked[i] = true
	}
	out := make([]sample.Sample, len(values))
	for i, v := range values {
		out[i] = sample.Sample{
			Timestamp: start.Add(time.Duration(i) * 100 * time.Millisecond),
			Mode:      sample.ModePressure,
			Value:     v,
			Average:   1000,
			Threshold: 50,
			Anomalous: marked[i],
		}
	}
	return out
}

func TestNew(t *testing.T) {
	tr := New(config.Default().Monitor)

	assert.NotNil(t, tr)
	assert.Empty(t, tr.Samples())
	assert.Empty(t, tr.Deviations())
	assert.Empty(t, tr.Episodes())
}

func TestProcessSample_Deviation(t *testing.T) {
	tr := newTrace(time.Minute, 0)

	for _, s := range series(time.Now(), []float64{1000, 1080, 950}) {
		tr.processSample(s)
	}

	dev := tr.Deviations()
	require.Len(t, dev, 3)
	assert.InDelta(t, 0, dev[0], 1e-9)
	assert.InDelta(t, 8, dev[1], 1e-9)
	assert.InDelta(t, -5, dev[2], 1e-9)
}

func TestProcessSample_ZeroAverage(t *testing.T) {
	tr := newTrace(time.Minute, 0)
	tr.processSample(sample.Sample{Timestamp: time.Now(), Mode: sample.ModeFlow, Value: 3})
	assert.Equal(t, []float64{0}, tr.Deviations())
}

func TestProcessSample_WindowRemoval(t *testing.T) {
	tr := newTrace(time.Second, 0)

	now := time.Now()
	ss := series(now, make([]float64, 15))
	for _, s := range ss {
		tr.processSample(s)
	}

	samples := tr.Samples()
	require.Len(t, samples, 10)
	assert.Equal(t, ss[5].Timestamp, samples[0].Timestamp)
	assert.Len(t, tr.Deviations(), len(samples))
}

func TestEpisodes_Detection(t *testing.T) {
	tr := newTrace(time.Minute, 0)

	values := []float64{1000, 1000, 1070, 1090, 1060, 1000, 1000, 1080, 1000}
	for _, s := range series(time.Now(), values, 2, 3, 4, 7) {
		tr.processSample(s)
	}

	eps := tr.Episodes()
	require.Len(t, eps, 2)

	assert.Equal(t, 2, eps[0].StartIndex)
	assert.Equal(t, 4, eps[0].EndIndex)
	assert.Equal(t, 200*time.Millisecond, eps[0].Duration())
	assert.InDelta(t, 9, eps[0].Peak, 1e-9)
	assert.Equal(t, sample.ModePressure, eps[0].Mode)

	assert.Equal(t, 7, eps[1].StartIndex)
	assert.Equal(t, 7, eps[1].EndIndex)
}

func TestEpisodes_MinDurationFiltersBlips(t *testing.T) {
	tr := newTrace(time.Minute, 150*time.Millisecond)

	values := []float64{1000, 1080, 1000, 1070, 1075, 1090, 1000}
	for _, s := range series(time.Now(), values, 1, 3, 4, 5) {
		tr.processSample(s)
	}

	eps := tr.Episodes()
	require.Len(t, eps, 1)
	assert.Equal(t, 3, eps[0].StartIndex)
	assert.Equal(t, 5, eps[0].EndIndex)
}

func TestEpisodes_ClippedByWindow(t *testing.T) {
	tr := newTrace(time.Second, 0)

	values := make([]float64, 20)
	anomalous := []int{2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	for _, s := range series(time.Now(), values, anomalous...) {
		tr.processSample(s)
	}

	samples := tr.Samples()
	eps := tr.Episodes()
	require.Len(t, eps, 1)
	assert.Equal(t, 0, eps[0].StartIndex)
	assert.Equal(t, samples[0].Timestamp, eps[0].StartTime)
	assert.Less(t, eps[0].EndIndex, len(samples))

	for _, s := range series(samples[len(samples)-1].Timestamp.Add(2*time.Second), []float64{1000}) {
		tr.processSample(s)
	}
	assert.Empty(t, tr.Episodes())
}

func TestProcessSample_ModeChangeClears(t *testing.T) {
	tr := newTrace(time.Minute, 0)

	now := time.Now()
	for _, s := range series(now, []float64{1000, 1090}, 1) {
		tr.processSample(s)
	}
	tr.processSample(sample.Sample{Timestamp: now.Add(time.Second), Mode: sample.ModeFlow, Value: 12, Average: 12})

	assert.Len(t, tr.Samples(), 1)
	assert.Empty(t, tr.Episodes())
}

func TestOnUpdate(t *testing.T) {
	tr := newTrace(time.Minute, 0)

	var got []sample.Sample
	var gotEpisodes []Episode
	tr.OnUpdate(func(samples []sample.Sample, deviations []float64, episodes []Episode) {
		got = samples
		gotEpisodes = episodes
		assert.Len(t, deviations, len(samples))
	})

	for _, s := range series(time.Now(), []float64{1000, 1090}, 1) {
		tr.processSample(s)
	}

	assert.Len(t, got, 2)
	assert.Len(t, gotEpisodes, 1)
}

func TestSamples_ThreadSafe(t *testing.T) {
	tr := newTrace(time.Minute, 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, s := range series(time.Now(), make([]float64, 100)) {
			tr.processSample(s)
		}
	}()

	for {
		select {
		case <-done:
			assert.Len(t, tr.Samples(), 100)
			return
		default:
			_ = tr.Samples()
			_ = tr.Episodes()
		}
	}
}

func TestProcessSamples_GracefulShutdown(t *testing.T) {
	tr := newTrace(time.Minute, 0)

	var mu sync.Mutex
	count := 0
	tr.OnUpdate(func([]sample.Sample, []float64, []Episode) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	calls := func() int {
		mu.Lock()
		defer mu.Unlock()
		return count
	}

	input := make(chan sample.Sample, 10)
	for _, s := range series(time.Now(), []float64{1000, 1001, 1002}) {
		input <- s
	}
	close(input)
	tr.ProcessSamples(input)
	assert.Equal(t, 3, calls())

	tr.processSample(series(time.Now().Add(time.Second), []float64{1003})[0])
	assert.Equal(t, 3, calls(), "no callbacks after the input closed")

	tr.ResetShutdown()
	input = make(chan sample.Sample, 1)
	input <- series(time.Now().Add(2*time.Second), []float64{1004})[0]
	close(input)
	tr.ProcessSamples(input)
	assert.Equal(t, 4, calls())

	tr.Clear()
	assert.Empty(t, tr.Samples())
}
