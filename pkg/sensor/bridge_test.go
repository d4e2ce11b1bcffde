package sensor

import (
	"strings"
	"testing"
	"time"

	"github.com/itohio/aspol/pkg/pulse"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    frame
		wantErr bool
	}{
		{name: "pressure", line: "P,101325", want: frame{kind: framePressure, value: 101325}},
		{name: "temperature", line: "T,21.5", want: frame{kind: frameTemperature, value: 21.5}},
		{name: "pulses", line: "F,42", want: frame{kind: framePulses, pulses: 42}},
		{name: "error", line: "E,BMP", want: frame{kind: frameError, text: "BMP"}},
		{name: "no separator", line: "P101325", wantErr: true},
		{name: "long kind", line: "PP,1", wantErr: true},
		{name: "unknown kind", line: "X,1", wantErr: true},
		{name: "bad pressure", line: "P,abc", wantErr: true},
		{name: "nan pressure", line: "P,NaN", wantErr: true},
		{name: "negative pulses", line: "F,-1", wantErr: true},
		{name: "pulse overflow", line: "F,4294967296", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFrame(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newTestBridge(now *time.Time) (*Bridge, *pulse.Counter) {
	log, _ := test.NewNullLogger()
	counter := pulse.NewCounter(nil)
	b := NewBridge("", 0, 0, counter, log)
	b.now = func() time.Time { return *now }
	b.connected = true
	return b, counter
}

func TestBridge_ReadFrames(t *testing.T) {
	now := time.Now()
	b, counter := newTestBridge(&now)

	_, err := b.ReadPressure()
	assert.ErrorIs(t, err, ErrNotInitialized)

	stream := "P,101325\r\nT,21.5\r\ngarbage\r\nF,10\r\n\r\nF,5\r\n"
	b.readFrames(t.Context(), strings.NewReader(stream))

	p, err := b.ReadPressure()
	require.NoError(t, err)
	assert.InDelta(t, 1013.25, p, 1e-3)

	temp, err := b.ReadTemperature()
	require.NoError(t, err)
	assert.Equal(t, 21.5, temp)

	assert.Equal(t, uint32(15), counter.Drain())
}

func TestBridge_StalePressure(t *testing.T) {
	now := time.Now()
	b, _ := newTestBridge(&now)

	b.readFrames(t.Context(), strings.NewReader("P,100000\n"))
	_, err := b.ReadPressure()
	require.NoError(t, err)

	now = now.Add(DefaultStaleAfter + time.Millisecond)
	_, err = b.ReadPressure()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestBridge_SensorAbsent(t *testing.T) {
	now := time.Now()
	b, _ := newTestBridge(&now)

	b.readFrames(t.Context(), strings.NewReader("P,100000\nE,BMP\n"))
	_, err := b.ReadPressure()
	assert.ErrorIs(t, err, ErrNotInitialized)

	b.readFrames(t.Context(), strings.NewReader("P,100100\n"))
	p, err := b.ReadPressure()
	require.NoError(t, err)
	assert.InDelta(t, 1001.0, p, 1e-3)
}

func TestBridge_NotConnected(t *testing.T) {
	log, _ := test.NewNullLogger()
	b := NewBridge("/dev/null-port", 0, 0, pulse.NewCounter(nil), log)

	assert.False(t, b.IsConnected())
	assert.NoError(t, b.Close())
	assert.Error(t, b.SetReportInterval(time.Second))
	_, err := b.ReadPressure()
	assert.ErrorIs(t, err, ErrNotInitialized)
}
