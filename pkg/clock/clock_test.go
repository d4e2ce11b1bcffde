package clock

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManual(t *testing.T) {
	var m Manual
	assert.Equal(t, uint64(0), m.Millis())

	m.Advance(250)
	assert.Equal(t, uint64(250), m.Millis())

	m.Set(10_000)
	assert.Equal(t, uint64(10_000), m.Millis())
}

func TestUptime_Monotonic(t *testing.T) {
	u := NewUptime()
	a := u.Millis()
	time.Sleep(5 * time.Millisecond)
	b := u.Millis()
	assert.GreaterOrEqual(t, b, a+5)
}

func TestNone(t *testing.T) {
	_, err := None{}.Now()
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestDS3231_TimeRoundTrip(t *testing.T) {
	tests := []time.Time{
		time.Date(2024, time.February, 29, 23, 59, 58, 0, time.UTC),
		time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2099, time.December, 31, 12, 30, 45, 0, time.UTC),
		time.Date(2105, time.July, 4, 7, 8, 9, 0, time.UTC),
	}

	for _, want := range tests {
		t.Run(want.String(), func(t *testing.T) {
			raw := encodeTime(want)
			require.Len(t, raw, 7)
			assert.Equal(t, want, decodeTime(raw))
		})
	}
}

func TestDS3231_Decode12HourMode(t *testing.T) {
	// 11:15:00 PM on 2025-03-09, hour register in 12 hour mode with PM bit.
	raw := []byte{0x00, 0x15, 0x40 | 0x20 | 0x11, 0x01, 0x09, 0x03, 0x25}
	got := decodeTime(raw)
	assert.Equal(t, time.Date(2025, time.March, 9, 23, 15, 0, 0, time.UTC), got)

	// 12:05 AM is hour zero.
	raw = []byte{0x00, 0x05, 0x40 | 0x12, 0x01, 0x09, 0x03, 0x25}
	assert.Equal(t, 0, decodeTime(raw).Hour())
}
