package diag

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/itohio/aspol/pkg/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Empty(t *testing.T) {
	r := New(&clock.Manual{})
	assert.Empty(t, r.Snapshot())
	assert.Equal(t, 0, r.Len())
}

func TestRecord_StampsAndOrders(t *testing.T) {
	clk := &clock.Manual{}
	r := New(clk)

	clk.Set(10)
	r.Record("first")
	clk.Set(20)
	r.Recordf("second %d", 2)

	got := r.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, Record{Millis: 10, Text: "first"}, got[0])
	assert.Equal(t, Record{Millis: 20, Text: "second 2"}, got[1])
}

func TestRecord_Truncates(t *testing.T) {
	r := New(&clock.Manual{})
	r.Record(strings.Repeat("x", 200))

	got := r.Snapshot()
	require.Len(t, got, 1)
	assert.Len(t, got[0].Text, TextLimit)
}

func TestRecord_Overflow(t *testing.T) {
	clk := &clock.Manual{}
	r := New(clk)

	const extra = 5
	for i := range Capacity + extra {
		clk.Set(uint64(i))
		r.Record(fmt.Sprintf("msg %d", i))
	}

	assert.Equal(t, Capacity, r.Len())

	got := r.Snapshot()
	require.Len(t, got, Capacity)
	for i, rec := range got {
		want := i + extra
		assert.Equal(t, uint64(want), rec.Millis)
		assert.Equal(t, fmt.Sprintf("msg %d", want), rec.Text)
	}
}

func TestHook_MirrorsEntries(t *testing.T) {
	r := New(&clock.Manual{})
	log := NewLogger(r, io.Discard)
	log.SetLevel(logrus.DebugLevel)

	log.Debug("not mirrored")
	log.WithFields(logrus.Fields{"mode": "FLOW", "b": 1}).Info("event written")
	log.WithField("err", "no card").Warn("storage unavailable")

	got := r.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "event written b=1 mode=FLOW", got[0].Text)
	assert.Equal(t, "WARNING: storage unavailable err=no card", got[1].Text)
}
