// Package diag keeps the most recent diagnostic messages in memory.
//
// The ring is the only view the status interface has of engine activity.
// It is not durable and older records are overwritten under load.
package diag

import (
	"fmt"
	"sync"

	"github.com/itohio/aspol/pkg/bounded"
	"github.com/itohio/aspol/pkg/clock"
)

const (
	// Capacity is the number of records kept.
	Capacity = 100
	// TextLimit is the maximum stored text length per record.
	TextLimit = 79
)

// Record is a single timestamped diagnostic message.
type Record struct {
	Millis uint64 `json:"millis"`
	Text   string `json:"text"`
}

// Ring is a fixed-capacity ring of diagnostic records.
type Ring struct {
	clk clock.Monotonic

	mu      sync.Mutex
	records [Capacity]Record
	next    int
	total   int // saturates at Capacity
}

// New creates an empty ring stamping records with clk.
func New(clk clock.Monotonic) *Ring {
	return &Ring{clk: clk}
}

// Record appends text, truncated to TextLimit.
func (r *Ring) Record(text string) {
	rec := Record{
		Millis: r.clk.Millis(),
		Text:   bounded.Truncate(text, TextLimit),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[r.next] = rec
	r.next = (r.next + 1) % Capacity
	if r.total < Capacity {
		r.total++
	}
}

// Recordf formats and appends a record.
func (r *Ring) Recordf(format string, args ...any) {
	r.Record(fmt.Sprintf(format, args...))
}

// Len returns the number of valid records.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Snapshot returns the valid records, oldest first.
func (r *Ring) Snapshot() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, r.total)
	start := (r.next - r.total + Capacity) % Capacity
	for i := range r.total {
		out[i] = r.records[(start+i)%Capacity]
	}
	return out
}
