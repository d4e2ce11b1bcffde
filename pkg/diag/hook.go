package diag

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Hook mirrors log entries into a Ring so they show up on the status page.
type Hook struct {
	ring   *Ring
	levels []logrus.Level
}

// NewHook creates a hook recording entries at minLevel or more severe.
func NewHook(ring *Ring, minLevel logrus.Level) *Hook {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= minLevel {
			levels = append(levels, l)
		}
	}
	return &Hook{ring: ring, levels: levels}
}

// Levels returns the levels the hook fires for.
func (h *Hook) Levels() []logrus.Level {
	return h.levels
}

// Fire records the entry as "message k=v ...", with fields in key order.
func (h *Hook) Fire(entry *logrus.Entry) error {
	h.ring.Record(format(entry))
	return nil
}

func format(entry *logrus.Entry) string {
	var b strings.Builder
	if entry.Level <= logrus.WarnLevel {
		b.WriteString(strings.ToUpper(entry.Level.String()))
		b.WriteString(": ")
	}
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	return b.String()
}

// NewLogger returns a logger writing to out and mirroring Info and above into ring.
func NewLogger(ring *Ring, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.AddHook(NewHook(ring, logrus.InfoLevel))
	return l
}
