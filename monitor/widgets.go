package main

import (
	"fmt"
	"strconv"
	"strings"

	"fyne.io/fyne/v2/dialog"
	"github.com/itohio/aspol/pkg/eventlog"
	"github.com/itohio/aspol/pkg/sample"
)

func formatReading(r sample.Reading) string {
	if !r.Valid {
		return "no reading"
	}
	unit := r.Mode.Unit()
	s := fmt.Sprintf("%.2f %s (avg %.2f, limit ±%.2f)", r.Current, unit, r.Average, r.Threshold)
	if r.Anomalous {
		s += "  ANOMALY"
	}
	return s
}

func parsePct(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func showError(state *appState, msg string, err error) {
	state.log.WithError(err).Warn(msg)
	dialog.ShowError(fmt.Errorf("%s: %w", msg, err), state.window)
}

// formatEvents lists records newest first in the log line format.
func formatEvents(records []eventlog.Record, mode sample.Mode) string {
	if len(records) == 0 {
		return "No " + strings.ToLower(mode.String()) + " events"
	}
	var b strings.Builder
	for i := len(records) - 1; i >= 0; i-- {
		b.WriteString(records[i].Line())
	}
	return b.String()
}
