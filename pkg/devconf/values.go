// Package devconf holds the runtime device configuration: access point
// credentials, device label, active sensor mode and anomaly thresholds.
package devconf

import (
	"bufio"
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/itohio/aspol/pkg/bounded"
	"github.com/itohio/aspol/pkg/sample"
)

const (
	// FileName is the persisted configuration on the storage volume.
	FileName = "/config.txt"

	tempFileName = "/config.txt.tmp"

	// TextLimit caps every text field.
	TextLimit = 31

	DefaultSSID        = "Aspol Tracker"
	DefaultPassword    = "sulungresearch"
	DefaultDeviceName  = "PressureTracker"
	DefaultPressurePct = 5.0
	DefaultFlowPct     = 20.0
)

// Values is one complete configuration.
type Values struct {
	SSID        string      `json:"ssid"`
	Password    string      `json:"password,omitempty"`
	DeviceName  string      `json:"device_name"`
	Mode        sample.Mode `json:"mode"`
	PressurePct float64     `json:"pressure_pct"`
	FlowPct     float64     `json:"flow_pct"`
}

// Defaults returns the compiled-in configuration.
func Defaults() Values {
	return Values{
		SSID:        DefaultSSID,
		Password:    DefaultPassword,
		DeviceName:  DefaultDeviceName,
		Mode:        sample.ModePressure,
		PressurePct: DefaultPressurePct,
		FlowPct:     DefaultFlowPct,
	}
}

// ThresholdPct returns the threshold percentage for mode.
func (v Values) ThresholdPct(mode sample.Mode) float64 {
	if mode == sample.ModeFlow {
		return v.FlowPct
	}
	return v.PressurePct
}

// Update is a partial configuration. Empty text, a nil mode and
// non-positive or non-finite percentages leave the current value alone.
type Update struct {
	SSID        string       `json:"ssid,omitempty"`
	Password    string       `json:"password,omitempty"`
	DeviceName  string       `json:"device_name,omitempty"`
	Mode        *sample.Mode `json:"mode,omitempty"`
	PressurePct float64      `json:"pressure_pct,omitempty"`
	FlowPct     float64      `json:"flow_pct,omitempty"`
}

// ModeUpdate returns an update that only switches the sensor mode.
func ModeUpdate(m sample.Mode) Update {
	return Update{Mode: &m}
}

// Merge returns v with every usable field of update applied.
func (v Values) Merge(update Update) Values {
	if s := clean(update.SSID); s != "" {
		v.SSID = s
	}
	if s := clean(update.Password); s != "" {
		v.Password = s
	}
	if s := clean(update.DeviceName); s != "" {
		v.DeviceName = s
	}
	if m := update.Mode; m != nil && (*m == sample.ModePressure || *m == sample.ModeFlow) {
		v.Mode = *m
	}
	if validPct(update.PressurePct) {
		v.PressurePct = update.PressurePct
	}
	if validPct(update.FlowPct) {
		v.FlowPct = update.FlowPct
	}
	return v
}

// Marshal renders v one value per line: ssid, password, device name, mode,
// pressure percentage, flow percentage.
func (v Values) Marshal() []byte {
	var b bytes.Buffer
	for _, line := range []string{
		clean(v.SSID),
		clean(v.Password),
		clean(v.DeviceName),
		v.Mode.String(),
		formatPct(v.PressurePct),
		formatPct(v.FlowPct),
	} {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// Unmarshal folds a persisted file into v, field by field. The mode line is
// optional: a file written before flow support has the pressure percentage
// on its fourth line and no flow percentage. Fields that are missing,
// malformed or non-positive keep their value from v. The second result lists
// the fields that were rejected.
func (v Values) Unmarshal(data []byte) (Values, []string) {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	line := func(i int) string {
		if i < len(lines) {
			return lines[i]
		}
		return ""
	}

	var rejected []string
	var update Update
	update.SSID = line(0)
	update.Password = line(1)
	update.DeviceName = line(2)

	next := 3
	if mode, ok := parseModeLine(line(next)); ok {
		update.Mode = &mode
		next++
	} else if len(lines) > 5 {
		rejected = append(rejected, "mode")
		next++
	}

	update.PressurePct = parsePct(line(next), "pressure_pct", &rejected)
	if next+1 < len(lines) {
		update.FlowPct = parsePct(line(next+1), "flow_pct", &rejected)
	}

	for _, f := range []struct{ name, val string }{
		{"ssid", update.SSID}, {"password", update.Password}, {"device_name", update.DeviceName},
	} {
		if f.val == "" {
			rejected = append(rejected, f.name)
		}
	}

	return v.Merge(update), rejected
}

func parseModeLine(s string) (sample.Mode, bool) {
	switch strings.ToUpper(s) {
	case sample.ModePressure.String():
		return sample.ModePressure, true
	case sample.ModeFlow.String():
		return sample.ModeFlow, true
	}
	return 0, false
}

func parsePct(s, name string, rejected *[]string) float64 {
	if s == "" {
		*rejected = append(*rejected, name)
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !validPct(f) {
		*rejected = append(*rejected, name)
		return 0
	}
	return f
}

func formatPct(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func validPct(f float64) bool {
	return f > 0 && !math.IsInf(f, 0)
}

// clean keeps the first line of s, trimmed and capped to TextLimit.
func clean(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return bounded.Truncate(strings.TrimSpace(s), TextLimit)
}
