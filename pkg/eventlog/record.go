package eventlog

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/aspol/pkg/storage"
)

const (
	dateLayout  = "02/01/2006"
	timeLayout  = "15:04:05"
	unavailable = "unavailable"
)

// Record is one persisted anomaly.
type Record struct {
	At    time.Time `json:"at"` // zero when no clock was available
	Lat   float64   `json:"lat"`
	Lng   float64   `json:"lng"`
	Value float64   `json:"value"`
}

// Line renders r as DD/MM/YYYY,HH:MM:SS,lat,lng,value with a trailing newline.
func (r Record) Line() string {
	date, clk := unavailable, unavailable
	if !r.At.IsZero() {
		date = r.At.Format(dateLayout)
		clk = r.At.Format(timeLayout)
	}
	return fmt.Sprintf("%s,%s,%.6f,%.6f,%.2f\n", date, clk, r.Lat, r.Lng, r.Value)
}

// ParseRecord parses a single log line.
func ParseRecord(line string) (Record, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 5 {
		return Record{}, fmt.Errorf("invalid record: expected 5 comma-separated values, got %d", len(parts))
	}

	var r Record
	if parts[0] != unavailable || parts[1] != unavailable {
		at, err := time.Parse(dateLayout+" "+timeLayout, parts[0]+" "+parts[1])
		if err != nil {
			return Record{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		r.At = at
	}

	var err error
	if r.Lat, err = strconv.ParseFloat(parts[2], 64); err != nil {
		return Record{}, fmt.Errorf("invalid latitude: %w", err)
	}
	if r.Lng, err = strconv.ParseFloat(parts[3], 64); err != nil {
		return Record{}, fmt.Errorf("invalid longitude: %w", err)
	}
	if r.Value, err = strconv.ParseFloat(parts[4], 64); err != nil {
		return Record{}, fmt.Errorf("invalid value: %w", err)
	}
	return r, nil
}

// ReadRecords reads every well-formed record of the named log. Malformed
// lines (a write cut short by power loss, for instance) are skipped and counted.
func ReadRecords(v storage.Volume, name string) ([]Record, int, error) {
	data, err := storage.ReadFile(v, name)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", name, err)
	}

	var (
		records []Record
		skipped int
	)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		r, err := ParseRecord(line)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, r)
	}
	return records, skipped, scanner.Err()
}
