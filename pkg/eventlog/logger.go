// Package eventlog appends geotagged anomaly records to mode-specific,
// append-only log files.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/itohio/aspol/pkg/clock"
	"github.com/itohio/aspol/pkg/gps"
	"github.com/itohio/aspol/pkg/sample"
	"github.com/itohio/aspol/pkg/storage"
	"github.com/sirupsen/logrus"
)

const (
	// PressureFile receives pressure anomalies.
	PressureFile = "/pressure_log.txt"
	// FlowFile receives flow anomalies.
	FlowFile = "/flow_log.txt"

	// DefaultFlowInterval is the minimum spacing of flow event writes.
	DefaultFlowInterval = 2500 * time.Millisecond
	// DefaultMirrorTimeout bounds a single mirror delivery.
	DefaultMirrorTimeout = 2 * time.Second
)

// Outcome tells what happened to an anomaly handed to Log.
type Outcome int

const (
	Written Outcome = iota
	RateLimited
	NoFix
	NoStorage
	WriteFailed
)

func (o Outcome) String() string {
	switch o {
	case Written:
		return "written"
	case RateLimited:
		return "rate_limited"
	case NoFix:
		return "no_fix"
	case NoStorage:
		return "no_storage"
	case WriteFailed:
		return "write_failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Policy controls how often a mode may write events.
type Policy struct {
	// MinInterval is the minimum spacing between writes. Zero logs every anomaly.
	MinInterval time.Duration
}

// Options configure a Logger.
type Options struct {
	Policies      map[sample.Mode]Policy
	Files         map[sample.Mode]string
	MirrorTimeout time.Duration
}

// DefaultOptions logs every pressure anomaly and at most one flow anomaly
// per 2500 ms.
func DefaultOptions() Options {
	return Options{
		Policies: map[sample.Mode]Policy{
			sample.ModePressure: {},
			sample.ModeFlow:     {MinInterval: DefaultFlowInterval},
		},
		Files: map[sample.Mode]string{
			sample.ModePressure: PressureFile,
			sample.ModeFlow:     FlowFile,
		},
		MirrorTimeout: DefaultMirrorTimeout,
	}
}

// FileName returns the log file used for mode.
func (o Options) FileName(mode sample.Mode) string {
	if name, ok := o.Files[mode]; ok && name != "" {
		return name
	}
	return DefaultOptions().Files[mode]
}

// Mirror receives a best-effort copy of every geotagged anomaly that passed
// the rate limit, whether or not the local write succeeded.
type Mirror interface {
	Mirror(ctx context.Context, mode sample.Mode, r Record) error
}

type gate struct {
	primed bool
	last   uint64
}

// Logger writes anomaly records. It is owned by the control loop.
type Logger struct {
	vol     storage.Volume
	fix     gps.Source
	wall    clock.Wall
	log     logrus.FieldLogger
	opts    Options
	mirrors []Mirror
	gates   map[sample.Mode]*gate
}

// New creates a Logger.
func New(vol storage.Volume, fix gps.Source, wall clock.Wall, log logrus.FieldLogger, opts Options) *Logger {
	if opts.MirrorTimeout <= 0 {
		opts.MirrorTimeout = DefaultMirrorTimeout
	}
	return &Logger{
		vol:   vol,
		fix:   fix,
		wall:  wall,
		log:   log,
		opts:  opts,
		gates: make(map[sample.Mode]*gate),
	}
}

// AddMirror registers m to receive records after they are written.
func (l *Logger) AddMirror(m Mirror) {
	l.mirrors = append(l.mirrors, m)
}

// Options returns the logger configuration.
func (l *Logger) Options() Options {
	return l.opts
}

// Log records an anomalous value observed at nowMillis.
//
// The rate gate is checked first and its timestamp advances whenever it
// passes, whatever happens afterwards. A missing fix suppresses the record
// silently. Missing storage suppresses it with a warning.
func (l *Logger) Log(mode sample.Mode, value float64, nowMillis uint64) Outcome {
	if !l.pass(mode, nowMillis) {
		return RateLimited
	}

	fix := l.fix.Fix()
	if !fix.Valid {
		return NoFix
	}

	r := Record{
		At:    l.timestamp(fix),
		Lat:   fix.Lat,
		Lng:   fix.Lng,
		Value: value,
	}

	name := l.opts.FileName(mode)
	outcome := Written
	if err := storage.AppendFile(l.vol, name, []byte(r.Line())); err != nil {
		if errors.Is(err, storage.ErrUnavailable) || !l.vol.Available() {
			l.log.WithField("mode", mode).Warn("Storage unavailable, event not logged")
			outcome = NoStorage
		} else {
			l.log.WithError(err).WithField("file", name).Error("Event write failed")
			outcome = WriteFailed
		}
	}

	l.mirror(mode, r)
	return outcome
}

func (l *Logger) pass(mode sample.Mode, now uint64) bool {
	g, ok := l.gates[mode]
	if !ok {
		g = &gate{}
		l.gates[mode] = g
	}

	interval := uint64(l.opts.Policies[mode].MinInterval / time.Millisecond)
	if g.primed && now >= g.last && now-g.last < interval {
		return false
	}
	g.primed = true
	g.last = now
	return true
}

func (l *Logger) timestamp(fix gps.Fix) time.Time {
	t, err := l.wall.Now()
	if err == nil {
		return t
	}
	return fix.Time
}

func (l *Logger) mirror(mode sample.Mode, r Record) {
	for _, m := range l.mirrors {
		ctx, cancel := context.WithTimeout(context.Background(), l.opts.MirrorTimeout)
		err := m.Mirror(ctx, mode, r)
		cancel()
		if err != nil {
			l.log.WithError(err).WithField("mode", mode).Warn("Event mirror failed")
		}
	}
}
