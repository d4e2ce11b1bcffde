package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/itohio/aspol/pkg/clock"
	"github.com/itohio/aspol/pkg/devconf"
	"github.com/itohio/aspol/pkg/diag"
	"github.com/itohio/aspol/pkg/eventlog"
	"github.com/itohio/aspol/pkg/gps"
	"github.com/itohio/aspol/pkg/metrics"
	"github.com/itohio/aspol/pkg/sample"
	"github.com/itohio/aspol/pkg/sensor"
	"github.com/itohio/aspol/pkg/storage"
	"github.com/sirupsen/logrus"
)

const (
	timeLayout      = "2006-01-02 15:04:05"
	shutdownTimeout = 5 * time.Second
)

// Deps are the surfaces the server reads. Thermometer and Metrics may be nil.
type Deps struct {
	Readings    Readings
	Config      *devconf.Store
	Diag        *diag.Ring
	GPS         gps.Source
	Wall        clock.Wall
	Clock       clock.Monotonic
	Storage     storage.Volume
	Events      eventlog.Options
	Thermometer sensor.Thermometer
	Metrics     *metrics.Metrics
	Log         logrus.FieldLogger
}

// Server handles the status interface.
type Server struct {
	Deps
	mux *http.ServeMux
}

// NewServer creates a server and registers its routes.
func NewServer(deps Deps) *Server {
	s := &Server{Deps: deps, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("POST /config", s.handleConfigForm)
	s.mux.HandleFunc("GET /config", redirectRoot)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/diagnostics", s.handleDiagnostics)
	s.mux.HandleFunc("GET /api/config", s.handleGetConfig)
	s.mux.HandleFunc("PUT /api/config", s.handlePutConfig)
	s.mux.HandleFunc("GET /api/history/{mode}", s.handleHistory)
	s.mux.HandleFunc("GET /api/events/{mode}", s.handleEvents)
	s.mux.Handle("GET /metrics", s.Metrics.Handler())

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Log.WithField("addr", addr).Info("Status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Snapshot assembles the current status.
func (s *Server) Snapshot() Status {
	v := s.Config.Get()
	st := Status{
		Device:   v.DeviceName,
		Mode:     v.Mode,
		UptimeMs: s.Clock.Millis(),
		Time:     "unavailable",
		Reading:  s.Readings.CurrentReading(),
		Unit:     v.Mode.Unit(),
		GPS:      s.GPS.Fix(),
		Storage:  s.Storage.Available(),
	}
	if t, err := s.Wall.Now(); err == nil {
		st.Time = t.Format(timeLayout)
	}
	if s.Thermometer != nil {
		if c, err := s.Thermometer.ReadTemperature(); err == nil {
			st.Temperature = &c
		}
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	records := s.Diag.Snapshot()
	if records == nil {
		records = []diag.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, publicConfig(s.Config.Get()))
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var update devconf.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.Log.WithError(err).Debug("Config decode failed")
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	v := s.apply(update)
	writeJSON(w, http.StatusOK, publicConfig(v))
}

// handleConfigForm applies the HTML form. An empty password keeps the
// current one; unparsable numbers keep the current thresholds.
func (s *Server) handleConfigForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	update := devconf.Update{
		SSID:        r.PostForm.Get("ssid"),
		Password:    r.PostForm.Get("password"),
		DeviceName:  r.PostForm.Get("deviceName"),
		PressurePct: formFloat(r, "pressureThreshold"),
		FlowPct:     formFloat(r, "flowThreshold"),
	}
	if m, err := sample.ParseMode(r.PostForm.Get("sensorMode")); err == nil {
		update.Mode = &m
	}

	s.apply(update)
	redirectRoot(w, r)
}

func (s *Server) apply(update devconf.Update) devconf.Values {
	v, err := s.Config.Apply(update)
	fields := logrus.Fields{"device": v.DeviceName, "mode": v.Mode}
	if err != nil {
		// The store already warned; the new values are live regardless.
		s.Log.WithFields(fields).Debug("Config applied without persistence")
	} else {
		s.Log.WithFields(fields).Info("Config applied")
	}
	return v
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	mode, err := sample.ParseMode(r.PathValue("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	values := s.Readings.History(mode)
	if values == nil {
		values = []float64{}
	}
	writeJSON(w, http.StatusOK, values)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	mode, err := sample.ParseMode(r.PathValue("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	name := s.Events.FileName(mode)
	if !s.Storage.Available() {
		http.Error(w, storage.ErrUnavailable.Error(), http.StatusServiceUnavailable)
		return
	}
	if !s.Storage.Exists(name) {
		writeJSON(w, http.StatusOK, []eventlog.Record{})
		return
	}

	records, _, err := eventlog.ReadRecords(s.Storage, name)
	if err != nil {
		s.Log.WithError(err).Warn("Event read failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []eventlog.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func redirectRoot(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func formFloat(r *http.Request, key string) float64 {
	f, err := strconv.ParseFloat(r.PostForm.Get(key), 64)
	if err != nil {
		return 0
	}
	return f
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
