package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/aspol/pkg/ap"
	"github.com/itohio/aspol/pkg/clock"
	"github.com/itohio/aspol/pkg/config"
	"github.com/itohio/aspol/pkg/devconf"
	"github.com/itohio/aspol/pkg/diag"
	"github.com/itohio/aspol/pkg/engine"
	"github.com/itohio/aspol/pkg/eventlog"
	"github.com/itohio/aspol/pkg/metrics"
	"github.com/itohio/aspol/pkg/pulse"
	"github.com/itohio/aspol/pkg/sample"
	"github.com/itohio/aspol/pkg/status"
	"github.com/itohio/aspol/pkg/storage"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func runCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the detector",
		Long: `Run the sampling loop, the event logger and the status server until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, g.cfg)
		},
	}
}

// closers releases resources in reverse order of acquisition.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	uptime := clock.NewUptime()
	ring := diag.New(uptime)
	log, err := newLogger(cfg.Log, ring, os.Stderr)
	if err != nil {
		return err
	}

	var cleanup closers
	defer cleanup.close()

	vol := storage.NewDir(cfg.Storage.Root)
	if !vol.Available() {
		log.WithField("root", cfg.Storage.Root).Warn("SD card initialization failed")
	}

	wall := openWall(cfg.Clock, log, &cleanup)

	store := devconf.NewStore(vol, log)
	if err := store.Load(); err != nil {
		log.WithError(err).Warn("Using default config")
	}
	v := store.Get()
	log.WithFields(logrus.Fields{"device": v.DeviceName, "mode": v.Mode}).Info("Config loaded")

	manager, err := ap.New(cfg.AccessPoint, log)
	if err != nil {
		return err
	}
	if err := manager.Restart(v); err != nil {
		log.WithError(err).Warn("Access point setup failed")
	}
	ap.Watch(store, manager, log)

	fix := openGPS(cfg.GPS, log, &cleanup)
	counter := pulse.NewCounter(nil)
	pressure, thermometer := openSensor(ctx, cfg, counter, log, &cleanup)

	events := eventlog.New(vol, fix, wall, log, eventOptions(cfg.Events))
	device := func() string { return store.Get().DeviceName }
	openMirrors(ctx, cfg.Mirror, events, device, log, &cleanup)

	m := metrics.New()
	eng := engine.New(engine.Deps{
		Clock:    uptime,
		Pressure: pressure,
		Counter:  counter,
		Config:   store,
		Events:   events,
		GPS:      fix,
		Metrics:  m,
		Log:      log,
	}, engine.Options{
		LoopDelay:    cfg.Sampling.LoopDelay,
		History:      cfg.Sampling.History,
		FlowInterval: cfg.Sampling.FlowInterval,
		Calibration:  cfg.Sampling.Calibration,
	})

	srvErr := make(chan error, 1)
	if cfg.Status.Enabled {
		srv := status.NewServer(status.Deps{
			Readings:    eng,
			Config:      store,
			Diag:        ring,
			GPS:         fix,
			Wall:        wall,
			Clock:       uptime,
			Storage:     vol,
			Events:      events.Options(),
			Thermometer: thermometer,
			Metrics:     m,
			Log:         log,
		})
		go func() { srvErr <- srv.ListenAndServe(ctx, cfg.Status.Addr) }()
	} else {
		srvErr <- nil
	}

	// The loop keeps running if the status server dies.
	srvDone := make(chan struct{})
	go func() {
		defer close(srvDone)
		if err := <-srvErr; err != nil {
			log.WithError(err).Error("Status server failed")
		}
	}()

	err = eng.Run(ctx)
	<-srvDone
	if errors.Is(err, context.Canceled) {
		log.Info("Shutting down")
		return nil
	}
	return err
}

func eventOptions(cfg config.EventsConfig) eventlog.Options {
	return eventlog.Options{
		Policies: map[sample.Mode]eventlog.Policy{
			sample.ModePressure: {MinInterval: cfg.PressureInterval},
			sample.ModeFlow:     {MinInterval: cfg.FlowInterval},
		},
		Files: map[sample.Mode]string{
			sample.ModePressure: cfg.PressureFile,
			sample.ModeFlow:     cfg.FlowFile,
		},
		MirrorTimeout: cfg.MirrorTimeout,
	}
}
