package main

import (
	"context"
	"flag"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/aspol/pkg/config"
	"github.com/itohio/aspol/pkg/devconf"
	"github.com/itohio/aspol/pkg/sample"
	"github.com/itohio/aspol/pkg/scope"
	"github.com/itohio/aspol/pkg/status"
	"github.com/itohio/aspol/pkg/trace"
	"github.com/sirupsen/logrus"
)

const updateInterval = 16 * time.Millisecond // ~60 FPS

func main() {
	var (
		configFlag = flag.String("config", "aspol.yaml", "Configuration file path")
		urlFlag    = flag.String("url", "", "Device URL override (e.g. http://192.168.4.1)")
		debugFlag  = flag.Bool("debug", false, "Verbose logging")
	)
	flag.Parse()

	log := logrus.New()
	if *debugFlag {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if *urlFlag != "" {
		cfg.Monitor.URL = *urlFlag
	}

	application := app.NewWithID("com.itohio.aspol")
	window := application.NewWindow("Aspol Monitor")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		log:        log,
		trace:      trace.New(cfg.Monitor),
		window:     window,
	}

	toolbar := createToolbar(state)
	state.scopeWidget = scope.New(cfg.Monitor.Window)
	state.statusLabel = widget.NewLabel("Disconnected")

	window.SetContent(container.NewBorder(toolbar, state.statusLabel, nil, nil, state.scopeWidget))
	window.SetOnClosed(func() { closeChain(state.chain) })
	bindTrace(state)
	window.ShowAndRun()
}

// chain tracks the goroutines of one connection for graceful shutdown.
type chain struct {
	cancel    context.CancelFunc
	modeDone  chan struct{} // closed when the mode follower exits
	traceDone chan struct{} // closed when the trace stops processing
}

type appState struct {
	cfg        *config.Config
	configPath string
	log        logrus.FieldLogger

	client      *status.Client
	trace       *trace.Trace
	scopeWidget *scope.ScopeWidget
	window      fyne.Window
	statusLabel *widget.Label
	connectBtn  *widget.Button
	modeBtns    map[sample.Mode]*widget.Button
	mode        sample.Mode
	chain       *chain

	lastUpdate time.Time
	updateMu   sync.Mutex
}

func createToolbar(state *appState) fyne.CanvasObject {
	state.connectBtn = widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})
	eventsBtn := widget.NewButtonWithIcon("", theme.ListIcon(), func() {
		showEventsDialog(state)
	})

	state.modeBtns = make(map[sample.Mode]*widget.Button, len(sample.Modes))
	modes := container.NewHBox()
	for _, m := range sample.Modes {
		btn := widget.NewButton(m.String(), func() { handleModeSwitch(state, m) })
		btn.Disable()
		state.modeBtns[m] = btn
		modes.Add(btn)
	}

	return container.NewBorder(nil, nil,
		container.NewHBox(state.connectBtn, settingsBtn, eventsBtn),
		modes,
		nil,
	)
}

func closeChain(c *chain) {
	if c == nil {
		return
	}
	c.cancel()
	<-c.modeDone
	<-c.traceDone
}

func handleConnect(state *appState) {
	if state.chain != nil {
		closeChain(state.chain)
		state.chain = nil
		for _, btn := range state.modeBtns {
			btn.Disable()
		}
		state.statusLabel.SetText("Disconnected")
		state.log.Info("Disconnected")
		return
	}

	state.client = status.NewClient(state.cfg.Monitor.URL)
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := state.client.Status(ctx); err != nil {
		cancel()
		showError(state, "failed to reach device", err)
		return
	}
	state.log.WithField("url", state.cfg.Monitor.URL).Info("Connected")

	for _, btn := range state.modeBtns {
		btn.Enable()
	}

	state.trace.ResetShutdown()
	state.trace.Clear()

	readings := state.client.Poll(ctx, state.cfg.Monitor.PollInterval, state.log)
	forConverter := make(chan sample.Reading, 100)

	modeDone := make(chan struct{})
	traceDone := make(chan struct{})

	go func() {
		defer close(modeDone)
		defer close(forConverter)
		for r := range readings {
			followReading(state, r)
			forConverter <- r
		}
	}()

	samples := sample.NewConverter(500, state.log)(forConverter)
	go func() {
		defer close(traceDone)
		state.trace.ProcessSamples(samples)
	}()

	state.chain = &chain{cancel: cancel, modeDone: modeDone, traceDone: traceDone}
}

// bindTrace redraws the scope from trace updates, throttled to the frame rate.
func bindTrace(state *appState) {
	state.trace.OnUpdate(func(samples []sample.Sample, deviations []float64, episodes []trace.Episode) {
		state.updateMu.Lock()
		now := time.Now()
		skip := now.Sub(state.lastUpdate) < updateInterval
		if !skip {
			state.lastUpdate = now
		}
		state.updateMu.Unlock()
		if skip {
			return
		}

		fyne.Do(func() {
			state.scopeWidget.UpdateData(samples, episodes)
		})
	})
}

// followReading updates the mode buttons and status line from r. Only UI
// changes are scheduled on the main thread.
func followReading(state *appState, r sample.Reading) {
	text := r.Mode.String() + ": " + formatReading(r)
	fyne.Do(func() {
		state.statusLabel.SetText(text)
		if state.mode != r.Mode {
			state.mode = r.Mode
			updateModeButtons(state)
		}
	})
}

func handleModeSwitch(state *appState, m sample.Mode) {
	if state.client == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := state.client.Apply(ctx, devconf.ModeUpdate(m)); err != nil {
			fyne.Do(func() { showError(state, "failed to switch mode", err) })
		}
	}()
}

func updateModeButtons(state *appState) {
	for m, btn := range state.modeBtns {
		if m == state.mode {
			btn.Importance = widget.HighImportance
		} else {
			btn.Importance = widget.MediumImportance
		}
		btn.Refresh()
	}
}
