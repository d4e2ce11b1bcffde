package main

import (
	"context"
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/aspol/pkg/devconf"
	"github.com/itohio/aspol/pkg/sample"
	"github.com/itohio/aspol/pkg/trace"
)

const requestTimeout = 5 * time.Second

func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createDeviceTab(state),
		createMonitorTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 450))
	d.Show()
}

// createDeviceTab edits the configuration stored on the device. It is
// filled in asynchronously once the device answers.
func createDeviceTab(state *appState) *container.TabItem {
	ssid := widget.NewEntry()
	password := widget.NewPasswordEntry()
	password.SetPlaceHolder("Leave empty to keep")
	name := widget.NewEntry()
	mode := widget.NewSelect(modeNames(), nil)
	pressure := widget.NewEntry()
	flow := widget.NewEntry()

	for _, e := range []*widget.Entry{ssid, password, name} {
		e.Validator = maxLength(devconf.TextLimit)
	}

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "SSID", Widget: ssid},
			{Text: "Password", Widget: password},
			{Text: "Device Name", Widget: name},
			{Text: "Sensor Mode", Widget: mode},
			{Text: "Pressure Threshold (%)", Widget: pressure},
			{Text: "Flow Threshold (%)", Widget: flow},
		},
		OnSubmit: func() {
			update := devconf.Update{
				SSID:        ssid.Text,
				Password:    password.Text,
				DeviceName:  name.Text,
				PressurePct: parsePct(pressure.Text),
				FlowPct:     parsePct(flow.Text),
			}
			if m, err := sample.ParseMode(mode.Selected); err == nil {
				update.Mode = &m
			}
			applyDeviceConfig(state, update)
		},
	}

	if state.client == nil {
		form.Disable()
		return container.NewTabItem("Device", form)
	}

	client := state.client
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		v, err := client.Config(ctx)
		fyne.Do(func() {
			if err != nil {
				showError(state, "failed to read device config", err)
				form.Disable()
				return
			}
			ssid.SetText(v.SSID)
			name.SetText(v.DeviceName)
			mode.SetSelected(v.Mode.String())
			pressure.SetText(fmt.Sprint(v.PressurePct))
			flow.SetText(fmt.Sprint(v.FlowPct))
		})
	}()

	return container.NewTabItem("Device", form)
}

func applyDeviceConfig(state *appState, update devconf.Update) {
	client := state.client
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		v, err := client.Apply(ctx, update)
		fyne.Do(func() {
			if err != nil {
				showError(state, "failed to apply device config", err)
				return
			}
			state.log.WithField("device", v.DeviceName).Info("Device config applied")
		})
	}()
}

// createMonitorTab edits the local monitor settings.
func createMonitorTab(state *appState) *container.TabItem {
	url := widget.NewEntry()
	url.SetText(state.cfg.Monitor.URL)

	poll := widget.NewEntry()
	poll.SetText(state.cfg.Monitor.PollInterval.String())

	window := widget.NewEntry()
	window.SetText(state.cfg.Monitor.Window.String())

	minEpisode := widget.NewEntry()
	minEpisode.SetText(state.cfg.Monitor.MinEpisode.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Device URL", Widget: url},
			{Text: "Poll Interval", Widget: poll},
			{Text: "Window", Widget: window},
			{Text: "Min Episode", Widget: minEpisode},
		},
		OnSubmit: func() {
			state.cfg.Monitor.URL = url.Text
			if d, err := time.ParseDuration(poll.Text); err == nil && d > 0 {
				state.cfg.Monitor.PollInterval = d
			}
			if d, err := time.ParseDuration(window.Text); err == nil && d > 0 {
				state.cfg.Monitor.Window = d
			}
			if d, err := time.ParseDuration(minEpisode.Text); err == nil && d >= 0 {
				state.cfg.Monitor.MinEpisode = d
			}
			if err := state.cfg.Save(state.configPath); err != nil {
				showError(state, "failed to save config", err)
				return
			}

			// Every setting here takes effect on a fresh chain.
			wasConnected := state.chain != nil
			if wasConnected {
				handleConnect(state)
			}
			state.trace = trace.New(state.cfg.Monitor)
			bindTrace(state)
			if wasConnected {
				handleConnect(state)
			}
		},
	}

	return container.NewTabItem("Monitor", form)
}

func showEventsDialog(state *appState) {
	if state.client == nil {
		dialog.ShowInformation("Events", "Connect to a device first", state.window)
		return
	}

	list := widget.NewLabel("Loading...")
	d := dialog.NewCustom(state.mode.String()+" events", "Close", container.NewVScroll(list), state.window)
	d.Resize(fyne.NewSize(600, 450))
	d.Show()

	client, mode := state.client, state.mode
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		records, err := client.Events(ctx, mode)
		fyne.Do(func() {
			if err != nil {
				list.SetText(err.Error())
				return
			}
			list.SetText(formatEvents(records, mode))
		})
	}()
}

func modeNames() []string {
	names := make([]string, len(sample.Modes))
	for i, m := range sample.Modes {
		names[i] = m.String()
	}
	return names
}

func maxLength(n int) fyne.StringValidator {
	return func(s string) error {
		if len(s) > n {
			return fmt.Errorf("at most %d characters", n)
		}
		return nil
	}
}
