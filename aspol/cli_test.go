package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/itohio/aspol/pkg/clock"
	"github.com/itohio/aspol/pkg/config"
	"github.com/itohio/aspol/pkg/devconf"
	"github.com/itohio/aspol/pkg/diag"
	"github.com/itohio/aspol/pkg/eventlog"
	"github.com/itohio/aspol/pkg/sample"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setup writes a process config pointing at a fresh card directory.
func setup(t *testing.T) (configPath, card string) {
	t.Helper()
	dir := t.TempDir()
	card = filepath.Join(dir, "sd")
	require.NoError(t, os.Mkdir(card, 0755))

	cfg := config.Default()
	cfg.Storage.Root = card
	configPath = filepath.Join(dir, "aspol.yaml")
	require.NoError(t, cfg.Save(configPath))
	return configPath, card
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestConfigShow_FirstBoot(t *testing.T) {
	configPath, card := setup(t)

	out, _, err := execute(t, "-c", configPath, "config", "show")
	require.NoError(t, err)

	var v devconf.Values
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, devconf.DefaultDeviceName, v.DeviceName)
	assert.Empty(t, v.Password)

	data, err := os.ReadFile(filepath.Join(card, "config.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Aspol Tracker\nsulungresearch\nPressureTracker\nPRESSURE\n5\n20\n", string(data))

	out, _, err = execute(t, "-c", configPath, "config", "show", "--reveal")
	require.NoError(t, err)
	assert.Contains(t, out, devconf.DefaultPassword)
}

func TestConfigSet(t *testing.T) {
	configPath, card := setup(t)

	out, _, err := execute(t, "-c", configPath, "config", "set", "--mode", "flow", "--flow-pct", "15", "--name", "Pump 3")
	require.NoError(t, err)
	assert.Equal(t, "Pump 3: FLOW, pressure 5%, flow 15%\n", out)

	// Mode is kept when not given.
	_, _, err = execute(t, "-c", configPath, "config", "set", "--pressure-pct", "2.5")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(card, "config.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Aspol Tracker\nsulungresearch\nPump 3\nFLOW\n2.5\n15\n", string(data))

	_, _, err = execute(t, "-c", configPath, "config", "set", "--mode", "humidity")
	assert.Error(t, err)
}

func TestConfigSet_NoCard(t *testing.T) {
	configPath, card := setup(t)
	require.NoError(t, os.Remove(card))

	_, _, err := execute(t, "-c", configPath, "config", "set", "--name", "x")
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "new.yaml")

	out, _, err := execute(t, "-c", configPath, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, configPath)

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Sensor.Driver, cfg.Sensor.Driver)
}

func TestEvents(t *testing.T) {
	configPath, card := setup(t)

	_, stderr, err := execute(t, "-c", configPath, "events", "flow")
	require.NoError(t, err)
	assert.Contains(t, stderr, "no FLOW events logged")

	lines := "07/03/2024,14:05:09,54.687157,25.279652,12.34\n" +
		"07/03/2024,14:05:1" + "\n" +
		"07/03/2024,14:05:12,54.687157,25.279652,13.10\n"
	require.NoError(t, os.WriteFile(filepath.Join(card, "flow_log.txt"), []byte(lines), 0644))

	out, stderr, err := execute(t, "-c", configPath, "events", "FLOW")
	require.NoError(t, err)
	assert.Equal(t, "07/03/2024,14:05:09,54.687157,25.279652,12.34\n07/03/2024,14:05:12,54.687157,25.279652,13.10\n", out)
	assert.Contains(t, stderr, "1 malformed lines skipped")

	out, _, err = execute(t, "-c", configPath, "events", "flow", "--json", "-n", "1")
	require.NoError(t, err)
	var records []eventlog.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, 13.10, records[0].Value)

	_, _, err = execute(t, "-c", configPath, "events")
	assert.Error(t, err)
}

func TestEventOptions(t *testing.T) {
	cfg := config.Default().Events
	cfg.FlowFile = "/flow.csv"

	opts := eventOptions(cfg)
	assert.Equal(t, "/flow.csv", opts.FileName(sample.ModeFlow))
	assert.Equal(t, eventlog.PressureFile, opts.FileName(sample.ModePressure))
	assert.Equal(t, eventlog.DefaultFlowInterval, opts.Policies[sample.ModeFlow].MinInterval)
	assert.Zero(t, opts.Policies[sample.ModePressure].MinInterval)
}

func TestNewLogger(t *testing.T) {
	ring := diag.New(&clock.Manual{})

	log, err := newLogger(config.LogConfig{Level: "debug", Format: "json", DiagLevel: "warning"}, ring, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	log.Info("not mirrored")
	log.Warn("SD card initialization failed")
	got := ring.Snapshot()
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0].Text, "WARNING: "))

	_, err = newLogger(config.LogConfig{Level: "loud"}, nil, io.Discard)
	assert.Error(t, err)
}
