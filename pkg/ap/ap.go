// Package ap restarts the wireless access point when the device
// configuration changes.
package ap

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/itohio/aspol/pkg/config"
	"github.com/itohio/aspol/pkg/devconf"
	"github.com/sirupsen/logrus"
)

// MinPassphrase is the shortest WPA2 passphrase. Shorter passwords bring
// the access point up open.
const MinPassphrase = 8

const reloadTimeout = 10 * time.Second

// Manager brings the access point up with new credentials.
type Manager interface {
	Restart(v devconf.Values) error
}

// New creates the manager selected by cfg.Driver.
func New(cfg config.AccessPointConfig, log logrus.FieldLogger) (Manager, error) {
	switch cfg.Driver {
	case "", "none":
		return Noop{}, nil
	case "hostapd":
		return NewHostapd(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown access point driver %q", cfg.Driver)
	}
}

// Noop ignores restarts, for hosts that do not run the access point.
type Noop struct{}

func (Noop) Restart(devconf.Values) error { return nil }

// Hostapd writes a hostapd configuration file and optionally runs a reload
// command after every change.
type Hostapd struct {
	cfg config.AccessPointConfig
	log logrus.FieldLogger
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewHostapd creates a hostapd manager.
func NewHostapd(cfg config.AccessPointConfig, log logrus.FieldLogger) *Hostapd {
	return &Hostapd{cfg: cfg, log: log, run: runCommand}
}

// Restart rewrites the configuration and reloads the daemon.
func (h *Hostapd) Restart(v devconf.Values) error {
	if len(v.Password) < MinPassphrase {
		h.log.WithField("ssid", v.SSID).Warn("Password too short, access point is open")
	}

	if err := writeAtomic(h.cfg.ConfigPath, h.Render(v)); err != nil {
		return fmt.Errorf("failed to write hostapd config: %w", err)
	}

	if len(h.cfg.ReloadCommand) == 0 {
		h.log.WithField("ssid", v.SSID).Info("Access point config written")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	out, err := h.run(ctx, h.cfg.ReloadCommand[0], h.cfg.ReloadCommand[1:]...)
	if err != nil {
		return fmt.Errorf("failed to reload access point: %w: %s", err, bytes.TrimSpace(out))
	}
	h.log.WithField("ssid", v.SSID).Info("Access point restarted")
	return nil
}

// Render returns the hostapd configuration for v.
func (h *Hostapd) Render(v devconf.Values) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "interface=%s\n", h.cfg.Interface)
	b.WriteString("driver=nl80211\n")
	fmt.Fprintf(&b, "ssid=%s\n", v.SSID)
	b.WriteString("hw_mode=g\n")
	fmt.Fprintf(&b, "channel=%d\n", h.cfg.Channel)
	b.WriteString("auth_algs=1\n")
	if len(v.Password) >= MinPassphrase {
		b.WriteString("wpa=2\n")
		fmt.Fprintf(&b, "wpa_passphrase=%s\n", v.Password)
		b.WriteString("wpa_key_mgmt=WPA-PSK\n")
		b.WriteString("rsn_pairwise=CCMP\n")
	}
	return b.Bytes()
}

// Watch restarts m on every applied configuration. Failures are logged.
func Watch(store *devconf.Store, m Manager, log logrus.FieldLogger) {
	store.OnApply(func(v devconf.Values) {
		if err := m.Restart(v); err != nil {
			log.WithError(err).Warn("Access point restart failed")
		}
	})
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".hostapd-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
