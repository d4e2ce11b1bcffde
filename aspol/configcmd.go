package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/itohio/aspol/pkg/devconf"
	"github.com/itohio/aspol/pkg/sample"
	"github.com/itohio/aspol/pkg/storage"
	"github.com/spf13/cobra"
)

func configCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change configuration",
	}
	cmd.AddCommand(configShowCmd(g), configSetCmd(g), configInitCmd(g))
	return cmd
}

// openStore loads the device configuration from the storage volume.
func openStore(g *globals, out io.Writer) (*devconf.Store, error) {
	log, err := newLogger(g.cfg.Log, nil, out)
	if err != nil {
		return nil, err
	}
	store := devconf.NewStore(storage.NewDir(g.cfg.Storage.Root), log)
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

func configShowCmd(g *globals) *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the device configuration stored on the card",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			v := store.Get()
			if !reveal {
				v.Password = ""
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "include the access point password")
	return cmd
}

func configSetCmd(g *globals) *cobra.Command {
	var (
		update devconf.Update
		mode   string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change the device configuration stored on the card",
		Long: `Change the device configuration stored on the card. Only the given flags
are changed; the rest keep their stored values.`,
		Example: `aspol config set --mode flow --flow-pct 15`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			if mode != "" {
				m, err := sample.ParseMode(mode)
				if err != nil {
					return err
				}
				update.Mode = &m
			}

			v, err := store.Apply(update)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, pressure %g%%, flow %g%%\n", v.DeviceName, v.Mode, v.PressurePct, v.FlowPct)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&update.SSID, "ssid", "", "access point name")
	f.StringVar(&update.Password, "password", "", "access point password")
	f.StringVar(&update.DeviceName, "name", "", "device name")
	f.StringVar(&mode, "mode", "", "sensor mode (pressure or flow)")
	f.Float64Var(&update.PressurePct, "pressure-pct", 0, "pressure anomaly threshold in percent")
	f.Float64Var(&update.FlowPct, "flow-pct", 0, "flow anomaly threshold in percent")
	return cmd
}

func configInitCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the effective process configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.cfg.Save(g.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", g.configPath)
			return nil
		},
	}
}
