package main

import (
	"io"

	"github.com/itohio/aspol/pkg/config"
	"github.com/itohio/aspol/pkg/diag"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// globals are shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:   "aspol",
		Short: "Field anomaly detector for pressure and flow lines",
		Long: `aspol samples a pressure sensor or a pulse flow meter, flags readings that
deviate from their rolling average and logs geotagged anomaly events.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if g.logLevel != "" {
				cfg.Log.Level = g.logLevel
			}
			g.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "aspol.yaml", "configuration file path")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(
		runCmd(g),
		configCmd(g),
		eventsCmd(g),
		portsCmd(g),
	)
	return cmd
}

// newLogger builds the process logger from cfg. When ring is non-nil every
// entry at DiagLevel or above is mirrored into it.
func newLogger(cfg config.LogConfig, ring *diag.Ring, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(out)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if ring != nil {
		diagLevel, err := logrus.ParseLevel(cfg.DiagLevel)
		if err != nil {
			return nil, err
		}
		log.AddHook(diag.NewHook(ring, diagLevel))
	}
	return log, nil
}
