package main

import (
	"encoding/json"
	"fmt"

	"github.com/itohio/aspol/pkg/eventlog"
	"github.com/itohio/aspol/pkg/sample"
	"github.com/itohio/aspol/pkg/storage"
	"github.com/spf13/cobra"
)

func eventsCmd(g *globals) *cobra.Command {
	var (
		asJSON bool
		last   int
	)
	cmd := &cobra.Command{
		Use:     "events <pressure|flow>",
		Short:   "Print the anomaly events logged on the card",
		Example: `aspol events flow --last 20`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := sample.ParseMode(args[0])
			if err != nil {
				return err
			}

			vol := storage.NewDir(g.cfg.Storage.Root)
			name := eventOptions(g.cfg.Events).FileName(mode)
			if vol.Available() && !vol.Exists(name) {
				fmt.Fprintf(cmd.ErrOrStderr(), "no %s events logged\n", mode)
				return nil
			}
			records, skipped, err := eventlog.ReadRecords(vol, name)
			if err != nil {
				return err
			}
			if last > 0 && len(records) > last {
				records = records[len(records)-last:]
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if records == nil {
					records = []eventlog.Record{}
				}
				return json.NewEncoder(out).Encode(records)
			}
			for _, r := range records {
				fmt.Fprint(out, r.Line())
			}
			if skipped > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d malformed lines skipped\n", skipped)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	cmd.Flags().IntVarP(&last, "last", "n", 0, "print only the newest n records")
	return cmd
}
