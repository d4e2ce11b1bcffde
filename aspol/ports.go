package main

import (
	"fmt"

	"github.com/itohio/aspol/pkg/sensor"
	"github.com/spf13/cobra"
)

func portsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports for the GPS receiver and the sensor bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := sensor.Ports()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ports) == 0 {
				fmt.Fprintln(out, "no serial ports found")
				return nil
			}
			for _, p := range ports {
				if p.Description != "" && p.Description != p.Name {
					fmt.Fprintf(out, "%s\t%s\n", p.Name, p.Description)
				} else {
					fmt.Fprintln(out, p.Name)
				}
			}
			return nil
		},
	}
}
