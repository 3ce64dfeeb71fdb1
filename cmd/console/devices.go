package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dudk/console/engine/portaudio"
)

func (a *app) devicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Show the list of available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := portaudio.Devices()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tHOST API\tIN\tOUT\tRATE")
			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.0f\n", d.Name, d.HostAPI, d.Inputs, d.Outputs, d.SampleRate)
			}
			return w.Flush()
		},
	}
}
