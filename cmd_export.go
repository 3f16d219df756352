package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	run := &runOpts{}
	parse := &parseOpts{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run a snapshot job and write the result as YAML files",
		Long: `Runs a snapshot job to completion, downloads the snapshot and writes
it under the output directory. Equivalent to run followed by parse.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, location, err := a.runSnapshot(cmd.Context(), cmd, run)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Snapshot location: %s\n", location)

			data, err := a.fetchSnapshot(cmd.Context(), location)
			if err != nil {
				return err
			}
			_, err = a.parseSnapshot(cmd, parse, data)
			return err
		},
	}
	run.bind(cmd)
	parse.bind(cmd)
	return cmd
}
