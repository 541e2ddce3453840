package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/excelslim/internal/stage"
)

func newDoctorCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that every configured stage tool is installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := g.newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			results := stage.NewDetector(cfg, logger).Detect(cmd.Context())

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STAGE\tCOMMAND\tSTATUS")
			missing := 0
			for _, a := range results {
				status := a.Path
				if !a.OK() {
					status = "missing: " + a.Error
					missing++
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Stage, a.Command, status)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if missing > 0 {
				return fmt.Errorf("%d stage tool(s) unavailable", missing)
			}
			return nil
		},
	}
}
