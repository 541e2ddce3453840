package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/excelslim/internal/orchestrator"
	"github.com/dusk-indust/excelslim/internal/report"
)

type runFlags struct {
	clean          bool
	image          bool
	precision      bool
	aggressive     bool
	xmlCleanup     bool
	forceCustomXML bool
	reportPath     string
	quiet          bool
}

func (f runFlags) pipelineConfig() orchestrator.PipelineConfig {
	return orchestrator.PipelineConfig{
		Clean:     f.clean,
		Image:     f.image,
		Precision: f.precision,
		PrecisionOptions: orchestrator.PrecisionOptions{
			Aggressive:            f.aggressive,
			XMLCleanup:            f.xmlCleanup,
			ForceCustomXMLRemoval: f.forceCustomXML,
		},
	}
}

func newRunCmd(g *globals) *cobra.Command {
	defaults := orchestrator.DefaultPipelineConfig()
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Slim one workbook",
		Long: "Run the selected stages on FILE in the order clean, image, precision.\n" +
			"The result is written next to the input; the input is never modified.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := g.newLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ctrl := newController(cfg, logger, nil)
			display := &terminalDisplay{out: cmd.OutOrStdout(), status: cmd.ErrOrStderr(), quiet: flags.quiet}

			out, runErr := ctrl.Run(ctx, args[0], flags.pipelineConfig(), display)
			if out == nil {
				return runErr
			}

			exp := report.Build(report.Run{ID: out.RunID, Report: out.Report, Log: out.Log, Err: runErr}, time.Now())
			if flags.reportPath != "" {
				if err := report.WriteJSON(flags.reportPath, exp); err != nil {
					return err
				}
			}
			switch {
			case !flags.quiet:
				fmt.Fprint(cmd.OutOrStdout(), report.Summary(exp))
			case runErr == nil:
				fmt.Fprintln(cmd.OutOrStdout(), out.FinalPath)
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&flags.clean, "clean", defaults.Clean, "remove unused defined names")
	cmd.Flags().BoolVar(&flags.image, "image", defaults.Image, "recompress embedded images")
	cmd.Flags().BoolVar(&flags.precision, "precision", defaults.Precision, "run the precision slimmer")
	cmd.Flags().BoolVar(&flags.aggressive, "aggressive", false, "precision: aggressive mode")
	cmd.Flags().BoolVar(&flags.xmlCleanup, "xml-cleanup", false, "precision: clean up worksheet XML")
	cmd.Flags().BoolVar(&flags.forceCustomXML, "force-custom-xml", false, "precision: force removal of custom XML parts")
	cmd.Flags().StringVar(&flags.reportPath, "report", "", "write a JSON run report to this path")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "print only the final path")

	return cmd
}

// terminalDisplay prints log lines to out and status updates to status.
type terminalDisplay struct {
	out    io.Writer
	status io.Writer
	quiet  bool
}

func (d *terminalDisplay) Log(text string) {
	if d.quiet {
		return
	}
	fmt.Fprintln(d.out, text)
}

func (d *terminalDisplay) Status(label string, pct float64) {
	if d.quiet {
		return
	}
	fmt.Fprintln(d.status, orchestrator.FormatProgress(orchestrator.Status(label, pct)))
}
