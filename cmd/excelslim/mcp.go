package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/excelslim/internal/mcptools"
	"github.com/dusk-indust/excelslim/internal/stage"
)

func newMCPCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// stdout carries the protocol; logs must go to stderr.
			logger, err := g.newLogger(os.Stderr)
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
			server := mcptools.NewMCPServer(mcptools.NewSlimService(ctrl, stage.NewDetector(cfg, logger), logger))
			return mcptools.RunMCPServerStdio(ctx, server)
		},
	}
}
