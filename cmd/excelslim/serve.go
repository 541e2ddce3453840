package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/dusk-indust/excelslim/internal/httpapi"
	"github.com/dusk-indust/excelslim/internal/mcptools"
	"github.com/dusk-indust/excelslim/internal/stage"
)

func newServeCmd(g *globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API, metrics and MCP over HTTP",
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

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			ctrl := newController(cfg, logger, reg)
			mcpServer := mcptools.NewMCPServer(mcptools.NewSlimService(ctrl, stage.NewDetector(cfg, logger), logger))

			srv := httpapi.NewServer(ctrl, httpapi.Options{
				Gatherer: reg,
				MCP:      mcptools.NewHTTPHandler(mcpServer),
				Logger:   logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("listening", "addr", addr, "version", version)
			return httpapi.ListenAndServe(ctx, addr, srv.Handler())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
