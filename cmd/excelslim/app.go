package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dusk-indust/excelslim/internal/config"
	"github.com/dusk-indust/excelslim/internal/controller"
	"github.com/dusk-indust/excelslim/internal/orchestrator"
	"github.com/dusk-indust/excelslim/internal/stage"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	logFormat  string
}

// parseLevel maps a flag value onto a slog level.
func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// newLogger builds the process logger. Logs go to w so stdout stays free for
// command output.
func (g *globals) newLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(g.logLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(g.logFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", g.logFormat)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// loadConfig reads --config when given, otherwise excelslim.yml from the
// working directory, falling back to defaults.
func (g *globals) loadConfig() (*config.Config, error) {
	if g.configPath != "" {
		return config.LoadFile(g.configPath)
	}
	return config.Load(".")
}

// newController wires configured tool stages into a pipeline behind a
// controller. reg may be nil.
func newController(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) *controller.Controller {
	pipeline := orchestrator.NewPipeline(stage.NewSet(cfg), logger)

	var metrics *controller.Metrics
	if reg != nil {
		metrics = controller.NewMetrics(reg)
	}
	return controller.New(pipeline, logger, metrics)
}
