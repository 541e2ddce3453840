// Package httpapi serves the pipeline over HTTP: a run endpoint that streams
// progress as Server-Sent Events, Prometheus metrics and the MCP tools over
// the streamable HTTP transport.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dusk-indust/excelslim/internal/controller"
	"github.com/dusk-indust/excelslim/internal/orchestrator"
	"github.com/dusk-indust/excelslim/internal/report"
)

// Runner executes a pipeline run. *controller.Controller satisfies it.
type Runner interface {
	Run(ctx context.Context, inputPath string, cfg orchestrator.PipelineConfig, display controller.Display) (*controller.Outcome, error)
	Busy() bool
}

var _ Runner = (*controller.Controller)(nil)

// RunRequest is the JSON body of POST /runs. Unset stage flags fall back to
// the default selection.
type RunRequest struct {
	Input          string `json:"input"`
	Clean          *bool  `json:"clean,omitempty"`
	Image          *bool  `json:"image,omitempty"`
	Precision      *bool  `json:"precision,omitempty"`
	Aggressive     bool   `json:"aggressive,omitempty"`
	XMLCleanup     bool   `json:"xmlCleanup,omitempty"`
	ForceCustomXML bool   `json:"forceCustomXml,omitempty"`
}

// PipelineConfig maps the request onto a pipeline configuration.
func (r RunRequest) PipelineConfig() orchestrator.PipelineConfig {
	cfg := orchestrator.DefaultPipelineConfig()
	if r.Clean != nil {
		cfg.Clean = *r.Clean
	}
	if r.Image != nil {
		cfg.Image = *r.Image
	}
	if r.Precision != nil {
		cfg.Precision = *r.Precision
	}
	cfg.PrecisionOptions = orchestrator.PrecisionOptions{
		Aggressive:            r.Aggressive,
		XMLCleanup:            r.XMLCleanup,
		ForceCustomXMLRemoval: r.ForceCustomXML,
	}
	return cfg
}

// Options configures optional routes.
type Options struct {
	// Gatherer backs GET /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	// MCP is mounted at /mcp when non-nil.
	MCP    http.Handler
	Logger *slog.Logger
}

// Server routes HTTP requests to a Runner.
type Server struct {
	runner Runner
	opts   Options
	logger *slog.Logger
}

// NewServer creates a Server.
func NewServer(runner Runner, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{runner: runner, opts: opts, logger: logger}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /runs", s.handleRun)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.opts.MCP != nil {
		mux.Handle("/mcp", s.opts.MCP)
	}
	return mux
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "busy": s.runner.Busy()})
}

// handleRun validates the request, then streams the run. Errors detected
// before the first event are plain JSON responses with a 4xx status.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	cfg := req.PipelineConfig()
	if err := controller.Validate(req.Input, cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	display := &streamDisplay{sse: NewSSEWriter(w), logger: s.logger}
	// A client that disconnects only stops receiving frames; the run itself
	// finishes so no workbook is left half-processed.
	out, err := s.runner.Run(context.WithoutCancel(r.Context()), req.Input, cfg, display)
	if out == nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, controller.ErrRunInProgress) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}

	display.start()
	exp := report.Build(report.Run{ID: out.RunID, Report: out.Report, Log: out.Log, Err: err}, time.Now())
	frame := Frame{Result: exp}
	if err != nil {
		frame.Error = err.Error()
	}
	if werr := display.sse.WriteFrame(frame); werr != nil {
		s.logger.Warn("run stream closed before result", "run_id", out.RunID, "error", werr)
	}
}

// streamDisplay forwards display updates as progress frames. Headers are
// written with the first frame.
type streamDisplay struct {
	sse     *SSEWriter
	logger  *slog.Logger
	started bool
	broken  bool
}

func (d *streamDisplay) start() {
	if !d.started {
		d.sse.Init()
		d.started = true
	}
}

func (d *streamDisplay) write(ev orchestrator.ProgressEvent) {
	if d.broken {
		return
	}
	d.start()
	if err := d.sse.WriteFrame(Frame{Progress: &ev}); err != nil {
		d.broken = true
		d.logger.Debug("progress stream write failed", "error", err)
	}
}

func (d *streamDisplay) Log(text string) {
	d.write(orchestrator.LogLine(text))
}

func (d *streamDisplay) Status(label string, pct float64) {
	d.write(orchestrator.Status(label, pct))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
