// Package controller is the boundary between presentation adapters and the
// pipeline. It validates a run request, executes the pipeline on a worker
// goroutine and relays progress events to a Display on a second goroutine,
// so the display never shares state with the pipeline.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/excelslim/internal/orchestrator"
)

var (
	// ErrInvalidInput is returned when the input path is missing or not a file.
	ErrInvalidInput = errors.New("input file not found")

	// ErrUnsupportedExtension is returned for anything but .xlsx and .xlsm.
	ErrUnsupportedExtension = errors.New("supported formats are .xlsx and .xlsm")

	// ErrRunInProgress is returned when a run is requested while another is active.
	ErrRunInProgress = errors.New("a run is already in progress")
)

// SupportedExtensions lists the accepted workbook extensions.
var SupportedExtensions = []string{".xlsx", ".xlsm"}

// Executor runs the pipeline. *orchestrator.Pipeline satisfies it.
type Executor interface {
	Execute(ctx context.Context, inputPath string, cfg orchestrator.PipelineConfig, sink orchestrator.ProgressSink) (*orchestrator.Report, error)
}

var _ Executor = (*orchestrator.Pipeline)(nil)

// Display is the presentation surface updated by a run. Its methods are
// only ever called from the controller's relay goroutine, one at a time.
type Display interface {
	Log(text string)
	Status(label string, percent float64)
}

// NopDisplay discards everything.
type NopDisplay struct{}

func (NopDisplay) Log(string)             {}
func (NopDisplay) Status(string, float64) {}

// Outcome is the terminal result of a run.
type Outcome struct {
	RunID     string
	InputPath string
	FinalPath string
	Report    *orchestrator.Report
	Log       []string
	StartedAt time.Time
	Duration  time.Duration
}

// Controller owns the worker context of a pipeline. At most one run is active
// per Controller.
type Controller struct {
	exec    Executor
	logger  *slog.Logger
	metrics *Metrics

	busy atomic.Bool

	mu   sync.Mutex
	last *Outcome
}

// New creates a Controller. metrics may be nil.
func New(exec Executor, logger *slog.Logger, metrics *Metrics) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{exec: exec, logger: logger, metrics: metrics}
}

// Validate checks the preconditions of a run: the input exists, is a regular
// .xlsx/.xlsm file, and at least one stage is selected.
func Validate(inputPath string, cfg orchestrator.PipelineConfig) error {
	if strings.TrimSpace(inputPath) == "" {
		return fmt.Errorf("controller: %w: no file selected", ErrInvalidInput)
	}
	info, err := os.Stat(inputPath)
	if err != nil {
		return fmt.Errorf("controller: %w: %s", ErrInvalidInput, inputPath)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("controller: %w: %s is not a regular file", ErrInvalidInput, inputPath)
	}
	if !supported(inputPath) {
		return fmt.Errorf("controller: %w: %s", ErrUnsupportedExtension, filepath.Base(inputPath))
	}
	if cfg.Empty() {
		return fmt.Errorf("controller: %w", orchestrator.ErrNoStagesSelected)
	}
	return nil
}

func supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Busy reports whether a run is active.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Last returns the outcome of the most recent finished run, or nil.
func (c *Controller) Last() *Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Run validates the request, executes the pipeline and blocks until both the
// pipeline and the event relay have finished. On failure the returned
// Outcome still carries the accumulated log.
func (c *Controller) Run(ctx context.Context, inputPath string, cfg orchestrator.PipelineConfig, display Display) (*Outcome, error) {
	if display == nil {
		display = NopDisplay{}
	}
	if err := Validate(inputPath, cfg); err != nil {
		c.metrics.observeRun(outcomeRejected, nil)
		return nil, err
	}
	if !c.busy.CompareAndSwap(false, true) {
		c.metrics.observeRun(outcomeRejected, nil)
		return nil, ErrRunInProgress
	}
	defer c.busy.Store(false)

	out := &Outcome{
		RunID:     uuid.NewString(),
		InputPath: inputPath,
		StartedAt: time.Now(),
	}
	logger := c.logger.With("run_id", out.RunID, "input", inputPath)
	logger.Info("run started", "stages", fmt.Sprint(cfg.Stages()))

	reporter := orchestrator.NewProgressReporter()

	var g errgroup.Group
	var runErr error

	g.Go(func() error {
		defer reporter.Close()
		out.Report, runErr = c.exec.Execute(ctx, inputPath, cfg, reporter)
		return nil
	})

	g.Go(func() error {
		for ev := range reporter.Subscribe() {
			switch ev.Kind {
			case orchestrator.EventLog:
				out.Log = append(out.Log, ev.Text)
				display.Log(ev.Text)
			case orchestrator.EventStatus:
				display.Status(ev.Label, ev.Percent)
			}
		}
		return nil
	})

	_ = g.Wait()
	out.Duration = time.Since(out.StartedAt)

	c.mu.Lock()
	c.last = out
	c.mu.Unlock()

	if runErr != nil {
		logger.Error("run failed", "error", runErr, "duration", out.Duration)
		c.metrics.observeRun(outcomeFor(runErr), out.Report)
		return out, runErr
	}

	if out.Report != nil {
		out.FinalPath = out.Report.FinalPath
	}
	logger.Info("run complete", "final", out.FinalPath, "duration", out.Duration)
	c.metrics.observeRun(outcomeSucceeded, out.Report)
	return out, nil
}

func outcomeFor(err error) string {
	var failed *orchestrator.StageFailedError
	switch {
	case errors.As(err, &failed):
		return outcomeStageFailed
	case errors.Is(err, orchestrator.ErrCanceled):
		return outcomeCanceled
	case errors.Is(err, orchestrator.ErrNoStagesSelected), errors.Is(err, orchestrator.ErrStageNotBound):
		return outcomeRejected
	default:
		return outcomeFault
	}
}
