package mcptools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/excelslim/internal/controller"
	"github.com/dusk-indust/excelslim/internal/naming"
	"github.com/dusk-indust/excelslim/internal/orchestrator"
	"github.com/dusk-indust/excelslim/internal/report"
	"github.com/dusk-indust/excelslim/internal/stage"
)

// Runner executes a pipeline run. *controller.Controller satisfies it.
type Runner interface {
	Run(ctx context.Context, inputPath string, cfg orchestrator.PipelineConfig, display controller.Display) (*controller.Outcome, error)
}

var _ Runner = (*controller.Controller)(nil)

// Prober reports which stage tools are installed. *stage.Detector satisfies it.
type Prober interface {
	Detect(ctx context.Context) []stage.Availability
}

var _ Prober = (*stage.Detector)(nil)

// SlimService handles MCP tool calls. It wraps a Runner so tool calls share
// the same single-run guard as every other adapter.
type SlimService struct {
	runner Runner
	prober Prober
	logger *slog.Logger
}

// NewSlimService creates a SlimService backed by runner. prober may be nil,
// in which case list_stages omits tool availability.
func NewSlimService(runner Runner, prober Prober, logger *slog.Logger) *SlimService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlimService{runner: runner, prober: prober, logger: logger}
}

// PipelineConfigFrom maps tool input onto a pipeline configuration.
func PipelineConfigFrom(in SlimWorkbookInput) orchestrator.PipelineConfig {
	cfg := orchestrator.DefaultPipelineConfig()
	if in.Clean != nil {
		cfg.Clean = *in.Clean
	}
	if in.Image != nil {
		cfg.Image = *in.Image
	}
	if in.Precision != nil {
		cfg.Precision = *in.Precision
	}
	cfg.PrecisionOptions = orchestrator.PrecisionOptions{
		Aggressive:            in.Aggressive,
		XMLCleanup:            in.XMLCleanup,
		ForceCustomXMLRemoval: in.ForceCustomXML,
	}
	return cfg
}

// SlimWorkbook runs the pipeline on one workbook. Request errors (bad path,
// no stages, busy) are returned as tool errors; a failed run is reported in
// the output with status "failed".
func (s *SlimService) SlimWorkbook(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SlimWorkbookInput,
) (*mcp.CallToolResult, SlimWorkbookOutput, error) {
	cfg := PipelineConfigFrom(input)

	out, err := s.runner.Run(ctx, input.Input, cfg, controller.NopDisplay{})
	if out == nil {
		return nil, SlimWorkbookOutput{}, fmt.Errorf("slim_workbook: %w", err)
	}

	exp := report.Build(report.Run{ID: out.RunID, Report: out.Report, Log: out.Log, Err: err}, time.Now())
	result := SlimWorkbookOutput{
		RunID:        out.RunID,
		Status:       "completed",
		FinalPath:    out.FinalPath,
		SavedPercent: exp.SavedPct,
		Stages:       exp.Stages,
		Warnings:     exp.Warnings,
		Log:          out.Log,
	}
	if result.Log == nil {
		result.Log = []string{}
	}
	if err != nil {
		result.Status = "failed"
		result.Message = err.Error()
		s.logger.Warn("slim_workbook failed", "run_id", out.RunID, "error", err)
		if errors.Is(err, orchestrator.ErrCanceled) {
			result.Status = "canceled"
		}
	}
	return nil, result, nil
}

// ListStages reports the stages in execution order.
func (s *SlimService) ListStages(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListStagesInput,
) (*mcp.CallToolResult, ListStagesOutput, error) {
	defaults := orchestrator.DefaultPipelineConfig()
	suffixes := map[orchestrator.StageKind]string{
		orchestrator.StageClean:     stage.CleanSuffix,
		orchestrator.StageImage:     naming.SlimSuffix,
		orchestrator.StagePrecision: stage.PrecisionSuffix,
	}

	availability := map[orchestrator.StageKind]stage.Availability{}
	if s.prober != nil {
		for _, a := range s.prober.Detect(ctx) {
			availability[a.Stage] = a
		}
	}

	var out ListStagesOutput
	for _, kind := range orchestrator.AllStages {
		info := StageInfo{
			Name:      kind.String(),
			Label:     kind.Label(),
			Default:   defaults.Enabled(kind),
			Suffix:    suffixes[kind],
			HasBackup: kind != orchestrator.StageImage,
		}
		if a, ok := availability[kind]; ok {
			info.Tool = a.Command
			info.Available = boolPtr(a.OK())
			info.ToolError = a.Error
		}
		out.Stages = append(out.Stages, info)
	}
	return nil, out, nil
}

func boolPtr(b bool) *bool { return &b }
