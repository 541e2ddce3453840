package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// Pipeline runs the selected stages against one input workbook. A Pipeline
// holds no per-run state and may be reused; each Execute call owns its run
// state exclusively. Concurrent Execute calls must not share an input.
type Pipeline struct {
	stages StageSet
	logger *slog.Logger

	// remove and stat are swapped in tests to simulate filesystem faults.
	remove func(string) error
	stat   func(string) (os.FileInfo, error)
}

// NewPipeline creates a Pipeline bound to the given stage implementations.
func NewPipeline(stages StageSet, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		stages: stages,
		logger: logger,
		remove: os.Remove,
		stat:   os.Stat,
	}
}

// runState is the mutable bookkeeping of a single Execute call.
type runState struct {
	input         string
	current       string
	intermediates []string
	auxLogs       []string
	lastPercent   float64
	report        *Report
}

func (rs *runState) recordIntermediate(path string) {
	if path == rs.input {
		return
	}
	for _, p := range rs.intermediates {
		if p == path {
			return
		}
	}
	rs.intermediates = append(rs.intermediates, path)
}

// Execute runs every selected stage in clean → image → precision order and
// returns a report whose FinalPath is the surviving artifact.
//
// Intermediates and auxiliary logs are deleted only after all stages succeed.
// When a stage fails the run aborts with a *StageFailedError and everything
// produced so far stays on disk; the partial report is returned alongside the
// error. Cancellation of ctx is honored between stages only.
func (p *Pipeline) Execute(ctx context.Context, inputPath string, cfg PipelineConfig, sink ProgressSink) (report *Report, err error) {
	if sink == nil {
		sink = discardSink{}
	}

	kinds := cfg.Stages()
	if len(kinds) == 0 {
		return nil, ErrNoStagesSelected
	}
	for _, k := range kinds {
		if p.stages[k] == nil {
			return nil, fmt.Errorf("orchestrator: %w: %s", ErrStageNotBound, k)
		}
	}

	rs := &runState{
		input:   inputPath,
		current: inputPath,
		report:  &Report{InputPath: inputPath},
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline fault", "input", inputPath, "panic", r)
			sink.Emit(LogLine(fmt.Sprintf("[ERROR] unexpected fault: %v", r)))
			sink.Emit(Status("failed", rs.lastPercent))
			report = nil
			err = fmt.Errorf("orchestrator: unexpected fault: %v", r)
		}
	}()

	total := len(kinds)
	sink.Emit(LogLine(fmt.Sprintf("[INFO] pipeline start: %s, %d stage(s)", filepath.Base(inputPath), total)))

	for i, kind := range kinds {
		index := i + 1
		base := float64(i) * 100 / float64(total)
		next := float64(index) * 100 / float64(total)

		if cerr := ctx.Err(); cerr != nil {
			sink.Emit(LogLine(fmt.Sprintf("[WARN] canceled before %s stage", kind)))
			sink.Emit(Status("canceled", rs.lastPercent))
			return rs.report, fmt.Errorf("orchestrator: %w: %w", ErrCanceled, cerr)
		}

		sink.Emit(Status(kind.Label()+"...", base))
		rs.lastPercent = base

		if serr := p.runStage(ctx, rs, cfg, kinds, i, sink); serr != nil {
			sink.Emit(LogLine(fmt.Sprintf("[ERROR] %s stage failed: %s", kind, serr.Message)))
			sink.Emit(Status("failed", rs.lastPercent))
			p.logger.Warn("stage failed", "stage", kind.String(), "index", index, "error", serr.Message)
			return rs.report, serr
		}

		sink.Emit(Status("in progress", next))
		rs.lastPercent = next
	}

	p.cleanup(rs, sink)

	rs.report.FinalPath = rs.current
	sink.Emit(Status("complete", 100))
	sink.Emit(LogLine(fmt.Sprintf("[INFO] pipeline complete. final file: %s", rs.current)))
	return rs.report, nil
}

// runStage invokes the stage at position i and folds its result into rs.
func (p *Pipeline) runStage(ctx context.Context, rs *runState, cfg PipelineConfig, kinds []StageKind, i int, sink ProgressSink) *StageFailedError {
	kind := kinds[i]
	index := i + 1
	total := len(kinds)
	stage := p.stages[kind]

	fail := func(err error, msg string) *StageFailedError {
		return &StageFailedError{Stage: kind, Index: index, Message: msg, Err: err}
	}

	opts := StageOptions{
		Precision: cfg.PrecisionOptions,
		NoBackup:  cleanSelectedBefore(kinds, i),
	}

	sink.Emit(LogLine(fmt.Sprintf("[%d/%d] %s: %s", index, total, stageTitle(kind), filepath.Base(rs.current))))
	logf := func(msg string) {
		sink.Emit(LogLine(fmt.Sprintf("[%s] %s", kind, msg)))
	}

	start := time.Now()
	res, err := invokeStage(ctx, stage, rs.current, opts, logf)
	if err != nil {
		return fail(err, err.Error())
	}
	if res == nil {
		return fail(nil, "stage returned no result")
	}
	if res.OriginalSize < 0 || res.ResultSize < 0 {
		return fail(nil, fmt.Sprintf("stage reported negative sizes (%d, %d)", res.OriginalSize, res.ResultSize))
	}
	if _, serr := p.stat(res.Path); serr != nil {
		return fail(serr, fmt.Sprintf("stage reported success but %s is missing", res.Path))
	}

	m := StageMetrics{
		Stage:      kind,
		InputPath:  rs.current,
		OutputPath: res.Path,
		Before:     res.OriginalSize,
		After:      res.ResultSize,
		ImageCount: res.ImageCount,
		Stats:      res.Stats,
		Duration:   time.Since(start),
	}
	rs.report.Stages = append(rs.report.Stages, m)
	rs.current = res.Path

	for _, line := range describeResult(kind, res) {
		sink.Emit(LogLine(line))
	}

	if index < total {
		rs.recordIntermediate(res.Path)
	}
	if res.LogPath != "" {
		rs.auxLogs = append(rs.auxLogs, res.LogPath)
	}

	p.logger.Debug("stage complete",
		"stage", kind.String(),
		"output", res.Path,
		"before", res.OriginalSize,
		"after", res.ResultSize,
		"duration", m.Duration,
	)
	return nil
}

// invokeStage calls stage.Invoke, converting a panic inside the stage into a
// *StageError so the failure is attributed to that stage.
func invokeStage(ctx context.Context, stage Stage, path string, opts StageOptions, logf Logger) (res *StageResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &StageError{Message: fmt.Sprintf("unexpected fault: %v", r), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return stage.Invoke(ctx, path, opts, logf)
}

// cleanup deletes recorded intermediates and then auxiliary logs. Each
// deletion is best-effort; failures are reported as warnings.
func (p *Pipeline) cleanup(rs *runState, sink ProgressSink) {
	p.removeAll(rs, rs.intermediates, "intermediate result", sink)
	p.removeAll(rs, rs.auxLogs, "log file", sink)
}

func (p *Pipeline) removeAll(rs *runState, paths []string, what string, sink ProgressSink) {
	for _, path := range paths {
		if path == rs.current || path == rs.input {
			continue
		}
		if _, err := p.stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := p.remove(path); err != nil {
			msg := fmt.Sprintf("failed to remove %s: %s (%v)", what, path, err)
			sink.Emit(LogLine("[WARN] " + msg))
			p.logger.Warn("cleanup failed", "path", path, "error", err)
			rs.report.Warnings = append(rs.report.Warnings, msg)
			continue
		}
		sink.Emit(LogLine(fmt.Sprintf("[INFO] removed %s: %s", what, path)))
		rs.report.Removed = append(rs.report.Removed, path)
	}
}

// cleanSelectedBefore reports whether the clean stage precedes position i.
func cleanSelectedBefore(kinds []StageKind, i int) bool {
	for _, k := range kinds[:i] {
		if k == StageClean {
			return true
		}
	}
	return false
}

func stageTitle(kind StageKind) string {
	switch kind {
	case StageClean:
		return "clean defined names"
	case StageImage:
		return "optimize images"
	case StagePrecision:
		return "precision slimmer"
	default:
		return kind.String()
	}
}

// describeResult renders the per-stage log lines shown after a stage succeeds.
func describeResult(kind StageKind, res *StageResult) []string {
	var lines []string
	sizes := fmt.Sprintf(" - before: %s, after: %s, saved: %s (%.1f%%)",
		HumanSize(res.OriginalSize),
		HumanSize(res.ResultSize),
		HumanSize(res.OriginalSize-res.ResultSize),
		savedPercent(res.OriginalSize, res.ResultSize),
	)

	switch kind {
	case StageClean:
		if res.BackupPath != "" {
			lines = append(lines, " - backup: "+res.BackupPath)
		}
		lines = append(lines, " - cleaned: "+res.Path)
		if res.Stats != nil {
			lines = append(lines, fmt.Sprintf(" - stats: total=%d, kept=%d, removed=%d",
				res.Stats.Total, res.Stats.Kept, res.Stats.Removed))
		}
	case StageImage:
		lines = append(lines, fmt.Sprintf(" - images: %d", res.ImageCount))
		lines = append(lines, sizes)
		if res.LogPath != "" {
			lines = append(lines, " - log: "+res.LogPath)
		}
	case StagePrecision:
		if res.BackupPath != "" {
			lines = append(lines, " - backup: "+res.BackupPath)
		}
		lines = append(lines, " - result: "+filepath.Base(res.Path))
		lines = append(lines, sizes)
	}
	return lines
}

// HumanSize formats a byte count for display; negative counts keep their sign.
func HumanSize(n int64) string {
	if n < 0 {
		return "-" + humanize.Bytes(uint64(-n))
	}
	return humanize.Bytes(uint64(n))
}
