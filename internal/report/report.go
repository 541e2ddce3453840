// Package report renders a finished run as a JSON export or a short text
// summary.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dusk-indust/excelslim/internal/orchestrator"
)

// RunExport is the top-level JSON export structure.
type RunExport struct {
	RunID       string        `json:"runId,omitempty"`
	ExportedAt  string        `json:"exportedAt"`
	Input       string        `json:"input"`
	Final       string        `json:"final,omitempty"`
	Succeeded   bool          `json:"succeeded"`
	Error       string        `json:"error,omitempty"`
	Before      int64         `json:"before"`
	After       int64         `json:"after"`
	SavedPct    float64       `json:"savedPercent"`
	BeforeHuman string        `json:"beforeHuman"`
	AfterHuman  string        `json:"afterHuman"`
	Stages      []StageExport `json:"stages"`
	Removed     []string      `json:"removed,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
	Log         []string      `json:"log,omitempty"`
}

// StageExport describes one completed stage.
type StageExport struct {
	Stage      string                   `json:"stage"`
	Input      string                   `json:"input"`
	Output     string                   `json:"output"`
	Before     int64                    `json:"before"`
	After      int64                    `json:"after"`
	SavedPct   float64                  `json:"savedPercent"`
	Images     int                      `json:"images,omitempty"`
	Stats      *orchestrator.CleanStats `json:"stats,omitempty"`
	DurationMS int64                    `json:"durationMs"`
}

// Run carries what the export needs from a controller outcome.
type Run struct {
	ID     string
	Report *orchestrator.Report
	Log    []string
	Err    error
}

// Build converts a run into its export form. A nil report yields an export
// with no stages.
func Build(run Run, now time.Time) *RunExport {
	exp := &RunExport{
		RunID:      run.ID,
		ExportedAt: now.UTC().Format(time.RFC3339),
		Succeeded:  run.Err == nil,
		Stages:     []StageExport{},
		Log:        run.Log,
	}
	if run.Err != nil {
		exp.Error = run.Err.Error()
	}

	r := run.Report
	if r == nil {
		exp.BeforeHuman = orchestrator.HumanSize(0)
		exp.AfterHuman = orchestrator.HumanSize(0)
		return exp
	}

	exp.Input = r.InputPath
	exp.Final = r.FinalPath
	exp.Before = r.TotalBefore()
	exp.After = r.TotalAfter()
	exp.SavedPct = round1(r.TotalSavedPercent())
	exp.BeforeHuman = orchestrator.HumanSize(exp.Before)
	exp.AfterHuman = orchestrator.HumanSize(exp.After)
	exp.Removed = r.Removed
	exp.Warnings = r.Warnings

	for _, s := range r.Stages {
		exp.Stages = append(exp.Stages, StageExport{
			Stage:      s.Stage.String(),
			Input:      s.InputPath,
			Output:     s.OutputPath,
			Before:     s.Before,
			After:      s.After,
			SavedPct:   round1(s.SavedPercent()),
			Images:     s.ImageCount,
			Stats:      s.Stats,
			DurationMS: s.Duration.Milliseconds(),
		})
	}
	return exp
}

func round1(v float64) float64 {
	return float64(int64(v*10+sign(v)*0.5)) / 10
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// WriteJSON writes exp to path as indented JSON, creating parent directories.
func WriteJSON(path string, exp *RunExport) error {
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("report: create dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}

// Summary renders a few human-readable lines about the run.
func Summary(exp *RunExport) string {
	var b strings.Builder
	if !exp.Succeeded {
		fmt.Fprintf(&b, "failed: %s\n", exp.Error)
	}
	for _, s := range exp.Stages {
		fmt.Fprintf(&b, "%-10s %s -> %s (%.1f%%, %s)\n",
			s.Stage,
			humanize.Bytes(uint64(max(s.Before, 0))),
			humanize.Bytes(uint64(max(s.After, 0))),
			s.SavedPct,
			(time.Duration(s.DurationMS) * time.Millisecond).String(),
		)
	}
	if exp.Succeeded && exp.Final != "" {
		fmt.Fprintf(&b, "final: %s\n", exp.Final)
		fmt.Fprintf(&b, "total: %s -> %s (saved %.1f%%)\n", exp.BeforeHuman, exp.AfterHuman, exp.SavedPct)
	}
	if n := len(exp.Warnings); n > 0 {
		fmt.Fprintf(&b, "%s left behind\n", plural(n, "file"))
	}
	return b.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}
