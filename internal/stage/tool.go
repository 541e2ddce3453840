// Package stage binds the three pipeline stages to external tools. Each
// adapter prepares paths and backups, runs its tool, streams the tool's
// stderr into the stage logger and turns the tool's JSON report into an
// orchestrator.StageResult.
package stage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dusk-indust/excelslim/internal/config"
	"github.com/dusk-indust/excelslim/internal/orchestrator"
)

// Tool is an external command invoked by a stage adapter.
type Tool struct {
	Command string
	Args    []string
	Env     []string
}

// ToolFromConfig converts a configured tool.
func ToolFromConfig(c config.ToolConfig) Tool {
	return Tool{Command: c.Command, Args: c.Args, Env: c.Env}
}

// toolReport is the JSON document a tool prints on stdout.
type toolReport struct {
	Output string                   `json:"output,omitempty"`
	Stats  *orchestrator.CleanStats `json:"stats,omitempty"`
	Images int                      `json:"images,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

// expandArgs substitutes {name} placeholders in args.
func expandArgs(args []string, vars map[string]string) []string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

// run executes the tool and decodes its report. Every failure is returned as
// an *orchestrator.StageError.
func (t Tool) run(ctx context.Context, vars map[string]string, extra []string, logf orchestrator.Logger) (*toolReport, error) {
	if t.Command == "" {
		return nil, &orchestrator.StageError{Message: "no tool command configured"}
	}
	name := filepath.Base(t.Command)

	args := append(expandArgs(t.Args, vars), extra...)
	// A running tool is never interrupted; cancellation applies between stages.
	cmd := exec.CommandContext(context.WithoutCancel(ctx), t.Command, args...)
	cmd.Env = append(os.Environ(), t.Env...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, orchestrator.NewStageError(err, "%s: %v", name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, orchestrator.NewStageError(err, "cannot start %s: %v", name, err)
	}

	// stderr must be drained before Wait closes the pipe.
	lastLine := streamLines(stderr, logf)

	if err := cmd.Wait(); err != nil {
		msg := fmt.Sprintf("%s failed: %v", name, err)
		if lastLine != "" {
			msg += ": " + lastLine
		}
		return nil, orchestrator.NewStageError(err, "%s", msg)
	}

	report := &toolReport{}
	if raw := bytes.TrimSpace(stdout.Bytes()); len(raw) > 0 {
		if err := json.Unmarshal(raw, report); err != nil {
			return nil, orchestrator.NewStageError(err, "%s printed a malformed report: %v", name, err)
		}
	}
	if report.Error != "" {
		return nil, &orchestrator.StageError{Message: report.Error}
	}
	return report, nil
}

// maxStderrLine is the longest stderr line forwarded to the stage logger.
const maxStderrLine = 1 << 20

// streamLines forwards every non-empty line of r to logf and returns the last
// one. r is always read to EOF so the tool never blocks on a full pipe, even
// after a line too long to forward.
func streamLines(r io.Reader, logf orchestrator.Logger) string {
	var last string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStderrLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		last = line
		if logf != nil {
			logf(line)
		}
	}
	if err := scanner.Err(); err != nil && logf != nil {
		logf(fmt.Sprintf("stderr truncated: %v", err))
	}
	_, _ = io.Copy(io.Discard, r)
	return last
}

// resolveOutput picks the tool-reported output, falling back to the planned
// path. Relative reports are resolved against the input's directory.
func resolveOutput(input, planned string, report *toolReport) string {
	if report.Output == "" {
		return planned
	}
	if filepath.IsAbs(report.Output) {
		return report.Output
	}
	return filepath.Join(filepath.Dir(input), report.Output)
}

// statSize returns the size of path, wrapping failures as stage errors.
func statSize(path, what string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, orchestrator.NewStageError(err, "%s %s does not exist", what, path)
		}
		return 0, orchestrator.NewStageError(err, "cannot read %s %s: %v", what, path, err)
	}
	if !info.Mode().IsRegular() {
		return 0, &orchestrator.StageError{Message: fmt.Sprintf("%s %s is not a regular file", what, path)}
	}
	return info.Size(), nil
}
