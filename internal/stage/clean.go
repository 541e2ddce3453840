package stage

import (
	"context"
	"time"

	"github.com/dusk-indust/excelslim/internal/naming"
	"github.com/dusk-indust/excelslim/internal/orchestrator"
)

// CleanSuffix is appended to the stem of the planned clean-stage output.
const CleanSuffix = "_clean"

var _ orchestrator.Stage = (*Clean)(nil)

// Clean normalizes defined-name metadata. It always writes a timestamped
// backup of its input before the tool touches anything.
type Clean struct {
	Tool Tool
	FS   naming.Exister
	Now  func() time.Time
}

func (c *Clean) Kind() orchestrator.StageKind { return orchestrator.StageClean }

// Invoke backs up path, runs the clean tool and reports its statistics.
func (c *Clean) Invoke(ctx context.Context, path string, _ orchestrator.StageOptions, logf orchestrator.Logger) (*orchestrator.StageResult, error) {
	if logf == nil {
		logf = func(string) {}
	}
	before, err := statSize(path, "input")
	if err != nil {
		return nil, err
	}

	backup, err := writeBackup(path, now(c.Now))
	if err != nil {
		return nil, err
	}

	planned := naming.UniquePath(c.FS, path, CleanSuffix)
	report, err := c.Tool.run(ctx, map[string]string{
		"input":  path,
		"output": planned,
		"backup": backup,
	}, nil, logf)
	if err != nil {
		return nil, err
	}

	out := resolveOutput(path, planned, report)
	after, err := statSize(out, "clean output")
	if err != nil {
		return nil, err
	}

	return &orchestrator.StageResult{
		Path:         out,
		OriginalSize: before,
		ResultSize:   after,
		BackupPath:   backup,
		Stats:        report.Stats,
	}, nil
}

func now(fn func() time.Time) time.Time {
	if fn != nil {
		return fn()
	}
	return time.Now()
}
