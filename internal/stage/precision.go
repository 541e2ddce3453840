package stage

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/dusk-indust/excelslim/internal/naming"
	"github.com/dusk-indust/excelslim/internal/orchestrator"
)

// PrecisionSuffix is appended to the stem of the planned precision output.
const PrecisionSuffix = "_precision"

var _ orchestrator.Stage = (*Precision)(nil)

// Precision performs the deeper structural slimming. It writes a backup of
// its input unless an earlier clean stage already did.
type Precision struct {
	Tool Tool
	FS   naming.Exister
	Now  func() time.Time
}

func (p *Precision) Kind() orchestrator.StageKind { return orchestrator.StagePrecision }

// Invoke runs the precision tool. When the tool produces no output the
// input is reported back unchanged.
func (p *Precision) Invoke(ctx context.Context, path string, opts orchestrator.StageOptions, logf orchestrator.Logger) (*orchestrator.StageResult, error) {
	if logf == nil {
		logf = func(string) {}
	}
	before, err := statSize(path, "input")
	if err != nil {
		return nil, err
	}

	var backup string
	if opts.NoBackup {
		logf("skipping backup, the clean stage already wrote one")
	} else {
		if backup, err = writeBackup(path, now(p.Now)); err != nil {
			return nil, err
		}
	}

	var extra []string
	if opts.Precision.Aggressive {
		extra = append(extra, "--aggressive")
	}
	if opts.Precision.XMLCleanup {
		extra = append(extra, "--xml-cleanup")
	}
	if opts.Precision.ForceCustomXMLRemoval {
		extra = append(extra, "--force-custom-xml")
	}

	planned := naming.UniquePath(p.FS, path, PrecisionSuffix)
	report, err := p.Tool.run(ctx, map[string]string{
		"input":  path,
		"output": planned,
	}, extra, logf)
	if err != nil {
		return nil, err
	}

	out := resolveOutput(path, planned, report)
	if report.Output == "" {
		if _, err := os.Stat(out); errors.Is(err, os.ErrNotExist) {
			logf("no output produced, keeping " + path)
			return &orchestrator.StageResult{
				Path:         path,
				OriginalSize: before,
				ResultSize:   before,
				BackupPath:   backup,
			}, nil
		}
	}

	after, err := statSize(out, "precision output")
	if err != nil {
		return nil, err
	}
	return &orchestrator.StageResult{
		Path:         out,
		OriginalSize: before,
		ResultSize:   after,
		BackupPath:   backup,
	}, nil
}
