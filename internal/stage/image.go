package stage

import (
	"context"
	"strconv"

	"github.com/dusk-indust/excelslim/internal/naming"
	"github.com/dusk-indust/excelslim/internal/orchestrator"
)

var _ orchestrator.Stage = (*Image)(nil)

// Image recompresses embedded images. Its output lands next to the input as
// <stem>_slim<ext> (or the first free _slim(N) variant) and its companion
// log as <stem>_image_slim.log.
type Image struct {
	Tool        Tool
	FS          naming.Exister
	MaxEdge     int
	Quality     int
	Progressive bool
}

func (im *Image) Kind() orchestrator.StageKind { return orchestrator.StageImage }

// Invoke runs the image tool against path.
func (im *Image) Invoke(ctx context.Context, path string, _ orchestrator.StageOptions, logf orchestrator.Logger) (*orchestrator.StageResult, error) {
	if logf == nil {
		logf = func(string) {}
	}
	before, err := statSize(path, "input")
	if err != nil {
		return nil, err
	}

	out := naming.UniquePath(im.FS, path, naming.SlimSuffix)
	logPath := naming.LogPath(path, naming.ImageLogTag)

	var extra []string
	if im.Progressive {
		extra = append(extra, "--progressive")
	}

	report, err := im.Tool.run(ctx, map[string]string{
		"input":    path,
		"output":   out,
		"log":      logPath,
		"max_edge": strconv.Itoa(im.MaxEdge),
		"quality":  strconv.Itoa(im.Quality),
	}, extra, logf)
	if err != nil {
		return nil, err
	}

	out = resolveOutput(path, out, report)
	after, err := statSize(out, "image output")
	if err != nil {
		return nil, err
	}

	res := &orchestrator.StageResult{
		Path:         out,
		OriginalSize: before,
		ResultSize:   after,
		ImageCount:   report.Images,
	}
	if _, err := statSize(logPath, "image log"); err == nil {
		res.LogPath = logPath
	}
	return res, nil
}
