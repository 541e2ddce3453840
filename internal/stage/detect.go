package stage

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/excelslim/internal/config"
	"github.com/dusk-indust/excelslim/internal/orchestrator"
)

// Availability reports whether the tool behind a stage can be started.
type Availability struct {
	Stage   orchestrator.StageKind `json:"stage"`
	Command string                 `json:"command"`
	Path    string                 `json:"path,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// OK reports whether the tool was found.
func (a Availability) OK() bool { return a.Error == "" }

// Detector probes the local environment for the configured stage tools.
type Detector struct {
	tools    map[orchestrator.StageKind]Tool
	lookPath func(string) (string, error)
	logger   *slog.Logger
}

// NewDetector creates a Detector for the tools in cfg.
func NewDetector(cfg *config.Config, logger *slog.Logger) *Detector {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		tools: map[orchestrator.StageKind]Tool{
			orchestrator.StageClean:     ToolFromConfig(cfg.Tools.Clean),
			orchestrator.StageImage:     ToolFromConfig(cfg.Tools.Image),
			orchestrator.StagePrecision: ToolFromConfig(cfg.Tools.Precision),
		},
		lookPath: exec.LookPath,
		logger:   logger,
	}
}

// Detect probes every stage tool concurrently. Results are in stage order.
func (d *Detector) Detect(ctx context.Context) []Availability {
	out := make([]Availability, len(orchestrator.AllStages))
	var mu sync.Mutex

	g, _ := errgroup.WithContext(ctx)
	for i, kind := range orchestrator.AllStages {
		g.Go(func() error {
			a := d.probe(kind)
			mu.Lock()
			out[i] = a
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	missing := 0
	for _, a := range out {
		if !a.OK() {
			missing++
		}
	}
	d.logger.Debug("detector: probed stage tools", "stages", len(out), "missing", missing)
	return out
}

func (d *Detector) probe(kind orchestrator.StageKind) (a Availability) {
	tool := d.tools[kind]
	a = Availability{Stage: kind, Command: tool.Command}

	defer func() {
		if r := recover(); r != nil {
			a.Error = fmt.Sprintf("probe panicked: %v", r)
		}
	}()

	if tool.Command == "" {
		a.Error = "no tool command configured"
		return a
	}
	path, err := d.lookPath(tool.Command)
	if err != nil {
		a.Error = err.Error()
		return a
	}
	a.Path = path
	return a
}
