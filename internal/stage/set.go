package stage

import (
	"github.com/dusk-indust/excelslim/internal/config"
	"github.com/dusk-indust/excelslim/internal/naming"
	"github.com/dusk-indust/excelslim/internal/orchestrator"
)

// NewSet binds every stage kind to its tool adapter as configured.
func NewSet(cfg *config.Config) orchestrator.StageSet {
	if cfg == nil {
		cfg = config.Default()
	}
	fsys := naming.OS{}
	return orchestrator.NewStageSet(
		&Clean{Tool: ToolFromConfig(cfg.Tools.Clean), FS: fsys},
		&Image{
			Tool:        ToolFromConfig(cfg.Tools.Image),
			FS:          fsys,
			MaxEdge:     cfg.Image.MaxEdge,
			Quality:     cfg.Image.Quality,
			Progressive: cfg.Image.ProgressiveEnabled(),
		},
		&Precision{Tool: ToolFromConfig(cfg.Tools.Precision), FS: fsys},
	)
}
