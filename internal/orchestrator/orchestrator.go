package orchestrator

import (
	"context"
	"fmt"
	"strings"
)

// StageKind identifies one of the transformation stages. The numeric order is
// the fixed precedence in which selected stages run.
type StageKind int

const (
	StageClean     StageKind = 0
	StageImage     StageKind = 1
	StagePrecision StageKind = 2
)

// AllStages lists every stage kind in precedence order.
var AllStages = []StageKind{StageClean, StageImage, StagePrecision}

func (k StageKind) String() string {
	names := [...]string{
		"clean",
		"image",
		"precision",
	}
	if k >= 0 && int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// Label is the human-readable description used in status events.
func (k StageKind) Label() string {
	switch k {
	case StageClean:
		return "Cleaning defined names"
	case StageImage:
		return "Optimizing images"
	case StagePrecision:
		return "Running precision slimmer"
	default:
		return "Running unknown stage"
	}
}

// ParseStageKind maps a stage tag ("clean", "image", "precision") to its kind.
func ParseStageKind(tag string) (StageKind, error) {
	for _, k := range AllStages {
		if strings.EqualFold(tag, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("orchestrator: unknown stage %q", tag)
}

// CleanStats summarizes the defined-name cleanup performed by the clean stage.
type CleanStats struct {
	Total   int `json:"total"`
	Kept    int `json:"kept"`
	Removed int `json:"removed"`
}

// StageResult is what a stage hands back on success.
type StageResult struct {
	Path         string // resulting artifact, must exist on disk
	OriginalSize int64
	ResultSize   int64
	LogPath      string // auxiliary log written next to the artifact, if any
	BackupPath   string // safety backup of the stage input, if one was written
	Stats        *CleanStats
	ImageCount   int
}

// StageOptions carries the per-invocation knobs a stage may honor.
type StageOptions struct {
	Precision PrecisionOptions

	// NoBackup is set when an earlier clean stage already wrote a safety
	// backup of the pristine input.
	NoBackup bool
}

// Logger receives free-form diagnostic lines produced by a stage while it runs.
type Logger func(msg string)

// Stage is the contract every processing stage implements. Invoke either
// returns a result whose Path exists, or an error; it never reports success
// without producing an artifact.
type Stage interface {
	Kind() StageKind
	Invoke(ctx context.Context, path string, opts StageOptions, logf Logger) (*StageResult, error)
}

// StageFunc adapts a plain function to the Stage interface.
type StageFunc struct {
	StageKind StageKind
	Fn        func(ctx context.Context, path string, opts StageOptions, logf Logger) (*StageResult, error)
}

func (f StageFunc) Kind() StageKind { return f.StageKind }

func (f StageFunc) Invoke(ctx context.Context, path string, opts StageOptions, logf Logger) (*StageResult, error) {
	return f.Fn(ctx, path, opts, logf)
}

// StageSet binds each stage kind to its implementation.
type StageSet map[StageKind]Stage

// NewStageSet builds a StageSet keyed by each stage's own Kind.
func NewStageSet(stages ...Stage) StageSet {
	set := make(StageSet, len(stages))
	for _, s := range stages {
		set[s.Kind()] = s
	}
	return set
}
