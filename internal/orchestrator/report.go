package orchestrator

import "time"

// StageMetrics records the size delta produced by one completed stage.
type StageMetrics struct {
	Stage      StageKind
	InputPath  string
	OutputPath string
	Before     int64
	After      int64
	ImageCount int
	Stats      *CleanStats
	Duration   time.Duration
}

// Saved returns the number of bytes the stage removed. It is negative when
// the stage grew the artifact.
func (m StageMetrics) Saved() int64 {
	return m.Before - m.After
}

// SavedPercent returns (before-after)/before*100, or 0 when before is 0.
func (m StageMetrics) SavedPercent() float64 {
	return savedPercent(m.Before, m.After)
}

func savedPercent(before, after int64) float64 {
	if before <= 0 {
		return 0
	}
	return float64(before-after) / float64(before) * 100
}

// Report describes a pipeline run. On success FinalPath is the surviving
// artifact; on failure the report still lists the stages that completed.
type Report struct {
	InputPath string
	FinalPath string
	Stages    []StageMetrics

	// Removed lists intermediates and auxiliary logs deleted during cleanup.
	Removed []string

	// Warnings lists cleanup failures. They never change the outcome.
	Warnings []string
}

// TotalBefore returns the size of the artifact fed into the first stage.
func (r *Report) TotalBefore() int64 {
	if len(r.Stages) == 0 {
		return 0
	}
	return r.Stages[0].Before
}

// TotalAfter returns the size of the artifact produced by the last stage.
func (r *Report) TotalAfter() int64 {
	if len(r.Stages) == 0 {
		return 0
	}
	return r.Stages[len(r.Stages)-1].After
}

// TotalSavedPercent returns the overall reduction across all completed stages.
func (r *Report) TotalSavedPercent() float64 {
	return savedPercent(r.TotalBefore(), r.TotalAfter())
}
