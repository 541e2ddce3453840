package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventRecorder is a ProgressSink that keeps every event in order.
type eventRecorder struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *eventRecorder) Emit(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) logs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Kind == EventLog {
			out = append(out, ev.Text)
		}
	}
	return out
}

func (r *eventRecorder) statuses() []ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ProgressEvent
	for _, ev := range r.events {
		if ev.Kind == EventStatus {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) hasLogContaining(sub string) bool {
	for _, l := range r.logs() {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

// writeSized creates a file of exactly n bytes.
func writeSized(t *testing.T, path string, n int) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, make([]byte, n), 0o644))
}

// withSuffix returns <dir>/<stem><suffix><ext> for path.
func withSuffix(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}

// call captures the arguments a fake stage was invoked with.
type call struct {
	path string
	opts StageOptions
}

// fakeStage writes <input><suffix> with the given size and records its calls.
type fakeStage struct {
	kind    StageKind
	suffix  string
	size    int
	logPath bool
	err     error

	mu    sync.Mutex
	calls []call
}

func (f *fakeStage) Kind() StageKind { return f.kind }

func (f *fakeStage) Invoke(_ context.Context, path string, opts StageOptions, logf Logger) (*StageResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{path: path, opts: opts})
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &StageError{Message: "input missing", Err: err}
	}
	out := withSuffix(path, f.suffix)
	if err := os.WriteFile(out, make([]byte, f.size), 0o644); err != nil {
		return nil, err
	}
	logf("wrote " + filepath.Base(out))

	res := &StageResult{Path: out, OriginalSize: info.Size(), ResultSize: int64(f.size)}
	if f.logPath {
		res.LogPath = withSuffix(path, "_"+f.kind.String()) + ".log"
		if err := os.WriteFile(res.LogPath, []byte("log"), 0o644); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (f *fakeStage) lastCall(t *testing.T) call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls, "stage %s was not invoked", f.kind)
	return f.calls[len(f.calls)-1]
}

func newFakes() (clean, image, precision *fakeStage) {
	clean = &fakeStage{kind: StageClean, suffix: "_clean", size: 900}
	image = &fakeStage{kind: StageImage, suffix: "_slim", size: 500, logPath: true}
	precision = &fakeStage{kind: StagePrecision, suffix: "_precision", size: 300}
	return
}

func TestPipeline_ReportScenario(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "report.xlsx")
	writeSized(t, input, 500000)

	cleaned := filepath.Join(dir, "report_cleaned.xlsx")
	slim := filepath.Join(dir, "report_slim.xlsx")
	imageLog := filepath.Join(dir, "report_image_slim.log")

	clean := StageFunc{StageKind: StageClean, Fn: func(_ context.Context, path string, _ StageOptions, _ Logger) (*StageResult, error) {
		writeSized(t, cleaned, 480000)
		return &StageResult{
			Path:         cleaned,
			OriginalSize: 500000,
			ResultSize:   480000,
			Stats:        &CleanStats{Total: 10, Kept: 7, Removed: 3},
		}, nil
	}}
	image := StageFunc{StageKind: StageImage, Fn: func(_ context.Context, path string, _ StageOptions, _ Logger) (*StageResult, error) {
		assert.Equal(t, cleaned, path)
		writeSized(t, slim, 300000)
		require.NoError(t, os.WriteFile(imageLog, []byte("img1 100 -> 50\n"), 0o644))
		return &StageResult{
			Path:         slim,
			OriginalSize: 480000,
			ResultSize:   300000,
			LogPath:      imageLog,
			ImageCount:   4,
		}, nil
	}}

	rec := &eventRecorder{}
	p := NewPipeline(NewStageSet(clean, image), nil)
	report, err := p.Execute(context.Background(), input, PipelineConfig{Clean: true, Image: true}, rec)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, slim, report.FinalPath)
	assert.FileExists(t, slim)
	assert.FileExists(t, input, "the original input is never deleted")
	assert.NoFileExists(t, cleaned, "post-clean intermediate should be removed")
	assert.NoFileExists(t, imageLog, "auxiliary image log should be removed")

	assert.True(t, rec.hasLogContaining("images: 4"))
	assert.True(t, rec.hasLogContaining("stats: total=10, kept=7, removed=3"))
	assert.True(t, rec.hasLogContaining("(37.5%)"), "image stage saved 180000 of 480000 bytes: %v", rec.logs())

	statuses := rec.statuses()
	require.NotEmpty(t, statuses)
	assert.Equal(t, float64(100), statuses[len(statuses)-1].Percent)
	assert.Equal(t, "complete", statuses[len(statuses)-1].Label)

	require.Len(t, report.Stages, 2)
	assert.Equal(t, int64(500000), report.TotalBefore())
	assert.Equal(t, int64(300000), report.TotalAfter())
	assert.InDelta(t, 40.0, report.TotalSavedPercent(), 0.001)
	assert.ElementsMatch(t, []string{cleaned, imageLog}, report.Removed)
}

func TestPipeline_NoStagesSelected(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "book.xlsx")
	writeSized(t, input, 10)

	clean, image, precision := newFakes()
	p := NewPipeline(NewStageSet(clean, image, precision), nil)
	p.stat = func(string) (os.FileInfo, error) {
		t.Fatal("filesystem must not be touched when no stage is selected")
		return nil, nil
	}
	p.remove = func(string) error {
		t.Fatal("filesystem must not be touched when no stage is selected")
		return nil
	}

	rec := &eventRecorder{}
	report, err := p.Execute(context.Background(), input, PipelineConfig{}, rec)
	require.ErrorIs(t, err, ErrNoStagesSelected)
	assert.Nil(t, report)
	assert.Empty(t, rec.events)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no file may be written")
}

func TestPipeline_StageNotBound(t *testing.T) {
	clean, _, _ := newFakes()
	p := NewPipeline(NewStageSet(clean), nil)

	_, err := p.Execute(context.Background(), "book.xlsx", PipelineConfig{Clean: true, Image: true}, nil)
	require.ErrorIs(t, err, ErrStageNotBound)
	assert.Empty(t, clean.calls, "no stage runs when a binding is missing")
}

func TestPipeline_NoBackupDerivation(t *testing.T) {
	tests := []struct {
		name         string
		cfg          PipelineConfig
		wantNoBackup bool
	}{
		{
			name:         "precision only",
			cfg:          PipelineConfig{Precision: true},
			wantNoBackup: false,
		},
		{
			name:         "clean then precision",
			cfg:          PipelineConfig{Clean: true, Precision: true},
			wantNoBackup: true,
		},
		{
			name:         "image then precision",
			cfg:          PipelineConfig{Image: true, Precision: true},
			wantNoBackup: false,
		},
		{
			name:         "all stages",
			cfg:          PipelineConfig{Clean: true, Image: true, Precision: true},
			wantNoBackup: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			input := filepath.Join(dir, "book.xlsx")
			writeSized(t, input, 1000)

			clean, image, precision := newFakes()
			p := NewPipeline(NewStageSet(clean, image, precision), nil)
			_, err := p.Execute(context.Background(), input, tt.cfg, nil)
			require.NoError(t, err)

			assert.Equal(t, tt.wantNoBackup, precision.lastCall(t).opts.NoBackup)
			if tt.cfg.Clean {
				assert.False(t, clean.lastCall(t).opts.NoBackup, "clean itself always backs up")
			}
		})
	}
}

func TestPipeline_PrecisionOptionsPassedThrough(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "book.xlsm")
	writeSized(t, input, 1000)

	_, _, precision := newFakes()
	p := NewPipeline(NewStageSet(precision), nil)

	opts := PrecisionOptions{Aggressive: true, ForceCustomXMLRemoval: true}
	_, err := p.Execute(context.Background(), input, PipelineConfig{Precision: true, PrecisionOptions: opts}, nil)
	require.NoError(t, err)
	assert.Equal(t, opts, precision.lastCall(t).opts.Precision)
}

func TestPipeline_SequencingFeedsPreviousOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "book.xlsx")
	writeSized(t, input, 1000)

	clean, image, precision := newFakes()
	p := NewPipeline(NewStageSet(clean, image, precision), nil)
	report, err := p.Execute(context.Background(), input, PipelineConfig{Clean: true, Image: true, Precision: true}, nil)
	require.NoError(t, err)

	afterClean := withSuffix(input, "_clean")
	afterImage := withSuffix(afterClean, "_slim")
	final := withSuffix(afterImage, "_precision")

	assert.Equal(t, input, clean.lastCall(t).path)
	assert.Equal(t, afterClean, image.lastCall(t).path)
	assert.Equal(t, afterImage, precision.lastCall(t).path)

	assert.Equal(t, final, report.FinalPath)
	assert.FileExists(t, final)
	assert.FileExists(t, input)
	assert.NoFileExists(t, afterClean)
	assert.NoFileExists(t, afterImage)
	assert.NoFileExists(t, withSuffix(afterClean, "_image")+".log")
}

func TestPipeline_StageFailureLeavesArtifacts(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "book.xlsx")
	writeSized(t, input, 1000)

	clean, image, precision := newFakes()
	precision.err = &StageError{Message: "malformed workbook"}

	rec := &eventRecorder{}
	p := NewPipeline(NewStageSet(clean, image, precision), nil)
	report, err := p.Execute(context.Background(), input, PipelineConfig{Clean: true, Image: true, Precision: true}, rec)
	require.Error(t, err)

	var failed *StageFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, StagePrecision, failed.Stage)
	assert.Equal(t, 3, failed.Index)
	assert.Equal(t, "malformed workbook", failed.Message)

	var stageErr *StageError
	assert.ErrorAs(t, err, &stageErr)

	afterClean := withSuffix(input, "_clean")
	afterImage := withSuffix(afterClean, "_slim")
	assert.FileExists(t, afterClean, "intermediates stay on disk after a failure")
	assert.FileExists(t, afterImage)
	assert.FileExists(t, withSuffix(afterClean, "_image")+".log", "auxiliary logs stay on disk after a failure")

	require.NotNil(t, report)
	assert.Len(t, report.Stages, 2)
	assert.Empty(t, report.FinalPath)
	assert.True(t, rec.hasLogContaining("precision stage failed: malformed workbook"))

	statuses := rec.statuses()
	assert.Equal(t, "failed", statuses[len(statuses)-1].Label)
	for _, s := range statuses {
		assert.NotEqual(t, float64(100), s.Percent, "a failed run never reports 100")
	}
}

func TestPipeline_FirstStageFailure(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "book.xlsx")
	writeSized(t, input, 1000)

	clean, image, _ := newFakes()
	clean.err = errors.New("boom")

	p := NewPipeline(NewStageSet(clean, image), nil)
	_, err := p.Execute(context.Background(), input, PipelineConfig{Clean: true, Image: true}, nil)

	var failed *StageFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, StageClean, failed.Stage)
	assert.Equal(t, 1, failed.Index)
	assert.Empty(t, image.calls, "later stages must not run after a failure")
	assert.FileExists(t, input)
}

func TestPipeline_StageContractViolations(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "book.xlsx")
	writeSized(t, input, 1000)

	tests := []struct {
		name string
		fn   func(context.Context, string, StageOptions, Logger) (*StageResult, error)
		want string
	}{
		{
			name: "nil result",
			fn: func(context.Context, string, StageOptions, Logger) (*StageResult, error) {
				return nil, nil
			},
			want: "no result",
		},
		{
			name: "missing artifact",
			fn: func(context.Context, string, StageOptions, Logger) (*StageResult, error) {
				return &StageResult{Path: filepath.Join(dir, "ghost.xlsx")}, nil
			},
			want: "is missing",
		},
		{
			name: "negative size",
			fn: func(_ context.Context, path string, _ StageOptions, _ Logger) (*StageResult, error) {
				return &StageResult{Path: path, OriginalSize: -1}, nil
			},
			want: "negative sizes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(NewStageSet(StageFunc{StageKind: StageImage, Fn: tt.fn}), nil)
			_, err := p.Execute(context.Background(), input, PipelineConfig{Image: true}, nil)

			var failed *StageFailedError
			require.ErrorAs(t, err, &failed)
			assert.Contains(t, failed.Message, tt.want)
		})
	}
}

func TestPipeline_CleanupFailureIsWarning(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "book.xlsx")
	writeSized(t, input, 1000)

	clean, image, _ := newFakes()
	rec := &eventRecorder{}
	p := NewPipeline(NewStageSet(clean, image), nil)
	p.remove = func(path string) error {
		return errors.New("file is locked")
	}

	report, err := p.Execute(context.Background(), input, PipelineConfig{Clean: true, Image: true}, rec)
	require.NoError(t, err, "cleanup failures never fail the run")

	assert.FileExists(t, report.FinalPath)
	assert.Len(t, report.Warnings, 2, "one intermediate and one log could not be removed")
	assert.Empty(t, report.Removed)
	assert.True(t, rec.hasLogContaining("[WARN] failed to remove intermediate result"))
	assert.True(t, rec.hasLogContaining("[WARN] failed to remove log file"))

	statuses := rec.statuses()
	assert.Equal(t, float64(100), statuses[len(statuses)-1].Percent)
}

func TestPipeline_NeverDeletesOriginalInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "book.xlsx")
	writeSized(t, input, 1000)

	// A stage that reports the unchanged input as its result.
	passthrough := StageFunc{StageKind: StageClean, Fn: func(_ context.Context, path string, _ StageOptions, _ Logger) (*StageResult, error) {
		return &StageResult{Path: path, OriginalSize: 1000, ResultSize: 1000}, nil
	}}
	_, image, _ := newFakes()

	p := NewPipeline(NewStageSet(passthrough, image), nil)
	report, err := p.Execute(context.Background(), input, PipelineConfig{Clean: true, Image: true}, nil)
	require.NoError(t, err)

	assert.FileExists(t, input)
	assert.NotContains(t, report.Removed, input)
}

func TestPipeline_PercentMonotonic(t *testing.T) {
	for n := 1; n <= 3; n++ {
		cfg := PipelineConfig{Clean: n >= 1, Image: n >= 2, Precision: n >= 3}
		dir := t.TempDir()
		input := filepath.Join(dir, "book.xlsx")
		writeSized(t, input, 1000)

		clean, image, precision := newFakes()
		rec := &eventRecorder{}
		p := NewPipeline(NewStageSet(clean, image, precision), nil)
		_, err := p.Execute(context.Background(), input, cfg, rec)
		require.NoError(t, err)

		statuses := rec.statuses()
		require.Len(t, statuses, 2*n+1)
		prev := -1.0
		for _, s := range statuses {
			assert.GreaterOrEqual(t, s.Percent, prev)
			assert.GreaterOrEqual(t, s.Percent, 0.0)
			assert.LessOrEqual(t, s.Percent, 100.0)
			prev = s.Percent
		}
		assert.Equal(t, 0.0, statuses[0].Percent)
		assert.Equal(t, 100.0, statuses[len(statuses)-1].Percent)
	}
}

func TestPipeline_CancelBetweenStages(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "book.xlsx")
	writeSized(t, input, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clean := &fakeStage{kind: StageClean, suffix: "_clean", size: 900}
	cancelling := StageFunc{StageKind: StageClean, Fn: func(ctx context.Context, path string, opts StageOptions, logf Logger) (*StageResult, error) {
		res, err := clean.Invoke(ctx, path, opts, logf)
		cancel()
		return res, err
	}}
	_, image, _ := newFakes()

	p := NewPipeline(NewStageSet(cancelling, image), nil)
	report, err := p.Execute(ctx, input, PipelineConfig{Clean: true, Image: true}, nil)
	require.ErrorIs(t, err, ErrCanceled)
	require.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, image.calls)
	assert.FileExists(t, withSuffix(input, "_clean"), "completed stage output is kept on cancellation")
	require.NotNil(t, report)
	assert.Len(t, report.Stages, 1)
}

func TestPipeline_StagePanicFailsThatStage(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "book.xlsx")
	writeSized(t, input, 1000)

	clean, _, _ := newFakes()
	panicking := StageFunc{StageKind: StageImage, Fn: func(context.Context, string, StageOptions, Logger) (*StageResult, error) {
		panic("nil map write in image recompressor")
	}}

	rec := &eventRecorder{}
	p := NewPipeline(NewStageSet(clean, panicking), nil)
	report, err := p.Execute(context.Background(), input, PipelineConfig{Clean: true, Image: true}, rec)
	require.Error(t, err)

	var failed *StageFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, StageImage, failed.Stage)
	assert.Equal(t, 2, failed.Index)
	assert.Contains(t, failed.Message, "nil map write in image recompressor")

	var stageErr *StageError
	assert.ErrorAs(t, err, &stageErr)

	require.NotNil(t, report, "completed stages stay in the report")
	require.Len(t, report.Stages, 1)
	assert.Equal(t, StageClean, report.Stages[0].Stage)
	assert.Empty(t, report.FinalPath)
	assert.FileExists(t, withSuffix(input, "_clean"), "artifacts are kept on failure")
	assert.True(t, rec.hasLogContaining("[ERROR] image stage failed: unexpected fault: nil map write"))

	statuses := rec.statuses()
	assert.Equal(t, "failed", statuses[len(statuses)-1].Label)
}

// panicOnceSink panics on the first event and records the rest.
type panicOnceSink struct {
	eventRecorder
	fired bool
}

func (s *panicOnceSink) Emit(ev ProgressEvent) {
	if !s.fired {
		s.fired = true
		panic("sink exploded")
	}
	s.eventRecorder.Emit(ev)
}

func TestPipeline_OrchestrationFaultIsRecovered(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "book.xlsx")
	writeSized(t, input, 1000)

	_, image, _ := newFakes()
	sink := &panicOnceSink{}
	p := NewPipeline(NewStageSet(image), nil)
	report, err := p.Execute(context.Background(), input, PipelineConfig{Image: true}, sink)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Contains(t, err.Error(), "unexpected fault: sink exploded")

	var failed *StageFailedError
	assert.False(t, errors.As(err, &failed))
	assert.True(t, sink.hasLogContaining("unexpected fault"))
}

func TestPipeline_StageLoggerPrefixesLines(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "book.xlsx")
	writeSized(t, input, 1000)

	_, image, _ := newFakes()
	rec := &eventRecorder{}
	p := NewPipeline(NewStageSet(image), nil)
	_, err := p.Execute(context.Background(), input, PipelineConfig{Image: true}, rec)
	require.NoError(t, err)

	assert.True(t, rec.hasLogContaining("[image] wrote book_slim.xlsx"))
	assert.Equal(t, "[INFO] pipeline start: book.xlsx, 1 stage(s)", rec.logs()[0])
	assert.Equal(t, "[1/1] optimize images: book.xlsx", rec.logs()[1])
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "500 kB", HumanSize(500000))
	assert.Equal(t, "-1.0 kB", HumanSize(-1000))
	assert.Equal(t, "0 B", HumanSize(0))
}
