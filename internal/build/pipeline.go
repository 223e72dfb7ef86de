package build

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/neatbudget/nbuild/internal/logging"
)

// Mode selects production or development output.
type Mode int

const (
	ModeDevelopment Mode = iota
	ModeProduction
)

func (m Mode) String() string {
	if m == ModeProduction {
		return "production"
	}
	return "development"
}

// Artifact is a file a build wrote.
type Artifact struct {
	Path string
	Size int64
}

// Result describes one pipeline run.
type Result struct {
	Mode      Mode
	Duration  time.Duration
	Artifacts []Artifact
	Error     error
}

// WriteCallback is called after a build has written its output.
type WriteCallback func(result Result)

// Step is one stage of a build.
type Step interface {
	Name() string
	Execute(ctx context.Context, b *Build) error
}

// Build is the state shared by the steps of one run.
type Build struct {
	Mode   Mode
	Fs     afero.Fs
	Logger logging.Logger

	artifacts []string
}

// AddArtifact records a path the build produced. Sizes are read after the
// last step.
func (b *Build) AddArtifact(path string) {
	for _, p := range b.artifacts {
		if p == path {
			return
		}
	}
	b.artifacts = append(b.artifacts, path)
}

// Pipeline runs its steps in order. Concurrent Run calls are serialized.
type Pipeline struct {
	mode   Mode
	fs     afero.Fs
	steps  []Step
	logger logging.Logger

	runMu sync.Mutex

	cbMu      sync.Mutex
	callbacks []WriteCallback

	metrics *Metrics
}

// NewPipeline creates a pipeline over fs.
func NewPipeline(mode Mode, fs afero.Fs, logger logging.Logger, steps ...Step) *Pipeline {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Pipeline{
		mode:    mode,
		fs:      fs,
		steps:   steps,
		logger:  logger.WithComponent("build"),
		metrics: NewMetrics(),
	}
}

// OnWrite registers a callback that runs after every successful build.
func (p *Pipeline) OnWrite(cb WriteCallback) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.callbacks = append(p.callbacks, cb)
}

// Mode returns the pipeline's build mode.
func (p *Pipeline) Mode() Mode {
	return p.mode
}

// Steps returns the step names in run order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Metrics returns a snapshot of run statistics.
func (p *Pipeline) Metrics() MetricsSnapshot {
	return p.metrics.Snapshot()
}

// Run executes every step once. The first failing step aborts the run and
// write callbacks are skipped.
func (p *Pipeline) Run(ctx context.Context) Result {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	start := time.Now()
	b := &Build{Mode: p.mode, Fs: p.fs, Logger: p.logger}
	result := Result{Mode: p.mode}

	p.logger.Info(ctx, "Build started", "mode", p.mode.String())

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			result.Error = fmt.Errorf("build cancelled before %s: %w", step.Name(), err)
			break
		}
		perf := logging.StartOperation(p.logger, step.Name())
		if err := step.Execute(ctx, b); err != nil {
			perf.EndWithError(ctx, err)
			result.Error = err
			break
		}
		perf.End(ctx)
	}

	result.Duration = time.Since(start)
	if result.Error == nil {
		result.Artifacts = p.collectArtifacts(b.artifacts)
	}
	p.metrics.Record(result)

	if result.Error != nil {
		p.logger.Error(ctx, result.Error, "Build failed", "duration", result.Duration)
		return result
	}

	p.logger.Info(ctx, "Build finished", "duration", result.Duration, "artifacts", len(result.Artifacts))
	p.notify(result)
	return result
}

func (p *Pipeline) collectArtifacts(paths []string) []Artifact {
	artifacts := make([]Artifact, 0, len(paths))
	for _, path := range paths {
		info, err := p.fs.Stat(path)
		if err != nil {
			continue
		}
		artifacts = append(artifacts, Artifact{Path: path, Size: info.Size()})
	}
	return artifacts
}

func (p *Pipeline) notify(result Result) {
	p.cbMu.Lock()
	callbacks := make([]WriteCallback, len(p.callbacks))
	copy(callbacks, p.callbacks)
	p.cbMu.Unlock()

	for _, cb := range callbacks {
		cb(result)
	}
}
