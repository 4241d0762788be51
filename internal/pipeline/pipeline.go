package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/streamscout/internal/model"
)

// Step is one stage of a run. Steps run in sequence and fill in their part
// of the shared Run: discovery appends channels, resolution fills the
// result set, the final steps serialize and store it.
type Step interface {
	// Do executes the step. A returned error is fatal to the run unless the
	// pipeline continues on error; non-fatal problems are logged and nil is
	// returned.
	Do(ctx context.Context, run *model.Run) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// FinalStep marks a step that must run even after the run context ends,
// so a timed-out run still persists and writes what it collected.
type FinalStep interface {
	Step

	// Final reports whether the step runs after cancellation. Steps are
	// executed with a context detached from the run's cancellation.
	Final() bool
}

// Pipeline orchestrates the execution of steps.
// It keeps the steps in the order they were added and runs them one by
// one against a single Run.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError keeps regular steps running after one fails.
	// Final steps run either way.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps executing steps after one fails. The first
// error is still recorded on the Run and returned by Execute.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps are added with AddStep or AddSteps afterwards.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	// Apply options
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs the steps in order.
//
// After ctx ends, regular steps are skipped and final steps run with a
// context detached from the cancellation. A deadline marks the run as
// timed out. Execute returns the first fatal step error, or ctx.Err()
// when the run was cut short.
func (p *Pipeline) Execute(ctx context.Context, run *model.Run) error {
	var firstErr error
	stopped := false

	for _, step := range p.steps {
		final := isFinal(step)
		stepCtx := ctx

		// Once the run context is done only final steps run, detached
		// from the cancellation.
		if ctx.Err() != nil {
			p.markCancelled(ctx, run, step)
			if !final {
				continue
			}
			stepCtx = context.WithoutCancel(ctx)
		}
		if stopped && !final {
			continue
		}

		p.logger.Info("executing step", "step", step.Name(), "site", run.BaseURL)

		if err := step.Do(stepCtx, run); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"site", run.BaseURL,
				"error", err,
			)
			if run.Error == "" {
				run.Error = err.Error()
			}
			if firstErr == nil {
				firstErr = err
			}
			if !p.continueOnError {
				stopped = true
			}
			continue
		}

		p.logger.Debug("step completed", "step", step.Name())
		run.AddStep(step.Name())
	}

	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// markCancelled records why the run stopped: a deadline sets TimedOut,
// any other cancellation becomes the run error.
func (p *Pipeline) markCancelled(ctx context.Context, run *model.Run, step Step) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if !run.TimedOut {
			p.logger.Warn("run timed out", "step", step.Name())
		}
		run.TimedOut = true
		return
	}
	if run.Error == "" {
		p.logger.Warn("pipeline cancelled", "step", step.Name(), "reason", ctx.Err())
		run.Error = ctx.Err().Error()
	}
}

// isFinal reports whether step opted into running after cancellation.
func isFinal(step Step) bool {
	f, ok := step.(FinalStep)
	return ok && f.Final()
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
