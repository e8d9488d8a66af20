package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/darkcrawl/internal/database"
	"github.com/nao1215/darkcrawl/internal/model"
)

// Job is one fetched page travelling through the pipeline. Steps read the
// page and fill in what they produce.
type Job struct {
	// Candidate is the crawl unit the page was fetched for.
	Candidate model.Candidate

	// Page is the fetched response.
	Page *model.PageResult

	// Links are the outgoing edges found by discovery.
	Links []database.Link

	// Facts are the correlation facts of the page.
	Facts []model.CorrelationFact

	// Admitted counts discovered candidates the frontier queued.
	Admitted int

	// Discovered are the candidates the frontier queued, stored with the
	// page.
	Discovered []model.Candidate

	// Performed lists the steps that ran, in order.
	Performed []string

	// Err is the first step error.
	Err error
}

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, each receiving the job as the previous
// steps left it.
//
// Design decision: We use an interface rather than function types because:
// 1. It allows steps to carry their dependencies (engines, store)
// 2. It provides a Name() method for logging and debugging
// 3. Tests can swap a single step for a fake
type Step interface {
	// Do executes the pipeline step.
	// Returns an error if the step fails critically; non-critical errors
	// should be logged and return nil.
	Do(ctx context.Context, job *Job) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
// It maintains a list of steps and executes them in order.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. The first error is still recorded in the job.
//
// Design decision: The default is to stop on error because a failed
// persistence must not be followed by anything that assumes the page was
// stored.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence.
//
// Design decision: We check ctx before each step rather than during,
// because steps should handle their own timeouts. Callers that must finish
// a page during shutdown pass a context detached from cancellation.
//
// Returns the first error encountered if continueOnError is false,
// or nil if all steps complete (errors are recorded in the job).
func (p *Pipeline) Execute(ctx context.Context, job *Job) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"address", job.Candidate.CanonicalAddress,
				"reason", err,
			)
			if job.Err == nil {
				job.Err = err
			}
			return err
		}

		if err := step.Do(ctx, job); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"address", job.Candidate.CanonicalAddress,
				"error", err,
			)

			if job.Err == nil {
				job.Err = err
			}
			if !p.continueOnError {
				return err
			}
		} else {
			p.logger.Debug("step completed",
				"step", step.Name(),
				"address", job.Candidate.CanonicalAddress,
			)
		}

		job.Performed = append(job.Performed, step.Name())
	}

	return nil
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
