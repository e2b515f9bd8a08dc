// Package pipeline sequences a full bootstrap run: connect, schema, tables,
// data load, constraints, indices, summary.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"omop-lite/internal/cdm"
	"omop-lite/internal/config"
	"omop-lite/internal/db"
	"omop-lite/internal/dialect"
	"omop-lite/internal/engine"
	"omop-lite/internal/schema"
)

// State is the terminal state of a run.
type State string

const (
	Success        State = "Success"
	PartialFailure State = "PartialFailure"
	Fatal          State = "Fatal"
)

// Report is the outcome of one run.
type Report struct {
	State              State
	Phase              string // phase that failed, for Fatal runs
	Jobs               []*engine.LoadJob
	ConstraintsSkipped bool
	Err                error
	Elapsed            time.Duration
}

// Failed returns the failed load jobs.
func (r *Report) Failed() []*engine.LoadJob {
	return engine.Failures(r.Jobs)
}

// Progress receives load progress. Start is called once with the number of
// files, Step once per finished file.
type Progress interface {
	Start(total int)
	Step(job *engine.LoadJob)
	Stop()
}

// ConnectFunc opens the run's database session.
type ConnectFunc func(ctx context.Context, cfg *config.RunConfig, d dialect.Dialect, logger *slog.Logger) (*db.Session, error)

// Orchestrator runs the phases of a bootstrap in strict order.
type Orchestrator struct {
	cfg      *config.RunConfig
	logger   *slog.Logger
	connect  ConnectFunc
	progress Progress
}

type Option func(*Orchestrator)

// WithConnect replaces db.Open.
func WithConnect(fn ConnectFunc) Option {
	return func(o *Orchestrator) { o.connect = fn }
}

func WithProgress(p Progress) Option {
	return func(o *Orchestrator) { o.progress = p }
}

func New(cfg *config.RunConfig, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	o := &Orchestrator{cfg: cfg, logger: logger, connect: db.Open}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the whole pipeline. The report is always returned. The error
// is nil only for Success; PartialFailure returns cdm.ErrPartialLoad.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}
	defer func() { report.Elapsed = time.Since(start) }()

	fail := func(phase string, err error) (*Report, error) {
		report.State = Fatal
		report.Phase = phase
		report.Err = err
		o.logger.Error("run aborted", "phase", phase, "error", err)
		return report, err
	}

	d, err := dialect.GetDialect(o.cfg.Dialect)
	if err != nil {
		return fail("configure", err)
	}
	specs, err := schema.LoadSpecs(d, o.cfg.Schema)
	if err != nil {
		return fail("configure", fmt.Errorf("%w: %v", cdm.ErrSchema, err))
	}
	cfg, cleanup, err := engine.PrepareSource(o.cfg, specs, o.logger)
	if err != nil {
		return fail("configure", err)
	}
	defer cleanup()
	if err := cfg.CheckSource(); err != nil {
		return fail("configure", err)
	}

	session, err := o.connect(ctx, cfg, d, o.logger)
	if err != nil {
		return fail("connect", err)
	}
	defer session.Close()

	applier := engine.NewApplier(session, cfg, o.logger)
	if err := applier.ApplySchema(ctx); err != nil {
		return fail("schema", err)
	}

	loader := engine.NewLoader(session, cfg, specs, o.logger)
	jobs, err := loader.Plan()
	if err != nil {
		return fail("load", err)
	}
	report.Jobs = jobs

	var step func(*engine.LoadJob)
	if o.progress != nil {
		o.progress.Start(len(jobs))
		step = o.progress.Step
	}
	err = loader.Execute(ctx, jobs, step)
	if o.progress != nil {
		o.progress.Stop()
	}
	if err != nil {
		return fail("load", err)
	}

	failed := report.Failed()
	if len(failed) > 0 && cfg.SkipConstraintsOnFailure {
		o.logger.Warn("skipping constraints and indices after load failures", "failed", len(failed))
		report.ConstraintsSkipped = true
	} else {
		if err := applier.ApplyConstraints(ctx); err != nil {
			return fail("constraints", err)
		}
		if err := applier.ApplyIndices(ctx); err != nil {
			return fail("indices", err)
		}
	}

	if len(failed) > 0 {
		report.State = PartialFailure
		report.Err = fmt.Errorf("%w: %d of %d files failed", cdm.ErrPartialLoad, len(failed), len(jobs))
		o.logger.Warn("run finished with load failures", "failed", len(failed), "files", len(jobs))
		return report, report.Err
	}

	report.State = Success
	o.logger.Info("run finished", "files", len(jobs))
	return report, nil
}
