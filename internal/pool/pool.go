// Package pool schedules submissions across a bounded number of concurrent
// sandbox workers. One coordinator dispatches jobs FIFO; a worker slot is
// reused as soon as any running job completes. A single submission's crash
// is recorded and the batch continues; an infrastructure launch failure
// aborts the batch and cancels everything in flight.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/nickeubank/otter-grader/internal/gatherer"
	"github.com/nickeubank/otter-grader/internal/sandbox"
)

// JobState is the lifecycle state of one submission job.
type JobState string

const (
	StateQueued    JobState = "queued"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// Outcome is a terminal job with its attached result or failure diagnostic.
type Outcome struct {
	Job        sandbox.Job
	State      JobState
	Slot       int
	Result     *sandbox.Result // nil when State == StateFailed
	Diagnostic string          // populated when State == StateFailed
}

type Pool struct {
	backend sandbox.Backend
	gath    gatherer.BatchGatherer
	logger  *slog.Logger
	limit   int
}

func New(backend sandbox.Backend, gath gatherer.BatchGatherer, logger *slog.Logger, limit int) (*Pool, error) {
	if limit < 1 {
		return nil, fmt.Errorf("concurrency limit must be positive, got %d", limit)
	}
	return &Pool{backend: backend, gath: gath, logger: logger, limit: limit}, nil
}

// Run grades all jobs and returns their outcomes in submission order. The
// returned error is non-nil only for batch-fatal conditions (sandbox launch
// failure or external cancellation); in that case no outcomes are returned
// and every in-flight sandbox has been released.
func (p *Pool) Run(ctx context.Context, jobs []sandbox.Job) ([]Outcome, error) {
	results := xsync.NewMapOf[string, Outcome]()

	slots := make(chan int, p.limit)
	for i := 0; i < p.limit; i++ {
		slots <- i
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if gctx.Err() != nil {
				// batch already aborted, leave the job queued
				return nil
			}
			slot := <-slots
			defer func() { slots <- slot }()

			outcome := p.runJob(gctx, job, slot)
			if outcome.fatal != nil {
				return outcome.fatal
			}
			results.Store(job.ID, outcome.Outcome)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// external cancellation: jobs that never started produce no
		// outcome, so partial results are discarded rather than returned
		// as a completed batch
		return nil, err
	}

	ordered := make([]Outcome, 0, len(jobs))
	for _, job := range jobs {
		if out, ok := results.Load(job.ID); ok {
			ordered = append(ordered, out)
		}
	}
	return ordered, nil
}

// jobOutcome pairs an Outcome with a batch-fatal error, which takes
// precedence over the outcome itself.
type jobOutcome struct {
	Outcome
	fatal error
}

// runJob drives one job through acquire/run/collect/release. Local failures
// (crash, timeout, bad exit) become failed outcomes; only launch errors are
// fatal. A panic anywhere inside is converted into a failed outcome so one
// submission can never take the batch down.
func (p *Pool) runJob(ctx context.Context, job sandbox.Job, slot int) (out jobOutcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while grading submission", "job", job.ID, "panic", r)
			out = jobOutcome{Outcome: p.failedOutcome(job, slot, fmt.Sprintf("panic: %v", r))}
		}
	}()

	p.gath.StartJob(job.Ref(), slot)
	p.logger.Info("grading submission", "job", job.ID, "submission", job.Submission, "slot", slot)

	inst, err := p.backend.Acquire(ctx, job)
	if err != nil {
		var launchErr *sandbox.LaunchError
		if errors.As(err, &launchErr) {
			p.logger.Error("sandbox launch failed, aborting batch", "job", job.ID, "error", err)
			return jobOutcome{fatal: err}
		}
		return jobOutcome{Outcome: p.failedOutcome(job, slot, err.Error())}
	}
	defer func() {
		if relErr := inst.Release(context.Background()); relErr != nil {
			p.logger.Warn("failed to release sandbox", "job", job.ID, "error", relErr)
		}
	}()

	if err := inst.Run(ctx); err != nil {
		return jobOutcome{Outcome: p.failedOutcome(job, slot, err.Error())}
	}

	res, err := inst.Collect(ctx)
	if err != nil {
		return jobOutcome{Outcome: p.failedOutcome(job, slot, err.Error())}
	}

	p.gath.FinishJob(job.Ref(), res.Scores)
	p.logger.Info("submission graded", "job", job.ID, "columns", len(res.Scores.Columns))
	return jobOutcome{Outcome: Outcome{
		Job:    job,
		State:  StateCompleted,
		Slot:   slot,
		Result: res,
	}}
}

func (p *Pool) failedOutcome(job sandbox.Job, slot int, diagnostic string) Outcome {
	p.gath.FailJob(job.Ref(), diagnostic)
	p.logger.Warn("submission failed", "job", job.ID, "diagnostic", diagnostic)
	return Outcome{
		Job:        job,
		State:      StateFailed,
		Slot:       slot,
		Diagnostic: diagnostic,
	}
}
