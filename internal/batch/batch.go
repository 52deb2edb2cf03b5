// Package batch drives a full grading run: discover submissions, validate
// point allocation, schedule sandboxes, merge results.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nickeubank/otter-grader/api"
	"github.com/nickeubank/otter-grader/internal/aggregate"
	"github.com/nickeubank/otter-grader/internal/gatherer"
	"github.com/nickeubank/otter-grader/internal/pool"
	"github.com/nickeubank/otter-grader/internal/sandbox"
	"github.com/nickeubank/otter-grader/internal/scoring"
)

// Config is everything one grading run needs.
type Config struct {
	SubmissionsDir string
	BundleDir      string
	Concurrency    int
	Resolve        aggregate.Resolver // optional
	Extensions     []string           // submission extensions; empty means any file
}

type Runner struct {
	backend sandbox.Backend
	gath    gatherer.BatchGatherer
	logger  *slog.Logger
}

func NewRunner(backend sandbox.Backend, gath gatherer.BatchGatherer, logger *slog.Logger) *Runner {
	return &Runner{backend: backend, gath: gath, logger: logger}
}

// Run grades every submission in the configured directory and returns the
// merged final grade table, plus the per-file point totals for sinks that
// report absolute scores. Point allocation for every test file is validated
// before the first sandbox launches.
func (r *Runner) Run(ctx context.Context, cfg Config) (*aggregate.FinalGradeTable, map[string]float64, error) {
	totals, err := preflightAllocation(cfg.BundleDir)
	if err != nil {
		return nil, nil, err
	}

	jobs, err := discoverSubmissions(cfg.SubmissionsDir, cfg.Extensions)
	if err != nil {
		return nil, nil, err
	}
	r.logger.Info("discovered submissions", "count", len(jobs), "dir", cfg.SubmissionsDir)

	p, err := pool.New(r.backend, r.gath, r.logger, cfg.Concurrency)
	if err != nil {
		return nil, nil, err
	}

	r.gath.StartBatch(len(jobs), cfg.Concurrency)
	outcomes, err := p.Run(ctx, jobs)
	if err != nil {
		r.gath.FinishBatch(err)
		return nil, nil, err
	}

	inputs := make([]aggregate.Input, 0, len(outcomes))
	for _, out := range outcomes {
		in := aggregate.Input{Submission: filepath.Base(out.Job.Submission)}
		if out.State == pool.StateCompleted {
			in.Table = out.Result.Scores
		} else {
			// a failed submission contributes an empty table; the merge
			// fills its row with zeroes
			in.Table = api.NewScoreTable()
			r.logger.Warn("submission graded as zero", "submission", in.Submission, "diagnostic", out.Diagnostic)
		}
		inputs = append(inputs, in)
	}

	table, err := aggregate.Merge(inputs, cfg.Resolve)
	if err != nil {
		r.gath.FinishBatch(err)
		return nil, nil, err
	}

	r.gath.FinishBatch(nil)
	return table, totals, nil
}

// preflightAllocation parses every test file in the bundle and resolves its
// point weights, so budget violations surface before any execution happens.
func preflightAllocation(bundleDir string) (map[string]float64, error) {
	files, err := scoring.ParseDir(bundleDir)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]float64, len(files))
	for _, tf := range files {
		if err := tf.Resolve(); err != nil {
			return nil, err
		}
		totals[tf.Name] = tf.TotalPoints
	}
	return totals, nil
}

// discoverSubmissions lists submissions in stable lexical order. Row order
// of the final table follows this discovery order, not completion order.
func discoverSubmissions(dir string, extensions []string) ([]sandbox.Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions dir %s: %w", dir, err)
	}

	jobs := make([]sandbox.Job, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if len(extensions) > 0 && !hasAnyExt(e.Name(), extensions) {
			continue
		}
		jobs = append(jobs, sandbox.Job{
			ID:         uuid.NewString(),
			Submission: filepath.Join(dir, e.Name()),
		})
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("no submissions found in %s", dir)
	}
	return jobs, nil
}

func hasAnyExt(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}
