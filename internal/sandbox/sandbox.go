// Package sandbox abstracts the lifecycle of an isolated execution
// environment for exactly one submission: acquire, run, collect, release.
// The scheduler in internal/pool is portable across backends; Docker and a
// plain-process backend are provided.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/nickeubank/otter-grader/api"
)

// Job is one queued submission to grade.
type Job struct {
	ID         string // uuid assigned at discovery
	Submission string // path to the student's artifact
}

func (j Job) Ref() api.JobRef {
	return api.JobRef{JobUuid: j.ID, Submission: j.Submission}
}

// Config is the read-only configuration shared by all sandboxes in a batch.
type Config struct {
	Image     string // base grading image (Docker backend)
	BundleDir string // autograder bundle: test files + setup
	KeepAlive bool   // skip teardown after completion, for post-hoc inspection
	Debug     bool   // capture per-sandbox console output
	Timeout   time.Duration
}

const DefaultTimeout = 10 * time.Minute

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// Result is what a sandbox hands back after a completed run.
type Result struct {
	Scores    api.ScoreTable
	Console   string   // captured output, populated only under Config.Debug
	Artifacts []string // paths of exported artifacts, e.g. rendered documents
}

// Backend provisions sandboxes. An error from Acquire is infrastructure
// level and wrapped in *LaunchError; it aborts the whole batch.
type Backend interface {
	Acquire(ctx context.Context, job Job) (Instance, error)
}

// Instance is a private sandbox bound to one job. Release must be called on
// every exit path; under keep-alive it leaves the environment in place for
// inspection but still frees backend bookkeeping.
type Instance interface {
	Run(ctx context.Context) error
	Collect(ctx context.Context) (*Result, error)
	Release(ctx context.Context) error
}

// LaunchError reports that the infrastructure could not provision a sandbox
// at all (missing image, unreachable daemon). Batch-fatal.
type LaunchError struct {
	Image string
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch sandbox (image %q): %v", e.Image, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ExecutionFailure reports that a single submission's run crashed, timed out
// or exited abnormally. Submission-local: recorded as a zero score, the
// batch continues.
type ExecutionFailure struct {
	Job      string
	ExitCode int
	Err      error
}

func (e *ExecutionFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submission %s failed: %v", e.Job, e.Err)
	}
	return fmt.Sprintf("submission %s exited with code %d", e.Job, e.ExitCode)
}

func (e *ExecutionFailure) Unwrap() error { return e.Err }
