package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nickeubank/otter-grader/api"
	"github.com/nickeubank/otter-grader/internal/scoring"
)

// LocalBackend grades submissions in per-job temp directories on the host.
// Each job gets a private filesystem namespace; case bodies are executed as
// shell commands inside it. Intended for development and trusted setups
// where the Docker backend is unavailable.
type LocalBackend struct {
	cfg    Config
	logger *slog.Logger
}

func NewLocalBackend(logger *slog.Logger, cfg Config) *LocalBackend {
	return &LocalBackend{cfg: cfg, logger: logger}
}

func (b *LocalBackend) Acquire(ctx context.Context, job Job) (Instance, error) {
	dir, err := os.MkdirTemp("", "grader-box-"+uuid.NewString()[:8]+"-*")
	if err != nil {
		return nil, &LaunchError{Err: fmt.Errorf("failed to create sandbox dir: %w", err)}
	}

	if err := copyFile(job.Submission, filepath.Join(dir, filepath.Base(job.Submission))); err != nil {
		_ = os.RemoveAll(dir)
		return nil, &LaunchError{Err: fmt.Errorf("failed to stage submission: %w", err)}
	}

	b.logger.Debug("acquired sandbox", "job", job.ID, "dir", dir)

	return &localInstance{backend: b, job: job, dir: dir}, nil
}

type localInstance struct {
	backend *LocalBackend
	job     Job
	dir     string

	scores  api.ScoreTable
	console strings.Builder
	ran     bool
}

func (s *localInstance) Run(ctx context.Context) error {
	cfg := s.backend.cfg

	runCtx, cancel := context.WithTimeout(ctx, cfg.timeout())
	defer cancel()

	scores, err := GradeInPlace(runCtx, s.dir, cfg.BundleDir, &s.console)
	if err != nil {
		return &ExecutionFailure{Job: s.job.ID, Err: err}
	}
	s.scores = scores
	s.ran = true
	return nil
}

func (s *localInstance) Collect(ctx context.Context) (*Result, error) {
	if !s.ran {
		return nil, &ExecutionFailure{Job: s.job.ID, Err: fmt.Errorf("sandbox has no results to collect")}
	}
	res := &Result{Scores: s.scores}
	if s.backend.cfg.Debug {
		res.Console = s.console.String()
	}
	return res, nil
}

func (s *localInstance) Release(ctx context.Context) error {
	if s.backend.cfg.KeepAlive {
		s.backend.logger.Info("keeping sandbox dir for inspection", "job", s.job.ID, "dir", s.dir)
		return nil
	}
	return os.RemoveAll(s.dir)
}

// GradeInPlace grades the submission staged in workDir against the bundle's
// test files and returns one score column per test file. It is the grading
// entrypoint shared by the local backend and the in-container "grader exec"
// command. Allocation errors surface before any case executes.
func GradeInPlace(ctx context.Context, workDir, bundleDir string, console io.Writer) (api.ScoreTable, error) {
	files, err := scoring.ParseDir(bundleDir)
	if err != nil {
		return api.ScoreTable{}, err
	}
	for _, tf := range files {
		if err := tf.Resolve(); err != nil {
			return api.ScoreTable{}, err
		}
	}

	runner := &shellCaseRunner{dir: workDir, console: console}

	scores := api.NewScoreTable()
	for _, tf := range files {
		if err := tf.Run(ctx, runner); err != nil {
			return api.ScoreTable{}, err
		}
		if console != nil {
			fmt.Fprint(console, scoring.Summary(tf))
		}
		scores.Set(tf.Name, tf.Grade)
	}
	return scores, nil
}

// shellCaseRunner executes case bodies with /bin/sh. Exit status zero means
// the case passed; anything else fails with the trimmed output as message.
type shellCaseRunner struct {
	dir     string
	console io.Writer
}

func (r *shellCaseRunner) RunCase(ctx context.Context, c scoring.TestCase) (bool, string, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", c.Body)
	cmd.Dir = r.dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if r.console != nil && out.Len() > 0 {
		fmt.Fprintf(r.console, "[%s] %s", c.Name, out.String())
	}
	if ctx.Err() != nil {
		return false, "", fmt.Errorf("test case %s timed out: %w", c.Name, ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, strings.TrimSpace(out.String()), nil
		}
		return false, "", err
	}
	return true, strings.TrimSpace(out.String()), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
