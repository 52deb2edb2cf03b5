package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/nickeubank/otter-grader/api"
)

// DockerBackend provisions one hardened container per submission. The
// container runs the grading entrypoint baked into the image ("grader exec")
// against a read-only bind of the submission and the autograder bundle, and
// writes a JSON score table to stdout.
type DockerBackend struct {
	cli    *client.Client
	cfg    Config
	logger *slog.Logger
}

func NewDockerBackend(logger *slog.Logger, cfg Config) (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &LaunchError{Image: cfg.Image, Err: err}
	}
	return &DockerBackend{cli: cli, cfg: cfg, logger: logger}, nil
}

// EnsureImage pulls the grading image if it is not present locally. Called
// once before the batch starts; an error here is batch-fatal.
func (b *DockerBackend) EnsureImage(ctx context.Context) error {
	_, _, err := b.cli.ImageInspectWithRaw(ctx, b.cfg.Image)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return &LaunchError{Image: b.cfg.Image, Err: err}
	}

	b.logger.Info("pulling grading image", "image", b.cfg.Image)
	rc, err := b.cli.ImagePull(ctx, b.cfg.Image, image.PullOptions{})
	if err != nil {
		return &LaunchError{Image: b.cfg.Image, Err: err}
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return &LaunchError{Image: b.cfg.Image, Err: err}
	}
	return nil
}

func (b *DockerBackend) Acquire(ctx context.Context, job Job) (Instance, error) {
	pidsLimit := int64(64)

	submissionAbs, err := filepath.Abs(job.Submission)
	if err != nil {
		return nil, &LaunchError{Image: b.cfg.Image, Err: err}
	}
	bundleAbs, err := filepath.Abs(b.cfg.BundleDir)
	if err != nil {
		return nil, &LaunchError{Image: b.cfg.Image, Err: err}
	}

	resp, err := b.cli.ContainerCreate(ctx, &container.Config{
		Image:           b.cfg.Image,
		Cmd:             []string{"grader", "exec", "--dir", "/autograder"},
		Tty:             false,
		NetworkDisabled: true,
		WorkingDir:      "/autograder",
	}, &container.HostConfig{
		Resources: container.Resources{
			Memory:     2 << 30,
			MemorySwap: 2 << 30,
			CPUQuota:   100000,
			PidsLimit:  &pidsLimit,
		},
		NetworkMode: "none",
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		Binds: []string{
			fmt.Sprintf("%s:/autograder/submission/%s:ro", submissionAbs, filepath.Base(job.Submission)),
			fmt.Sprintf("%s:/autograder/bundle:ro", bundleAbs),
		},
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=64m,mode=1777",
		},
	}, nil, nil, "")
	if err != nil {
		return nil, &LaunchError{Image: b.cfg.Image, Err: fmt.Errorf("failed to create container: %w", err)}
	}

	b.logger.Debug("acquired sandbox", "job", job.ID, "container", resp.ID[:12])

	return &dockerInstance{
		backend:     b,
		job:         job,
		containerID: resp.ID,
	}, nil
}

type dockerInstance struct {
	backend     *DockerBackend
	job         Job
	containerID string
}

func (s *dockerInstance) Run(ctx context.Context) error {
	cfg := s.backend.cfg
	cli := s.backend.cli

	runCtx, cancel := context.WithTimeout(ctx, cfg.timeout())
	defer cancel()

	if err := cli.ContainerStart(runCtx, s.containerID, container.StartOptions{}); err != nil {
		return &ExecutionFailure{Job: s.job.ID, Err: fmt.Errorf("failed to start container: %w", err)}
	}

	waitCh, errCh := cli.ContainerWait(runCtx, s.containerID, container.WaitConditionNotRunning)
	select {
	case status := <-waitCh:
		if status.StatusCode != 0 {
			return &ExecutionFailure{Job: s.job.ID, ExitCode: int(status.StatusCode)}
		}
		return nil
	case err := <-errCh:
		return &ExecutionFailure{Job: s.job.ID, Err: err}
	case <-runCtx.Done():
		// timeout or batch abort; the container is killed on release
		return &ExecutionFailure{Job: s.job.ID, Err: runCtx.Err()}
	}
}

func (s *dockerInstance) Collect(ctx context.Context) (*Result, error) {
	cli := s.backend.cli

	logs, err := cli.ContainerLogs(ctx, s.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, &ExecutionFailure{Job: s.job.ID, Err: fmt.Errorf("failed to collect container logs: %w", err)}
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return nil, &ExecutionFailure{Job: s.job.ID, Err: fmt.Errorf("failed to demux container logs: %w", err)}
	}

	var scores api.ScoreTable
	if err := json.Unmarshal(stdout.Bytes(), &scores); err != nil {
		return nil, &ExecutionFailure{Job: s.job.ID, Err: fmt.Errorf("grader produced no parsable score table: %w", err)}
	}
	if err := scores.Validate(); err != nil {
		return nil, &ExecutionFailure{Job: s.job.ID, Err: err}
	}

	res := &Result{Scores: scores}
	if s.backend.cfg.Debug {
		res.Console = stderr.String()
	}
	return res, nil
}

func (s *dockerInstance) Release(ctx context.Context) error {
	if s.backend.cfg.KeepAlive {
		s.backend.logger.Info("keeping sandbox for inspection", "job", s.job.ID, "container", s.containerID[:12])
		return nil
	}
	// background context: release must happen even when the batch ctx is
	// already cancelled
	err := s.backend.cli.ContainerRemove(context.Background(), s.containerID, container.RemoveOptions{Force: true})
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %w", s.containerID[:12], err)
	}
	return nil
}
