package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"

	"github.com/nickeubank/otter-grader/internal/aggregate"
	"github.com/nickeubank/otter-grader/internal/batch"
	"github.com/nickeubank/otter-grader/internal/environment"
	"github.com/nickeubank/otter-grader/internal/gatherer"
	"github.com/nickeubank/otter-grader/internal/gatherer/natsgath"
	"github.com/nickeubank/otter-grader/internal/gatherer/sqsgath"
	"github.com/nickeubank/otter-grader/internal/gatherer/termgath"
	"github.com/nickeubank/otter-grader/internal/sandbox"
	"github.com/nickeubank/otter-grader/internal/sink"
)

func main() {
	root := &cli.Command{
		Name:  "grader",
		Usage: "grade a directory of submissions in isolated sandboxes",
		Commands: []*cli.Command{
			runCommand(),
			execCommand(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "grade every submission in a directory and write final_grades.csv",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Value: "./submissions", Usage: "directory of submissions to grade"},
			&cli.StringFlag{Name: "autograder", Aliases: []string{"a"}, Value: "./autograder", Usage: "autograder bundle directory, or an https URL to a zipped bundle"},
			&cli.StringFlag{Name: "autograder-sha", Usage: "sha256 of the remote bundle, required with an https autograder"},
			&cli.StringSliceFlag{Name: "ext", Usage: "only grade submissions with these extensions"},
			&cli.IntFlag{Name: "containers", Aliases: []string{"c"}, Value: 4, Usage: "number of sandboxes to run in parallel"},
			&cli.StringFlag{Name: "image", Value: "otter-grader:latest", Usage: "grading image for the docker backend"},
			&cli.StringFlag{Name: "backend", Value: "docker", Usage: "sandbox backend: docker or local"},
			&cli.DurationFlag{Name: "timeout", Value: 10 * time.Minute, Usage: "per-submission execution timeout"},
			&cli.BoolFlag{Name: "no-kill", Usage: "keep sandboxes around after grading for inspection"},
			&cli.BoolFlag{Name: "debug", Usage: "verbose logging and sandbox console capture"},
			&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Value: ".", Usage: "directory for final_grades.csv"},
			&cli.BoolFlag{Name: "points", Usage: "report absolute point values instead of fractions"},
			&cli.StringFlag{Name: "metadata", Aliases: []string{"m"}, Usage: "JSON file mapping submission filenames to student identifiers"},
		},
		Action: runAction,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	logger := newLogger(cmd.Bool("debug"))
	env := environment.ReadEnvConfig()
	batchUuid := uuid.NewString()

	bundleDir, err := resolveBundleDir(logger, env.AWSRegion,
		cmd.String("autograder"), cmd.String("autograder-sha"))
	if err != nil {
		return err
	}

	resolve, err := loadResolver(cmd.String("metadata"))
	if err != nil {
		return err
	}

	sandboxCfg := sandbox.Config{
		Image:     cmd.String("image"),
		BundleDir: bundleDir,
		KeepAlive: cmd.Bool("no-kill"),
		Debug:     cmd.Bool("debug"),
		Timeout:   cmd.Duration("timeout"),
	}

	backend, err := newBackend(ctx, logger, cmd.String("backend"), sandboxCfg)
	if err != nil {
		return err
	}

	gath, err := newGatherer(env, batchUuid)
	if err != nil {
		return err
	}

	runner := batch.NewRunner(backend, gath, logger)
	table, totals, err := runner.Run(ctx, batch.Config{
		SubmissionsDir: cmd.String("path"),
		BundleDir:      bundleDir,
		Concurrency:    int(cmd.Int("containers")),
		Resolve:        resolve,
		Extensions:     cmd.StringSlice("ext"),
	})
	if err != nil {
		return err
	}

	csvPath := filepath.Join(cmd.String("output-dir"), "final_grades.csv")
	csvSink := &sink.CSVSink{Path: csvPath, Absolute: cmd.Bool("points"), Totals: totals}
	if err := csvSink.Write(table); err != nil {
		return err
	}
	logger.Info("wrote final grades", "path", csvPath, "rows", len(table.Rows))

	if env.SqlxConnString != "" {
		pg, err := sink.NewPostgresSink(env.SqlxConnString, batchUuid)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Write(table); err != nil {
			return err
		}
		logger.Info("persisted final grades", "batch", batchUuid)
	}

	return nil
}

// execCommand is the in-sandbox entrypoint. The docker backend invokes it as
// the container command; it grades the staged submission against the bundle
// and prints the score table as JSON on stdout. Progress goes to stderr so
// stdout stays machine-readable.
func execCommand() *cli.Command {
	return &cli.Command{
		Name:  "exec",
		Usage: "grade a single staged submission (sandbox entrypoint)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Value: "/autograder", Usage: "work directory holding submission/ and bundle/"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir := cmd.String("dir")
			scores, err := sandbox.GradeInPlace(ctx,
				filepath.Join(dir, "submission"),
				filepath.Join(dir, "bundle"),
				os.Stderr)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(scores)
		},
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

func newBackend(ctx context.Context, logger *slog.Logger, kind string, cfg sandbox.Config) (sandbox.Backend, error) {
	switch kind {
	case "docker":
		backend, err := sandbox.NewDockerBackend(logger, cfg)
		if err != nil {
			return nil, err
		}
		if err := backend.EnsureImage(ctx); err != nil {
			return nil, err
		}
		return backend, nil
	case "local":
		return sandbox.NewLocalBackend(logger, cfg), nil
	}
	return nil, fmt.Errorf("unknown backend %q, expected docker or local", kind)
}

func newGatherer(env *environment.EnvConfig, batchUuid string) (gatherer.BatchGatherer, error) {
	gatherers := gatherer.Multi{termgath.New()}

	if env.NatsURL != "" {
		nc, err := nats.Connect(env.NatsURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		subject := fmt.Sprintf("grader.results.%s", batchUuid)
		gatherers = append(gatherers, natsgath.New(nc, batchUuid, subject))
	}

	if env.SqsResultQueue != "" {
		gatherers = append(gatherers,
			sqsgath.NewSqsResultQueueGatherer(batchUuid, env.SqsResultQueue, env.AWSRegion))
	}

	return gatherers, nil
}

// loadResolver reads a JSON object of filename to identifier mappings. A
// submission absent from the file fails the batch at merge time.
func loadResolver(path string) (aggregate.Resolver, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file %s: %w", path, err)
	}
	var roster map[string]string
	if err := json.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to parse metadata file %s: %w", path, err)
	}
	return func(filename string) (string, error) {
		id, ok := roster[filename]
		if !ok {
			return "", fmt.Errorf("%s is not present in %s", filename, path)
		}
		return id, nil
	}, nil
}
