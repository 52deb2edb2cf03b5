package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickeubank/otter-grader/internal/aggregate"
	"github.com/nickeubank/otter-grader/internal/gatherer"
	"github.com/nickeubank/otter-grader/internal/sandbox"
	"github.com/nickeubank/otter-grader/internal/scoring"
)

const q1Toml = `
name = "q1"
total_points = 4

[[cases]]
name = "q1-1"
body = "grep -q alpha *.txt"

[[cases]]
name = "q1-2"
body = "grep -q beta *.txt"
`

const q2Toml = `
name = "q2"
total_points = 2
all_or_nothing = true

[[cases]]
name = "q2-1"
body = "grep -q gamma *.txt"
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeBundle(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	return dir
}

func writeSubmissions(t *testing.T, contents map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range contents {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
	}
	return dir
}

func newTestRunner() *Runner {
	backend := sandbox.NewLocalBackend(testLogger(), sandbox.Config{})
	return NewRunner(backend, gatherer.Discard{}, testLogger())
}

func TestRunEndToEnd(t *testing.T) {
	bundle := writeBundle(t, map[string]string{"q1.toml": q1Toml, "q2.toml": q2Toml})
	subs := writeSubmissions(t, map[string]string{
		"alice.txt": "alpha beta gamma",
		"bob.txt":   "alpha",
		"carol.txt": "nothing relevant",
	})

	roster := map[string]string{
		"alice.txt": "s001",
		"bob.txt":   "s002",
		"carol.txt": "s003",
	}
	resolve := func(filename string) (string, error) {
		id, ok := roster[filename]
		if !ok {
			return "", fmt.Errorf("not on roster: %s", filename)
		}
		return id, nil
	}

	table, totals, err := newTestRunner().Run(context.Background(), Config{
		SubmissionsDir: subs,
		BundleDir:      bundle,
		Concurrency:    1,
		Resolve:        resolve,
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]float64{"q1": 4, "q2": 2}, totals)
	assert.Equal(t, []string{"q1", "q2"}, table.Columns)
	assert.True(t, table.HasIdentifier)

	require.Len(t, table.Rows, 3)
	assert.Equal(t, "alice.txt", table.Rows[0].Submission)
	assert.Equal(t, "bob.txt", table.Rows[1].Submission)
	assert.Equal(t, "carol.txt", table.Rows[2].Submission)

	assert.Equal(t, "s001", table.Rows[0].Identifier)
	assert.Equal(t, "s002", table.Rows[1].Identifier)
	assert.Equal(t, "s003", table.Rows[2].Identifier)

	assert.InDelta(t, 1.0, table.Rows[0].Scores["q1"], 1e-9)
	assert.InDelta(t, 1.0, table.Rows[0].Scores["q2"], 1e-9)
	assert.InDelta(t, 0.5, table.Rows[1].Scores["q1"], 1e-9)
	assert.InDelta(t, 0.0, table.Rows[1].Scores["q2"], 1e-9)
	assert.InDelta(t, 0.0, table.Rows[2].Scores["q1"], 1e-9)
	assert.InDelta(t, 0.0, table.Rows[2].Scores["q2"], 1e-9)
}

func TestRunWithoutResolver(t *testing.T) {
	bundle := writeBundle(t, map[string]string{"q1.toml": q1Toml})
	subs := writeSubmissions(t, map[string]string{"alice.txt": "alpha beta"})

	table, _, err := newTestRunner().Run(context.Background(), Config{
		SubmissionsDir: subs,
		BundleDir:      bundle,
		Concurrency:    2,
	})
	require.NoError(t, err)

	assert.False(t, table.HasIdentifier)
	require.Len(t, table.Rows, 1)
	assert.Empty(t, table.Rows[0].Identifier)
}

func TestRunUnresolvedSubmissionIsFatal(t *testing.T) {
	bundle := writeBundle(t, map[string]string{"q1.toml": q1Toml})
	subs := writeSubmissions(t, map[string]string{"stranger.txt": "alpha"})

	resolve := func(filename string) (string, error) {
		return "", fmt.Errorf("not on roster: %s", filename)
	}

	_, _, err := newTestRunner().Run(context.Background(), Config{
		SubmissionsDir: subs,
		BundleDir:      bundle,
		Concurrency:    1,
		Resolve:        resolve,
	})
	require.Error(t, err)

	var resolveErr *aggregate.ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.Equal(t, "stranger.txt", resolveErr.Submission)
}

func TestRunAllocationErrorBeforeExecution(t *testing.T) {
	const overallocated = `
name = "q1"
total_points = 3

[[cases]]
name = "q1-1"
body = "exit 0"
points = 2

[[cases]]
name = "q1-2"
body = "exit 0"
points = 2
`
	bundle := writeBundle(t, map[string]string{"q1.toml": overallocated})
	subs := writeSubmissions(t, map[string]string{"alice.txt": "alpha"})

	_, _, err := newTestRunner().Run(context.Background(), Config{
		SubmissionsDir: subs,
		BundleDir:      bundle,
		Concurrency:    1,
	})
	require.Error(t, err)

	var overErr *scoring.OverallocatedError
	assert.ErrorAs(t, err, &overErr)
}

func TestRunFiltersByExtension(t *testing.T) {
	bundle := writeBundle(t, map[string]string{"q1.toml": q1Toml})
	subs := writeSubmissions(t, map[string]string{
		"alice.txt":   "alpha beta",
		"notes.md":    "not a submission",
		".hidden.txt": "alpha",
	})

	table, _, err := newTestRunner().Run(context.Background(), Config{
		SubmissionsDir: subs,
		BundleDir:      bundle,
		Concurrency:    1,
		Extensions:     []string{".txt"},
	})
	require.NoError(t, err)

	require.Len(t, table.Rows, 1)
	assert.Equal(t, "alice.txt", table.Rows[0].Submission)
}

func TestRunEmptySubmissionsDir(t *testing.T) {
	bundle := writeBundle(t, map[string]string{"q1.toml": q1Toml})
	subs := t.TempDir()

	_, _, err := newTestRunner().Run(context.Background(), Config{
		SubmissionsDir: subs,
		BundleDir:      bundle,
		Concurrency:    1,
	})
	assert.ErrorContains(t, err, "no submissions")
}
