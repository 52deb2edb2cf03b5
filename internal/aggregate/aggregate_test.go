package aggregate_test

import (
	"fmt"
	"testing"

	"github.com/nickeubank/otter-grader/api"
	"github.com/nickeubank/otter-grader/internal/aggregate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func table(pairs ...interface{}) api.ScoreTable {
	t := api.NewScoreTable()
	for i := 0; i < len(pairs); i += 2 {
		t.Set(pairs[i].(string), pairs[i+1].(float64))
	}
	return t
}

func TestMerge_UnionSchemaFilledWithZeros(t *testing.T) {
	inputs := []aggregate.Input{
		{Submission: "alice.ipynb", Table: table("A", 1.0, "B", 0.5)},
		{Submission: "bob.ipynb", Table: table("A", 0.0, "C", 1.0)},
	}

	got, err := aggregate.Merge(inputs, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, got.Columns)
	require.Len(t, got.Rows, 2)

	assert.Equal(t, 0.5, got.Rows[0].Scores["B"])
	assert.Equal(t, 0.0, got.Rows[0].Scores["C"]) // alice never ran C
	assert.Equal(t, 0.0, got.Rows[1].Scores["B"]) // bob never ran B
	assert.Equal(t, 1.0, got.Rows[1].Scores["C"])
}

func TestMerge_RowOrderIsInputOrderNotCompletionOrder(t *testing.T) {
	inputs := []aggregate.Input{
		{Submission: "c.ipynb", Table: table("A", 1.0)},
		{Submission: "a.ipynb", Table: table("A", 0.2)},
		{Submission: "b.ipynb", Table: table("A", 0.8)},
	}

	got, err := aggregate.Merge(inputs, nil)
	require.NoError(t, err)

	assert.Equal(t, "c.ipynb", got.Rows[0].Submission)
	assert.Equal(t, "a.ipynb", got.Rows[1].Submission)
	assert.Equal(t, "b.ipynb", got.Rows[2].Submission)
}

func TestMerge_ResolverRemapsRows(t *testing.T) {
	ids := map[string]string{
		"alice.ipynb": "s001",
		"bob.ipynb":   "s002",
	}
	resolve := func(filename string) (string, error) {
		id, ok := ids[filename]
		if !ok {
			return "", fmt.Errorf("no identifier for %s", filename)
		}
		return id, nil
	}

	inputs := []aggregate.Input{
		{Submission: "alice.ipynb", Table: table("A", 1.0)},
		{Submission: "bob.ipynb", Table: table("A", 0.0)},
	}

	got, err := aggregate.Merge(inputs, resolve)
	require.NoError(t, err)

	assert.True(t, got.HasIdentifier)
	assert.Equal(t, "s001", got.Rows[0].Identifier)
	assert.Equal(t, "s002", got.Rows[1].Identifier)
}

func TestMerge_UnmappedFilenameIsFatal(t *testing.T) {
	resolve := func(filename string) (string, error) {
		return "", fmt.Errorf("unknown file")
	}

	inputs := []aggregate.Input{
		{Submission: "mystery.ipynb", Table: table("A", 1.0)},
	}

	_, err := aggregate.Merge(inputs, resolve)
	require.Error(t, err)

	var resErr *aggregate.ResolveError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "mystery.ipynb", resErr.Submission)
}

func TestMerge_InconsistentTableShapeIsSchemaError(t *testing.T) {
	bad := api.ScoreTable{
		Columns: []string{"A", "B"},
		Scores:  map[string]float64{"A": 1.0},
	}

	_, err := aggregate.Merge([]aggregate.Input{{Submission: "x.ipynb", Table: bad}}, nil)
	require.Error(t, err)

	var schemaErr *aggregate.SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestMerge_EmptyTableStillGetsAllColumns(t *testing.T) {
	inputs := []aggregate.Input{
		{Submission: "ok.ipynb", Table: table("A", 1.0, "B", 1.0)},
		{Submission: "crashed.ipynb", Table: api.NewScoreTable()},
	}

	got, err := aggregate.Merge(inputs, nil)
	require.NoError(t, err)

	require.Len(t, got.Rows, 2)
	assert.Equal(t, 0.0, got.Rows[1].Scores["A"])
	assert.Equal(t, 0.0, got.Rows[1].Scores["B"])
}
