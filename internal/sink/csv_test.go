package sink_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/nickeubank/otter-grader/internal/aggregate"
	"github.com/nickeubank/otter-grader/internal/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func sampleTable(withIdentifier bool) *aggregate.FinalGradeTable {
	return &aggregate.FinalGradeTable{
		Columns:       []string{"q1", "q2"},
		HasIdentifier: withIdentifier,
		Rows: []aggregate.Row{
			{Submission: "alice.ipynb", Identifier: "s001", Scores: map[string]float64{"q1": 1, "q2": 0.5}},
			{Submission: "bob.ipynb", Identifier: "s002", Scores: map[string]float64{"q1": 0, "q2": 0}},
		},
	}
}

func TestCSVSink_FractionalWithFilenames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "final_grades.csv")
	s := &sink.CSVSink{Path: path}

	require.NoError(t, s.Write(sampleTable(false)))

	records := readCSV(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"file", "q1", "q2"}, records[0])
	assert.Equal(t, []string{"alice.ipynb", "1", "0.5"}, records[1])
	assert.Equal(t, []string{"bob.ipynb", "0", "0"}, records[2])
}

func TestCSVSink_IdentifierReplacesFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "final_grades.csv")
	s := &sink.CSVSink{Path: path}

	require.NoError(t, s.Write(sampleTable(true)))

	records := readCSV(t, path)
	assert.Equal(t, []string{"identifier", "q1", "q2"}, records[0])
	assert.Equal(t, "s001", records[1][0])
	// the raw filename column is dropped
	for _, rec := range records[1:] {
		assert.NotContains(t, rec, "alice.ipynb")
		assert.NotContains(t, rec, "bob.ipynb")
	}
}

func TestCSVSink_AbsolutePoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "final_grades.csv")
	s := &sink.CSVSink{
		Path:     path,
		Absolute: true,
		Totals:   map[string]float64{"q1": 10, "q2": 4},
	}

	require.NoError(t, s.Write(sampleTable(false)))

	records := readCSV(t, path)
	assert.Equal(t, []string{"alice.ipynb", "10", "2"}, records[1])
}
