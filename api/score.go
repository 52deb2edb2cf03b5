package api

import "fmt"

// ScoreTable is the per-submission grading outcome returned out of a sandbox.
// Columns keeps first-appearance order; Scores holds one value per column.
type ScoreTable struct {
	Columns []string           `json:"columns"`
	Scores  map[string]float64 `json:"scores"`
}

func NewScoreTable() ScoreTable {
	return ScoreTable{
		Columns: []string{},
		Scores:  map[string]float64{},
	}
}

// Set assigns a score to a column, appending the column on first use.
func (t *ScoreTable) Set(column string, score float64) {
	if t.Scores == nil {
		t.Scores = map[string]float64{}
	}
	if _, ok := t.Scores[column]; !ok {
		t.Columns = append(t.Columns, column)
	}
	t.Scores[column] = score
}

// Get returns the score for a column and whether the column is present.
func (t *ScoreTable) Get(column string) (float64, bool) {
	v, ok := t.Scores[column]
	return v, ok
}

// Validate checks the column list and the score map describe the same shape.
func (t *ScoreTable) Validate() error {
	if len(t.Columns) != len(t.Scores) {
		return fmt.Errorf("score table has %d columns but %d scores", len(t.Columns), len(t.Scores))
	}
	for _, c := range t.Columns {
		if _, ok := t.Scores[c]; !ok {
			return fmt.Errorf("score table column %q has no value", c)
		}
	}
	return nil
}
