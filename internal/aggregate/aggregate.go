// Package aggregate merges per-submission score tables into one final grade
// table with a stable row and column order.
package aggregate

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/nickeubank/otter-grader/api"
)

// Resolver maps a submission filename to a student identifier. Pure, no side
// effects; invoked once per row. A resolver failure is fatal: a missing
// identifier silently corrupts grade attribution.
type Resolver func(filename string) (string, error)

// Input is one submission's score table keyed by its filename.
type Input struct {
	Submission string
	Table      api.ScoreTable
}

// Row is one line of the final table. Identifier is empty when no resolver
// was supplied.
type Row struct {
	Submission string
	Identifier string
	Scores     map[string]float64
}

// FinalGradeTable holds one row per submission in discovery order. Every row
// has a value, possibly 0, for every column.
type FinalGradeTable struct {
	Columns       []string
	Rows          []Row
	HasIdentifier bool
}

// SchemaError reports an internal shape violation after merging. It means a
// contract was broken elsewhere in the pipeline, not a recoverable user
// error.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("final grade table schema violation: %s", e.Detail)
}

// ResolveError reports a filename the identifier resolver could not map.
type ResolveError struct {
	Submission string
	Err        error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("failed to resolve identifier for %s: %v", e.Submission, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Merge combines per-submission tables into the final grade table. The
// column schema is the union of all column names, order-stable by first
// appearance; missing cells are filled with 0. Row order equals input order.
// When resolve is non-nil, each row is remapped to a student identifier.
func Merge(inputs []Input, resolve Resolver) (*FinalGradeTable, error) {
	columns := make([]string, 0)
	seen := mapset.NewSet[string]()

	for _, in := range inputs {
		if err := in.Table.Validate(); err != nil {
			return nil, &SchemaError{Detail: fmt.Sprintf("submission %s: %v", in.Submission, err)}
		}
		for _, col := range in.Table.Columns {
			if seen.Add(col) {
				columns = append(columns, col)
			}
		}
	}

	rows := make([]Row, 0, len(inputs))
	for _, in := range inputs {
		row := Row{
			Submission: in.Submission,
			Scores:     make(map[string]float64, len(columns)),
		}
		for _, col := range columns {
			score, ok := in.Table.Get(col)
			if !ok {
				score = 0
			}
			row.Scores[col] = score
		}
		if resolve != nil {
			id, err := resolve(in.Submission)
			if err != nil {
				return nil, &ResolveError{Submission: in.Submission, Err: err}
			}
			row.Identifier = id
		}
		rows = append(rows, row)
	}

	table := &FinalGradeTable{
		Columns:       columns,
		Rows:          rows,
		HasIdentifier: resolve != nil,
	}
	if err := table.check(); err != nil {
		return nil, err
	}
	return table, nil
}

// check re-validates the full-row invariant after merge.
func (t *FinalGradeTable) check() error {
	for _, row := range t.Rows {
		if len(row.Scores) != len(t.Columns) {
			return &SchemaError{Detail: fmt.Sprintf(
				"row %s has %d cells, expected %d", row.Submission, len(row.Scores), len(t.Columns))}
		}
		for _, col := range t.Columns {
			if _, ok := row.Scores[col]; !ok {
				return &SchemaError{Detail: fmt.Sprintf("row %s is missing column %s", row.Submission, col)}
			}
		}
	}
	return nil
}
