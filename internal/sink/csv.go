// Package sink persists the final grade table once per full run.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/nickeubank/otter-grader/internal/aggregate"
)

// CSVSink writes final_grades.csv: one row per submission, columns
// [identifier?|file, <test-file columns...>]. With Absolute set, fractional
// grades are scaled to point values using Totals.
type CSVSink struct {
	Path     string
	Absolute bool
	Totals   map[string]float64
}

func (s *CSVSink) Write(table *aggregate.FinalGradeTable) error {
	f, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", s.Path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := make([]string, 0, len(table.Columns)+1)
	if table.HasIdentifier {
		header = append(header, "identifier")
	} else {
		header = append(header, "file")
	}
	header = append(header, table.Columns...)
	if err := w.Write(header); err != nil {
		return err
	}

	for _, row := range table.Rows {
		record := make([]string, 0, len(header))
		if table.HasIdentifier {
			record = append(record, row.Identifier)
		} else {
			record = append(record, row.Submission)
		}
		for _, col := range table.Columns {
			score := row.Scores[col]
			if s.Absolute {
				score *= s.Totals[col]
			}
			record = append(record, strconv.FormatFloat(score, 'f', -1, 64))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.Path, err)
	}
	return nil
}
