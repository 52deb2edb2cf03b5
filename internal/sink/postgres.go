package sink

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/nickeubank/otter-grader/internal/aggregate"
)

const createGradesTable = `
CREATE TABLE IF NOT EXISTS final_grades (
	batch_uuid text NOT NULL,
	submission text NOT NULL,
	identifier text,
	test_file  text NOT NULL,
	score      double precision NOT NULL,
	PRIMARY KEY (batch_uuid, submission, test_file)
)`

const upsertGradeCell = `
INSERT INTO final_grades (batch_uuid, submission, identifier, test_file, score)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (batch_uuid, submission, test_file)
DO UPDATE SET identifier = EXCLUDED.identifier, score = EXCLUDED.score`

// PostgresSink persists one cell per (submission, test file) so historical
// batches stay queryable.
type PostgresSink struct {
	db        *sqlx.DB
	batchUuid string
}

func NewPostgresSink(connString string, batchUuid string) (*PostgresSink, error) {
	db, err := sqlx.Connect("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := db.Exec(createGradesTable); err != nil {
		return nil, fmt.Errorf("failed to ensure final_grades table: %w", err)
	}
	return &PostgresSink{db: db, batchUuid: batchUuid}, nil
}

func (s *PostgresSink) Write(table *aggregate.FinalGradeTable) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, row := range table.Rows {
		var identifier *string
		if table.HasIdentifier {
			id := row.Identifier
			identifier = &id
		}
		for _, col := range table.Columns {
			if _, err := tx.Exec(upsertGradeCell,
				s.batchUuid, row.Submission, identifier, col, row.Scores[col]); err != nil {
				return fmt.Errorf("failed to upsert grade for %s/%s: %w", row.Submission, col, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit grades: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error { return s.db.Close() }
