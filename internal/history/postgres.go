package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL, for
// deployments where several service instances share one history.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL with a standard lib/pq connection
// string and ensures the schema exists.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := createPostgresSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing connection. Used by tests.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func createPostgresSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		ruleset_version TEXT NOT NULL,
		total_score INTEGER,
		category TEXT,
		bleeding_pct DOUBLE PRECISION NOT NULL,
		thrombotic_pct DOUBLE PRECISION NOT NULL,
		missing_inputs TEXT DEFAULT '',
		evaluated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_eval_patient ON evaluations(patient_id);
	CREATE INDEX IF NOT EXISTS idx_eval_evaluated_at ON evaluations(evaluated_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores one evaluation record.
func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	missingJSON, err := encodeMissing(rec.MissingInputs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evaluations
			(id, patient_id, ruleset_version, total_score, category,
			 bleeding_pct, thrombotic_pct, missing_inputs, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.PatientID, rec.RulesetVersion,
		nullableScore(rec.TotalScore), nullableString(rec.Category),
		rec.BleedingPct, rec.ThromboticPct, missingJSON, rec.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save evaluation: %w", err)
	}
	return nil
}

// ListByPatient returns a patient's evaluations, most recent first.
func (s *PostgresStore) ListByPatient(ctx context.Context, patientID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, ruleset_version, total_score, category,
		       bleeding_pct, thrombotic_pct, missing_inputs, evaluated_at
		FROM evaluations
		WHERE patient_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2`,
		patientID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// ExportJSON writes a patient's history as a JSON array, for chart review
// exports.
func ExportJSON(ctx context.Context, store Store, patientID string, limit int) ([]byte, error) {
	records, err := store.ListByPatient(ctx, patientID, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*Record{}
	}
	return json.MarshalIndent(records, "", "  ")
}
