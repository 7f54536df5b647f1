package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite. This is the
// default single-node backend.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite history store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a row into a Record. Missing inputs are stored as a JSON
// array; total score and category are NULL for insufficient-data runs.
func scanRecord(s scanner) (*Record, error) {
	rec := &Record{}
	var totalScore sql.NullInt64
	var category sql.NullString
	var missingJSON string

	err := s.Scan(
		&rec.ID, &rec.PatientID, &rec.RulesetVersion,
		&totalScore, &category,
		&rec.BleedingPct, &rec.ThromboticPct,
		&missingJSON, &rec.EvaluatedAt,
	)
	if err != nil {
		return nil, err
	}

	if totalScore.Valid {
		v := int(totalScore.Int64)
		rec.TotalScore = &v
	}
	if category.Valid {
		rec.Category = category.String
	}
	if missingJSON != "" && missingJSON != "null" {
		if err := json.Unmarshal([]byte(missingJSON), &rec.MissingInputs); err != nil {
			return nil, fmt.Errorf("failed to decode missing inputs: %w", err)
		}
	}
	return rec, nil
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		ruleset_version TEXT NOT NULL,
		total_score INTEGER,
		category TEXT,
		bleeding_pct REAL NOT NULL,
		thrombotic_pct REAL NOT NULL,
		missing_inputs TEXT DEFAULT '',
		evaluated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_eval_patient ON evaluations(patient_id);
	CREATE INDEX IF NOT EXISTS idx_eval_evaluated_at ON evaluations(evaluated_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores one evaluation record.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	missingJSON, err := encodeMissing(rec.MissingInputs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evaluations
			(id, patient_id, ruleset_version, total_score, category,
			 bleeding_pct, thrombotic_pct, missing_inputs, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
func (s *SQLiteStore) ListByPatient(ctx context.Context, patientID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, ruleset_version, total_score, category,
		       bleeding_pct, thrombotic_pct, missing_inputs, evaluated_at
		FROM evaluations
		WHERE patient_id = ?
		ORDER BY evaluated_at DESC
		LIMIT ?`,
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeMissing(missing []string) (string, error) {
	if len(missing) == 0 {
		return "", nil
	}
	data, err := json.Marshal(missing)
	if err != nil {
		return "", fmt.Errorf("failed to encode missing inputs: %w", err)
	}
	return string(data), nil
}

func nullableScore(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
