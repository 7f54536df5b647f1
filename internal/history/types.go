// Package history persists evaluation summaries for audit and review.
package history

import (
	"context"
	"time"
)

// Record is one persisted evaluation summary. TotalScore and Category are
// nil/empty when the evaluation had insufficient data for a score; the
// trade-off probabilities are always present.
type Record struct {
	ID             string    `json:"id"`
	PatientID      string    `json:"patient_id"`
	RulesetVersion string    `json:"ruleset_version"`
	TotalScore     *int      `json:"total_score,omitempty"`
	Category       string    `json:"category,omitempty"`
	BleedingPct    float64   `json:"bleeding_probability_pct"`
	ThromboticPct  float64   `json:"thrombotic_probability_pct"`
	MissingInputs  []string  `json:"missing_inputs,omitempty"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
}

// Store is the persistence interface for evaluation records.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	ListByPatient(ctx context.Context, patientID string, limit int) ([]*Record, error)
	Close() error
}
