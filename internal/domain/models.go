package domain

import (
	"time"
)

// Core Enums and Types

// RiskCategory represents the PRECISE-HBR bleeding-risk category.
type RiskCategory string

const (
	NOT_HIGH_RISK  RiskCategory = "NOT_HIGH"
	HIGH_RISK      RiskCategory = "HIGH"
	VERY_HIGH_RISK RiskCategory = "VERY_HIGH"
)

// String returns the category as a string.
func (c RiskCategory) String() string {
	return string(c)
}

// Display returns the human-readable category label used by the UI layer.
func (c RiskCategory) Display() string {
	switch c {
	case NOT_HIGH_RISK:
		return "Not high bleeding risk"
	case HIGH_RISK:
		return "High bleeding risk"
	case VERY_HIGH_RISK:
		return "Very high bleeding risk"
	}
	return string(c)
}

// OutcomeDomain represents an outcome domain in the trade-off analysis.
type OutcomeDomain string

const (
	BLEEDING   OutcomeDomain = "bleeding"
	THROMBOTIC OutcomeDomain = "thrombotic"
)

// Analyte identifies a lab analyte tracked by the engine.
// Age is modeled as a pseudo-analyte so that the critical-input check and
// threshold rules treat demographics and labs uniformly.
type Analyte string

const (
	AnalyteAge        Analyte = "age"
	AnalyteHemoglobin Analyte = "hemoglobin"
	AnalyteEGFR       Analyte = "egfr"
	AnalyteWBC        Analyte = "wbc"
	AnalytePlatelets  Analyte = "platelets"
)

// Factor weights per the ARC-HBR consensus: major criteria count double.
// Weight zero marks trade-off-only factors that carry hazard ratios but do
// not contribute to the additive score.
const (
	WeightNone  = 0
	WeightMinor = 1
	WeightMajor = 2
)

// Snapshot Models (consumed from the data-fetch collaborator)

// Coding represents a single coded concept from a terminology.
type Coding struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept represents a concept carrying one or more codings plus
// free text.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// ConditionRecord is a coded patient condition.
type ConditionRecord struct {
	Code           CodeableConcept `json:"code"`
	ClinicalStatus string          `json:"clinical_status,omitempty"`
	OnsetDate      *time.Time      `json:"onset_date,omitempty"`
}

// MedicationRecord is a coded active medication.
type MedicationRecord struct {
	Code   CodeableConcept `json:"code"`
	Status string          `json:"status,omitempty"`
}

// ProcedureRecord is a coded procedure.
type ProcedureRecord struct {
	Code          CodeableConcept `json:"code"`
	PerformedDate *time.Time      `json:"performed_date,omitempty"`
}

// LabRecord is a raw lab observation as supplied by the data layer.
type LabRecord struct {
	Analyte       Analyte   `json:"analyte"`
	Value         float64   `json:"value"`
	Unit          string    `json:"unit"`
	EffectiveDate time.Time `json:"effective_date"`
}

// Demographics carries the patient attributes the engine needs.
// AgeYears takes precedence over BirthDate when both are set.
type Demographics struct {
	BirthDate *time.Time `json:"birth_date,omitempty"`
	AgeYears  *int       `json:"age_years,omitempty"`
	Sex       string     `json:"sex,omitempty"`
}

// PatientClinicalSnapshot is the fully materialized input to an evaluation.
// The upstream fetch/cache layer assembles it; the engine never fetches.
type PatientClinicalSnapshot struct {
	PatientID    string             `json:"patient_id"`
	Demographics Demographics       `json:"demographics"`
	Conditions   []ConditionRecord  `json:"conditions,omitempty"`
	Medications  []MedicationRecord `json:"medications,omitempty"`
	Procedures   []ProcedureRecord  `json:"procedures,omitempty"`
	Labs         []LabRecord        `json:"labs,omitempty"`
}

// Evaluation Models

// LabObservation is a lab value after unit normalization. Canonical is nil
// when no conversion factor exists for the raw unit; callers must treat the
// analyte as missing in that case, never as zero.
type LabObservation struct {
	Analyte       Analyte   `json:"analyte"`
	RawValue      float64   `json:"raw_value"`
	RawUnit       string    `json:"raw_unit"`
	Canonical     *float64  `json:"canonical_value,omitempty"`
	CanonicalUnit string    `json:"canonical_unit"`
	EffectiveDate time.Time `json:"effective_date"`
}

// FactEvidence records what triggered a risk-factor match.
type FactEvidence struct {
	CodeSystem string   `json:"code_system,omitempty"`
	Code       string   `json:"code,omitempty"`
	Text       string   `json:"text,omitempty"`
	Analyte    Analyte  `json:"analyte,omitempty"`
	LabValue   *float64 `json:"lab_value,omitempty"`
}

// ClinicalFact is the evaluated presence of one risk-factor definition for
// one patient snapshot. Immutable once produced.
type ClinicalFact struct {
	FactorKey     string        `json:"factor_key"`
	Present       bool          `json:"present"`
	Evidence      *FactEvidence `json:"evidence,omitempty"`
	EffectiveDate *time.Time    `json:"effective_date,omitempty"`
}

// Result Models (exposed to the UI/export collaborators)

// ScoreComponent is one row of the score breakdown.
type ScoreComponent struct {
	FactorKey    string     `json:"factor_key"`
	DisplayName  string     `json:"display_name"`
	Matched      bool       `json:"matched"`
	Contribution int        `json:"contribution"`
	EvidenceDate *time.Time `json:"evidence_date,omitempty"`
}

// ScoreResult is the additive PRECISE-HBR score with its category and the
// full per-factor breakdown.
type ScoreResult struct {
	TotalScore     int              `json:"total_score"`
	Category       RiskCategory     `json:"category"`
	Components     []ScoreComponent `json:"components"`
	RulesetVersion string           `json:"ruleset_version"`
}

// HazardContribution is one factor's multiplicative contribution to an
// outcome domain.
type HazardContribution struct {
	FactorKey   string        `json:"factor_key"`
	DisplayName string        `json:"display_name"`
	Domain      OutcomeDomain `json:"domain"`
	HazardRatio float64       `json:"hazard_ratio"`
}

// TradeoffResult carries the absolute 1-year event probabilities for both
// outcome domains plus the hazard-ratio audit trail.
type TradeoffResult struct {
	BleedingProbabilityPct   float64                   `json:"bleeding_probability_pct"`
	ThromboticProbabilityPct float64                   `json:"thrombotic_probability_pct"`
	BleedingHRTotal          float64                   `json:"bleeding_hr_total"`
	ThromboticHRTotal        float64                   `json:"thrombotic_hr_total"`
	BaselineRates            map[OutcomeDomain]float64 `json:"baseline_rates"`
	Contributions            []HazardContribution      `json:"per_factor_contributions"`
	RulesetVersion           string                    `json:"ruleset_version"`
}

// EvaluationResult bundles both result objects for the combined operation.
// Score is nil when critical inputs were missing; MissingInputs then lists
// them so the caller can render a precise message instead of a partial score.
type EvaluationResult struct {
	ID             string          `json:"id"`
	PatientID      string          `json:"patient_id"`
	Score          *ScoreResult    `json:"score,omitempty"`
	MissingInputs  []string        `json:"missing_inputs,omitempty"`
	Tradeoff       *TradeoffResult `json:"tradeoff"`
	RulesetVersion string          `json:"ruleset_version"`
	EvaluatedAt    time.Time       `json:"evaluated_at"`
}
