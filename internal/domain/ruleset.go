package domain

// MatchKind discriminates the tagged MatchRule variants.
type MatchKind string

const (
	// MatchCode is true when any input coding's (system, code) pair is in
	// the target code set.
	MatchCode MatchKind = "code"
	// MatchHierarchy is true when an input code equals the root concept or
	// any descendant of it under the terminology's is-a relation.
	MatchHierarchy MatchKind = "hierarchy"
	// MatchText is a case-insensitive substring fallback over display text,
	// for records that arrive without usable structured codes.
	MatchText MatchKind = "text"
	// MatchAll is true only when every sub-rule is true (compound AND).
	MatchAll MatchKind = "all"
	// MatchAny is true when at least one sub-rule is true.
	MatchAny MatchKind = "any"
	// MatchLab compares a normalized lab value against a threshold.
	MatchLab MatchKind = "lab"
)

// Comparison operators for lab threshold rules.
const (
	OpLT = "lt"
	OpLE = "le"
	OpGT = "gt"
	OpGE = "ge"
)

// Input sources a coded match rule may scan. An empty Sources list scans
// all three.
const (
	SourceConditions  = "conditions"
	SourceMedications = "medications"
	SourceProcedures  = "procedures"
)

// CodeRef identifies a single terminology code.
type CodeRef struct {
	System string `json:"system"`
	Code   string `json:"code"`
}

// LabCondition compares a canonical lab value against a bound. Sex, when
// set, gates the condition to patients of that sex (used for sex-specific
// hemoglobin thresholds).
type LabCondition struct {
	Analyte Analyte `json:"analyte"`
	Op      string  `json:"op"`
	Value   float64 `json:"value"`
	Sex     string  `json:"sex,omitempty"`
}

// MatchRule is the tagged-variant match expression attached to a risk
// factor. Exactly the fields for its Kind are populated; Exclude and
// ActiveStatuses modify the code and hierarchy kinds.
type MatchRule struct {
	Kind MatchKind `json:"kind"`

	// code
	Codes []CodeRef `json:"codes,omitempty"`

	// hierarchy
	System string `json:"system,omitempty"`
	Root   string `json:"root,omitempty"`

	// text
	Keywords []string `json:"keywords,omitempty"`

	// all / any
	Rules []MatchRule `json:"rules,omitempty"`

	// lab
	Lab *LabCondition `json:"lab,omitempty"`

	// modifiers for code and hierarchy kinds
	Exclude        []CodeRef `json:"exclude,omitempty"`
	ActiveStatuses []string  `json:"active_statuses,omitempty"`
	Sources        []string  `json:"sources,omitempty"`
}

// RiskFactorDefinition is one entry of the versioned rule table. Loaded
// once and never mutated during evaluation.
type RiskFactorDefinition struct {
	Key          string                    `json:"key"`
	DisplayName  string                    `json:"display_name"`
	Weight       int                       `json:"weight"`
	Match        MatchRule                 `json:"match"`
	HazardRatios map[OutcomeDomain]float64 `json:"hazard_ratios,omitempty"`
}

// CategoryThresholds maps the additive score onto risk categories:
// total <= NotHighMax is not-high, total <= HighMax is high, anything
// above is very high.
type CategoryThresholds struct {
	NotHighMax int `json:"not_high_max"`
	HighMax    int `json:"high_max"`
}

// HierarchyEdge is one is-a edge (Code is-a Parent) within System.
type HierarchyEdge struct {
	System string `json:"system"`
	Code   string `json:"code"`
	Parent string `json:"parent"`
}

// AnalyteUnits defines the canonical unit for one analyte and the
// multiplicative conversion factors for every accepted unit synonym.
type AnalyteUnits struct {
	Canonical string             `json:"canonical"`
	Factors   map[string]float64 `json:"factors"`
}

// RuleTable is the complete versioned configuration for one evaluation:
// factor definitions, score thresholds, baseline event rates, terminology
// hierarchy edges, and unit-conversion tables. Validated at load time and
// treated as immutable afterwards.
type RuleTable struct {
	Version       string                    `json:"version"`
	Factors       []RiskFactorDefinition    `json:"factors"`
	Thresholds    CategoryThresholds        `json:"thresholds"`
	BaselineRates map[OutcomeDomain]float64 `json:"baseline_rates"`
	Hierarchy     []HierarchyEdge           `json:"hierarchy,omitempty"`
	Units         map[Analyte]AnalyteUnits  `json:"units"`
}

// Factor returns the definition for a key, or nil.
func (t *RuleTable) Factor(key string) *RiskFactorDefinition {
	for i := range t.Factors {
		if t.Factors[i].Key == key {
			return &t.Factors[i]
		}
	}
	return nil
}

// Categorize maps a total score onto its risk category.
func (t *RuleTable) Categorize(total int) RiskCategory {
	switch {
	case total <= t.Thresholds.NotHighMax:
		return NOT_HIGH_RISK
	case total <= t.Thresholds.HighMax:
		return HIGH_RISK
	default:
		return VERY_HIGH_RISK
	}
}
