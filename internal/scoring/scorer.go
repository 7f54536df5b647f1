// Package scoring computes the additive PRECISE-HBR bleeding score from
// evaluated clinical facts.
package scoring

import (
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/domain"
)

// criticalAnalytes are the inputs without which no score is computed. The
// order is fixed so error messages are stable.
var criticalAnalytes = []domain.Analyte{
	domain.AnalyteAge,
	domain.AnalyteHemoglobin,
	domain.AnalyteEGFR,
	domain.AnalyteWBC,
}

// Scorer turns facts into a score under one rule table.
type Scorer struct {
	table *domain.RuleTable
}

// NewScorer creates a scorer for the given table.
func NewScorer(table *domain.RuleTable) *Scorer {
	return &Scorer{table: table}
}

// MissingCriticalInputs returns the critical analytes absent from labs, in
// the fixed reporting order. An observation whose unit failed to convert
// counts as absent.
func MissingCriticalInputs(labs map[domain.Analyte]domain.LabObservation) []string {
	var missing []string
	for _, analyte := range criticalAnalytes {
		obs, ok := labs[analyte]
		if !ok || obs.Canonical == nil {
			missing = append(missing, string(analyte))
		}
	}
	return missing
}

// Score computes the additive score and its category breakdown. When any
// critical input is missing it returns a *domain.InsufficientDataError
// naming every missing input; no partial score is produced.
//
// Weight-zero factors carry hazard ratios only and never appear in the
// breakdown.
func (s *Scorer) Score(facts []domain.ClinicalFact, labs map[domain.Analyte]domain.LabObservation) (*domain.ScoreResult, error) {
	if missing := MissingCriticalInputs(labs); len(missing) > 0 {
		return nil, domain.NewInsufficientDataError(missing)
	}

	factByKey := make(map[string]domain.ClinicalFact, len(facts))
	for _, f := range facts {
		factByKey[f.FactorKey] = f
	}

	total := 0
	components := make([]domain.ScoreComponent, 0, len(s.table.Factors))
	for i := range s.table.Factors {
		def := &s.table.Factors[i]
		if def.Weight == domain.WeightNone {
			continue
		}
		fact := factByKey[def.Key]
		component := domain.ScoreComponent{
			FactorKey:   def.Key,
			DisplayName: def.DisplayName,
			Matched:     fact.Present,
		}
		if fact.Present {
			component.Contribution = def.Weight
			component.EvidenceDate = fact.EffectiveDate
			total += def.Weight
		}
		components = append(components, component)
	}

	return &domain.ScoreResult{
		TotalScore:     total,
		Category:       s.table.Categorize(total),
		Components:     components,
		RulesetVersion: s.table.Version,
	}, nil
}
