// Package tradeoff estimates absolute 1-year bleeding and thrombotic event
// probabilities from the patient's matched risk factors, using a Cox
// proportional-hazards composition over per-factor hazard ratios.
package tradeoff

import (
	"math"

	"github.com/kunjulin/PRECISE-HBR-sub000/internal/domain"
)

// Engine computes trade-off probabilities under one rule table.
type Engine struct {
	table *domain.RuleTable
}

// NewEngine creates an engine for the given table.
func NewEngine(table *domain.RuleTable) *Engine {
	return &Engine{table: table}
}

// Compute derives both outcome-domain probabilities for the given facts.
// The total hazard ratio per domain starts at 1.0 and multiplies in the
// ratio of every matched factor that defines one for that domain; factors
// with no ratio for a domain leave it untouched.
func (e *Engine) Compute(facts []domain.ClinicalFact) *domain.TradeoffResult {
	factByKey := make(map[string]domain.ClinicalFact, len(facts))
	for _, f := range facts {
		factByKey[f.FactorKey] = f
	}

	hrTotal := map[domain.OutcomeDomain]float64{
		domain.BLEEDING:   1.0,
		domain.THROMBOTIC: 1.0,
	}
	var contributions []domain.HazardContribution
	for i := range e.table.Factors {
		def := &e.table.Factors[i]
		if !factByKey[def.Key].Present {
			continue
		}
		for _, dom := range []domain.OutcomeDomain{domain.BLEEDING, domain.THROMBOTIC} {
			hr, ok := def.HazardRatios[dom]
			if !ok {
				continue
			}
			hrTotal[dom] *= hr
			contributions = append(contributions, domain.HazardContribution{
				FactorKey:   def.Key,
				DisplayName: def.DisplayName,
				Domain:      dom,
				HazardRatio: hr,
			})
		}
	}

	return &domain.TradeoffResult{
		BleedingProbabilityPct:   Probability(e.table.BaselineRates[domain.BLEEDING], hrTotal[domain.BLEEDING]),
		ThromboticProbabilityPct: Probability(e.table.BaselineRates[domain.THROMBOTIC], hrTotal[domain.THROMBOTIC]),
		BleedingHRTotal:          hrTotal[domain.BLEEDING],
		ThromboticHRTotal:        hrTotal[domain.THROMBOTIC],
		BaselineRates:            e.table.BaselineRates,
		Contributions:            contributions,
		RulesetVersion:           e.table.Version,
	}
}

// Probability converts a baseline 1-year event rate (fraction in [0,1)) and
// a total hazard ratio into an absolute event probability in percent.
//
// The baseline cumulative hazard is H0 = -ln(1 - rate); under proportional
// hazards the event probability is 1 - exp(-H0 * HR). With HR = 1 this
// returns exactly the baseline rate, and it approaches 100% asymptotically
// instead of overflowing for extreme ratios.
func Probability(baselineRate, hrTotal float64) float64 {
	if baselineRate <= 0 {
		return 0
	}
	if baselineRate >= 1 {
		return 100
	}
	h0 := -math.Log(1 - baselineRate)
	p := (1 - math.Exp(-h0*hrTotal)) * 100
	return math.Min(math.Max(p, 0), 100)
}
