// Package units converts raw lab values into each analyte's single
// canonical unit using verified multiplicative factors.
package units

import (
	"strings"

	"github.com/kunjulin/PRECISE-HBR-sub000/internal/domain"
)

// Normalizer holds the per-analyte unit tables for one rule-table version.
type Normalizer struct {
	table map[domain.Analyte]domain.AnalyteUnits
}

// NewNormalizer builds a normalizer from a rule table's unit section.
// Unit synonym lookup is case-insensitive.
func NewNormalizer(units map[domain.Analyte]domain.AnalyteUnits) *Normalizer {
	table := make(map[domain.Analyte]domain.AnalyteUnits, len(units))
	for analyte, au := range units {
		factors := make(map[string]float64, len(au.Factors))
		for unit, factor := range au.Factors {
			factors[canonicalizeUnit(unit)] = factor
		}
		table[analyte] = domain.AnalyteUnits{Canonical: au.Canonical, Factors: factors}
	}
	return &Normalizer{table: table}
}

// Normalize converts a raw (value, unit) pair for an analyte into the
// analyte's canonical unit. An unrecognized unit returns a
// *domain.UnitConversionError; the factor is never defaulted to 1.0.
func (n *Normalizer) Normalize(analyte domain.Analyte, value float64, unit string) (float64, error) {
	au, ok := n.table[analyte]
	if !ok {
		return 0, domain.NewUnitConversionError(analyte, unit)
	}
	factor, ok := au.Factors[canonicalizeUnit(unit)]
	if !ok {
		return 0, domain.NewUnitConversionError(analyte, unit)
	}
	return value * factor, nil
}

// CanonicalUnit returns the target unit for an analyte, or "" if the
// analyte is unknown to the table.
func (n *Normalizer) CanonicalUnit(analyte domain.Analyte) string {
	return n.table[analyte].Canonical
}

// Observation normalizes a raw lab record into a LabObservation. When the
// unit is unrecognized the observation is returned with a nil canonical
// value alongside the conversion error, so callers can log it and treat
// the analyte as missing.
func (n *Normalizer) Observation(rec domain.LabRecord) (domain.LabObservation, error) {
	obs := domain.LabObservation{
		Analyte:       rec.Analyte,
		RawValue:      rec.Value,
		RawUnit:       rec.Unit,
		CanonicalUnit: n.CanonicalUnit(rec.Analyte),
		EffectiveDate: rec.EffectiveDate,
	}
	value, err := n.Normalize(rec.Analyte, rec.Value, rec.Unit)
	if err != nil {
		return obs, err
	}
	obs.Canonical = &value
	return obs, nil
}

func canonicalizeUnit(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}
