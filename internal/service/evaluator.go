// Package service orchestrates one patient evaluation: lab normalization,
// fact matching, scoring, and trade-off computation under the currently
// active rule table.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kunjulin/PRECISE-HBR-sub000/internal/domain"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/history"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/ruleset"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/scoring"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/tradeoff"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/units"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/valueset"
)

// TableSource provides the active compiled rule table. A hot reload swaps
// the table between evaluations, never during one.
type TableSource interface {
	Current() *ruleset.Compiled
}

// Evaluator is the evaluation pipeline. Stateless between calls; every
// evaluation pins the table that was current when it started.
type Evaluator struct {
	tables TableSource
	store  history.Store
	logger *logrus.Logger
	now    func() time.Time
}

// NewEvaluator creates an evaluator. store may be nil when persistence is
// disabled.
func NewEvaluator(tables TableSource, store history.Store, logger *logrus.Logger) *Evaluator {
	return &Evaluator{tables: tables, store: store, logger: logger, now: time.Now}
}

// RulesetVersion returns the version of the active table.
func (e *Evaluator) RulesetVersion() string {
	return e.tables.Current().Table.Version
}

// RuleTable returns the active table for introspection endpoints.
func (e *Evaluator) RuleTable() *domain.RuleTable {
	return e.tables.Current().Table
}

// Score evaluates the snapshot and computes the additive bleeding score.
// Returns a *domain.InsufficientDataError when critical inputs are missing.
func (e *Evaluator) Score(ctx context.Context, snapshot *domain.PatientClinicalSnapshot) (*domain.ScoreResult, error) {
	compiled := e.tables.Current()
	facts, labs := e.prepare(compiled, snapshot)
	return scoring.NewScorer(compiled.Table).Score(facts, labs)
}

// Tradeoff evaluates the snapshot and computes both outcome-domain
// probabilities. Unlike Score it degrades gracefully: missing inputs simply
// leave their factors unmatched.
func (e *Evaluator) Tradeoff(ctx context.Context, snapshot *domain.PatientClinicalSnapshot) (*domain.TradeoffResult, error) {
	compiled := e.tables.Current()
	facts, _ := e.prepare(compiled, snapshot)
	return tradeoff.NewEngine(compiled.Table).Compute(facts), nil
}

// Evaluate runs the full pipeline once and returns both results. The facts
// are matched a single time so score and trade-off always agree. The result
// is persisted when a history store is configured.
func (e *Evaluator) Evaluate(ctx context.Context, snapshot *domain.PatientClinicalSnapshot) (*domain.EvaluationResult, error) {
	started := e.now()
	compiled := e.tables.Current()
	log := e.logger.WithFields(logrus.Fields{
		"patient_id":      snapshot.PatientID,
		"ruleset_version": compiled.Table.Version,
	})
	log.Info("Starting evaluation")

	facts, labs := e.prepare(compiled, snapshot)

	result := &domain.EvaluationResult{
		ID:             uuid.New().String(),
		PatientID:      snapshot.PatientID,
		Tradeoff:       tradeoff.NewEngine(compiled.Table).Compute(facts),
		RulesetVersion: compiled.Table.Version,
		EvaluatedAt:    started.UTC(),
	}

	score, err := scoring.NewScorer(compiled.Table).Score(facts, labs)
	if err != nil {
		var insufficient *domain.InsufficientDataError
		if !errors.As(err, &insufficient) {
			return nil, err
		}
		result.MissingInputs = insufficient.Missing
		log.WithField("missing", insufficient.Missing).Warn("Score withheld, critical inputs missing")
	} else {
		result.Score = score
	}

	e.record(ctx, result)

	fields := logrus.Fields{
		"evaluation_id": result.ID,
		"duration_ms":   e.now().Sub(started).Milliseconds(),
		"bleeding_pct":  result.Tradeoff.BleedingProbabilityPct,
	}
	if result.Score != nil {
		fields["total_score"] = result.Score.TotalScore
		fields["category"] = result.Score.Category
	}
	log.WithFields(fields).Info("Evaluation complete")
	return result, nil
}

// prepare normalizes the snapshot's labs, injects age as a pseudo-analyte,
// and evaluates every factor once.
func (e *Evaluator) prepare(compiled *ruleset.Compiled, snapshot *domain.PatientClinicalSnapshot) ([]domain.ClinicalFact, map[domain.Analyte]domain.LabObservation) {
	labs := e.normalizeLabs(compiled.Normalizer, snapshot)
	if age, ok := e.ageObservation(compiled.Normalizer, snapshot.Demographics); ok {
		labs[domain.AnalyteAge] = age
	}
	matcher := valueset.NewMatcher(compiled.Hierarchy)
	facts := matcher.EvaluateAll(compiled.Table.Factors, valueset.Input{Snapshot: snapshot, Labs: labs})
	return facts, labs
}

// normalizeLabs keeps the most recent convertible observation per analyte.
// Unconvertible values are logged and skipped so they read as missing, not
// as zero.
func (e *Evaluator) normalizeLabs(normalizer *units.Normalizer, snapshot *domain.PatientClinicalSnapshot) map[domain.Analyte]domain.LabObservation {
	labs := make(map[domain.Analyte]domain.LabObservation)
	for _, rec := range snapshot.Labs {
		obs, err := normalizer.Observation(rec)
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"patient_id": snapshot.PatientID,
				"analyte":    rec.Analyte,
				"unit":       rec.Unit,
			}).Warn("Skipping lab value with unknown unit")
			continue
		}
		if existing, ok := labs[rec.Analyte]; ok && !obs.EffectiveDate.After(existing.EffectiveDate) {
			continue
		}
		labs[rec.Analyte] = obs
	}
	return labs
}

// ageObservation derives the age pseudo-analyte from demographics. An
// explicit age takes precedence over a birth date.
func (e *Evaluator) ageObservation(normalizer *units.Normalizer, demo domain.Demographics) (domain.LabObservation, bool) {
	var years float64
	switch {
	case demo.AgeYears != nil:
		years = float64(*demo.AgeYears)
	case demo.BirthDate != nil:
		years = float64(ageAt(e.now(), *demo.BirthDate))
	default:
		return domain.LabObservation{}, false
	}
	return domain.LabObservation{
		Analyte:       domain.AnalyteAge,
		RawValue:      years,
		RawUnit:       "a",
		Canonical:     &years,
		CanonicalUnit: normalizer.CanonicalUnit(domain.AnalyteAge),
	}, true
}

func (e *Evaluator) record(ctx context.Context, result *domain.EvaluationResult) {
	if e.store == nil {
		return
	}
	rec := &history.Record{
		ID:             result.ID,
		PatientID:      result.PatientID,
		RulesetVersion: result.RulesetVersion,
		BleedingPct:    result.Tradeoff.BleedingProbabilityPct,
		ThromboticPct:  result.Tradeoff.ThromboticProbabilityPct,
		MissingInputs:  result.MissingInputs,
		EvaluatedAt:    result.EvaluatedAt,
	}
	if result.Score != nil {
		total := result.Score.TotalScore
		rec.TotalScore = &total
		rec.Category = result.Score.Category.String()
	}
	if err := e.store.Save(ctx, rec); err != nil {
		e.logger.WithError(err).WithField("evaluation_id", result.ID).Error("Failed to persist evaluation record")
	}
}

// ageAt computes completed years between birth and now.
func ageAt(now time.Time, birth time.Time) int {
	years := now.Year() - birth.Year()
	if now.YearDay() < birth.YearDay() {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
