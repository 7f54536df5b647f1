package valueset

import (
	"strings"
	"time"

	"github.com/kunjulin/PRECISE-HBR-sub000/internal/domain"
)

// Input is one patient's evidence base for rule evaluation: the raw coded
// snapshot plus the normalized labs. Labs holds only observations that
// converted successfully; an unconvertible value is absent, never zero.
type Input struct {
	Snapshot *domain.PatientClinicalSnapshot
	Labs     map[domain.Analyte]domain.LabObservation
}

// Matcher evaluates match rules against patient inputs using a shared
// terminology hierarchy. Safe for concurrent use.
type Matcher struct {
	hierarchy *Hierarchy
}

// NewMatcher creates a matcher over the given hierarchy.
func NewMatcher(h *Hierarchy) *Matcher {
	return &Matcher{hierarchy: h}
}

// EvaluateAll evaluates every factor definition against the input and
// returns one fact per factor, in table order.
func (m *Matcher) EvaluateAll(factors []domain.RiskFactorDefinition, in Input) []domain.ClinicalFact {
	facts := make([]domain.ClinicalFact, 0, len(factors))
	for i := range factors {
		facts = append(facts, m.EvaluateFactor(&factors[i], in))
	}
	return facts
}

// EvaluateFactor evaluates one factor's match rule and wraps the outcome as
// an immutable fact.
func (m *Matcher) EvaluateFactor(def *domain.RiskFactorDefinition, in Input) domain.ClinicalFact {
	matched, evidence, when := m.eval(def.Match, in)
	fact := domain.ClinicalFact{FactorKey: def.Key, Present: matched}
	if matched {
		fact.Evidence = evidence
		fact.EffectiveDate = when
	}
	return fact
}

// Evaluate evaluates a bare match rule. Exposed for rule-table tooling.
func (m *Matcher) Evaluate(rule domain.MatchRule, in Input) (bool, *domain.FactEvidence) {
	matched, evidence, _ := m.eval(rule, in)
	return matched, evidence
}

func (m *Matcher) eval(rule domain.MatchRule, in Input) (bool, *domain.FactEvidence, *time.Time) {
	switch rule.Kind {
	case domain.MatchCode:
		return m.evalCoded(rule, in, func(c domain.Coding) bool {
			return codeInSet(c, rule.Codes)
		})
	case domain.MatchHierarchy:
		return m.evalCoded(rule, in, func(c domain.Coding) bool {
			return c.System == rule.System && m.hierarchy.Subsumes(rule.System, rule.Root, c.Code)
		})
	case domain.MatchText:
		return m.evalText(rule, in)
	case domain.MatchAll:
		return m.evalAll(rule, in)
	case domain.MatchAny:
		return m.evalAny(rule, in)
	case domain.MatchLab:
		return m.evalLab(rule, in)
	}
	return false, nil, nil
}

// evalCoded scans the rule's sources for a coding accepted by match, after
// applying the status gate and the exclusion list record-wide.
func (m *Matcher) evalCoded(rule domain.MatchRule, in Input, match func(domain.Coding) bool) (bool, *domain.FactEvidence, *time.Time) {
	if sourceEnabled(rule, domain.SourceConditions) {
		for _, cond := range in.Snapshot.Conditions {
			if !statusAllowed(rule, cond.ClinicalStatus) {
				continue
			}
			if recordExcluded(cond.Code, rule.Exclude) {
				continue
			}
			if c, ok := firstMatch(cond.Code, match); ok {
				return true, codingEvidence(c), cond.OnsetDate
			}
		}
	}
	if sourceEnabled(rule, domain.SourceMedications) {
		for _, med := range in.Snapshot.Medications {
			if recordExcluded(med.Code, rule.Exclude) {
				continue
			}
			if c, ok := firstMatch(med.Code, match); ok {
				return true, codingEvidence(c), nil
			}
		}
	}
	if sourceEnabled(rule, domain.SourceProcedures) {
		for _, proc := range in.Snapshot.Procedures {
			if recordExcluded(proc.Code, rule.Exclude) {
				continue
			}
			if c, ok := firstMatch(proc.Code, match); ok {
				return true, codingEvidence(c), proc.PerformedDate
			}
		}
	}
	return false, nil, nil
}

func (m *Matcher) evalText(rule domain.MatchRule, in Input) (bool, *domain.FactEvidence, *time.Time) {
	if sourceEnabled(rule, domain.SourceConditions) {
		for _, cond := range in.Snapshot.Conditions {
			if !statusAllowed(rule, cond.ClinicalStatus) {
				continue
			}
			if text, ok := keywordHit(cond.Code, rule.Keywords); ok {
				return true, &domain.FactEvidence{Text: text}, cond.OnsetDate
			}
		}
	}
	if sourceEnabled(rule, domain.SourceMedications) {
		for _, med := range in.Snapshot.Medications {
			if text, ok := keywordHit(med.Code, rule.Keywords); ok {
				return true, &domain.FactEvidence{Text: text}, nil
			}
		}
	}
	if sourceEnabled(rule, domain.SourceProcedures) {
		for _, proc := range in.Snapshot.Procedures {
			if text, ok := keywordHit(proc.Code, rule.Keywords); ok {
				return true, &domain.FactEvidence{Text: text}, proc.PerformedDate
			}
		}
	}
	return false, nil, nil
}

func (m *Matcher) evalAll(rule domain.MatchRule, in Input) (bool, *domain.FactEvidence, *time.Time) {
	var evidence *domain.FactEvidence
	var when *time.Time
	for _, sub := range rule.Rules {
		ok, ev, t := m.eval(sub, in)
		if !ok {
			return false, nil, nil
		}
		if evidence == nil {
			evidence, when = ev, t
		}
	}
	if evidence == nil {
		return false, nil, nil
	}
	return true, evidence, when
}

func (m *Matcher) evalAny(rule domain.MatchRule, in Input) (bool, *domain.FactEvidence, *time.Time) {
	for _, sub := range rule.Rules {
		if ok, ev, t := m.eval(sub, in); ok {
			return true, ev, t
		}
	}
	return false, nil, nil
}

func (m *Matcher) evalLab(rule domain.MatchRule, in Input) (bool, *domain.FactEvidence, *time.Time) {
	cond := rule.Lab
	if cond == nil {
		return false, nil, nil
	}
	if cond.Sex != "" && !strings.EqualFold(cond.Sex, in.Snapshot.Demographics.Sex) {
		return false, nil, nil
	}
	obs, ok := in.Labs[cond.Analyte]
	if !ok || obs.Canonical == nil {
		return false, nil, nil
	}
	value := *obs.Canonical
	var hit bool
	switch cond.Op {
	case domain.OpLT:
		hit = value < cond.Value
	case domain.OpLE:
		hit = value <= cond.Value
	case domain.OpGT:
		hit = value > cond.Value
	case domain.OpGE:
		hit = value >= cond.Value
	}
	if !hit {
		return false, nil, nil
	}
	when := obs.EffectiveDate
	evidence := &domain.FactEvidence{Analyte: cond.Analyte, LabValue: obs.Canonical}
	if when.IsZero() {
		return true, evidence, nil
	}
	return true, evidence, &when
}

// sourceEnabled reports whether a rule scans the given source. An empty
// list scans everything.
func sourceEnabled(rule domain.MatchRule, source string) bool {
	if len(rule.Sources) == 0 {
		return true
	}
	for _, s := range rule.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// statusAllowed applies the clinical-status gate to a condition. A record
// with no status is treated as active rather than silently dropped.
func statusAllowed(rule domain.MatchRule, status string) bool {
	if len(rule.ActiveStatuses) == 0 {
		return true
	}
	if status == "" {
		status = "active"
	}
	for _, s := range rule.ActiveStatuses {
		if strings.EqualFold(s, status) {
			return true
		}
	}
	return false
}

// recordExcluded drops the whole record when any of its codings is on the
// exclusion list, so a basal-cell carcinoma never matches the malignancy
// hierarchy through a second, broader coding on the same record.
func recordExcluded(concept domain.CodeableConcept, exclude []domain.CodeRef) bool {
	if len(exclude) == 0 {
		return false
	}
	for _, c := range concept.Coding {
		if codeInSet(c, exclude) {
			return true
		}
	}
	return false
}

func codeInSet(c domain.Coding, set []domain.CodeRef) bool {
	for _, ref := range set {
		if ref.System == c.System && ref.Code == c.Code {
			return true
		}
	}
	return false
}

func firstMatch(concept domain.CodeableConcept, match func(domain.Coding) bool) (domain.Coding, bool) {
	for _, c := range concept.Coding {
		if match(c) {
			return c, true
		}
	}
	return domain.Coding{}, false
}

func keywordHit(concept domain.CodeableConcept, keywords []string) (string, bool) {
	candidates := make([]string, 0, len(concept.Coding)+1)
	if concept.Text != "" {
		candidates = append(candidates, concept.Text)
	}
	for _, c := range concept.Coding {
		if c.Display != "" {
			candidates = append(candidates, c.Display)
		}
	}
	for _, text := range candidates {
		lower := strings.ToLower(text)
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return text, true
			}
		}
	}
	return "", false
}

func codingEvidence(c domain.Coding) *domain.FactEvidence {
	return &domain.FactEvidence{CodeSystem: c.System, Code: c.Code, Text: c.Display}
}
