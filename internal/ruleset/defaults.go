package ruleset

import (
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/domain"
)

// Terminology systems used by the built-in table.
const (
	SystemSNOMED = "http://snomed.info/sct"
	SystemICD10  = "http://hl7.org/fhir/sid/icd-10-cm"
	SystemATC    = "http://www.whocc.no/atc"
)

// DefaultTable returns the built-in ARC-HBR / PRECISE-HBR rule table so the
// service runs without an external table file. Deployments override it with
// a versioned JSON file; the shape is identical.
//
// Baseline event rates are calibration inputs, not derived constants. The
// 2.5%/2.5% defaults follow the current reference-cohort proposal and are
// expected to be revised via the table file, not here.
func DefaultTable() *domain.RuleTable {
	return &domain.RuleTable{
		Version: "2025.2-builtin",
		Thresholds: domain.CategoryThresholds{
			NotHighMax: 22,
			HighMax:    26,
		},
		BaselineRates: map[domain.OutcomeDomain]float64{
			domain.BLEEDING:   0.025,
			domain.THROMBOTIC: 0.025,
		},
		Units:     defaultUnits(),
		Hierarchy: defaultHierarchy(),
		Factors:   defaultFactors(),
	}
}

// defaultUnits holds the verified conversion factors per analyte. Every
// factor here is covered by a physiological-reference test; do not edit one
// without updating the corresponding test.
func defaultUnits() map[domain.Analyte]domain.AnalyteUnits {
	return map[domain.Analyte]domain.AnalyteUnits{
		domain.AnalyteAge: {
			Canonical: "a",
			Factors: map[string]float64{
				"a": 1, "years": 1, "year": 1, "yr": 1, "y": 1,
			},
		},
		domain.AnalyteHemoglobin: {
			Canonical: "g/dL",
			Factors: map[string]float64{
				"g/dl": 1,
				"g/l":  0.1,
				// Hb monomer, MW 16114 g/mol: 1 mmol/L = 1.611 g/dL.
				"mmol/l": 1.611,
			},
		},
		domain.AnalyteEGFR: {
			Canonical: "mL/min/1.73m2",
			Factors: map[string]float64{
				"ml/min/1.73m2":    1,
				"ml/min/{1.73_m2}": 1,
				"ml/min/1.73 m2":   1,
				"ml/min":           1,
			},
		},
		domain.AnalyteWBC: {
			Canonical: "10*9/L",
			Factors:   cellCountFactors(),
		},
		domain.AnalytePlatelets: {
			Canonical: "10*9/L",
			Factors:   cellCountFactors(),
		},
	}
}

// cellCountFactors converts cell-concentration synonyms into x10^9/L.
// cells/uL / 1000 = x10^9/L, so the factor is 0.001 - not 0.000001.
func cellCountFactors() map[string]float64 {
	return map[string]float64{
		"10*9/l":      1,
		"10^9/l":      1,
		"x10^9/l":     1,
		"x10(9)/l":    1,
		"10*3/ul":     1,
		"10^3/ul":     1,
		"k/ul":        1,
		"thousand/ul": 1,
		"cells/ul":    0.001,
		"/ul":         0.001,
		"cells/mm3":   0.001,
		"/mm3":        0.001,
	}
}

// defaultHierarchy carries the is-a edges needed by the hierarchical rules.
// A production deployment replaces this with a terminology-server extract.
func defaultHierarchy() []domain.HierarchyEdge {
	return []domain.HierarchyEdge{
		// Coagulation disorders under 64779008 (blood coagulation disorder).
		{System: SystemSNOMED, Code: "90935002", Parent: "64779008"},  // hemophilia
		{System: SystemSNOMED, Code: "28293008", Parent: "90935002"},  // hemophilia A
		{System: SystemSNOMED, Code: "128105004", Parent: "64779008"}, // von Willebrand disorder

		// Malignancies under 363346000 (malignant neoplastic disease).
		{System: SystemSNOMED, Code: "93880001", Parent: "363346000"},  // malignant neoplasm of lung
		{System: SystemSNOMED, Code: "363406005", Parent: "363346000"}, // malignant tumor of colon
		{System: SystemSNOMED, Code: "254701007", Parent: "363346000"}, // basal cell carcinoma of skin
		{System: SystemSNOMED, Code: "254651007", Parent: "363346000"}, // squamous cell carcinoma of skin
	}
}

func defaultFactors() []domain.RiskFactorDefinition {
	return []domain.RiskFactorDefinition{
		{
			Key:         "advanced_age",
			DisplayName: "Age ≥ 65 years",
			Weight:      domain.WeightMinor,
			Match: domain.MatchRule{
				Kind: domain.MatchLab,
				Lab:  &domain.LabCondition{Analyte: domain.AnalyteAge, Op: domain.OpGE, Value: 65},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING:   1.50,
				domain.THROMBOTIC: 1.27,
			},
		},
		{
			Key:         "severe_ckd",
			DisplayName: "Severe chronic kidney disease (eGFR < 30)",
			Weight:      domain.WeightMajor,
			Match: domain.MatchRule{
				Kind: domain.MatchLab,
				Lab:  &domain.LabCondition{Analyte: domain.AnalyteEGFR, Op: domain.OpLT, Value: 30},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING:   1.74,
				domain.THROMBOTIC: 1.35,
			},
		},
		{
			Key:         "moderate_ckd",
			DisplayName: "Moderate chronic kidney disease (eGFR 30-59)",
			Weight:      domain.WeightMinor,
			Match: domain.MatchRule{
				Kind: domain.MatchAll,
				Rules: []domain.MatchRule{
					{Kind: domain.MatchLab, Lab: &domain.LabCondition{Analyte: domain.AnalyteEGFR, Op: domain.OpGE, Value: 30}},
					{Kind: domain.MatchLab, Lab: &domain.LabCondition{Analyte: domain.AnalyteEGFR, Op: domain.OpLT, Value: 60}},
				},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING: 1.30,
			},
		},
		{
			Key:         "severe_anemia",
			DisplayName: "Hemoglobin < 11 g/dL",
			Weight:      domain.WeightMajor,
			Match: domain.MatchRule{
				Kind: domain.MatchLab,
				Lab:  &domain.LabCondition{Analyte: domain.AnalyteHemoglobin, Op: domain.OpLT, Value: 11},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING:   3.99,
				domain.THROMBOTIC: 1.45,
			},
		},
		{
			Key:         "moderate_anemia",
			DisplayName: "Hemoglobin 11-12.9 g/dL (men) or 11-11.9 g/dL (women)",
			Weight:      domain.WeightMinor,
			Match: domain.MatchRule{
				Kind: domain.MatchAny,
				Rules: []domain.MatchRule{
					{
						Kind: domain.MatchAll,
						Rules: []domain.MatchRule{
							{Kind: domain.MatchLab, Lab: &domain.LabCondition{Analyte: domain.AnalyteHemoglobin, Op: domain.OpGE, Value: 11, Sex: "male"}},
							{Kind: domain.MatchLab, Lab: &domain.LabCondition{Analyte: domain.AnalyteHemoglobin, Op: domain.OpLT, Value: 13, Sex: "male"}},
						},
					},
					{
						Kind: domain.MatchAll,
						Rules: []domain.MatchRule{
							{Kind: domain.MatchLab, Lab: &domain.LabCondition{Analyte: domain.AnalyteHemoglobin, Op: domain.OpGE, Value: 11, Sex: "female"}},
							{Kind: domain.MatchLab, Lab: &domain.LabCondition{Analyte: domain.AnalyteHemoglobin, Op: domain.OpLT, Value: 12, Sex: "female"}},
						},
					},
				},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING: 1.47,
			},
		},
		{
			Key:         "elevated_wbc",
			DisplayName: "White blood cell count > 11 x10⁹/L",
			Weight:      domain.WeightNone,
			Match: domain.MatchRule{
				Kind: domain.MatchLab,
				Lab:  &domain.LabCondition{Analyte: domain.AnalyteWBC, Op: domain.OpGT, Value: 11},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING:   1.21,
				domain.THROMBOTIC: 1.18,
			},
		},
		{
			Key:         "thrombocytopenia",
			DisplayName: "Platelet count < 100 x10⁹/L",
			Weight:      domain.WeightMajor,
			Match: domain.MatchRule{
				Kind: domain.MatchLab,
				Lab:  &domain.LabCondition{Analyte: domain.AnalytePlatelets, Op: domain.OpLT, Value: 100},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING: 2.30,
			},
		},
		{
			Key:         "oral_anticoagulation",
			DisplayName: "Anticipated long-term oral anticoagulation",
			Weight:      domain.WeightMajor,
			Match: domain.MatchRule{
				Kind:    domain.MatchCode,
				Sources: []string{domain.SourceMedications},
				Codes: []domain.CodeRef{
					{System: SystemATC, Code: "B01AA03"}, // warfarin
					{System: SystemATC, Code: "B01AF01"}, // rivaroxaban
					{System: SystemATC, Code: "B01AF02"}, // apixaban
					{System: SystemATC, Code: "B01AF03"}, // edoxaban
					{System: SystemATC, Code: "B01AE07"}, // dabigatran etexilate
				},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING: 1.80,
			},
		},
		{
			Key:         "bleeding_diathesis",
			DisplayName: "Chronic bleeding diathesis",
			Weight:      domain.WeightMajor,
			Match: domain.MatchRule{
				Kind: domain.MatchAny,
				Rules: []domain.MatchRule{
					{
						Kind:    domain.MatchHierarchy,
						System:  SystemSNOMED,
						Root:    "64779008", // blood coagulation disorder
						Sources: []string{domain.SourceConditions},
					},
					{
						// Fallback for exports that only carry narrative text.
						Kind:     domain.MatchText,
						Keywords: []string{"bleeding disorder", "hemophilia", "von willebrand"},
						Sources:  []string{domain.SourceConditions},
					},
				},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING: 2.20,
			},
		},
		{
			Key:         "prior_bleeding",
			DisplayName: "Spontaneous bleeding requiring hospitalization or transfusion",
			Weight:      domain.WeightMajor,
			Match: domain.MatchRule{
				Kind:    domain.MatchCode,
				Sources: []string{domain.SourceConditions},
				Codes: []domain.CodeRef{
					{System: SystemSNOMED, Code: "74474003"},  // gastrointestinal hemorrhage
					{System: SystemSNOMED, Code: "12063002"},  // rectal hemorrhage
					{System: SystemICD10, Code: "K92.2"},      // GI hemorrhage, unspecified
				},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING: 2.40,
			},
		},
		{
			Key:         "cirrhosis_portal_hypertension",
			DisplayName: "Liver cirrhosis with portal hypertension",
			Weight:      domain.WeightMajor,
			Match: domain.MatchRule{
				// Cirrhosis alone is insufficient; a sign of portal
				// hypertension must also be present.
				Kind: domain.MatchAll,
				Rules: []domain.MatchRule{
					{
						Kind:    domain.MatchCode,
						Sources: []string{domain.SourceConditions},
						Codes: []domain.CodeRef{
							{System: SystemSNOMED, Code: "19943007"}, // cirrhosis of liver
						},
					},
					{
						Kind:    domain.MatchCode,
						Sources: []string{domain.SourceConditions},
						Codes: []domain.CodeRef{
							{System: SystemSNOMED, Code: "34742003"},  // portal hypertension
							{System: SystemSNOMED, Code: "389026000"}, // ascites
							{System: SystemSNOMED, Code: "28670008"},  // esophageal varices
							{System: SystemSNOMED, Code: "13920009"},  // hepatic encephalopathy
						},
					},
				},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING: 2.10,
			},
		},
		{
			Key:         "active_malignancy",
			DisplayName: "Active malignancy (excluding non-melanoma skin cancer)",
			Weight:      domain.WeightMajor,
			Match: domain.MatchRule{
				Kind:    domain.MatchHierarchy,
				System:  SystemSNOMED,
				Root:    "363346000", // malignant neoplastic disease
				Sources: []string{domain.SourceConditions},
				Exclude: []domain.CodeRef{
					{System: SystemSNOMED, Code: "254701007"}, // basal cell carcinoma of skin
					{System: SystemSNOMED, Code: "254651007"}, // squamous cell carcinoma of skin
				},
				ActiveStatuses: []string{"active", "recurrence", "relapse"},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING:   2.00,
				domain.THROMBOTIC: 1.50,
			},
		},
		{
			Key:         "prior_ich",
			DisplayName: "Prior intracranial hemorrhage",
			Weight:      domain.WeightMajor,
			Match: domain.MatchRule{
				Kind:    domain.MatchCode,
				Sources: []string{domain.SourceConditions},
				Codes: []domain.CodeRef{
					{System: SystemSNOMED, Code: "274100004"}, // cerebral hemorrhage
					{System: SystemSNOMED, Code: "21454007"},  // subarachnoid hemorrhage
					{System: SystemICD10, Code: "I61.9"},
				},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING:   2.60,
				domain.THROMBOTIC: 1.20,
			},
		},
		{
			Key:         "recent_major_surgery",
			DisplayName: "Major surgery or trauma within 30 days",
			Weight:      domain.WeightMajor,
			Match: domain.MatchRule{
				Kind:    domain.MatchCode,
				Sources: []string{domain.SourceProcedures},
				Codes: []domain.CodeRef{
					{System: SystemSNOMED, Code: "232717009"}, // coronary artery bypass graft
					{System: SystemSNOMED, Code: "112802009"}, // major joint replacement
				},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING: 1.90,
			},
		},
		{
			Key:         "prior_ischemic_stroke",
			DisplayName: "Prior ischemic stroke",
			Weight:      domain.WeightMinor,
			Match: domain.MatchRule{
				Kind:    domain.MatchCode,
				Sources: []string{domain.SourceConditions},
				Codes: []domain.CodeRef{
					{System: SystemSNOMED, Code: "422504002"}, // ischemic stroke
					{System: SystemICD10, Code: "I63.9"},
				},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING:   1.20,
				domain.THROMBOTIC: 2.20,
			},
		},
		{
			Key:         "nsaid_or_steroid_use",
			DisplayName: "Long-term NSAID or corticosteroid use",
			Weight:      domain.WeightMinor,
			Match: domain.MatchRule{
				Kind:    domain.MatchCode,
				Sources: []string{domain.SourceMedications},
				Codes: []domain.CodeRef{
					{System: SystemATC, Code: "M01AE01"}, // ibuprofen
					{System: SystemATC, Code: "M01AB05"}, // diclofenac
					{System: SystemATC, Code: "H02AB06"}, // prednisolone
					{System: SystemATC, Code: "H02AB07"}, // prednisone
				},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.BLEEDING: 1.40,
			},
		},
		{
			Key:         "diabetes",
			DisplayName: "Diabetes mellitus",
			Weight:      domain.WeightNone,
			Match: domain.MatchRule{
				Kind:    domain.MatchCode,
				Sources: []string{domain.SourceConditions},
				Codes: []domain.CodeRef{
					{System: SystemSNOMED, Code: "44054006"}, // type 2 diabetes mellitus
					{System: SystemSNOMED, Code: "46635009"}, // type 1 diabetes mellitus
				},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.THROMBOTIC: 1.47,
			},
		},
		{
			Key:         "prior_mi",
			DisplayName: "Prior myocardial infarction",
			Weight:      domain.WeightNone,
			Match: domain.MatchRule{
				Kind:    domain.MatchCode,
				Sources: []string{domain.SourceConditions},
				Codes: []domain.CodeRef{
					{System: SystemSNOMED, Code: "22298006"}, // myocardial infarction
					{System: SystemICD10, Code: "I21.9"},
				},
			},
			HazardRatios: map[domain.OutcomeDomain]float64{
				domain.THROMBOTIC: 1.60,
			},
		},
	}
}
