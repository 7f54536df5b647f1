package ruleset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunjulin/PRECISE-HBR-sub000/internal/domain"
)

const minimalTableJSON = `{
  "version": "2025.2-file",
  "thresholds": {"not_high_max": 22, "high_max": 26},
  "baseline_rates": {"bleeding": 0.015, "thrombotic": 0.025},
  "units": {
    "age": {"canonical": "a", "factors": {"a": 1, "years": 1}},
    "hemoglobin": {"canonical": "g/dL", "factors": {"g/dl": 1, "g/l": 0.1}},
    "egfr": {"canonical": "mL/min/1.73m2", "factors": {"ml/min/1.73m2": 1}},
    "wbc": {"canonical": "10*9/L", "factors": {"10*9/l": 1, "cells/ul": 0.001}}
  },
  "hierarchy": [
    {"system": "http://snomed.info/sct", "code": "90935002", "parent": "64779008"}
  ],
  "factors": [
    {
      "key": "severe_anemia",
      "display_name": "Hemoglobin < 11 g/dL",
      "weight": 2,
      "match": {"kind": "lab", "lab": {"analyte": "hemoglobin", "op": "lt", "value": 11}},
      "hazard_ratios": {"bleeding": 3.99}
    },
    {
      "key": "bleeding_diathesis",
      "display_name": "Chronic bleeding diathesis",
      "weight": 2,
      "match": {"kind": "hierarchy", "system": "http://snomed.info/sct", "root": "64779008"},
      "hazard_ratios": {"bleeding": 2.2}
    }
  ]
}`

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func writeTable(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ruleset.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultTableIsValid(t *testing.T) {
	compiled, err := Compile(DefaultTable())
	require.NoError(t, err)
	assert.NotNil(t, compiled.Hierarchy)
	assert.NotNil(t, compiled.Normalizer)
	assert.NotEmpty(t, compiled.Table.Version)

	// The built-in table must carry every critical analyte's unit table.
	for _, analyte := range []domain.Analyte{domain.AnalyteAge, domain.AnalyteHemoglobin, domain.AnalyteEGFR, domain.AnalyteWBC} {
		assert.Contains(t, compiled.Table.Units, analyte)
	}
}

func TestLoaderBuiltinFallback(t *testing.T) {
	l := NewLoader("", testLogger())
	require.NoError(t, l.Load())
	assert.Equal(t, DefaultTable().Version, l.Current().Table.Version)
}

func TestLoaderReadsFile(t *testing.T) {
	l := NewLoader(writeTable(t, minimalTableJSON), testLogger())
	require.NoError(t, l.Load())

	table := l.Current().Table
	assert.Equal(t, "2025.2-file", table.Version)
	assert.Len(t, table.Factors, 2)
	assert.Equal(t, domain.WeightMajor, table.Factors[0].Weight)
	assert.Equal(t, domain.OpLT, table.Factors[0].Match.Lab.Op)
	assert.InDelta(t, 0.015, table.BaselineRates[domain.BLEEDING], 1e-12)
	assert.True(t, l.Current().Hierarchy.Subsumes("http://snomed.info/sct", "64779008", "90935002"))
}

func TestLoaderRejectsInvalidUpdateKeepsCurrent(t *testing.T) {
	path := writeTable(t, minimalTableJSON)
	l := NewLoader(path, testLogger())
	require.NoError(t, l.Load())

	// Break the table on disk: duplicate factor keys.
	broken := `{
  "version": "broken",
  "thresholds": {"not_high_max": 22, "high_max": 26},
  "baseline_rates": {"bleeding": 0.015, "thrombotic": 0.025},
  "units": {"age": {"canonical": "a", "factors": {"a": 1}}},
  "factors": [
    {"key": "dup", "weight": 1, "match": {"kind": "lab", "lab": {"analyte": "age", "op": "ge", "value": 65}}},
    {"key": "dup", "weight": 1, "match": {"kind": "lab", "lab": {"analyte": "age", "op": "ge", "value": 75}}}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(broken), 0o644))

	err := l.Load()
	require.Error(t, err)
	var cfgErr *domain.MatchRuleConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "dup", cfgErr.FactorKey)

	assert.Equal(t, "2025.2-file", l.Current().Table.Version, "previous table stays active")
}

func TestValidateFailFast(t *testing.T) {
	base := func() *domain.RuleTable {
		var err error
		table := DefaultTable()
		_, err = Compile(table)
		require.NoError(t, err)
		return table
	}

	t.Run("missing baseline rate", func(t *testing.T) {
		table := base()
		delete(table.BaselineRates, domain.THROMBOTIC)
		assert.Error(t, Validate(table))
	})

	t.Run("inverted thresholds", func(t *testing.T) {
		table := base()
		table.Thresholds = domain.CategoryThresholds{NotHighMax: 26, HighMax: 22}
		assert.Error(t, Validate(table))
	})

	t.Run("negative conversion factor", func(t *testing.T) {
		table := base()
		table.Units[domain.AnalyteWBC] = domain.AnalyteUnits{
			Canonical: "10*9/L",
			Factors:   map[string]float64{"cells/ul": -0.001},
		}
		assert.Error(t, Validate(table))
	})

	t.Run("compound rule with one sub-rule", func(t *testing.T) {
		table := base()
		table.Factors[0].Match = domain.MatchRule{
			Kind:  domain.MatchAll,
			Rules: []domain.MatchRule{{Kind: domain.MatchLab, Lab: &domain.LabCondition{Analyte: domain.AnalyteAge, Op: domain.OpGE, Value: 65}}},
		}
		err := Validate(table)
		var cfgErr *domain.MatchRuleConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, table.Factors[0].Key, cfgErr.FactorKey)
	})

	t.Run("unknown lab operator", func(t *testing.T) {
		table := base()
		table.Factors[0].Match = domain.MatchRule{
			Kind: domain.MatchLab,
			Lab:  &domain.LabCondition{Analyte: domain.AnalyteAge, Op: "between", Value: 65},
		}
		assert.Error(t, Validate(table))
	})

	t.Run("zero hazard ratio", func(t *testing.T) {
		table := base()
		table.Factors[0].HazardRatios = map[domain.OutcomeDomain]float64{domain.BLEEDING: 0}
		assert.Error(t, Validate(table))
	})
}
