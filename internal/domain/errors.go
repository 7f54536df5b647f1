package domain

import (
	"fmt"
	"strings"
)

// UnitConversionError reports a lab unit string with no known conversion
// factor for its analyte. The engine never guesses a factor; the caller
// treats the analyte as missing.
type UnitConversionError struct {
	Analyte Analyte `json:"analyte"`
	Unit    string  `json:"unit"`
}

// Error implements the error interface.
func (e *UnitConversionError) Error() string {
	return fmt.Sprintf("no conversion factor for %s unit %q", e.Analyte, e.Unit)
}

// NewUnitConversionError creates a new UnitConversionError.
func NewUnitConversionError(analyte Analyte, unit string) *UnitConversionError {
	return &UnitConversionError{Analyte: analyte, Unit: unit}
}

// InsufficientDataError reports that one or more critical inputs were
// missing or unconvertible. No partial score is ever computed alongside it.
type InsufficientDataError struct {
	Missing []string `json:"missing"`
}

// Error implements the error interface.
func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for score: missing %s", strings.Join(e.Missing, ", "))
}

// NewInsufficientDataError creates a new InsufficientDataError.
func NewInsufficientDataError(missing []string) *InsufficientDataError {
	return &InsufficientDataError{Missing: missing}
}

// MatchRuleConfigurationError reports a malformed rule-table entry. It is
// raised at load time, before any patient evaluation.
type MatchRuleConfigurationError struct {
	FactorKey string `json:"factor_key,omitempty"`
	Reason    string `json:"reason"`
}

// Error implements the error interface.
func (e *MatchRuleConfigurationError) Error() string {
	if e.FactorKey == "" {
		return fmt.Sprintf("invalid rule table: %s", e.Reason)
	}
	return fmt.Sprintf("invalid rule table entry %q: %s", e.FactorKey, e.Reason)
}

// NewMatchRuleConfigurationError creates a new MatchRuleConfigurationError.
func NewMatchRuleConfigurationError(factorKey, reason string) *MatchRuleConfigurationError {
	return &MatchRuleConfigurationError{FactorKey: factorKey, Reason: reason}
}
