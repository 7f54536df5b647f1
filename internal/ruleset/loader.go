// Package ruleset loads, validates, and hot-reloads the versioned rule
// table that drives scoring and trade-off evaluation.
package ruleset

import (
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/kunjulin/PRECISE-HBR-sub000/internal/domain"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/units"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/valueset"
)

// Compiled is one validated table together with the lookup structures
// derived from it. Immutable; a reload swaps the whole value.
type Compiled struct {
	Table      *domain.RuleTable
	Hierarchy  *valueset.Hierarchy
	Normalizer *units.Normalizer
}

// Loader owns the active rule table. Load and Watch are called from the
// main goroutine; Current may be called from any goroutine.
type Loader struct {
	path    string
	logger  *logrus.Logger
	viper   *viper.Viper
	current atomic.Value // *Compiled
}

// NewLoader creates a loader for the table file at path. An empty path
// means the built-in default table with no file watching.
func NewLoader(path string, logger *logrus.Logger) *Loader {
	return &Loader{path: path, logger: logger}
}

// Load reads and validates the table and makes it current. On a validation
// failure the previous table (if any) stays active.
func (l *Loader) Load() error {
	table, err := l.read()
	if err != nil {
		return err
	}
	compiled, err := Compile(table)
	if err != nil {
		return err
	}
	l.current.Store(compiled)
	l.logger.WithFields(logrus.Fields{
		"version": table.Version,
		"factors": len(table.Factors),
		"source":  l.source(),
	}).Info("Rule table loaded")
	return nil
}

// Current returns the active compiled table. Panics if Load never succeeded;
// main treats a failed initial Load as fatal.
func (l *Loader) Current() *Compiled {
	return l.current.Load().(*Compiled)
}

// Watch re-loads the table whenever the file changes. An invalid
// replacement is logged and discarded; the active table keeps serving.
func (l *Loader) Watch() {
	if l.viper == nil {
		return
	}
	l.viper.OnConfigChange(func(e fsnotify.Event) {
		l.logger.WithField("file", e.Name).Info("Rule table file changed, reloading")
		if err := l.Load(); err != nil {
			l.logger.WithError(err).Error("Rejected rule table update, keeping previous version")
		}
	})
	l.viper.WatchConfig()
}

func (l *Loader) read() (*domain.RuleTable, error) {
	if l.path == "" {
		return DefaultTable(), nil
	}
	if l.viper == nil {
		l.viper = viper.New()
		l.viper.SetConfigFile(l.path)
	}
	if err := l.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read rule table %s: %w", l.path, err)
	}
	var table domain.RuleTable
	decodeJSONTags := func(dc *mapstructure.DecoderConfig) { dc.TagName = "json" }
	if err := l.viper.Unmarshal(&table, decodeJSONTags); err != nil {
		return nil, fmt.Errorf("failed to parse rule table %s: %w", l.path, err)
	}
	return &table, nil
}

func (l *Loader) source() string {
	if l.path == "" {
		return "builtin"
	}
	return l.path
}

// Compile validates a table and builds its derived lookup structures.
func Compile(table *domain.RuleTable) (*Compiled, error) {
	if err := Validate(table); err != nil {
		return nil, err
	}
	return &Compiled{
		Table:      table,
		Hierarchy:  valueset.NewHierarchy(table.Hierarchy),
		Normalizer: units.NewNormalizer(table.Units),
	}, nil
}

// Validate checks the whole table fail-fast, returning the first problem as
// a *domain.MatchRuleConfigurationError. Runs at load time only; evaluation
// assumes a valid table.
func Validate(table *domain.RuleTable) error {
	if table.Version == "" {
		return domain.NewMatchRuleConfigurationError("", "version is required")
	}
	if table.Thresholds.NotHighMax <= 0 || table.Thresholds.HighMax <= table.Thresholds.NotHighMax {
		return domain.NewMatchRuleConfigurationError("", fmt.Sprintf(
			"thresholds must satisfy 0 < not_high_max < high_max, got %d/%d",
			table.Thresholds.NotHighMax, table.Thresholds.HighMax))
	}
	for _, dom := range []domain.OutcomeDomain{domain.BLEEDING, domain.THROMBOTIC} {
		rate, ok := table.BaselineRates[dom]
		if !ok {
			return domain.NewMatchRuleConfigurationError("", fmt.Sprintf("missing baseline rate for %s", dom))
		}
		if rate <= 0 || rate >= 1 {
			return domain.NewMatchRuleConfigurationError("", fmt.Sprintf("baseline rate for %s must be in (0,1), got %g", dom, rate))
		}
	}
	if err := validateUnits(table.Units); err != nil {
		return err
	}
	if len(table.Factors) == 0 {
		return domain.NewMatchRuleConfigurationError("", "at least one factor is required")
	}
	seen := make(map[string]bool, len(table.Factors))
	for i := range table.Factors {
		def := &table.Factors[i]
		if def.Key == "" {
			return domain.NewMatchRuleConfigurationError("", fmt.Sprintf("factor %d has no key", i))
		}
		if seen[def.Key] {
			return domain.NewMatchRuleConfigurationError(def.Key, "duplicate factor key")
		}
		seen[def.Key] = true
		if def.Weight < domain.WeightNone || def.Weight > domain.WeightMajor {
			return domain.NewMatchRuleConfigurationError(def.Key, fmt.Sprintf("weight must be 0, 1 or 2, got %d", def.Weight))
		}
		for dom, hr := range def.HazardRatios {
			if dom != domain.BLEEDING && dom != domain.THROMBOTIC {
				return domain.NewMatchRuleConfigurationError(def.Key, fmt.Sprintf("unknown outcome domain %q", dom))
			}
			if hr <= 0 {
				return domain.NewMatchRuleConfigurationError(def.Key, fmt.Sprintf("hazard ratio for %s must be positive, got %g", dom, hr))
			}
		}
		if err := validateRule(def.Key, def.Match); err != nil {
			return err
		}
	}
	return nil
}

func validateUnits(tables map[domain.Analyte]domain.AnalyteUnits) error {
	if len(tables) == 0 {
		return domain.NewMatchRuleConfigurationError("", "unit tables are required")
	}
	for analyte, au := range tables {
		if au.Canonical == "" {
			return domain.NewMatchRuleConfigurationError("", fmt.Sprintf("analyte %s has no canonical unit", analyte))
		}
		if len(au.Factors) == 0 {
			return domain.NewMatchRuleConfigurationError("", fmt.Sprintf("analyte %s has no conversion factors", analyte))
		}
		for unit, factor := range au.Factors {
			if factor <= 0 {
				return domain.NewMatchRuleConfigurationError("", fmt.Sprintf(
					"analyte %s unit %q has non-positive factor %g", analyte, unit, factor))
			}
		}
	}
	return nil
}

func validateRule(factorKey string, rule domain.MatchRule) error {
	switch rule.Kind {
	case domain.MatchCode:
		if len(rule.Codes) == 0 {
			return domain.NewMatchRuleConfigurationError(factorKey, "code rule needs at least one code")
		}
		for _, c := range rule.Codes {
			if c.System == "" || c.Code == "" {
				return domain.NewMatchRuleConfigurationError(factorKey, "code entries need both system and code")
			}
		}
	case domain.MatchHierarchy:
		if rule.System == "" || rule.Root == "" {
			return domain.NewMatchRuleConfigurationError(factorKey, "hierarchy rule needs system and root")
		}
	case domain.MatchText:
		if len(rule.Keywords) == 0 {
			return domain.NewMatchRuleConfigurationError(factorKey, "text rule needs at least one keyword")
		}
	case domain.MatchAll, domain.MatchAny:
		if len(rule.Rules) < 2 {
			return domain.NewMatchRuleConfigurationError(factorKey, fmt.Sprintf("%s rule needs at least two sub-rules", rule.Kind))
		}
		for _, sub := range rule.Rules {
			if err := validateRule(factorKey, sub); err != nil {
				return err
			}
		}
	case domain.MatchLab:
		if rule.Lab == nil {
			return domain.NewMatchRuleConfigurationError(factorKey, "lab rule needs a lab condition")
		}
		switch rule.Lab.Op {
		case domain.OpLT, domain.OpLE, domain.OpGT, domain.OpGE:
		default:
			return domain.NewMatchRuleConfigurationError(factorKey, fmt.Sprintf("unknown lab operator %q", rule.Lab.Op))
		}
		if rule.Lab.Analyte == "" {
			return domain.NewMatchRuleConfigurationError(factorKey, "lab rule needs an analyte")
		}
	default:
		return domain.NewMatchRuleConfigurationError(factorKey, fmt.Sprintf("unknown match kind %q", rule.Kind))
	}
	return nil
}
