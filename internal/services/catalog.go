// internal/services/catalog.go
package services

import (
	_ "embed"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Corphon/LifeBranches/internal/errors"
	"github.com/Corphon/LifeBranches/internal/models"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

type catalogFile struct {
	Events []models.EventDefinition `yaml:"events"`
}

// Catalog is the immutable table of event definitions.
type Catalog struct {
	defs         []models.EventDefinition
	byName       map[string]int
	mortgageRate float64
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog(mortgageRate float64) (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML, mortgageRate)
}

// LoadCatalog reads a catalog file from path, or the embedded catalog when
// path is empty.
func LoadCatalog(path string, mortgageRate float64) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(mortgageRate)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return ParseCatalog(data, mortgageRate)
}

// ParseCatalog unmarshals and validates catalog YAML.
func ParseCatalog(data []byte, mortgageRate float64) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}

	c := &Catalog{
		defs:         file.Events,
		byName:       make(map[string]int, len(file.Events)),
		mortgageRate: mortgageRate,
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) validate() error {
	var errs []string
	if len(c.defs) == 0 {
		errs = append(errs, "at least one event is required")
	}
	for i, def := range c.defs {
		if def.Name == "" {
			errs = append(errs, fmt.Sprintf("events[%d].name is required", i))
			continue
		}
		if _, dup := c.byName[def.Name]; dup {
			errs = append(errs, fmt.Sprintf("duplicate event %q", def.Name))
			continue
		}
		c.byName[def.Name] = i

		for j, e := range def.Effects {
			if err := validateEffect(e); err != "" {
				errs = append(errs, fmt.Sprintf("%s.effects[%d]: %s", def.Name, j, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("catalog: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateEffect(e models.Effect) string {
	switch e.Kind {
	case models.EffectWagePercent, models.EffectMoneyDelta:
		if e.Min > e.Max {
			return "min greater than max"
		}
		if e.Kind == models.EffectWagePercent && e.Min < 0 {
			return "wage percent must not be negative"
		}
	case models.EffectSetMarital:
		if _, err := models.ParseMaritalStatus(e.Value); err != nil {
			return err.Error()
		}
		for _, w := range e.When {
			if _, err := models.ParseMaritalStatus(w); err != nil {
				return err.Error()
			}
		}
	case models.EffectSetChildren, models.EffectAddChildren:
		if e.Count < 0 {
			return "count must not be negative"
		}
	case models.EffectReduceLoan, models.EffectTakeLoan:
		if e.Amount < 0 {
			return "amount must not be negative"
		}
	case models.EffectSetHealth, models.EffectSetEmployment:
		if e.Value == "" {
			return "value is required"
		}
	default:
		return fmt.Sprintf("unknown effect kind %q", e.Kind)
	}
	return ""
}

// Get returns the definition named name.
func (c *Catalog) Get(name string) (models.EventDefinition, bool) {
	i, ok := c.byName[name]
	if !ok {
		return models.EventDefinition{}, false
	}
	return c.defs[i], true
}

// Lookup is Get with an error suitable for callers of Schedule.
func (c *Catalog) Lookup(name string) (models.EventDefinition, error) {
	def, ok := c.Get(name)
	if !ok {
		return def, apperrors.NewValidationError(fmt.Sprintf("event %q", name), apperrors.ErrUnknownEvent)
	}
	return def, nil
}

// All returns a copy of every definition in catalog order.
func (c *Catalog) All() []models.EventDefinition {
	return slices.Clone(c.defs)
}

// Names lists event names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.defs))
	for i, d := range c.defs {
		names[i] = d.Name
	}
	return names
}

// SplitNames lists the events that force a split.
func (c *Catalog) SplitNames() []string {
	var names []string
	for _, d := range c.defs {
		if d.CausesSplit {
			names = append(names, d.Name)
		}
	}
	return names
}

// ApplyEffects interprets def's effects against state. It touches only the
// state passed in and records the event in its history.
func (c *Catalog) ApplyEffects(def models.EventDefinition, state *models.LifeState, rng *rand.Rand) {
	for _, e := range def.Effects {
		c.applyEffect(e, state, rng)
	}
	state.History = append(state.History, def.Name)
}

func (c *Catalog) applyEffect(e models.Effect, state *models.LifeState, rng *rand.Rand) {
	switch e.Kind {
	case models.EffectWagePercent:
		pct := drawRange(e.Min, e.Max, rng)
		state.MonthlyWage = max(state.MonthlyWage*pct/100, 0)

	case models.EffectMoneyDelta:
		state.Money += drawRange(e.Min, e.Max, rng)

	case models.EffectSetMarital:
		if len(e.When) > 0 && !statusIn(state.MaritalStatus, e.When) {
			return
		}
		if status, err := models.ParseMaritalStatus(e.Value); err == nil {
			state.MaritalStatus = status
		}

	case models.EffectSetChildren:
		state.ChildCount = max(e.Count, 0)

	case models.EffectAddChildren:
		state.ChildCount = max(state.ChildCount+e.Count, 0)

	case models.EffectReduceLoan:
		paid := state.CurrentLoan
		if e.Amount > 0 {
			paid = min(e.Amount, state.CurrentLoan)
		}
		state.CurrentLoan -= paid
		state.Money -= paid

	case models.EffectTakeLoan:
		effective := int64(math.Round(float64(e.Amount) * (1 + c.mortgageRate)))
		state.CurrentLoan += effective
		state.Money += effective

	case models.EffectSetHealth:
		state.HealthStatus = e.Value

	case models.EffectSetEmployment:
		state.Employment = e.Value
	}
}

// drawRange returns a uniform value in [lo, hi].
func drawRange(lo, hi int64, rng *rand.Rand) int64 {
	if hi <= lo || rng == nil {
		return lo
	}
	return lo + rng.Int64N(hi-lo+1)
}

func statusIn(status models.MaritalStatus, when []string) bool {
	for _, w := range when {
		if s, err := models.ParseMaritalStatus(w); err == nil && s == status {
			return true
		}
	}
	return false
}
