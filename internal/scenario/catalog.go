package scenario

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned for unknown scenario IDs or names
var ErrNotFound = errors.New("scenario not found")

// Catalog is an in-memory scenario registry, read-only after construction
type Catalog struct {
	order []string
	byID  map[string]RiskScenario
}

// NewCatalog validates scenarios and rejects duplicate IDs
func NewCatalog(scenarios ...RiskScenario) (*Catalog, error) {
	c := &Catalog{
		order: make([]string, 0, len(scenarios)),
		byID:  make(map[string]RiskScenario, len(scenarios)),
	}
	for _, s := range scenarios {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("scenario %q: %w", s.ID, err)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("scenario %q: duplicate id: %w", s.ID, ErrInvalidScenario)
		}
		c.order = append(c.order, s.ID)
		c.byID[s.ID] = s
	}
	return c, nil
}

// StandardCatalog returns a catalog of the eight standard scenarios
func StandardCatalog() *Catalog {
	c, err := NewCatalog(StandardScenarios()...)
	if err != nil {
		panic(err) // standard scenarios are constants
	}
	return c
}

// With returns a new catalog holding c's scenarios followed by extra.
// An extra scenario whose ID already exists replaces the original in place.
func (c *Catalog) With(extra ...RiskScenario) (*Catalog, error) {
	merged := make([]RiskScenario, 0, len(c.order)+len(extra))
	replace := make(map[string]RiskScenario, len(extra))
	for _, s := range extra {
		if _, ok := c.byID[s.ID]; ok {
			replace[s.ID] = s
		}
	}
	for _, id := range c.order {
		if s, ok := replace[id]; ok {
			merged = append(merged, s)
			continue
		}
		merged = append(merged, c.byID[id])
	}
	for _, s := range extra {
		if _, ok := c.byID[s.ID]; !ok {
			merged = append(merged, s)
		}
	}
	return NewCatalog(merged...)
}

// Len returns the number of scenarios
func (c *Catalog) Len() int { return len(c.order) }

// All returns every scenario in insertion order
func (c *Catalog) All() []RiskScenario {
	return c.filter(func(RiskScenario) bool { return true })
}

// Get returns the scenario with id
func (c *Catalog) Get(id string) (RiskScenario, error) {
	s, ok := c.byID[id]
	if !ok {
		return RiskScenario{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// FindByName returns the first scenario named name
func (c *Catalog) FindByName(name string) (RiskScenario, error) {
	for _, id := range c.order {
		if s := c.byID[id]; s.Name == name {
			return s, nil
		}
	}
	return RiskScenario{}, fmt.Errorf("%w: name %s", ErrNotFound, name)
}

// FindByType returns scenarios of type t
func (c *Catalog) FindByType(t Type) []RiskScenario {
	return c.filter(func(s RiskScenario) bool { return s.Type == t })
}

// FindBySeverity returns scenarios of severity sev
func (c *Catalog) FindBySeverity(sev Severity) []RiskScenario {
	return c.filter(func(s RiskScenario) bool { return s.Severity == sev })
}

// FindByProbabilityRange returns scenarios with min <= probability <= max
func (c *Catalog) FindByProbabilityRange(min, max decimal.Decimal) []RiskScenario {
	return c.filter(func(s RiskScenario) bool {
		return s.Probability.GreaterThanOrEqual(min) && s.Probability.LessThanOrEqual(max)
	})
}

// Active returns scenarios not expired at now
func (c *Catalog) Active(now time.Time) []RiskScenario {
	return c.filter(func(s RiskScenario) bool { return !s.IsExpiredAt(now) })
}

func (c *Catalog) filter(keep func(RiskScenario) bool) []RiskScenario {
	out := make([]RiskScenario, 0, len(c.order))
	for _, id := range c.order {
		if s := c.byID[id]; keep(s) {
			out = append(out, s)
		}
	}
	return out
}
