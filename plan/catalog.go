// Package plan holds the static subscription catalog.
//
// The catalog is immutable after construction. Lookups of unknown tiers fail
// closed: they return the most restrictive plan instead of an error, so a
// corrupt or foreign plan id can never unlock paid quotas.
package plan

import (
	"fmt"
	"slices"

	"github.com/rechtskompass/ledger/types"
)

// Catalog maps plan identifiers to plans.
type Catalog struct {
	plans    map[ID]Plan
	ordered  []Plan // by monthly price, ascending
	fallback Plan
}

// NewCatalog builds a catalog. It rejects duplicate identifiers, invalid
// quotas and catalogs without a free plan.
func NewCatalog(plans ...Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[ID]Plan, len(plans))}
	for _, p := range plans {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.plans[p.ID]; dup {
			return nil, fmt.Errorf("plan: duplicate definition for %q", p.ID)
		}
		c.plans[p.ID] = p
		c.ordered = append(c.ordered, p)
	}

	free, ok := c.plans[Free]
	if !ok {
		return nil, fmt.Errorf("plan: catalog has no %q plan", Free)
	}
	c.fallback = free

	slices.SortStableFunc(c.ordered, func(a, b Plan) int {
		switch {
		case a.MonthlyPrice.Amount < b.MonthlyPrice.Amount:
			return -1
		case a.MonthlyPrice.Amount > b.MonthlyPrice.Amount:
			return 1
		default:
			return 0
		}
	})
	return c, nil
}

// MustCatalog is NewCatalog that panics on error.
func MustCatalog(plans ...Plan) *Catalog {
	c, err := NewCatalog(plans...)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultCatalog = MustCatalog(
	Plan{
		ID:             Free,
		Name:           "Kostenlos",
		MonthlyPrice:   types.EUR(0),
		MonthlyCredits: 0,
		DailyMessages:  Limit(3),
		MonthlyLetters: Limit(0),
		MonthlyScans:   Limit(1),
		Forum:          ForumRead,
		LetterPrice:    types.EUR(299),
	},
	Plan{
		ID:             Basis,
		Name:           "Basis",
		MonthlyPrice:   types.EUR(499),
		MonthlyCredits: 10,
		DailyMessages:  Limit(20),
		MonthlyLetters: Limit(2),
		MonthlyScans:   Limit(5),
		Forum:          ForumWrite,
		LetterPrice:    types.EUR(199),
	},
	Plan{
		ID:             Kaempfer,
		Name:           "Kämpfer",
		MonthlyPrice:   types.EUR(999),
		MonthlyCredits: 25,
		DailyMessages:  Unlimited,
		MonthlyLetters: Limit(5),
		MonthlyScans:   Limit(20),
		Forum:          ForumWrite,
		LetterPrice:    types.EUR(99),
	},
	Plan{
		ID:             Profi,
		Name:           "Profi",
		MonthlyPrice:   types.EUR(1999),
		MonthlyCredits: 60,
		DailyMessages:  Unlimited,
		MonthlyLetters: Unlimited,
		MonthlyScans:   Unlimited,
		Forum:          ForumWrite,
		LetterPrice:    types.EUR(0),
	},
)

// Default returns the production catalog.
func Default() *Catalog { return defaultCatalog }

// Get returns the plan for id and whether it exists.
func (c *Catalog) Get(id ID) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// Lookup returns the plan for id, or the free plan when id is unknown.
func (c *Catalog) Lookup(id ID) Plan {
	if p, ok := c.plans[id]; ok {
		return p
	}
	return c.fallback
}

// Fallback returns the most restrictive plan.
func (c *Catalog) Fallback() Plan { return c.fallback }

// Plans returns all plans ordered by monthly price.
func (c *Catalog) Plans() []Plan { return slices.Clone(c.ordered) }

// CheapestUpgrade returns the cheapest plan priced above from that satisfies
// better.
func (c *Catalog) CheapestUpgrade(from Plan, better func(Plan) bool) (Plan, bool) {
	for _, p := range c.ordered {
		if p.ID == from.ID || !from.MonthlyPrice.LessThan(p.MonthlyPrice) {
			continue
		}
		if better(p) {
			return p, true
		}
	}
	return Plan{}, false
}

// Direction classifies a move from one plan to another by monthly price.
type Direction int

const (
	Lateral Direction = iota
	Upgrade
	Downgrade
)

func (d Direction) String() string {
	switch d {
	case Upgrade:
		return "upgrade"
	case Downgrade:
		return "downgrade"
	}
	return "lateral"
}

// Compare reports whether moving from one plan to another is an upgrade.
// Unknown ids compare as the free plan.
func (c *Catalog) Compare(from, to ID) Direction {
	a, b := c.Lookup(from).MonthlyPrice, c.Lookup(to).MonthlyPrice
	switch {
	case a.LessThan(b):
		return Upgrade
	case b.LessThan(a):
		return Downgrade
	}
	return Lateral
}
