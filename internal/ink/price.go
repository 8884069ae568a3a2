package ink

import (
	"fmt"
	"math"
	"strings"
)

// Step prices every coverage strictly below Below.
type Step struct {
	Below float64
	Price int
}

// Table is an ascending step function over a coverage percentage.
// The last step should use math.Inf(1) as its bound.
type Table []Step

// Lookup returns the price contribution for pct. A channel that uses no ink
// contributes nothing.
func (t Table) Lookup(pct float64) int {
	if pct <= 0 {
		return 0
	}
	for _, s := range t {
		if pct < s.Below {
			return s.Price
		}
	}
	return 0
}

// Tiers is a complete price list: one table per ink channel.
type Tiers struct {
	Name  string
	Black Table
	Color Table
}

// Price sums the black and color contributions for c. There is no cap.
func (t Tiers) Price(c Coverage) int {
	return t.Black.Lookup(c.Black) + t.Color.Lookup(c.Color)
}

// StandardTiers is the default price list.
//
// NOTE: the published tier list names three color steps (<50 costs 3,
// [50,75) costs 4, >=75 costs 25), but the worked pricing examples charge 3
// for a fully colored page and 25 for light color. This table follows the
// examples, so the [50,75) color step is dropped on purpose: color below 75%
// costs 25 and 75% or more costs 3. The result is not monotonic.
var StandardTiers = Tiers{
	Name: "standard",
	Black: Table{
		{Below: 50, Price: 1},
		{Below: 75, Price: 2},
		{Below: math.Inf(1), Price: 3},
	},
	Color: Table{
		{Below: 75, Price: 25},
		{Below: math.Inf(1), Price: 3},
	},
}

// LegacyTiers reproduces the first release, whose branches tested "< 75"
// before "< 50". The middle tiers were unreachable, so black pages cost 3
// below 75% and 1 above; color pages cost 25 below 75% and 3 above.
var LegacyTiers = Tiers{
	Name: "legacy",
	Black: Table{
		{Below: 75, Price: 3},
		{Below: math.Inf(1), Price: 1},
	},
	Color: Table{
		{Below: 75, Price: 25},
		{Below: math.Inf(1), Price: 3},
	},
}

// TiersByName resolves a configured price list. An empty name selects StandardTiers.
func TiersByName(name string) (Tiers, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StandardTiers.Name:
		return StandardTiers, nil
	case LegacyTiers.Name:
		return LegacyTiers, nil
	default:
		return Tiers{}, fmt.Errorf("unknown pricing table %q (want %q or %q)", name, StandardTiers.Name, LegacyTiers.Name)
	}
}
