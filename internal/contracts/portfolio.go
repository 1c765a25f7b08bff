package contracts

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Position is one holding of a portfolio
type Position struct {
	PortfolioID   int64           `json:"portfolio_id"`
	InstrumentKey string          `json:"instrument_key"`
	Quantity      decimal.Decimal `json:"quantity"` // signed; negative = short
	AveragePrice  decimal.Decimal `json:"average_price"`
	TotalCost     decimal.Decimal `json:"total_cost"`
}

// HasPosition reports a non-zero quantity
func (p Position) HasPosition() bool {
	return !p.Quantity.IsZero()
}

// CurrentValue returns quantity × price
func (p Position) CurrentValue(price decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(price)
}

// PriceMap maps instrument key to current price
type PriceMap map[string]decimal.Decimal

// Price returns the price for key and whether one is known
func (m PriceMap) Price(key string) (decimal.Decimal, bool) {
	p, ok := m[key]
	return p, ok
}

// Clone returns an independent copy
func (m PriceMap) Clone() PriceMap {
	out := make(PriceMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the instrument keys in sorted order
func (m PriceMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PortfolioValue sums the value of every priced position.
// Positions without a price contribute zero.
func PortfolioValue(positions []Position, prices PriceMap) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		if price, ok := prices[p.InstrumentKey]; ok {
			total = total.Add(p.CurrentValue(price))
		}
	}
	return total
}

// InstrumentKeys returns the distinct instrument keys of positions, in input order
func InstrumentKeys(positions []Position) []string {
	seen := make(map[string]struct{}, len(positions))
	keys := make([]string, 0, len(positions))
	for _, p := range positions {
		if _, ok := seen[p.InstrumentKey]; ok {
			continue
		}
		seen[p.InstrumentKey] = struct{}{}
		keys = append(keys, p.InstrumentKey)
	}
	return keys
}
