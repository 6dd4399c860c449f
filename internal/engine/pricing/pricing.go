// Package pricing maps static base prices and live supply/demand to current prices.
package pricing

import (
	"math"

	"stardock/internal/domain"
)

// Curve shapes the supply/demand response:
//
//	price = base × ((demand + Smoothing) / (supply + Smoothing)) ^ Elasticity
//
// Smoothing must be positive for continuity at zero stock.
type Curve struct {
	Smoothing    float64 `yaml:"smoothing" json:"smoothing"`
	Elasticity   float64 `yaml:"elasticity" json:"elasticity"`
	FloorRatio   float64 `yaml:"floor_ratio" json:"floor_ratio"`
	CeilingRatio float64 `yaml:"ceiling_ratio" json:"ceiling_ratio"`
}

var DefaultCurve = Curve{Smoothing: 10, Elasticity: 0.5, FloorRatio: 0.25, CeilingRatio: 4}

// Price evaluates the default curve. A zero floor or ceiling means unbounded on that side.
func Price(base float64, supply, demand int, floor, ceiling float64) float64 {
	return DefaultCurve.Price(base, supply, demand, floor, ceiling)
}

func (c Curve) Price(base float64, supply, demand int, floor, ceiling float64) float64 {
	k := c.Smoothing
	if k <= 0 {
		k = DefaultCurve.Smoothing
	}
	s := math.Max(0, float64(supply))
	d := math.Max(0, float64(demand))
	p := base * math.Pow((d+k)/(s+k), math.Max(0, c.Elasticity))
	if floor > 0 && p < floor {
		p = floor
	}
	if ceiling > 0 && p > ceiling {
		p = ceiling
	}
	return p
}

// ForVolatility scales elasticity by a good's volatility; zero volatility is treated as 1.
func (c Curve) ForVolatility(v float64) Curve {
	if v <= 0 {
		return c
	}
	c.Elasticity *= v
	return c
}

// Bounds returns the good's explicit floor/ceiling, falling back to the curve ratios.
func (c Curve) Bounds(g domain.Good) (floor, ceiling float64) {
	floor, ceiling = g.PriceFloor, g.PriceCeiling
	if floor <= 0 && c.FloorRatio > 0 {
		floor = g.BasePrice * c.FloorRatio
	}
	if ceiling <= 0 && c.CeilingRatio > 0 {
		ceiling = g.BasePrice * c.CeilingRatio
	}
	return floor, ceiling
}

// Quote prices one market entry of a good.
func (c Curve) Quote(g domain.Good, e domain.MarketEntry) float64 {
	floor, ceiling := c.Bounds(g)
	return c.ForVolatility(g.Volatility).Price(g.BasePrice, e.Supply, e.Demand, floor, ceiling)
}

// UnitPrice rounds a price to whole credits, never below 1.
func UnitPrice(p float64) int {
	u := int(math.Round(p))
	if u < 1 {
		return 1
	}
	return u
}
