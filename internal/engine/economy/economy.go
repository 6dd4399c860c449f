// Package economy moves station counters toward their equilibrium each tick.
package economy

import (
	"math"
	"slices"

	"stardock/internal/domain"
	"stardock/internal/engine/modifiers"
)

type Config struct {
	BaseSupply    int     `yaml:"base_supply" json:"base_supply"`
	BaseDemand    int     `yaml:"base_demand" json:"base_demand"`
	ProducedBonus int     `yaml:"produced_bonus" json:"produced_bonus"`
	ConsumedBonus int     `yaml:"consumed_bonus" json:"consumed_bonus"`
	ReversionRate float64 `yaml:"reversion_rate" json:"reversion_rate"`
}

var DefaultConfig = Config{BaseSupply: 50, BaseDemand: 50, ProducedBonus: 100, ConsumedBonus: 100, ReversionRate: 0.1}

// Targets is the equilibrium a market entry reverts toward.
type Targets struct {
	Supply float64 `json:"supply"`
	Demand float64 `json:"demand"`
}

// Baseline returns the unmodified targets for one good under one economy.
func (c Config) Baseline(econ domain.Economy, goodID string) Targets {
	t := Targets{Supply: float64(c.BaseSupply), Demand: float64(c.BaseDemand)}
	if slices.Contains(econ.Produces, goodID) {
		t.Supply += float64(c.ProducedBonus)
	}
	if slices.Contains(econ.Consumes, goodID) {
		t.Demand += float64(c.ConsumedBonus)
	}
	return t
}

// Apply scales the baseline by the rate multipliers, then shifts it. Targets
// never go below zero.
func (t Targets) Apply(eff modifiers.Effect) Targets {
	return Targets{
		Supply: math.Max(0, t.Supply*eff.ProductionMult+eff.SupplyTargetShift),
		Demand: math.Max(0, t.Demand*eff.ConsumptionMult+eff.DemandTargetShift),
	}
}

// Step closes a fraction of the gap between each counter and its target.
// The fraction is ReversionRate dampened by the effect's ReversionMult.
func (c Config) Step(entry domain.MarketEntry, target Targets, eff modifiers.Effect) domain.MarketEntry {
	rate := c.ReversionRate * eff.ReversionMult
	entry.Supply = revert(entry.Supply, target.Supply, rate)
	entry.Demand = revert(entry.Demand, target.Demand, rate)
	return entry
}

// ApplyShock adds a one-time delta, flooring the counter at zero.
func ApplyShock(entry domain.MarketEntry, s domain.Shock) domain.MarketEntry {
	switch s.Parameter {
	case domain.ShockSupply:
		entry.Supply = max(0, entry.Supply+s.Delta)
	case domain.ShockDemand:
		entry.Demand = max(0, entry.Demand+s.Delta)
	}
	return entry
}

func revert(v int, target, rate float64) int {
	next := float64(v) + math.Round((target-float64(v))*rate)
	if next < 0 {
		return 0
	}
	return int(next)
}
