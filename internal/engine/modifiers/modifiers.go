// Package modifiers folds overlapping event modifiers into one per-good effect.
package modifiers

import (
	"math"

	"stardock/internal/domain"
)

type Caps struct {
	MaxShift         float64 `yaml:"max_shift" json:"max_shift"`
	MinMultiplier    float64 `yaml:"min_multiplier" json:"min_multiplier"`
	MaxMultiplier    float64 `yaml:"max_multiplier" json:"max_multiplier"`
	MinReversionMult float64 `yaml:"min_reversion_mult" json:"min_reversion_mult"`
}

var DefaultCaps = Caps{MaxShift: 100, MinMultiplier: 0.1, MaxMultiplier: 3, MinReversionMult: 0.1}

// Effect is the aggregated influence of every modifier touching one good.
type Effect struct {
	SupplyTargetShift float64 `json:"supply_target_shift"`
	DemandTargetShift float64 `json:"demand_target_shift"`
	ProductionMult    float64 `json:"production_mult"`
	ConsumptionMult   float64 `json:"consumption_mult"`
	ReversionMult     float64 `json:"reversion_mult"`
}

func Neutral() Effect {
	return Effect{ProductionMult: 1, ConsumptionMult: 1, ReversionMult: 1}
}

// Aggregate sums shifts, multiplies rate multipliers and keeps the most
// restrictive reversion dampening, then clamps each into its cap.
// Rows with an empty GoodID apply to every good.
func Aggregate(rows []domain.ModifierRow, goodID string, caps Caps) Effect {
	eff := Neutral()
	matched := false
	for _, m := range rows {
		if m.GoodID != "" && m.GoodID != goodID {
			continue
		}
		switch m.Parameter {
		case domain.ParamSupplyTarget:
			eff.SupplyTargetShift += m.Value
		case domain.ParamDemandTarget:
			eff.DemandTargetShift += m.Value
		case domain.ParamProductionRate:
			eff.ProductionMult *= m.Value
		case domain.ParamConsumptionRate:
			eff.ConsumptionMult *= m.Value
		case domain.ParamReversionRate:
			eff.ReversionMult = math.Min(eff.ReversionMult, m.Value)
		default:
			continue
		}
		matched = true
	}
	if !matched {
		return eff
	}
	eff.SupplyTargetShift = clamp(eff.SupplyTargetShift, -caps.MaxShift, caps.MaxShift)
	eff.DemandTargetShift = clamp(eff.DemandTargetShift, -caps.MaxShift, caps.MaxShift)
	eff.ProductionMult = clamp(eff.ProductionMult, caps.MinMultiplier, caps.MaxMultiplier)
	eff.ConsumptionMult = clamp(eff.ConsumptionMult, caps.MinMultiplier, caps.MaxMultiplier)
	eff.ReversionMult = clamp(eff.ReversionMult, caps.MinReversionMult, 1)
	return eff
}

// Applicable keeps rows targeting the system directly or through its region.
func Applicable(rows []domain.ModifierRow, sys domain.System) []domain.ModifierRow {
	var out []domain.ModifierRow
	for _, m := range rows {
		switch m.TargetType {
		case domain.TargetSystem:
			if m.TargetID == sys.ID {
				out = append(out, m)
			}
		case domain.TargetRegion:
			if m.TargetID == sys.RegionID {
				out = append(out, m)
			}
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
