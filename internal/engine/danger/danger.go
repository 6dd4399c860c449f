// Package danger resolves what a voyage costs a ship's hold: random cargo
// loss, hazardous-cargo incidents, import duty and contraband seizures.
package danger

import (
	"math"
	"slices"

	"stardock/internal/domain"
	"stardock/internal/engine/rng"
)

// HazardProfile configures incidents for one hazard class.
type HazardProfile struct {
	BaseChance      float64 `yaml:"base_chance" json:"base_chance"`
	MinLossFraction float64 `yaml:"min_loss_fraction" json:"min_loss_fraction"`
	MaxLossFraction float64 `yaml:"max_loss_fraction" json:"max_loss_fraction"`
}

type Config struct {
	MaxDanger            float64       `yaml:"max_danger" json:"max_danger"`
	MinLossFraction      float64       `yaml:"min_loss_fraction" json:"min_loss_fraction"`
	MaxLossFraction      float64       `yaml:"max_loss_fraction" json:"max_loss_fraction"`
	DangerScaling        float64       `yaml:"danger_scaling" json:"danger_scaling"`
	Low                  HazardProfile `yaml:"low" json:"low"`
	High                 HazardProfile `yaml:"high" json:"high"`
	BaseInspectionChance float64       `yaml:"base_inspection_chance" json:"base_inspection_chance"`
}

var DefaultConfig = Config{
	MaxDanger:            0.5,
	MinLossFraction:      0.2,
	MaxLossFraction:      0.4,
	DangerScaling:        0.5,
	Low:                  HazardProfile{BaseChance: 0.05, MinLossFraction: 0.10, MaxLossFraction: 0.25},
	High:                 HazardProfile{BaseChance: 0.15, MinLossFraction: 0.50, MaxLossFraction: 1.00},
	BaseInspectionChance: 0.3,
}

type CargoLossEntry struct {
	GoodID    string `json:"good_id"`
	Lost      int    `json:"lost"`
	Remaining int    `json:"remaining"`
}

type HazardIncidentEntry struct {
	GoodID    string             `json:"good_id"`
	Hazard    domain.HazardClass `json:"hazard"`
	Lost      int                `json:"lost"`
	Remaining int                `json:"remaining"`
}

type ImportDutyEntry struct {
	GoodID    string `json:"good_id"`
	Seized    int    `json:"seized"`
	Remaining int    `json:"remaining"`
}

type ContrabandSeizedEntry struct {
	GoodID string `json:"good_id"`
	Seized int    `json:"seized"`
}

// AggregateDangerLevel sums every danger_level modifier and caps the result
// into [0, maxDanger].
func AggregateDangerLevel(rows []domain.ModifierRow, maxDanger float64) float64 {
	total := 0.0
	for _, m := range rows {
		if m.Parameter == domain.ParamDangerLevel {
			total += m.Value
		}
	}
	return math.Max(0, math.Min(total, maxDanger))
}

func RollCargoLoss(danger float64, cargo []domain.CargoStack, src rng.Source) []CargoLossEntry {
	return DefaultConfig.RollCargoLoss(danger, cargo, src)
}

// RollCargoLoss makes one loss roll for the whole hold. On a hit a single
// fraction applies to every stack.
func (c Config) RollCargoLoss(danger float64, cargo []domain.CargoStack, src rng.Source) []CargoLossEntry {
	if danger <= 0 || len(cargo) == 0 {
		return nil
	}
	if src.Float64() >= danger {
		return nil
	}
	f := rng.Uniform(src, c.MinLossFraction, c.MaxLossFraction)
	var out []CargoLossEntry
	for _, s := range cargo {
		lost := portion(s.Quantity, f)
		if lost == 0 {
			continue
		}
		out = append(out, CargoLossEntry{GoodID: s.GoodID, Lost: lost, Remaining: s.Quantity - lost})
	}
	return out
}

func RollHazardIncidents(cargo []domain.CargoStack, danger float64, src rng.Source) []HazardIncidentEntry {
	return DefaultConfig.RollHazardIncidents(cargo, danger, src)
}

// RollHazardIncidents rolls each hazardous stack on its own.
func (c Config) RollHazardIncidents(cargo []domain.CargoStack, danger float64, src rng.Source) []HazardIncidentEntry {
	var out []HazardIncidentEntry
	for _, s := range cargo {
		var p HazardProfile
		switch s.Hazard {
		case domain.HazardLow:
			p = c.Low
		case domain.HazardHigh:
			p = c.High
		default:
			continue
		}
		if s.Quantity <= 0 {
			continue
		}
		chance := p.BaseChance + math.Max(0, danger)*c.DangerScaling
		if src.Float64() >= chance {
			continue
		}
		lost := portion(s.Quantity, rng.Uniform(src, p.MinLossFraction, p.MaxLossFraction))
		if lost == 0 {
			continue
		}
		out = append(out, HazardIncidentEntry{GoodID: s.GoodID, Hazard: s.Hazard, Lost: lost, Remaining: s.Quantity - lost})
	}
	return out
}

// ApplyImportDuty seizes ceil(qty × taxRate) of every taxed good. No randomness.
func ApplyImportDuty(cargo []domain.CargoStack, taxedGoods []string, taxRate float64) []ImportDutyEntry {
	if taxRate <= 0 || len(taxedGoods) == 0 {
		return nil
	}
	var out []ImportDutyEntry
	for _, s := range cargo {
		if !slices.Contains(taxedGoods, s.GoodID) {
			continue
		}
		seized := portion(s.Quantity, taxRate)
		if seized == 0 {
			continue
		}
		out = append(out, ImportDutyEntry{GoodID: s.GoodID, Seized: seized, Remaining: s.Quantity - seized})
	}
	return out
}

func RollContrabandInspection(cargo []domain.CargoStack, contraband []string, inspectionModifier float64, src rng.Source) []ContrabandSeizedEntry {
	return DefaultConfig.RollContrabandInspection(cargo, contraband, inspectionModifier, src)
}

// RollContrabandInspection inspects each contraband stack independently and
// seizes the full stack on detection.
func (c Config) RollContrabandInspection(cargo []domain.CargoStack, contraband []string, inspectionModifier float64, src rng.Source) []ContrabandSeizedEntry {
	if inspectionModifier <= 0 || len(contraband) == 0 {
		return nil
	}
	chance := c.BaseInspectionChance * inspectionModifier
	var out []ContrabandSeizedEntry
	for _, s := range cargo {
		if s.Quantity <= 0 || !slices.Contains(contraband, s.GoodID) {
			continue
		}
		if src.Float64() >= chance {
			continue
		}
		out = append(out, ContrabandSeizedEntry{GoodID: s.GoodID, Seized: s.Quantity})
	}
	return out
}

// portion returns min(ceil(qty × f), qty), never negative.
func portion(qty int, f float64) int {
	if qty <= 0 || f <= 0 {
		return 0
	}
	n := int(math.Ceil(float64(qty) * f))
	if n > qty {
		return qty
	}
	return n
}
