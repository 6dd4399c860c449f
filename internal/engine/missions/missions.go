// Package missions generates contracts, prices their rewards and validates
// every player transition on them.
package missions

import (
	"math"

	"stardock/internal/domain"
)

type Rewards struct {
	Min          int       `yaml:"min" json:"min"`
	PerUnit      float64   `yaml:"per_unit" json:"per_unit"`
	DistanceMult float64   `yaml:"distance_mult" json:"distance_mult"`
	TierMult     []float64 `yaml:"tier_mult" json:"tier_mult"`
	EventMult    float64   `yaml:"event_mult" json:"event_mult"`
}

var DefaultRewards = Rewards{Min: 100, PerUnit: 10, DistanceMult: 1.25, TierMult: []float64{1, 4, 12}, EventMult: 1.5}

// IntRange is an inclusive integer range.
type IntRange struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// OperationalType configures one of patrol, survey or bounty.
type OperationalType struct {
	DangerThreshold  float64              `yaml:"danger_threshold" json:"danger_threshold"`
	Chance           float64              `yaml:"chance" json:"chance"`
	BaseReward       int                  `yaml:"base_reward" json:"base_reward"`
	RewardScale      float64              `yaml:"reward_scale" json:"reward_scale"`
	Duration         domain.DurationRange `yaml:"duration" json:"duration"`
	StatRequirements map[string]int       `yaml:"stat_requirements,omitempty" json:"stat_requirements,omitempty"`
}

// Battle sets enemy strength per bounty tier.
type Battle struct {
	Weak     int `yaml:"weak" json:"weak"`
	Moderate int `yaml:"moderate" json:"moderate"`
	Strong   int `yaml:"strong" json:"strong"`
}

type Config struct {
	Rewards            Rewards             `yaml:"rewards" json:"rewards"`
	HighPriceThreshold float64             `yaml:"high_price_threshold" json:"high_price_threshold"`
	LowPriceThreshold  float64             `yaml:"low_price_threshold" json:"low_price_threshold"`
	ImportChance       float64             `yaml:"import_chance" json:"import_chance"`
	ExportChance       float64             `yaml:"export_chance" json:"export_chance"`
	MaxExportDistance  int                 `yaml:"max_export_distance" json:"max_export_distance"`
	Quantity           IntRange            `yaml:"quantity" json:"quantity"`
	DeadlineTicks      int64               `yaml:"deadline_ticks" json:"deadline_ticks"`
	MaxActivePerPlayer int                 `yaml:"max_active_per_player" json:"max_active_per_player"`
	EventGoods         map[string][]string `yaml:"event_goods,omitempty" json:"event_goods,omitempty"`
	DangerCeiling      float64             `yaml:"danger_ceiling" json:"danger_ceiling"`
	SurveyTraits       []string            `yaml:"survey_traits" json:"survey_traits"`
	Patrol             OperationalType     `yaml:"patrol" json:"patrol"`
	Survey             OperationalType     `yaml:"survey" json:"survey"`
	Bounty             OperationalType     `yaml:"bounty" json:"bounty"`
	Battle             Battle              `yaml:"battle" json:"battle"`
}

func DefaultConfig() Config {
	return Config{
		Rewards:            DefaultRewards,
		HighPriceThreshold: 1.5,
		LowPriceThreshold:  0.67,
		ImportChance:       0.3,
		ExportChance:       0.3,
		MaxExportDistance:  3,
		Quantity:           IntRange{Min: 10, Max: 50},
		DeadlineTicks:      48,
		MaxActivePerPlayer: 3,
		DangerCeiling:      0.5,
		SurveyTraits:       []string{"asteroid_belt", "nebula", "ancient_ruins", "gas_giant"},
		Patrol: OperationalType{
			DangerThreshold:  0.1,
			Chance:           0.5,
			BaseReward:       300,
			RewardScale:      2,
			Duration:         domain.DurationRange{Min: 4, Max: 8},
			StatRequirements: map[string]int{domain.StatFirepower: 10},
		},
		Survey: OperationalType{
			Chance:           0.2,
			BaseReward:       250,
			RewardScale:      1.5,
			Duration:         domain.DurationRange{Min: 3, Max: 6},
			StatRequirements: map[string]int{domain.StatSensors: 5},
		},
		Bounty: OperationalType{
			DangerThreshold:  0.2,
			Chance:           0.4,
			BaseReward:       600,
			RewardScale:      3,
			StatRequirements: map[string]int{domain.StatFirepower: 15},
		},
		Battle: Battle{Weak: 10, Moderate: 25, Strong: 50},
	}
}

// CalculateReward prices a trade mission with the default reward table.
func CalculateReward(quantity, hops, tier int, eventLinked bool) int {
	return DefaultRewards.Calculate(quantity, hops, tier, eventLinked)
}

// Calculate returns floor(max(Min, PerUnit × qty × DistanceMult^hops ×
// TierMult[tier] × EventMult?)). Tiers past the table use its last entry.
func (r Rewards) Calculate(quantity, hops, tier int, eventLinked bool) int {
	tm := 1.0
	if len(r.TierMult) > 0 {
		tier = max(0, min(tier, len(r.TierMult)-1))
		tm = r.TierMult[tier]
	}
	v := r.PerUnit * float64(quantity) * math.Pow(r.DistanceMult, float64(max(0, hops))) * tm
	if eventLinked {
		v *= r.EventMult
	}
	return int(math.Floor(math.Max(float64(r.Min), v)))
}

// EnemyTier buckets a normalized danger into a bounty band.
func EnemyTier(norm float64) domain.EnemyTier {
	switch {
	case norm >= 0.75:
		return domain.EnemyStrong
	case norm >= 0.4:
		return domain.EnemyModerate
	default:
		return domain.EnemyWeak
	}
}

// SurveyQualityFactor maps the best trait quality to a reward factor:
// 1 gives 0, 2 gives 0.5, 3 or more gives 1.
func SurveyQualityFactor(quality int) float64 {
	return math.Max(0, math.Min(1, float64(quality-1)/2))
}

func (c Config) normalize(danger float64) float64 {
	if c.DangerCeiling <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, danger/c.DangerCeiling))
}

func (b Battle) Strength(t domain.EnemyTier) int {
	switch t {
	case domain.EnemyStrong:
		return b.Strong
	case domain.EnemyModerate:
		return b.Moderate
	default:
		return b.Weak
	}
}
