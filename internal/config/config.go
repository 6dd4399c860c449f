package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"stardock/internal/domain"
	"stardock/internal/engine/danger"
	"stardock/internal/engine/economy"
	"stardock/internal/engine/lifecycle"
	"stardock/internal/engine/missions"
	"stardock/internal/engine/modifiers"
	"stardock/internal/engine/pricing"
)

// Config models stardock.yml: tuning for every engine plus the static catalogs.
type Config struct {
	World struct {
		ID              string `yaml:"id" json:"id"`
		TickRate        int64  `yaml:"tick_rate" json:"tick_rate"`
		Seed            int64  `yaml:"seed" json:"seed"`
		StartingCredits int    `yaml:"starting_credits" json:"starting_credits"`
		StartSystem     string `yaml:"start_system" json:"start_system"`
	} `yaml:"world" json:"world"`
	Pricing   pricing.Curve  `yaml:"pricing" json:"pricing"`
	Economy   economy.Config `yaml:"economy" json:"economy"`
	Modifiers modifiers.Caps `yaml:"modifiers" json:"modifiers"`
	Events    struct {
		Caps        lifecycle.Caps           `yaml:"caps" json:"caps"`
		SpawnChance float64                  `yaml:"spawn_chance" json:"spawn_chance"`
		Definitions []domain.EventDefinition `yaml:"definitions" json:"definitions"`
	} `yaml:"events" json:"events"`
	Danger   danger.Config   `yaml:"danger" json:"danger"`
	Missions missions.Config `yaml:"missions" json:"missions"`
	Fleet    Fleet           `yaml:"fleet" json:"fleet"`

	Goods       []domain.Good       `yaml:"goods" json:"goods"`
	Economies   []domain.Economy    `yaml:"economies" json:"economies"`
	Governments []domain.Government `yaml:"governments" json:"governments"`
	Modules     []domain.Module     `yaml:"modules" json:"modules"`
	Universe    struct {
		Regions     []domain.Region     `yaml:"regions" json:"regions"`
		Systems     []domain.System     `yaml:"systems" json:"systems"`
		Connections []domain.Connection `yaml:"connections" json:"connections"`
	} `yaml:"universe" json:"universe"`
}

// Fleet sets the starter ship and shipyard prices.
type Fleet struct {
	CargoMax        int     `yaml:"cargo_max" json:"cargo_max"`
	HullMax         int     `yaml:"hull_max" json:"hull_max"`
	Firepower       int     `yaml:"firepower" json:"firepower"`
	Sensors         int     `yaml:"sensors" json:"sensors"`
	ModuleSlots     int     `yaml:"module_slots" json:"module_slots"`
	RefundRatio     float64 `yaml:"refund_ratio" json:"refund_ratio"`
	RepairCost      int     `yaml:"repair_cost" json:"repair_cost"`
	MaxConvoySize   int     `yaml:"max_convoy_size" json:"max_convoy_size"`
	ArrivalHullLoss int     `yaml:"arrival_hull_loss" json:"arrival_hull_loss"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with sd world init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "stardock.yml")
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Tuning sections
// missing from the file keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	cfg.applyDefaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

func (c *Config) applyDefaults() {
	c.World.ID = "main"
	c.World.TickRate = 1
	c.World.StartingCredits = 1000
	c.Pricing = pricing.DefaultCurve
	c.Economy = economy.DefaultConfig
	c.Modifiers = modifiers.DefaultCaps
	c.Events.Caps = lifecycle.Caps{MaxEventsPerSystem: 2, MaxEventsGlobal: 8}
	c.Events.SpawnChance = 0.25
	c.Danger = danger.DefaultConfig
	c.Missions = missions.DefaultConfig()
	c.Fleet = Fleet{CargoMax: 50, HullMax: 100, Firepower: 10, Sensors: 5, ModuleSlots: 3, RefundRatio: 0.5, RepairCost: 5, MaxConvoySize: 4, ArrivalHullLoss: 10}
}

// Validate checks tuning ranges and catalog cross references.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if c.World.ID == "" {
		add("world.id is required")
	}
	if c.World.TickRate <= 0 {
		add("world.tick_rate must be > 0")
	}
	if c.World.StartingCredits < 0 {
		add("world.starting_credits must be >= 0")
	}
	if c.Pricing.Smoothing <= 0 {
		add("pricing.smoothing must be > 0")
	}
	if c.Economy.ReversionRate < 0 || c.Economy.ReversionRate > 1 {
		add("economy.reversion_rate must be within [0,1]")
	}
	if c.Modifiers.MaxShift <= 0 {
		add("modifiers.max_shift must be > 0")
	}
	if c.Modifiers.MinMultiplier <= 0 || c.Modifiers.MinMultiplier > c.Modifiers.MaxMultiplier {
		add("modifiers.min_multiplier must be > 0 and <= max_multiplier")
	}
	if c.Modifiers.MinReversionMult <= 0 || c.Modifiers.MinReversionMult > 1 {
		add("modifiers.min_reversion_mult must be within (0,1]")
	}
	if c.Danger.MaxDanger < 0 || c.Danger.MaxDanger > 1 {
		add("danger.max_danger must be within [0,1]")
	}
	checkFraction := func(path string, lo, hi float64) {
		if lo < 0 || hi > 1 || lo > hi {
			add("%s loss fractions must satisfy 0 <= min <= max <= 1", path)
		}
	}
	checkFraction("danger", c.Danger.MinLossFraction, c.Danger.MaxLossFraction)
	checkFraction("danger.low", c.Danger.Low.MinLossFraction, c.Danger.Low.MaxLossFraction)
	checkFraction("danger.high", c.Danger.High.MinLossFraction, c.Danger.High.MaxLossFraction)
	if c.Missions.Rewards.Min <= 0 {
		add("missions.rewards.min must be > 0")
	}
	if len(c.Missions.Rewards.TierMult) == 0 {
		add("missions.rewards.tier_mult is required")
	}
	if q := c.Missions.Quantity; q.Min <= 0 || q.Min > q.Max {
		add("missions.quantity must satisfy 0 < min <= max")
	}
	if d := c.Missions.Patrol.Duration; d.Min > d.Max {
		add("missions.patrol.duration: min > max")
	}
	if d := c.Missions.Survey.Duration; d.Min > d.Max {
		add("missions.survey.duration: min > max")
	}
	if c.Fleet.CargoMax <= 0 || c.Fleet.HullMax <= 0 {
		add("fleet.cargo_max and fleet.hull_max must be > 0")
	}
	if c.Fleet.RefundRatio < 0 || c.Fleet.RefundRatio > 1 {
		add("fleet.refund_ratio must be within [0,1]")
	}

	goods := map[string]bool{}
	for i, g := range c.Goods {
		if g.ID == "" {
			add("goods[%d].id is required", i)
			continue
		}
		if goods[g.ID] {
			add("goods[%d]: duplicate id %s", i, g.ID)
		}
		goods[g.ID] = true
		if g.BasePrice <= 0 {
			add("goods[%d].base_price must be > 0", i)
		}
		switch g.Hazard {
		case "", domain.HazardNone, domain.HazardLow, domain.HazardHigh:
		default:
			add("goods[%d].hazard must be none, low or high", i)
		}
	}
	if len(goods) == 0 {
		add("goods must not be empty")
	}
	checkGoods := func(path string, ids []string) {
		for _, id := range ids {
			if !goods[id] {
				add("%s references unknown good %s", path, id)
			}
		}
	}
	economies := map[string]bool{}
	for i, e := range c.Economies {
		economies[e.ID] = true
		checkGoods(fmt.Sprintf("economies[%d].produces", i), e.Produces)
		checkGoods(fmt.Sprintf("economies[%d].consumes", i), e.Consumes)
	}
	governments := map[string]bool{}
	for i, g := range c.Governments {
		governments[g.ID] = true
		if g.TaxRate < 0 || g.TaxRate > 1 {
			add("governments[%d].tax_rate must be within [0,1]", i)
		}
		checkGoods(fmt.Sprintf("governments[%d].taxed_goods", i), g.TaxedGoods)
		checkGoods(fmt.Sprintf("governments[%d].contraband", i), g.Contraband)
	}
	for i, m := range c.Modules {
		if m.ID == "" || m.Cost < 0 {
			add("modules[%d] needs an id and a non-negative cost", i)
		}
		for stat := range m.Bonuses {
			switch stat {
			case domain.StatCargo, domain.StatHull, domain.StatFirepower, domain.StatSensors:
			default:
				add("modules[%d].bonuses has unknown stat %s", i, stat)
			}
		}
	}

	regions := map[string]bool{}
	for i, r := range c.Universe.Regions {
		regions[r.ID] = true
		if r.Government != "" && !governments[r.Government] {
			add("universe.regions[%d] references unknown government %s", i, r.Government)
		}
	}
	systems := map[string]bool{}
	for i, s := range c.Universe.Systems {
		if s.ID == "" {
			add("universe.systems[%d].id is required", i)
			continue
		}
		systems[s.ID] = true
		if !regions[s.RegionID] {
			add("universe.systems[%d] references unknown region %s", i, s.RegionID)
		}
		if !economies[s.EconomyType] {
			add("universe.systems[%d] references unknown economy %s", i, s.EconomyType)
		}
	}
	if len(systems) == 0 {
		add("universe.systems must not be empty")
	}
	if c.World.StartSystem != "" && !systems[c.World.StartSystem] {
		add("world.start_system references unknown system %s", c.World.StartSystem)
	}
	for i, conn := range c.Universe.Connections {
		if !systems[conn.From] || !systems[conn.To] {
			add("universe.connections[%d] references unknown system", i)
		}
		if conn.TravelTicks <= 0 {
			add("universe.connections[%d].travel_ticks must be > 0", i)
		}
	}

	types := map[string]bool{}
	for _, d := range c.Events.Definitions {
		types[d.Type] = true
	}
	for i, d := range c.Events.Definitions {
		path := fmt.Sprintf("events.definitions[%d]", i)
		if d.Type == "" {
			add("%s.type is required", path)
		}
		if len(d.Phases) == 0 {
			add("%s.phases must not be empty", path)
		}
		if d.Spawnable && d.Weight <= 0 {
			add("%s: spawnable definitions need weight > 0", path)
		}
		if !d.Spawnable && d.Weight != 0 {
			add("%s: spread-only definitions must have weight 0", path)
		}
		for j, p := range d.Phases {
			pp := fmt.Sprintf("%s.phases[%d]", path, j)
			if p.Name == "" {
				add("%s.name is required", pp)
			}
			if p.Duration.Min <= 0 || p.Duration.Min > p.Duration.Max {
				add("%s.duration must satisfy 0 < min <= max", pp)
			}
			for k, m := range p.Modifiers {
				if m.GoodID != "" && !goods[m.GoodID] {
					add("%s.modifiers[%d] references unknown good %s", pp, k, m.GoodID)
				}
			}
			for k, s := range p.Shocks {
				if !goods[s.GoodID] {
					add("%s.shocks[%d] references unknown good %s", pp, k, s.GoodID)
				}
			}
			for k, s := range p.Spread {
				if !types[s.EventType] {
					add("%s.spread[%d] references unknown event type %s", pp, k, s.EventType)
				}
			}
		}
		for _, e := range d.EconomyTypes {
			if !economies[e] {
				add("%s.economy_types references unknown economy %s", path, e)
			}
		}
	}
	for eventType, pool := range c.Missions.EventGoods {
		if !types[eventType] {
			add("missions.event_goods references unknown event type %s", eventType)
		}
		checkGoods("missions.event_goods."+eventType, pool)
	}

	if len(errs) > 0 {
		return errors.New("invalid config: " + strings.Join(errs, "; "))
	}
	return nil
}

// Good returns the catalog entry for id.
func (c *Config) Good(id string) (domain.Good, bool) {
	for _, g := range c.Goods {
		if g.ID == id {
			return g, true
		}
	}
	return domain.Good{}, false
}

// GoodsByID indexes the goods catalog.
func (c *Config) GoodsByID() map[string]domain.Good {
	out := make(map[string]domain.Good, len(c.Goods))
	for _, g := range c.Goods {
		out[g.ID] = g
	}
	return out
}

func (c *Config) Module(id string) (domain.Module, bool) {
	for _, m := range c.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return domain.Module{}, false
}

// EconomyFor returns the named economy, or an empty one producing nothing.
func (c *Config) EconomyFor(id string) domain.Economy {
	for _, e := range c.Economies {
		if e.ID == id {
			return e
		}
	}
	return domain.Economy{ID: id}
}

// GovernmentFor resolves the government ruling a system through its region.
func (c *Config) GovernmentFor(sys domain.System) (domain.Government, bool) {
	for _, r := range c.Universe.Regions {
		if r.ID != sys.RegionID {
			continue
		}
		for _, g := range c.Governments {
			if g.ID == r.Government {
				return g, true
			}
		}
	}
	return domain.Government{}, false
}

const defaultTemplate = `world:
  id: main
  tick_rate: 1
  seed: 1337
  starting_credits: 1000
  start_system: sol

events:
  caps:
    max_events_per_system: 2
    max_events_global: 8
  spawn_chance: 0.25
  definitions:
    - type: pirate_raid
      name: Pirate Raid
      weight: 4
      spawnable: true
      cooldown: 30
      max_active: 2
      phases:
        - name: sightings
          duration: {min: 3, max: 6}
          modifiers:
            - {domain: navigation, type: equilibrium_shift, target: system, parameter: danger_level, value: 0.15}
        - name: raiding
          duration: {min: 6, max: 12}
          modifiers:
            - {domain: navigation, type: equilibrium_shift, target: system, parameter: danger_level, value: 0.35}
            - {domain: economy, type: rate_multiplier, target: system, parameter: production_rate, value: 0.6}
            - {domain: economy, type: equilibrium_shift, target: system, good_id: weapons, parameter: demand_target, value: 60}
          shocks:
            - {good_id: fuel, parameter: supply, value: -25}
          spread:
            - {event_type: unrest, probability: 0.3, severity: 0.6, same_region: true}
        - name: aftermath
          duration: {min: 4, max: 8}
          modifiers:
            - {domain: economy, type: reversion_dampening, target: system, parameter: reversion_rate, value: 0.5}
    - type: plague
      name: Plague Outbreak
      weight: 2
      spawnable: true
      cooldown: 60
      max_active: 1
      economy_types: [agricultural, industrial]
      phases:
        - name: outbreak
          duration: {min: 5, max: 10}
          modifiers:
            - {domain: economy, type: equilibrium_shift, target: system, good_id: medicine, parameter: demand_target, value: 80}
            - {domain: economy, type: rate_multiplier, target: region, parameter: production_rate, value: 0.8}
          shocks:
            - {good_id: medicine, parameter: demand, value: 40}
        - name: recovery
          duration: {min: 5, max: 10}
          modifiers:
            - {domain: economy, type: equilibrium_shift, target: system, good_id: medicine, parameter: demand_target, value: 30}
    - type: mining_boom
      name: Mining Boom
      weight: 3
      spawnable: true
      cooldown: 40
      max_active: 2
      economy_types: [mining]
      phases:
        - name: boom
          duration: {min: 8, max: 16}
          modifiers:
            - {domain: economy, type: equilibrium_shift, target: system, good_id: ore, parameter: supply_target, value: 80}
            - {domain: economy, type: equilibrium_shift, target: system, good_id: machinery, parameter: demand_target, value: 50}
    - type: unrest
      name: Civil Unrest
      weight: 0
      spawnable: false
      cooldown: 20
      max_active: 3
      phases:
        - name: protests
          duration: {min: 4, max: 8}
          modifiers:
            - {domain: navigation, type: equilibrium_shift, target: system, parameter: danger_level, value: 0.1}
            - {domain: economy, type: rate_multiplier, target: system, parameter: consumption_rate, value: 1.3}

danger:
  max_danger: 0.5
  min_loss_fraction: 0.2
  max_loss_fraction: 0.4
  danger_scaling: 0.5
  low: {base_chance: 0.05, min_loss_fraction: 0.1, max_loss_fraction: 0.25}
  high: {base_chance: 0.15, min_loss_fraction: 0.5, max_loss_fraction: 1.0}
  base_inspection_chance: 0.3

goods:
  - {id: food, name: Food, base_price: 20, tier: 0, volatility: 0.8, hazard: none}
  - {id: water, name: Water, base_price: 12, tier: 0, volatility: 0.6, hazard: none}
  - {id: fuel, name: Fuel, base_price: 35, tier: 0, volatility: 1.0, hazard: low}
  - {id: ore, name: Ore, base_price: 28, tier: 0, volatility: 0.9, hazard: none}
  - {id: machinery, name: Machinery, base_price: 90, tier: 1, volatility: 1.0, hazard: none}
  - {id: medicine, name: Medicine, base_price: 110, tier: 1, volatility: 1.2, hazard: none}
  - {id: chemicals, name: Chemicals, base_price: 70, tier: 1, volatility: 1.1, hazard: low}
  - {id: electronics, name: Electronics, base_price: 160, tier: 2, volatility: 1.0, hazard: none}
  - {id: weapons, name: Weapons, base_price: 220, tier: 2, volatility: 1.4, hazard: low}
  - {id: reactor_cores, name: Reactor Cores, base_price: 300, tier: 2, volatility: 1.3, hazard: high}
  - {id: narcotics, name: Narcotics, base_price: 180, tier: 2, volatility: 1.6, hazard: none}

economies:
  - {id: agricultural, produces: [food, water], consumes: [machinery, medicine, chemicals]}
  - {id: industrial, produces: [machinery, electronics, chemicals], consumes: [ore, food, fuel]}
  - {id: mining, produces: [ore, fuel], consumes: [food, water, machinery]}
  - {id: tech, produces: [electronics, medicine, reactor_cores], consumes: [chemicals, ore, food]}
  - {id: outlaw, produces: [weapons, narcotics], consumes: [food, fuel, electronics]}

governments:
  - {id: federation, name: Federation, tax_rate: 0.05, taxed_goods: [electronics, reactor_cores], contraband: [narcotics, weapons], inspection_modifier: 1.0}
  - {id: corporate, name: Corporate Compact, tax_rate: 0.1, taxed_goods: [machinery, medicine], contraband: [narcotics], inspection_modifier: 0.6}
  - {id: frontier, name: Frontier Councils, tax_rate: 0, inspection_modifier: 0}

modules:
  - {id: cargo_pod, name: Cargo Pod, cost: 400, bonuses: {cargo: 20}}
  - {id: armor_plating, name: Armor Plating, cost: 500, bonuses: {hull: 40}}
  - {id: laser_battery, name: Laser Battery, cost: 650, bonuses: {firepower: 10}}
  - {id: sensor_array, name: Sensor Array, cost: 450, bonuses: {sensors: 5}}

universe:
  regions:
    - {id: core, name: Core Worlds, government: federation}
    - {id: expanse, name: Corporate Expanse, government: corporate}
    - {id: fringe, name: The Fringe, government: frontier}
  systems:
    - {id: sol, name: Sol, region: core, economy: industrial}
    - {id: vega, name: Vega, region: core, economy: agricultural, traits: [{name: gas_giant, quality: 1}]}
    - {id: altair, name: Altair, region: core, economy: tech}
    - {id: deneb, name: Deneb, region: expanse, economy: mining, traits: [{name: asteroid_belt, quality: 3}]}
    - {id: rigel, name: Rigel, region: expanse, economy: industrial, traits: [{name: nebula, quality: 2}]}
    - {id: antares, name: Antares, region: fringe, economy: mining, traits: [{name: asteroid_belt, quality: 2}, {name: ancient_ruins, quality: 3}]}
    - {id: tortuga, name: Tortuga, region: fringe, economy: outlaw}
  connections:
    - {from: sol, to: vega, travel_ticks: 2}
    - {from: sol, to: altair, travel_ticks: 3}
    - {from: vega, to: altair, travel_ticks: 2}
    - {from: altair, to: rigel, travel_ticks: 4}
    - {from: vega, to: deneb, travel_ticks: 4}
    - {from: deneb, to: rigel, travel_ticks: 2}
    - {from: rigel, to: antares, travel_ticks: 5}
    - {from: deneb, to: tortuga, travel_ticks: 5}
    - {from: antares, to: tortuga, travel_ticks: 3}

missions:
  event_goods:
    pirate_raid: [weapons, fuel, machinery]
    plague: [medicine, food, water]
    mining_boom: [machinery, food]
`
