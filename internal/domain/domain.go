package domain

type HazardClass string

const (
	HazardNone HazardClass = "none"
	HazardLow  HazardClass = "low"
	HazardHigh HazardClass = "high"
)

// Good is static catalog data.
type Good struct {
	ID           string      `yaml:"id" json:"id"`
	Name         string      `yaml:"name" json:"name"`
	BasePrice    float64     `yaml:"base_price" json:"base_price"`
	Tier         int         `yaml:"tier" json:"tier"`
	Volatility   float64     `yaml:"volatility" json:"volatility"`
	Hazard       HazardClass `yaml:"hazard" json:"hazard" enum:"none,low,high"`
	PriceFloor   float64     `yaml:"price_floor,omitempty" json:"price_floor,omitempty"`
	PriceCeiling float64     `yaml:"price_ceiling,omitempty" json:"price_ceiling,omitempty"`
}

// MarketEntry holds one station's live counters for one good.
type MarketEntry struct {
	SystemID string `json:"system_id"`
	GoodID   string `json:"good_id"`
	Supply   int    `json:"supply"`
	Demand   int    `json:"demand"`
	Version  int64  `json:"version"`
}

type ModifierDomain string

const (
	DomainEconomy    ModifierDomain = "economy"
	DomainNavigation ModifierDomain = "navigation"
)

type ModifierType string

const (
	EquilibriumShift   ModifierType = "equilibrium_shift"
	RateMultiplier     ModifierType = "rate_multiplier"
	ReversionDampening ModifierType = "reversion_dampening"
)

type TargetType string

const (
	TargetSystem TargetType = "system"
	TargetRegion TargetType = "region"
)

// Modifier parameters understood by the aggregators.
const (
	ParamSupplyTarget    = "supply_target"
	ParamDemandTarget    = "demand_target"
	ParamProductionRate  = "production_rate"
	ParamConsumptionRate = "consumption_rate"
	ParamReversionRate   = "reversion_rate"
	ParamDangerLevel     = "danger_level"
)

// Shock parameters.
const (
	ShockSupply = "supply"
	ShockDemand = "demand"
)

type ModifierTemplate struct {
	Domain    ModifierDomain `yaml:"domain" json:"domain"`
	Type      ModifierType   `yaml:"type" json:"type"`
	Target    TargetType     `yaml:"target" json:"target"`
	GoodID    string         `yaml:"good_id,omitempty" json:"good_id,omitempty"`
	Parameter string         `yaml:"parameter" json:"parameter"`
	Value     float64        `yaml:"value" json:"value"`
}

type ShockTemplate struct {
	GoodID    string  `yaml:"good_id" json:"good_id"`
	Parameter string  `yaml:"parameter" json:"parameter"`
	Value     float64 `yaml:"value" json:"value"`
}

type SpreadRule struct {
	EventType    string   `yaml:"event_type" json:"event_type"`
	Probability  float64  `yaml:"probability" json:"probability"`
	Severity     float64  `yaml:"severity" json:"severity"`
	SameRegion   bool     `yaml:"same_region" json:"same_region"`
	EconomyTypes []string `yaml:"economy_types,omitempty" json:"economy_types,omitempty"`
}

// DurationRange is an inclusive tick range.
type DurationRange struct {
	Min int64 `yaml:"min" json:"min"`
	Max int64 `yaml:"max" json:"max"`
}

type EventPhaseDefinition struct {
	Name      string             `yaml:"name" json:"name"`
	Duration  DurationRange      `yaml:"duration" json:"duration"`
	Modifiers []ModifierTemplate `yaml:"modifiers,omitempty" json:"modifiers,omitempty"`
	Shocks    []ShockTemplate    `yaml:"shocks,omitempty" json:"shocks,omitempty"`
	Spread    []SpreadRule       `yaml:"spread,omitempty" json:"spread,omitempty"`
}

// EventDefinition is a static catalog entry keyed by Type. Spawnable marks
// definitions the random scheduler may pick; the rest only arrive by spread.
type EventDefinition struct {
	Type         string                 `yaml:"type" json:"type"`
	Name         string                 `yaml:"name" json:"name"`
	Phases       []EventPhaseDefinition `yaml:"phases" json:"phases"`
	Weight       float64                `yaml:"weight" json:"weight"`
	Spawnable    bool                   `yaml:"spawnable" json:"spawnable"`
	Cooldown     int64                  `yaml:"cooldown" json:"cooldown"`
	MaxActive    int                    `yaml:"max_active" json:"max_active"`
	EconomyTypes []string               `yaml:"economy_types,omitempty" json:"economy_types,omitempty"`
}

// PhaseIndex returns the position of the named phase.
func (d EventDefinition) PhaseIndex(name string) (int, bool) {
	for i, p := range d.Phases {
		if p.Name == name {
			return i, true
		}
	}
	return -1, false
}

type EventInstance struct {
	ID             string  `json:"id"`
	Type           string  `json:"type"`
	SystemID       string  `json:"system_id"`
	RegionID       string  `json:"region_id"`
	Phase          string  `json:"phase"`
	PhaseStartTick int64   `json:"phase_start_tick"`
	PhaseDuration  int64   `json:"phase_duration"`
	StartTick      int64   `json:"start_tick"`
	Severity       float64 `json:"severity"`
	SourceEventID  string  `json:"source_event_id,omitempty"`
}

// ModifierRow is derived from an instance's current phase and severity.
// An empty GoodID applies to every good.
type ModifierRow struct {
	EventID    string         `json:"event_id"`
	Domain     ModifierDomain `json:"domain"`
	Type       ModifierType   `json:"type"`
	TargetType TargetType     `json:"target_type"`
	TargetID   string         `json:"target_id"`
	GoodID     string         `json:"good_id,omitempty"`
	Parameter  string         `json:"parameter"`
	Value      float64        `json:"value"`
}

// Shock is a one-time market delta applied on phase entry.
type Shock struct {
	GoodID    string `json:"good_id"`
	Parameter string `json:"parameter"`
	Delta     int    `json:"delta"`
}

type Region struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	Government string `yaml:"government" json:"government"`
}

type Trait struct {
	Name    string `yaml:"name" json:"name"`
	Quality int    `yaml:"quality" json:"quality"`
}

type System struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	RegionID    string  `yaml:"region" json:"region_id"`
	EconomyType string  `yaml:"economy" json:"economy_type"`
	Traits      []Trait `yaml:"traits,omitempty" json:"traits,omitempty"`
}

type Connection struct {
	From        string `yaml:"from" json:"from"`
	To          string `yaml:"to" json:"to"`
	TravelTicks int64  `yaml:"travel_ticks" json:"travel_ticks"`
}

type Economy struct {
	ID       string   `yaml:"id" json:"id"`
	Produces []string `yaml:"produces" json:"produces"`
	Consumes []string `yaml:"consumes" json:"consumes"`
}

type Government struct {
	ID                 string   `yaml:"id" json:"id"`
	Name               string   `yaml:"name" json:"name"`
	TaxRate            float64  `yaml:"tax_rate" json:"tax_rate"`
	TaxedGoods         []string `yaml:"taxed_goods,omitempty" json:"taxed_goods,omitempty"`
	Contraband         []string `yaml:"contraband,omitempty" json:"contraband,omitempty"`
	InspectionModifier float64  `yaml:"inspection_modifier" json:"inspection_modifier"`
}

// Ship stat names used by mission requirements and module bonuses.
const (
	StatCargo     = "cargo"
	StatHull      = "hull"
	StatFirepower = "firepower"
	StatSensors   = "sensors"
)

type Module struct {
	ID      string         `yaml:"id" json:"id"`
	Name    string         `yaml:"name" json:"name"`
	Cost    int            `yaml:"cost" json:"cost"`
	Bonuses map[string]int `yaml:"bonuses" json:"bonuses"`
}

type GameWorld struct {
	ID          string `json:"id"`
	CurrentTick int64  `json:"current_tick"`
	TickRate    int64  `json:"tick_rate"`
	Seed        int64  `json:"seed"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Credits   int    `json:"credits"`
	Version   int64  `json:"version"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ShipStatus string

const (
	ShipDocked    ShipStatus = "docked"
	ShipInTransit ShipStatus = "in_transit"
)

type CargoStack struct {
	GoodID   string      `json:"good_id"`
	Quantity int         `json:"quantity"`
	Hazard   HazardClass `json:"hazard,omitempty"`
}

type Ship struct {
	ID            string       `json:"id"`
	PlayerID      string       `json:"player_id"`
	Name          string       `json:"name"`
	SystemID      string       `json:"system_id"`
	Status        ShipStatus   `json:"status" enum:"docked,in_transit"`
	DestinationID string       `json:"destination_id,omitempty"`
	ArrivalTick   int64        `json:"arrival_tick,omitempty"`
	CargoMax      int          `json:"cargo_max"`
	Hull          int          `json:"hull"`
	HullMax       int          `json:"hull_max"`
	Firepower     int          `json:"firepower"`
	Sensors       int          `json:"sensors"`
	ConvoyID      string       `json:"convoy_id,omitempty"`
	Modules       []string     `json:"modules,omitempty"`
	Cargo         []CargoStack `json:"cargo,omitempty"`
	Version       int64        `json:"version"`
}

func (s Ship) CargoUsed() int {
	used := 0
	for _, c := range s.Cargo {
		used += c.Quantity
	}
	return used
}

func (s Ship) Held(goodID string) int {
	for _, c := range s.Cargo {
		if c.GoodID == goodID {
			return c.Quantity
		}
	}
	return 0
}

// Stat returns the named stat, or 0 for unknown names.
func (s Ship) Stat(name string) int {
	switch name {
	case StatCargo:
		return s.CargoMax
	case StatHull:
		return s.HullMax
	case StatFirepower:
		return s.Firepower
	case StatSensors:
		return s.Sensors
	}
	return 0
}

type Convoy struct {
	ID        string   `json:"id"`
	PlayerID  string   `json:"player_id"`
	ShipIDs   []string `json:"ship_ids"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type MissionKind string

const (
	MissionTrade       MissionKind = "trade"
	MissionOperational MissionKind = "operational"
)

type MissionStatus string

const (
	MissionAvailable  MissionStatus = "available"
	MissionAccepted   MissionStatus = "accepted"
	MissionInProgress MissionStatus = "in_progress"
	MissionCompleted  MissionStatus = "completed"
	MissionExpired    MissionStatus = "expired"
)

// Mission types.
const (
	MissionImport = "import"
	MissionExport = "export"
	MissionEvent  = "event"
	MissionPatrol = "patrol"
	MissionSurvey = "survey"
	MissionBounty = "bounty"
)

type EnemyTier string

const (
	EnemyWeak     EnemyTier = "weak"
	EnemyModerate EnemyTier = "moderate"
	EnemyStrong   EnemyTier = "strong"
)

type Mission struct {
	ID               string         `json:"id"`
	Kind             MissionKind    `json:"kind" enum:"trade,operational"`
	Type             string         `json:"type"`
	Status           MissionStatus  `json:"status" enum:"available,accepted,in_progress,completed,expired"`
	SystemID         string         `json:"system_id"`
	DestinationID    string         `json:"destination_id,omitempty"`
	GoodID           string         `json:"good_id,omitempty"`
	Quantity         int            `json:"quantity,omitempty"`
	Hops             int            `json:"hops,omitempty"`
	Reward           int            `json:"reward"`
	EventID          string         `json:"event_id,omitempty"`
	StatRequirements map[string]int `json:"stat_requirements,omitempty"`
	EnemyTier        EnemyTier      `json:"enemy_tier,omitempty"`
	DurationTicks    int64          `json:"duration_ticks,omitempty"`
	PlayerID         string         `json:"player_id,omitempty"`
	ShipID           string         `json:"ship_id,omitempty"`
	CreatedTick      int64          `json:"created_tick"`
	DeadlineTick     int64          `json:"deadline_tick"`
	AcceptedTick     int64          `json:"accepted_tick,omitempty"`
	StartedTick      int64          `json:"started_tick,omitempty"`
	Version          int64          `json:"version"`
}

// JournalEntry is one row of the append-only world journal.
type JournalEntry struct {
	ID         int64  `json:"id"`
	Tick       int64  `json:"tick"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
