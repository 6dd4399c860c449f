// Package lifecycle owns world-event spawning, phase transitions and spread.
package lifecycle

import (
	"fmt"
	"math"
	"slices"

	"stardock/internal/domain"
	"stardock/internal/engine/rng"
)

type Transition string

const (
	None    Transition = "none"
	Advance Transition = "advance"
	Expire  Transition = "expire"
)

// Caps bound how many instances may be live at once.
type Caps struct {
	MaxEventsPerSystem int `yaml:"max_events_per_system" json:"max_events_per_system"`
	MaxEventsGlobal    int `yaml:"max_events_global" json:"max_events_global"`
}

// Catalog indexes definitions by type while keeping declaration order.
type Catalog struct {
	defs  []domain.EventDefinition
	index map[string]int
}

func NewCatalog(defs []domain.EventDefinition) Catalog {
	c := Catalog{defs: defs, index: make(map[string]int, len(defs))}
	for i, d := range defs {
		c.index[d.Type] = i
	}
	return c
}

func (c Catalog) Get(eventType string) (domain.EventDefinition, bool) {
	i, ok := c.index[eventType]
	if !ok {
		return domain.EventDefinition{}, false
	}
	return c.defs[i], true
}

func (c Catalog) All() []domain.EventDefinition { return c.defs }

// SpawnDecision describes a new instance for the caller to persist.
type SpawnDecision struct {
	Type          string  `json:"type"`
	SystemID      string  `json:"system_id"`
	RegionID      string  `json:"region_id"`
	Phase         string  `json:"phase"`
	PhaseDuration int64   `json:"phase_duration"`
	Severity      float64 `json:"severity"`
	SourceEventID string  `json:"source_event_id,omitempty"`
}

// Instance materializes the decision at the given tick.
func (d SpawnDecision) Instance(id string, tick int64) domain.EventInstance {
	return domain.EventInstance{
		ID:             id,
		Type:           d.Type,
		SystemID:       d.SystemID,
		RegionID:       d.RegionID,
		Phase:          d.Phase,
		PhaseStartTick: tick,
		PhaseDuration:  d.PhaseDuration,
		StartTick:      tick,
		Severity:       d.Severity,
		SourceEventID:  d.SourceEventID,
	}
}

// StartKey identifies the cooldown slot of one event type at one system.
type StartKey struct {
	Type     string
	SystemID string
}

// CheckPhaseTransition reports what should happen to the instance at tick.
// An unknown phase name expires the instance.
func CheckPhaseTransition(inst domain.EventInstance, tick int64, def domain.EventDefinition) Transition {
	idx, ok := def.PhaseIndex(inst.Phase)
	if !ok {
		return Expire
	}
	if tick-inst.PhaseStartTick < inst.PhaseDuration {
		return None
	}
	if idx+1 < len(def.Phases) {
		return Advance
	}
	return Expire
}

// AdvancePhase moves the instance into its next phase starting at tick.
func AdvancePhase(inst domain.EventInstance, def domain.EventDefinition, tick int64, src rng.Source) (domain.EventInstance, domain.EventPhaseDefinition) {
	idx, ok := def.PhaseIndex(inst.Phase)
	if !ok || idx+1 >= len(def.Phases) {
		panic(fmt.Sprintf("lifecycle: event %s has no phase after %q", inst.Type, inst.Phase))
	}
	next := def.Phases[idx+1]
	inst.Phase = next.Name
	inst.PhaseStartTick = tick
	inst.PhaseDuration = RollPhaseDuration(next.Duration, src)
	return inst, next
}

// BuildModifiersForPhase resolves template targets and scales values by severity:
// shifts linearly, multipliers and dampening by lerp toward the neutral 1.0.
func BuildModifiersForPhase(phase domain.EventPhaseDefinition, systemID, regionID string, severity float64) []domain.ModifierRow {
	rows := make([]domain.ModifierRow, 0, len(phase.Modifiers))
	for _, t := range phase.Modifiers {
		targetID := systemID
		if t.Target == domain.TargetRegion {
			targetID = regionID
		}
		value := t.Value * severity
		if t.Type == domain.RateMultiplier || t.Type == domain.ReversionDampening {
			value = 1 + (t.Value-1)*severity
		}
		target := t.Target
		if target == "" {
			target = domain.TargetSystem
		}
		rows = append(rows, domain.ModifierRow{
			Domain:     t.Domain,
			Type:       t.Type,
			TargetType: target,
			TargetID:   targetID,
			GoodID:     t.GoodID,
			Parameter:  t.Parameter,
			Value:      value,
		})
	}
	return rows
}

// ModifiersFor derives the live modifier rows of one instance.
func ModifiersFor(inst domain.EventInstance, def domain.EventDefinition) []domain.ModifierRow {
	idx, ok := def.PhaseIndex(inst.Phase)
	if !ok {
		return nil
	}
	rows := BuildModifiersForPhase(def.Phases[idx], inst.SystemID, inst.RegionID, inst.Severity)
	for i := range rows {
		rows[i].EventID = inst.ID
	}
	return rows
}

// BuildShocksForPhase scales one-time deltas by severity and rounds them.
func BuildShocksForPhase(phase domain.EventPhaseDefinition, severity float64) []domain.Shock {
	shocks := make([]domain.Shock, 0, len(phase.Shocks))
	for _, s := range phase.Shocks {
		delta := math.Round(s.Value * severity)
		if delta == 0 {
			delta = 0 // drops the sign of -0
		}
		shocks = append(shocks, domain.Shock{GoodID: s.GoodID, Parameter: s.Parameter, Delta: int(delta)})
	}
	return shocks
}

// RollPhaseDuration draws a uniform integer in [Min, Max]. A range with
// Min > Max is a configuration defect and panics.
func RollPhaseDuration(r domain.DurationRange, src rng.Source) int64 {
	if r.Min > r.Max {
		panic(fmt.Sprintf("lifecycle: invalid duration range [%d,%d]", r.Min, r.Max))
	}
	return rng.Between(src, r.Min, r.Max)
}

type candidate struct {
	def domain.EventDefinition
	sys domain.System
}

// SelectEventToSpawn picks one (definition, system) pair by weighted roulette
// among every pair that passes the caps, filters and cooldowns. It returns nil
// when nothing qualifies.
func SelectEventToSpawn(
	defs []domain.EventDefinition,
	active []domain.EventInstance,
	systems []domain.System,
	lastStarts map[StartKey]int64,
	tick int64,
	caps Caps,
	src rng.Source,
) *SpawnDecision {
	if caps.MaxEventsGlobal > 0 && len(active) >= caps.MaxEventsGlobal {
		return nil
	}
	perType := map[string]int{}
	perSystem := map[string]int{}
	last := map[StartKey]int64{}
	for k, v := range lastStarts {
		last[k] = v
	}
	for _, inst := range active {
		perType[inst.Type]++
		perSystem[inst.SystemID]++
		k := StartKey{Type: inst.Type, SystemID: inst.SystemID}
		if prev, ok := last[k]; !ok || inst.StartTick > prev {
			last[k] = inst.StartTick
		}
	}

	var candidates []candidate
	total := 0.0
	for _, def := range defs {
		if !def.Spawnable || def.Weight <= 0 || len(def.Phases) == 0 {
			continue
		}
		if def.MaxActive > 0 && perType[def.Type] >= def.MaxActive {
			continue
		}
		for _, sys := range systems {
			if len(def.EconomyTypes) > 0 && !slices.Contains(def.EconomyTypes, sys.EconomyType) {
				continue
			}
			if caps.MaxEventsPerSystem > 0 && perSystem[sys.ID] >= caps.MaxEventsPerSystem {
				continue
			}
			if started, ok := last[StartKey{Type: def.Type, SystemID: sys.ID}]; ok && tick-started < def.Cooldown {
				continue
			}
			candidates = append(candidates, candidate{def: def, sys: sys})
			total += def.Weight
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	roll := src.Float64() * total
	chosen := candidates[len(candidates)-1]
	cum := 0.0
	for _, c := range candidates {
		cum += c.def.Weight
		if roll < cum {
			chosen = c
			break
		}
	}
	first := chosen.def.Phases[0]
	return &SpawnDecision{
		Type:          chosen.def.Type,
		SystemID:      chosen.sys.ID,
		RegionID:      chosen.sys.RegionID,
		Phase:         first.Name,
		PhaseDuration: RollPhaseDuration(first.Duration, src),
		Severity:      1.0,
	}
}

// EvaluateSpreadTargets rolls each spread rule independently against every
// eligible neighbor. Spawned children inherit severity rule.Severity × source
// severity and link back through SourceEventID.
func EvaluateSpreadTargets(
	rules []domain.SpreadRule,
	source domain.EventInstance,
	neighbors []domain.System,
	active []domain.EventInstance,
	caps Caps,
	catalog Catalog,
	src rng.Source,
) []SpawnDecision {
	perSystem := map[string]int{}
	perType := map[string]int{}
	hosting := map[StartKey]bool{}
	for _, inst := range active {
		perSystem[inst.SystemID]++
		perType[inst.Type]++
		hosting[StartKey{Type: inst.Type, SystemID: inst.SystemID}] = true
	}
	total := len(active)

	var out []SpawnDecision
	for _, rule := range rules {
		def, ok := catalog.Get(rule.EventType)
		if !ok || len(def.Phases) == 0 {
			panic(fmt.Sprintf("lifecycle: spread rule references unknown event type %q", rule.EventType))
		}
		for _, n := range neighbors {
			if rule.SameRegion && n.RegionID != source.RegionID {
				continue
			}
			if len(rule.EconomyTypes) > 0 && !slices.Contains(rule.EconomyTypes, n.EconomyType) {
				continue
			}
			if caps.MaxEventsPerSystem > 0 && perSystem[n.ID] >= caps.MaxEventsPerSystem {
				continue
			}
			key := StartKey{Type: rule.EventType, SystemID: n.ID}
			if hosting[key] {
				continue
			}
			if caps.MaxEventsGlobal > 0 && total >= caps.MaxEventsGlobal {
				return out
			}
			if def.MaxActive > 0 && perType[def.Type] >= def.MaxActive {
				break
			}
			if src.Float64() >= rule.Probability {
				continue
			}
			first := def.Phases[0]
			out = append(out, SpawnDecision{
				Type:          def.Type,
				SystemID:      n.ID,
				RegionID:      n.RegionID,
				Phase:         first.Name,
				PhaseDuration: RollPhaseDuration(first.Duration, src),
				Severity:      rule.Severity * source.Severity,
				SourceEventID: source.ID,
			})
			perSystem[n.ID]++
			perType[def.Type]++
			hosting[key] = true
			total++
		}
	}
	return out
}
