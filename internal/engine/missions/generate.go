package missions

import (
	"math"
	"slices"

	"stardock/internal/domain"
	"stardock/internal/engine/galaxy"
	"stardock/internal/engine/pricing"
	"stardock/internal/engine/rng"
)

// Open indexes the missions still on the boards so generation does not post
// duplicates.
type Open struct {
	trade  map[[2]string]bool
	ops    map[[2]string]bool
	events map[string]bool
}

func NewOpen(missions []domain.Mission) Open {
	o := Open{trade: map[[2]string]bool{}, ops: map[[2]string]bool{}, events: map[string]bool{}}
	for _, m := range missions {
		if m.Status != domain.MissionAvailable {
			continue
		}
		if m.EventID != "" {
			o.events[m.EventID] = true
		}
		if m.Kind == domain.MissionOperational {
			o.ops[[2]string{m.SystemID, m.Type}] = true
		} else {
			o.trade[[2]string{m.SystemID, m.GoodID}] = true
		}
	}
	return o
}

// GenerateEconomyMissions posts imports where a good is dear and exports
// where it is cheap. Returned candidates carry no id.
func (c Config) GenerateEconomyMissions(
	entries []domain.MarketEntry,
	goods map[string]domain.Good,
	curve pricing.Curve,
	g *galaxy.Graph,
	open Open,
	tick int64,
	src rng.Source,
) []domain.Mission {
	var out []domain.Mission
	for _, e := range entries {
		good, ok := goods[e.GoodID]
		if !ok || good.BasePrice <= 0 || open.trade[[2]string{e.SystemID, e.GoodID}] {
			continue
		}
		ratio := curve.Quote(good, e) / good.BasePrice
		switch {
		case ratio > c.HighPriceThreshold:
			if src.Float64() >= c.ImportChance {
				continue
			}
			qty := c.quantity(src)
			out = append(out, c.tradeMission(domain.MissionImport, e.SystemID, e.SystemID, good, qty, 1, "", tick))
		case ratio < c.LowPriceThreshold:
			if src.Float64() >= c.ExportChance {
				continue
			}
			dests := g.Within(e.SystemID, c.MaxExportDistance)
			if len(dests) == 0 {
				continue
			}
			dest := dests[rng.Pick(src, len(dests))]
			qty := c.quantity(src)
			out = append(out, c.tradeMission(domain.MissionExport, e.SystemID, dest, good, qty, g.Hops(e.SystemID, dest), "", tick))
		}
	}
	return out
}

// GenerateEventMissions posts 1 to 3 event-linked imports at the event's
// system, drawn in order from the event type's themed good pool.
func (c Config) GenerateEventMissions(
	active []domain.EventInstance,
	goods map[string]domain.Good,
	open Open,
	tick int64,
	src rng.Source,
) []domain.Mission {
	var out []domain.Mission
	for _, inst := range active {
		pool := c.EventGoods[inst.Type]
		if len(pool) == 0 || open.events[inst.ID] {
			continue
		}
		count := 1 + int(math.Floor(src.Float64()*3))
		for i := 0; i < count && i < len(pool); i++ {
			good, ok := goods[pool[i]]
			if !ok {
				continue
			}
			qty := c.quantity(src)
			out = append(out, c.tradeMission(domain.MissionEvent, inst.SystemID, inst.SystemID, good, qty, 1, inst.ID, tick))
		}
	}
	return out
}

// GenerateOperationalMissions posts patrols and bounties where danger runs
// high and surveys where a system carries eligible traits.
func (c Config) GenerateOperationalMissions(
	systems []domain.System,
	danger map[string]float64,
	open Open,
	tick int64,
	src rng.Source,
) []domain.Mission {
	var out []domain.Mission
	for _, sys := range systems {
		d := danger[sys.ID]
		norm := c.normalize(d)

		if d >= c.Patrol.DangerThreshold && d > 0 && !open.ops[[2]string{sys.ID, domain.MissionPatrol}] {
			if src.Float64() < c.Patrol.Chance*norm {
				m := c.opMission(domain.MissionPatrol, sys.ID, c.Patrol, norm, tick)
				m.DurationTicks = rng.Between(src, c.Patrol.Duration.Min, c.Patrol.Duration.Max)
				out = append(out, m)
			}
		}

		if eligible, best := c.surveyTraits(sys); eligible > 0 && !open.ops[[2]string{sys.ID, domain.MissionSurvey}] {
			if src.Float64() < math.Min(1, c.Survey.Chance*float64(eligible)) {
				m := c.opMission(domain.MissionSurvey, sys.ID, c.Survey, SurveyQualityFactor(best), tick)
				m.DurationTicks = rng.Between(src, c.Survey.Duration.Min, c.Survey.Duration.Max)
				out = append(out, m)
			}
		}

		if d >= c.Bounty.DangerThreshold && d > 0 && !open.ops[[2]string{sys.ID, domain.MissionBounty}] {
			if src.Float64() < c.Bounty.Chance*norm {
				m := c.opMission(domain.MissionBounty, sys.ID, c.Bounty, norm, tick)
				m.EnemyTier = EnemyTier(norm)
				out = append(out, m)
			}
		}
	}
	return out
}

func (c Config) surveyTraits(sys domain.System) (eligible, bestQuality int) {
	for _, t := range sys.Traits {
		if !slices.Contains(c.SurveyTraits, t.Name) {
			continue
		}
		eligible++
		bestQuality = max(bestQuality, t.Quality)
	}
	return eligible, bestQuality
}

func (c Config) quantity(src rng.Source) int {
	return int(rng.Between(src, int64(c.Quantity.Min), int64(c.Quantity.Max)))
}

func (c Config) tradeMission(kind, from, to string, good domain.Good, qty, hops int, eventID string, tick int64) domain.Mission {
	return domain.Mission{
		Kind:          domain.MissionTrade,
		Type:          kind,
		Status:        domain.MissionAvailable,
		SystemID:      from,
		DestinationID: to,
		GoodID:        good.ID,
		Quantity:      qty,
		Hops:          hops,
		Reward:        c.Rewards.Calculate(qty, hops, good.Tier, eventID != ""),
		EventID:       eventID,
		CreatedTick:   tick,
		DeadlineTick:  tick + c.DeadlineTicks,
	}
}

func (c Config) opMission(kind, systemID string, t OperationalType, factor float64, tick int64) domain.Mission {
	reward := int(math.Floor(float64(t.BaseReward) * (1 + t.RewardScale*factor)))
	return domain.Mission{
		Kind:             domain.MissionOperational,
		Type:             kind,
		Status:           domain.MissionAvailable,
		SystemID:         systemID,
		DestinationID:    systemID,
		Reward:           max(reward, c.Rewards.Min),
		StatRequirements: t.StatRequirements,
		CreatedTick:      tick,
		DeadlineTick:     tick + c.DeadlineTicks,
	}
}
