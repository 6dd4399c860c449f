package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stardock/internal/domain"
	"stardock/internal/engine/danger"
	"stardock/internal/engine/economy"
	"stardock/internal/engine/lifecycle"
	"stardock/internal/engine/missions"
	"stardock/internal/engine/modifiers"
	"stardock/internal/journal"
	"stardock/internal/repo"
	"stardock/internal/tick"
)

// Processor names, in pipeline order.
const (
	ProcEvents     = "events"
	ProcEconomy    = "economy"
	ProcDanger     = "danger"
	ProcArrivals   = "arrivals"
	ProcMissions   = "missions"
	ProcOperations = "operations"
)

func (e Engine) processors() []tick.Processor {
	return []tick.Processor{
		tick.Func{ProcessorName: ProcEvents, Fn: e.processEvents},
		tick.Func{ProcessorName: ProcEconomy, Fn: e.processEconomy},
		tick.Func{ProcessorName: ProcDanger, Fn: e.processDanger},
		tick.Func{ProcessorName: ProcArrivals, Fn: e.processArrivals},
		tick.Func{ProcessorName: ProcMissions, Fn: e.processMissions},
		tick.Func{ProcessorName: ProcOperations, Fn: e.processOperations},
	}
}

type EventsResult struct {
	Spawned  []string `json:"spawned,omitempty"`
	Spread   []string `json:"spread,omitempty"`
	Advanced []string `json:"advanced,omitempty"`
	Expired  []string `json:"expired,omitempty"`
	Active   int      `json:"active"`
}

// processEvents moves every instance through its phases, expires finished
// ones along with their linked missions, may spawn one new event and lets
// instances that just entered a phase spread to neighbors.
func (e Engine) processEvents(ctx context.Context, tx *sql.Tx, tc *tick.Context) (any, error) {
	r := e.Repo.WithTx(tx)
	catalog := lifecycle.NewCatalog(e.Config.Events.Definitions)
	caps := e.Config.Events.Caps
	res := EventsResult{}

	instances, err := r.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	var live, entered []domain.EventInstance
	for _, inst := range instances {
		def, ok := catalog.Get(inst.Type)
		transition := lifecycle.Expire
		if ok {
			transition = lifecycle.CheckPhaseTransition(inst, tc.Tick, def)
		}
		switch transition {
		case lifecycle.None:
			live = append(live, inst)
		case lifecycle.Advance:
			next, phase := lifecycle.AdvancePhase(inst, def, tc.Tick, tc.Rand)
			if err := r.UpdateEventPhase(ctx, next); err != nil {
				return nil, err
			}
			if err := e.applyShocks(ctx, r, next, phase); err != nil {
				return nil, err
			}
			if err := e.journal().Append(ctx, tx, tc.Tick, journal.EventPhase, "event", next.ID, "", journal.Payload{
				"type": next.Type, "system_id": next.SystemID, "phase": next.Phase, "duration": next.PhaseDuration,
			}); err != nil {
				return nil, err
			}
			live = append(live, next)
			entered = append(entered, next)
			res.Advanced = append(res.Advanced, next.ID)
		case lifecycle.Expire:
			if err := e.expireEvent(ctx, tx, r, inst, tc.Tick); err != nil {
				return nil, err
			}
			res.Expired = append(res.Expired, inst.ID)
		}
	}

	spawn := func(d lifecycle.SpawnDecision, entryType string) (domain.EventInstance, error) {
		inst := d.Instance(newID(), tc.Tick)
		def, _ := catalog.Get(inst.Type)
		if err := r.InsertEvent(ctx, inst); err != nil {
			return inst, err
		}
		if idx, ok := def.PhaseIndex(inst.Phase); ok {
			if err := e.applyShocks(ctx, r, inst, def.Phases[idx]); err != nil {
				return inst, err
			}
		}
		return inst, e.journal().Append(ctx, tx, tc.Tick, entryType, "event", inst.ID, "", journal.Payload{
			"type": inst.Type, "system_id": inst.SystemID, "severity": inst.Severity, "source_event_id": inst.SourceEventID,
		})
	}

	if tc.Rand.Float64() < e.Config.Events.SpawnChance {
		starts, err := r.EventStarts(ctx)
		if err != nil {
			return nil, err
		}
		d := lifecycle.SelectEventToSpawn(catalog.All(), live, e.Galaxy.Systems(), starts, tc.Tick, caps, tc.Rand)
		if d != nil {
			inst, err := spawn(*d, journal.EventSpawned)
			if err != nil {
				return nil, err
			}
			live = append(live, inst)
			entered = append(entered, inst)
			res.Spawned = append(res.Spawned, inst.ID)
		}
	}

	// Children may spread in turn; the caps and the one-per-type-per-system
	// rule bound the walk.
	for i := 0; i < len(entered); i++ {
		src := entered[i]
		def, _ := catalog.Get(src.Type)
		idx, ok := def.PhaseIndex(src.Phase)
		if !ok || len(def.Phases[idx].Spread) == 0 {
			continue
		}
		decisions := lifecycle.EvaluateSpreadTargets(def.Phases[idx].Spread, src, e.Galaxy.Neighbors(src.SystemID), live, caps, catalog, tc.Rand)
		for _, d := range decisions {
			inst, err := spawn(d, journal.EventSpread)
			if err != nil {
				return nil, err
			}
			live = append(live, inst)
			entered = append(entered, inst)
			res.Spread = append(res.Spread, inst.ID)
		}
	}
	res.Active = len(live)
	return res, nil
}

func (e Engine) applyShocks(ctx context.Context, r repo.Repo, inst domain.EventInstance, phase domain.EventPhaseDefinition) error {
	for _, s := range lifecycle.BuildShocksForPhase(phase, inst.Severity) {
		if s.Delta == 0 {
			continue
		}
		entry, err := r.GetMarketEntry(ctx, inst.SystemID, s.GoodID)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := r.UpdateMarketEntry(ctx, economy.ApplyShock(entry, s)); err != nil {
			return fmt.Errorf("shock %s/%s: %w", inst.SystemID, s.GoodID, err)
		}
	}
	return nil
}

// expireEvent removes an instance and expires the open missions posted for it.
func (e Engine) expireEvent(ctx context.Context, tx *sql.Tx, r repo.Repo, inst domain.EventInstance, tickNo int64) error {
	if err := r.DeleteEvent(ctx, inst.ID); err != nil {
		return err
	}
	linked, err := r.ListMissions(ctx, repo.MissionFilter{
		EventID:  inst.ID,
		Statuses: []domain.MissionStatus{domain.MissionAvailable, domain.MissionAccepted},
	})
	if err != nil {
		return err
	}
	for _, m := range linked {
		m.Status = domain.MissionExpired
		if err := r.UpdateMission(ctx, m); err != nil {
			return err
		}
		if err := e.journal().Append(ctx, tx, tickNo, journal.MissionExpired, "mission", m.ID, "", journal.Payload{
			"reason": "event expired", "event_id": inst.ID,
		}); err != nil {
			return err
		}
	}
	return e.journal().Append(ctx, tx, tickNo, journal.EventExpired, "event", inst.ID, "", journal.Payload{
		"type": inst.Type, "system_id": inst.SystemID, "missions_expired": len(linked),
	})
}

// liveModifiers derives every modifier row of the instances currently stored.
func (e Engine) liveModifiers(ctx context.Context, r repo.Repo) ([]domain.ModifierRow, error) {
	instances, err := r.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	catalog := lifecycle.NewCatalog(e.Config.Events.Definitions)
	var rows []domain.ModifierRow
	for _, inst := range instances {
		if def, ok := catalog.Get(inst.Type); ok {
			rows = append(rows, lifecycle.ModifiersFor(inst, def)...)
		}
	}
	return rows, nil
}

type EconomyResult struct {
	Updated int `json:"updated"`
}

// processEconomy reverts every market entry one step toward its modified
// equilibrium.
func (e Engine) processEconomy(ctx context.Context, tx *sql.Tx, tc *tick.Context) (any, error) {
	r := e.Repo.WithTx(tx)
	rows, err := e.liveModifiers(ctx, r)
	if err != nil {
		return nil, err
	}
	entries, err := r.ListMarket(ctx)
	if err != nil {
		return nil, err
	}
	perSystem := map[string][]domain.ModifierRow{}
	res := EconomyResult{}
	for _, en := range entries {
		sys, ok := e.Galaxy.System(en.SystemID)
		if !ok {
			continue
		}
		applicable, seen := perSystem[sys.ID]
		if !seen {
			applicable = modifiers.Applicable(rows, sys)
			perSystem[sys.ID] = applicable
		}
		eff := modifiers.Aggregate(applicable, en.GoodID, e.Config.Modifiers)
		target := e.Config.Economy.Baseline(e.Config.EconomyFor(sys.EconomyType), en.GoodID).Apply(eff)
		next := e.Config.Economy.Step(en, target, eff)
		if next.Supply == en.Supply && next.Demand == en.Demand {
			continue
		}
		if err := r.UpdateMarketEntry(ctx, next); err != nil {
			return nil, fmt.Errorf("revert %s/%s: %w", en.SystemID, en.GoodID, err)
		}
		res.Updated++
	}
	return res, nil
}

// DangerResult maps system id to its danger level this tick.
type DangerResult map[string]float64

func (e Engine) processDanger(ctx context.Context, tx *sql.Tx, tc *tick.Context) (any, error) {
	r := e.Repo.WithTx(tx)
	rows, err := e.liveModifiers(ctx, r)
	if err != nil {
		return nil, err
	}
	res := DangerResult{}
	for _, sys := range e.Galaxy.Systems() {
		level := danger.AggregateDangerLevel(modifiers.Applicable(rows, sys), e.Config.Danger.MaxDanger)
		if err := r.UpsertDanger(ctx, sys.ID, level, tc.Tick); err != nil {
			return nil, err
		}
		res[sys.ID] = level
	}
	return res, nil
}

// dangerLevels prefers this tick's danger output and falls back to the last
// stored levels when the danger processor failed.
func (e Engine) dangerLevels(ctx context.Context, r repo.Repo, tc *tick.Context) (map[string]float64, error) {
	if v, ok := tc.Result(ProcDanger); ok {
		if d, ok := v.(DangerResult); ok {
			return d, nil
		}
	}
	return r.DangerLevels(ctx)
}

type ArrivalsResult struct {
	Arrived    []string `json:"arrived,omitempty"`
	CargoLost  int      `json:"cargo_lost"`
	HazardLost int      `json:"hazard_lost"`
	DutyPaid   int      `json:"duty_paid"`
	Seized     int      `json:"seized"`
}

// processArrivals docks every ship due this tick and settles its voyage:
// route danger losses, hazard incidents, then the destination's duty and
// customs inspection.
func (e Engine) processArrivals(ctx context.Context, tx *sql.Tx, tc *tick.Context) (any, error) {
	r := e.Repo.WithTx(tx)
	levels, err := e.dangerLevels(ctx, r, tc)
	if err != nil {
		return nil, err
	}
	ships, err := r.ListShips(ctx, repo.ShipFilter{Status: domain.ShipInTransit, ArrivedBy: tc.Tick})
	if err != nil {
		return nil, err
	}
	res := ArrivalsResult{}
	cfg := e.Config.Danger
	for _, sh := range ships {
		e.tagHazards(&sh)
		from, to := sh.SystemID, sh.DestinationID
		routeDanger := max(levels[from], levels[to])
		before := map[string]int{}
		for _, c := range sh.Cargo {
			before[c.GoodID] = c.Quantity
		}
		log := func(entryType string, payload journal.Payload) error {
			return e.journal().Append(ctx, tx, tc.Tick, entryType, "ship", sh.ID, "", payload)
		}

		for _, l := range cfg.RollCargoLoss(routeDanger, sh.Cargo, tc.Rand) {
			sh.Cargo = setQuantity(sh.Cargo, l.GoodID, l.Remaining)
			res.CargoLost += l.Lost
			if err := log(journal.CargoLost, journal.Payload{"good_id": l.GoodID, "lost": l.Lost, "danger": routeDanger}); err != nil {
				return nil, err
			}
		}
		for _, h := range cfg.RollHazardIncidents(sh.Cargo, routeDanger, tc.Rand) {
			sh.Cargo = setQuantity(sh.Cargo, h.GoodID, h.Remaining)
			sh.Hull = max(0, sh.Hull-e.Config.Fleet.ArrivalHullLoss)
			res.HazardLost += h.Lost
			if err := log(journal.HazardIncident, journal.Payload{"good_id": h.GoodID, "hazard": h.Hazard, "lost": h.Lost, "hull": sh.Hull}); err != nil {
				return nil, err
			}
		}
		if dest, ok := e.Galaxy.System(to); ok {
			if gov, ok := e.Config.GovernmentFor(dest); ok {
				for _, d := range danger.ApplyImportDuty(sh.Cargo, gov.TaxedGoods, gov.TaxRate) {
					sh.Cargo = setQuantity(sh.Cargo, d.GoodID, d.Remaining)
					res.DutyPaid += d.Seized
					if err := log(journal.DutyCollected, journal.Payload{"good_id": d.GoodID, "seized": d.Seized, "government": gov.ID}); err != nil {
						return nil, err
					}
				}
				for _, c := range cfg.RollContrabandInspection(sh.Cargo, gov.Contraband, gov.InspectionModifier, tc.Rand) {
					sh.Cargo = setQuantity(sh.Cargo, c.GoodID, 0)
					res.Seized += c.Seized
					if err := log(journal.ContrabandSeized, journal.Payload{"good_id": c.GoodID, "seized": c.Seized, "government": gov.ID}); err != nil {
						return nil, err
					}
				}
			}
		}

		for good, qty := range before {
			if now := quantityOf(sh.Cargo, good); now != qty {
				if err := r.SetCargo(ctx, sh.ID, good, now); err != nil {
					return nil, err
				}
			}
		}
		sh.SystemID = to
		sh.Status = domain.ShipDocked
		sh.DestinationID = ""
		sh.ArrivalTick = 0
		if err := r.UpdateShip(ctx, sh); err != nil {
			return nil, fmt.Errorf("dock ship %s: %w", sh.ID, err)
		}
		if err := log(journal.ShipArrived, journal.Payload{"from": from, "to": to, "hull": sh.Hull}); err != nil {
			return nil, err
		}
		res.Arrived = append(res.Arrived, sh.ID)
	}
	return res, nil
}

func setQuantity(cargo []domain.CargoStack, goodID string, qty int) []domain.CargoStack {
	out := cargo[:0:0]
	for _, c := range cargo {
		if c.GoodID == goodID {
			c.Quantity = qty
		}
		if c.Quantity > 0 {
			out = append(out, c)
		}
	}
	return out
}

func quantityOf(cargo []domain.CargoStack, goodID string) int {
	for _, c := range cargo {
		if c.GoodID == goodID {
			return c.Quantity
		}
	}
	return 0
}

type MissionsResult struct {
	Expired int `json:"expired"`
	Posted  int `json:"posted"`
}

// processMissions expires overdue contracts and posts new ones from the
// market, the live events and this tick's danger levels.
func (e Engine) processMissions(ctx context.Context, tx *sql.Tx, tc *tick.Context) (any, error) {
	r := e.Repo.WithTx(tx)
	res := MissionsResult{}
	open, err := r.ListMissions(ctx, repo.MissionFilter{Statuses: []domain.MissionStatus{domain.MissionAvailable, domain.MissionAccepted}})
	if err != nil {
		return nil, err
	}
	var board []domain.Mission
	for _, m := range open {
		if !missions.Overdue(m, tc.Tick) {
			board = append(board, m)
			continue
		}
		m.Status = domain.MissionExpired
		if err := r.UpdateMission(ctx, m); err != nil {
			return nil, err
		}
		if err := e.journal().Append(ctx, tx, tc.Tick, journal.MissionExpired, "mission", m.ID, "", journal.Payload{
			"reason": "deadline passed", "player_id": m.PlayerID,
		}); err != nil {
			return nil, err
		}
		res.Expired++
	}

	entries, err := r.ListMarket(ctx)
	if err != nil {
		return nil, err
	}
	events, err := r.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	levels, err := e.dangerLevels(ctx, r, tc)
	if err != nil {
		return nil, err
	}
	cfg := e.Config.Missions
	goods := e.Config.GoodsByID()
	idx := missions.NewOpen(board)
	var posted []domain.Mission
	posted = append(posted, cfg.GenerateEconomyMissions(entries, goods, e.Config.Pricing, e.Galaxy, idx, tc.Tick, tc.Rand)...)
	posted = append(posted, cfg.GenerateEventMissions(events, goods, idx, tc.Tick, tc.Rand)...)
	posted = append(posted, cfg.GenerateOperationalMissions(e.Galaxy.Systems(), levels, idx, tc.Tick, tc.Rand)...)
	for _, m := range posted {
		m.ID = newID()
		if err := r.InsertMission(ctx, m); err != nil {
			return nil, err
		}
		if err := e.journal().Append(ctx, tx, tc.Tick, journal.MissionPosted, "mission", m.ID, "", journal.Payload{
			"type": m.Type, "system_id": m.SystemID, "reward": m.Reward, "event_id": m.EventID,
		}); err != nil {
			return nil, err
		}
		res.Posted++
	}
	return res, nil
}

type OperationsResult struct {
	Completed []string `json:"completed,omitempty"`
	Failed    []string `json:"failed,omitempty"`
}

// processOperations settles in-progress operational missions: patrols and
// surveys complete once their duration has run, bounties fight on the first
// tick after they start. A ship that left its post fails the mission.
func (e Engine) processOperations(ctx context.Context, tx *sql.Tx, tc *tick.Context) (any, error) {
	r := e.Repo.WithTx(tx)
	running, err := r.ListMissions(ctx, repo.MissionFilter{Statuses: []domain.MissionStatus{domain.MissionInProgress}})
	if err != nil {
		return nil, err
	}
	res := OperationsResult{}
	for _, m := range running {
		if m.Kind != domain.MissionOperational {
			continue
		}
		ship, err := r.GetShip(ctx, m.ShipID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		payload := journal.Payload{"type": m.Type, "ship_id": m.ShipID}
		won := false
		switch {
		case err != nil || ship.Status != domain.ShipDocked || ship.SystemID != m.SystemID:
			payload["reason"] = "ship left its post"
		case m.Type == domain.MissionBounty:
			if tc.Tick <= m.StartedTick {
				continue
			}
			out := e.Config.Missions.Battle.Fight(m.EnemyTier, ship.Firepower, tc.Rand)
			ship.Hull = max(0, ship.Hull-out.HullDamage)
			if err := r.UpdateShip(ctx, ship); err != nil {
				return nil, err
			}
			payload["enemy_tier"] = m.EnemyTier
			payload["hull_damage"] = out.HullDamage
			won = out.Won
			if !won {
				payload["reason"] = "defeated"
			}
		case missions.Due(m, tc.Tick):
			won = true
		default:
			continue
		}

		if won {
			player, err := r.GetPlayer(ctx, m.PlayerID)
			if err != nil {
				return nil, err
			}
			player.Credits += m.Reward
			if err := r.UpdateCredits(ctx, player); err != nil {
				return nil, err
			}
			m.Status = domain.MissionCompleted
			payload["reward"] = m.Reward
		} else {
			m.Status = domain.MissionExpired
		}
		if err := r.UpdateMission(ctx, m); err != nil {
			return nil, err
		}
		entryType := journal.MissionCompleted
		if !won {
			entryType = journal.MissionFailed
		}
		if err := e.journal().Append(ctx, tx, tc.Tick, entryType, "mission", m.ID, "", payload); err != nil {
			return nil, err
		}
		if won {
			res.Completed = append(res.Completed, m.ID)
		} else {
			res.Failed = append(res.Failed, m.ID)
		}
	}
	return res, nil
}
