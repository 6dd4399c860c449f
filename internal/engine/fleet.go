package engine

import (
	"context"
	"math"
	"slices"

	"stardock/internal/domain"
	"stardock/internal/engine/auth"
	"stardock/internal/engine/reject"
	"stardock/internal/journal"
	"stardock/internal/repo"
	"stardock/internal/txn"
)

type NavigateOptions struct {
	PlayerID    string
	ShipID      string
	ConvoyID    string
	Destination string
}

type fleetState struct {
	world  domain.GameWorld
	player domain.Player
	fleet  fleet
}

func sameVersions(a, b fleet) bool {
	if len(a.ships) != len(b.ships) {
		return false
	}
	for i := range a.ships {
		if a.ships[i].ID != b.ships[i].ID || a.ships[i].Version != b.ships[i].Version {
			return false
		}
	}
	return true
}

func (e Engine) readFleet(playerID, shipID, convoyID string) func(context.Context, repo.Repo) (fleetState, error) {
	return func(ctx context.Context, r repo.Repo) (fleetState, error) {
		var s fleetState
		var err error
		if s.world, err = r.GetWorld(ctx); err != nil {
			return s, err
		}
		if s.player, err = r.GetPlayer(ctx, playerID); err != nil {
			return s, err
		}
		s.fleet, err = loadFleet(ctx, r, playerID, shipID, convoyID)
		return s, err
	}
}

// Navigate departs a docked ship or convoy along a direct lane. Every member
// arrives at the same tick.
func (e Engine) Navigate(ctx context.Context, opts NavigateOptions) ([]domain.Ship, error) {
	var travel int64
	op := txn.Op[fleetState]{
		Read: e.readFleet(opts.PlayerID, opts.ShipID, opts.ConvoyID),
		Validate: func(s fleetState) error {
			if s.fleet.status() != domain.ShipDocked {
				return reject.New("fleet must be docked to depart")
			}
			if opts.ConvoyID == "" && s.fleet.ships[0].ConvoyID != "" {
				return reject.Newf("ship travels with convoy %s", s.fleet.ships[0].ConvoyID)
			}
			if _, ok := e.Galaxy.System(opts.Destination); !ok {
				return reject.Newf("unknown system %q", opts.Destination)
			}
			ticks, ok := e.Galaxy.TravelTicks(s.fleet.systemID(), opts.Destination)
			if !ok {
				return reject.Newf("no lane from %s to %s", s.fleet.systemID(), opts.Destination)
			}
			for _, sh := range s.fleet.ships {
				if sh.Hull <= 0 {
					return reject.Newf("ship %s hull is destroyed; repair before departing", sh.Name)
				}
			}
			travel = ticks
			return nil
		},
		Same: func(a, b fleetState) bool { return sameVersions(a.fleet, b.fleet) },
		Write: func(ctx context.Context, r repo.Repo, s fleetState) error {
			arrival := s.world.CurrentTick + max(1, travel)
			for _, sh := range s.fleet.ships {
				from := sh.SystemID
				sh.Status = domain.ShipInTransit
				sh.DestinationID = opts.Destination
				sh.ArrivalTick = arrival
				if err := r.UpdateShip(ctx, sh); err != nil {
					return err
				}
				if err := e.journal().Append(ctx, r.DB, s.world.CurrentTick, journal.ShipDeparted, "ship", sh.ID, opts.PlayerID, journal.Payload{
					"from": from, "to": opts.Destination, "arrival_tick": arrival, "convoy_id": s.fleet.convoyID,
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	if _, err := txn.Run(ctx, e.DB, op); err != nil {
		return nil, err
	}
	return e.fleetAfter(ctx, opts.PlayerID, opts.ShipID, opts.ConvoyID)
}

func (e Engine) fleetAfter(ctx context.Context, playerID, shipID, convoyID string) ([]domain.Ship, error) {
	f, err := loadFleet(ctx, e.Repo, playerID, shipID, convoyID)
	if err != nil {
		return nil, err
	}
	return f.ships, nil
}

type RepairResult struct {
	Ship   domain.Ship `json:"ship"`
	Points int         `json:"points"`
	Cost   int         `json:"cost"`
}

// Repair restores as much hull as the player can afford at the per-point price.
func (e Engine) Repair(ctx context.Context, playerID, shipID string) (RepairResult, error) {
	rate := max(1, e.Config.Fleet.RepairCost)
	points := func(s fleetState) int {
		sh := s.fleet.ships[0]
		return min(sh.HullMax-sh.Hull, s.player.Credits/rate)
	}
	op := txn.Op[fleetState]{
		Read: e.readFleet(playerID, shipID, ""),
		Validate: func(s fleetState) error {
			sh := s.fleet.ships[0]
			if sh.Status != domain.ShipDocked {
				return reject.New("ship must be docked for repairs")
			}
			if sh.Hull >= sh.HullMax {
				return reject.New("hull is already at full strength")
			}
			if points(s) <= 0 {
				return reject.Newf("insufficient credits: repairs cost %d per point", rate)
			}
			return nil
		},
		Write: func(ctx context.Context, r repo.Repo, s fleetState) error {
			n := points(s)
			sh := s.fleet.ships[0]
			sh.Hull += n
			s.player.Credits -= n * rate
			if err := r.UpdateShip(ctx, sh); err != nil {
				return err
			}
			if err := r.UpdateCredits(ctx, s.player); err != nil {
				return err
			}
			return e.journal().Append(ctx, r.DB, s.world.CurrentTick, journal.ShipRepaired, "ship", sh.ID, playerID, journal.Payload{
				"points": n, "cost": n * rate, "hull": sh.Hull,
			})
		},
	}
	s, err := txn.Run(ctx, e.DB, op)
	if err != nil {
		return RepairResult{}, err
	}
	n := points(s)
	sh := s.fleet.ships[0]
	sh.Hull += n
	sh.Version++
	return RepairResult{Ship: sh, Points: n, Cost: n * rate}, nil
}

// applyBonuses adds (sign 1) or removes (sign -1) a module's stat bonuses.
func applyBonuses(s domain.Ship, m domain.Module, sign int) domain.Ship {
	for stat, v := range m.Bonuses {
		d := sign * v
		switch stat {
		case domain.StatCargo:
			s.CargoMax += d
		case domain.StatHull:
			s.HullMax += d
			if d > 0 {
				s.Hull += d
			}
			s.Hull = min(s.Hull, s.HullMax)
		case domain.StatFirepower:
			s.Firepower += d
		case domain.StatSensors:
			s.Sensors += d
		}
	}
	return s
}

// InstallModule buys a module and fits it to a docked ship with a free slot.
func (e Engine) InstallModule(ctx context.Context, playerID, shipID, moduleID string) (domain.Ship, error) {
	mod, ok := e.Config.Module(moduleID)
	if !ok {
		return domain.Ship{}, reject.Newf("unknown module %q", moduleID)
	}
	op := txn.Op[fleetState]{
		Read: e.readFleet(playerID, shipID, ""),
		Validate: func(s fleetState) error {
			sh := s.fleet.ships[0]
			switch {
			case sh.Status != domain.ShipDocked:
				return reject.New("ship must be docked to fit modules")
			case slices.Contains(sh.Modules, moduleID):
				return reject.Newf("module %s already installed", moduleID)
			case len(sh.Modules) >= e.Config.Fleet.ModuleSlots:
				return reject.Newf("no free module slot (%d used)", len(sh.Modules))
			case s.player.Credits < mod.Cost:
				return reject.Newf("insufficient credits: need %d, have %d", mod.Cost, s.player.Credits)
			}
			return nil
		},
		Write: func(ctx context.Context, r repo.Repo, s fleetState) error {
			sh := applyBonuses(s.fleet.ships[0], mod, 1)
			s.player.Credits -= mod.Cost
			if err := r.AddModule(ctx, sh.ID, mod.ID); err != nil {
				return err
			}
			if err := r.UpdateShip(ctx, sh); err != nil {
				return err
			}
			if err := r.UpdateCredits(ctx, s.player); err != nil {
				return err
			}
			return e.journal().Append(ctx, r.DB, s.world.CurrentTick, journal.ModuleInstalled, "ship", sh.ID, playerID, journal.Payload{
				"module_id": mod.ID, "cost": mod.Cost,
			})
		},
	}
	if _, err := txn.Run(ctx, e.DB, op); err != nil {
		return domain.Ship{}, err
	}
	return e.Repo.GetShip(ctx, shipID)
}

// RemoveModule strips a module and refunds part of its price. A cargo module
// cannot come out while the hold would overflow without it.
func (e Engine) RemoveModule(ctx context.Context, playerID, shipID, moduleID string) (domain.Ship, int, error) {
	mod, ok := e.Config.Module(moduleID)
	if !ok {
		return domain.Ship{}, 0, reject.Newf("unknown module %q", moduleID)
	}
	refund := int(math.Floor(float64(mod.Cost) * e.Config.Fleet.RefundRatio))
	op := txn.Op[fleetState]{
		Read: e.readFleet(playerID, shipID, ""),
		Validate: func(s fleetState) error {
			sh := s.fleet.ships[0]
			switch {
			case sh.Status != domain.ShipDocked:
				return reject.New("ship must be docked to remove modules")
			case !slices.Contains(sh.Modules, moduleID):
				return reject.Newf("module %s is not installed", moduleID)
			}
			if after := applyBonuses(sh, mod, -1); sh.CargoUsed() > after.CargoMax {
				return reject.Newf("hold carries %d units; without %s it fits %d", sh.CargoUsed(), moduleID, after.CargoMax)
			}
			return nil
		},
		Write: func(ctx context.Context, r repo.Repo, s fleetState) error {
			sh := applyBonuses(s.fleet.ships[0], mod, -1)
			s.player.Credits += refund
			if err := r.RemoveModule(ctx, sh.ID, mod.ID); err != nil {
				return err
			}
			if err := r.UpdateShip(ctx, sh); err != nil {
				return err
			}
			if err := r.UpdateCredits(ctx, s.player); err != nil {
				return err
			}
			return e.journal().Append(ctx, r.DB, s.world.CurrentTick, journal.ModuleRemoved, "ship", sh.ID, playerID, journal.Payload{
				"module_id": mod.ID, "refund": refund,
			})
		},
	}
	if _, err := txn.Run(ctx, e.DB, op); err != nil {
		return domain.Ship{}, 0, err
	}
	sh, err := e.Repo.GetShip(ctx, shipID)
	return sh, refund, err
}

type convoyState struct {
	world  domain.GameWorld
	convoy domain.Convoy
	ships  []domain.Ship
}

func (e Engine) readShips(ctx context.Context, r repo.Repo, playerID string, ids []string) ([]domain.Ship, error) {
	ships := make([]domain.Ship, 0, len(ids))
	for _, id := range ids {
		sh, err := r.GetShip(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := auth.Require("ship", sh.ID, sh.PlayerID, playerID); err != nil {
			return nil, err
		}
		ships = append(ships, sh)
	}
	return ships, nil
}

func (e Engine) checkJoinable(ships []domain.Ship, systemID string) error {
	for _, sh := range ships {
		if sh.Status != domain.ShipDocked {
			return reject.Newf("ship %s must be docked", sh.Name)
		}
		if sh.SystemID != systemID {
			return reject.Newf("ship %s is at %s, not %s", sh.Name, sh.SystemID, systemID)
		}
		if sh.ConvoyID != "" {
			return reject.Newf("ship %s already sails with convoy %s", sh.Name, sh.ConvoyID)
		}
	}
	return nil
}

// CreateConvoy groups docked ships of one player at one system.
func (e Engine) CreateConvoy(ctx context.Context, playerID string, shipIDs []string) (domain.Convoy, error) {
	if len(shipIDs) == 0 {
		return domain.Convoy{}, reject.New("a convoy needs at least one ship")
	}
	seen := map[string]bool{}
	for _, id := range shipIDs {
		if seen[id] {
			return domain.Convoy{}, reject.Newf("ship %s listed twice", id)
		}
		seen[id] = true
	}
	if n := e.Config.Fleet.MaxConvoySize; n > 0 && len(shipIDs) > n {
		return domain.Convoy{}, reject.Newf("convoys hold at most %d ships", n)
	}
	c := domain.Convoy{ID: newID(), PlayerID: playerID, CreatedAt: e.stamp()}
	op := txn.Op[convoyState]{
		Read: func(ctx context.Context, r repo.Repo) (convoyState, error) {
			var s convoyState
			var err error
			if s.world, err = r.GetWorld(ctx); err != nil {
				return s, err
			}
			s.ships, err = e.readShips(ctx, r, playerID, shipIDs)
			return s, err
		},
		Validate: func(s convoyState) error {
			return e.checkJoinable(s.ships, s.ships[0].SystemID)
		},
		Write: func(ctx context.Context, r repo.Repo, s convoyState) error {
			if err := r.InsertConvoy(ctx, c); err != nil {
				return err
			}
			for _, sh := range s.ships {
				sh.ConvoyID = c.ID
				if err := r.UpdateShip(ctx, sh); err != nil {
					return err
				}
			}
			return e.journal().Append(ctx, r.DB, s.world.CurrentTick, journal.ConvoyChanged, "convoy", c.ID, playerID, journal.Payload{
				"action": "create", "ships": shipIDs,
			})
		},
	}
	if _, err := txn.Run(ctx, e.DB, op); err != nil {
		return domain.Convoy{}, err
	}
	return e.Repo.GetConvoy(ctx, c.ID)
}

// JoinConvoy adds a docked ship to a convoy waiting at the same system.
func (e Engine) JoinConvoy(ctx context.Context, playerID, convoyID, shipID string) (domain.Convoy, error) {
	op := txn.Op[convoyState]{
		Read: func(ctx context.Context, r repo.Repo) (convoyState, error) {
			var s convoyState
			var err error
			if s.world, err = r.GetWorld(ctx); err != nil {
				return s, err
			}
			if s.convoy, err = r.GetConvoy(ctx, convoyID); err != nil {
				return s, err
			}
			if err := auth.Require("convoy", convoyID, s.convoy.PlayerID, playerID); err != nil {
				return s, err
			}
			s.ships, err = e.readShips(ctx, r, playerID, append(slices.Clone(s.convoy.ShipIDs), shipID))
			return s, err
		},
		Validate: func(s convoyState) error {
			joining := s.ships[len(s.ships)-1]
			members := s.ships[:len(s.ships)-1]
			if n := e.Config.Fleet.MaxConvoySize; n > 0 && len(members) >= n {
				return reject.Newf("convoys hold at most %d ships", n)
			}
			if len(members) == 0 {
				return e.checkJoinable([]domain.Ship{joining}, joining.SystemID)
			}
			if f := (fleet{ships: members}); f.status() != domain.ShipDocked {
				return reject.New("convoy is in transit")
			}
			return e.checkJoinable([]domain.Ship{joining}, members[0].SystemID)
		},
		Same: func(a, b convoyState) bool { return slices.Equal(a.convoy.ShipIDs, b.convoy.ShipIDs) },
		Write: func(ctx context.Context, r repo.Repo, s convoyState) error {
			sh := s.ships[len(s.ships)-1]
			sh.ConvoyID = convoyID
			if err := r.UpdateShip(ctx, sh); err != nil {
				return err
			}
			return e.journal().Append(ctx, r.DB, s.world.CurrentTick, journal.ConvoyChanged, "convoy", convoyID, playerID, journal.Payload{
				"action": "join", "ship_id": shipID,
			})
		},
	}
	if _, err := txn.Run(ctx, e.DB, op); err != nil {
		return domain.Convoy{}, err
	}
	return e.Repo.GetConvoy(ctx, convoyID)
}

// LeaveConvoy detaches a docked ship. The last ship out disbands the convoy.
func (e Engine) LeaveConvoy(ctx context.Context, playerID, shipID string) (domain.Ship, error) {
	op := txn.Op[fleetState]{
		Read: e.readFleet(playerID, shipID, ""),
		Validate: func(s fleetState) error {
			sh := s.fleet.ships[0]
			if sh.ConvoyID == "" {
				return reject.Newf("ship %s is not in a convoy", sh.Name)
			}
			if sh.Status != domain.ShipDocked {
				return reject.New("ship must be docked to leave its convoy")
			}
			return nil
		},
		Write: func(ctx context.Context, r repo.Repo, s fleetState) error {
			sh := s.fleet.ships[0]
			convoyID := sh.ConvoyID
			sh.ConvoyID = ""
			if err := r.UpdateShip(ctx, sh); err != nil {
				return err
			}
			c, err := r.GetConvoy(ctx, convoyID)
			if err != nil {
				return err
			}
			action := "leave"
			if len(c.ShipIDs) == 0 {
				action = "disband"
				if err := r.DeleteConvoy(ctx, convoyID); err != nil {
					return err
				}
			}
			return e.journal().Append(ctx, r.DB, s.world.CurrentTick, journal.ConvoyChanged, "convoy", convoyID, playerID, journal.Payload{
				"action": action, "ship_id": sh.ID,
			})
		},
	}
	if _, err := txn.Run(ctx, e.DB, op); err != nil {
		return domain.Ship{}, err
	}
	return e.Repo.GetShip(ctx, shipID)
}
