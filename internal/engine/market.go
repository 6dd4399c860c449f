package engine

import (
	"context"
	"errors"
	"fmt"

	"stardock/internal/domain"
	"stardock/internal/engine/auth"
	"stardock/internal/engine/reject"
	"stardock/internal/engine/trade"
	"stardock/internal/journal"
	"stardock/internal/repo"
	"stardock/internal/txn"
)

// TradeOptions names either a ship or a convoy, never both.
type TradeOptions struct {
	PlayerID string
	ShipID   string
	ConvoyID string
	GoodID   string
	Action   trade.Action
	Quantity int
}

type TradeResult struct {
	Delta       trade.Delta        `json:"delta"`
	UnitPrice   int                `json:"unit_price"`
	SystemID    string             `json:"system_id"`
	Allocations []trade.Allocation `json:"allocations"`
	Credits     int                `json:"credits"`
}

type tradeState struct {
	world  domain.GameWorld
	player domain.Player
	fleet  fleet
	entry  domain.MarketEntry
	price  int
}

// fleet is a single ship or the ordered members of one convoy.
type fleet struct {
	convoyID string
	ships    []domain.Ship
}

// status is docked only when every member is docked at the same system.
func (f fleet) status() domain.ShipStatus {
	for _, s := range f.ships {
		if s.Status != domain.ShipDocked || s.SystemID != f.ships[0].SystemID {
			return domain.ShipInTransit
		}
	}
	return domain.ShipDocked
}

func (f fleet) systemID() string {
	if len(f.ships) == 0 {
		return ""
	}
	return f.ships[0].SystemID
}

func (f fleet) ids() []string {
	out := make([]string, len(f.ships))
	for i, s := range f.ships {
		out[i] = s.ID
	}
	return out
}

func (f fleet) members(goodID string) []trade.Member {
	out := make([]trade.Member, len(f.ships))
	for i, s := range f.ships {
		out[i] = trade.Member{ShipID: s.ID, CargoUsed: s.CargoUsed(), CargoMax: s.CargoMax, Held: s.Held(goodID)}
	}
	return out
}

func (f fleet) ship(id string) (domain.Ship, bool) {
	for _, s := range f.ships {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Ship{}, false
}

// loadFleet resolves the ship or convoy a player is acting with.
func loadFleet(ctx context.Context, r repo.Repo, playerID, shipID, convoyID string) (fleet, error) {
	switch {
	case shipID != "" && convoyID != "":
		return fleet{}, reject.New("name a ship or a convoy, not both")
	case convoyID != "":
		c, err := r.GetConvoy(ctx, convoyID)
		if err != nil {
			return fleet{}, err
		}
		if err := auth.Require("convoy", c.ID, c.PlayerID, playerID); err != nil {
			return fleet{}, err
		}
		ships, err := r.ListShips(ctx, repo.ShipFilter{ConvoyID: convoyID})
		if err != nil {
			return fleet{}, err
		}
		if len(ships) == 0 {
			return fleet{}, reject.Newf("convoy %s has no ships", convoyID)
		}
		return fleet{convoyID: convoyID, ships: ships}, nil
	case shipID != "":
		s, err := r.GetShip(ctx, shipID)
		if err != nil {
			return fleet{}, err
		}
		if err := auth.Require("ship", s.ID, s.PlayerID, playerID); err != nil {
			return fleet{}, err
		}
		return fleet{ships: []domain.Ship{s}}, nil
	default:
		return fleet{}, reject.New("a ship or convoy is required")
	}
}

func (o TradeOptions) plan(s tradeState) (trade.Delta, []trade.Allocation, error) {
	members := s.fleet.members(o.GoodID)
	p := trade.ConvoyParams(members, o.Action, o.Quantity, s.price, s.player.Credits, s.entry.Supply)
	delta, err := trade.ValidateFleet(s.fleet.status(), p)
	if err != nil {
		return trade.Delta{}, nil, err
	}
	var allocs []trade.Allocation
	if o.Action == trade.Buy {
		allocs, err = trade.DistributeBuy(members, o.Quantity)
	} else {
		allocs, err = trade.DrainSell(members, o.Quantity)
	}
	return delta, allocs, err
}

// Trade buys or sells one good at the fleet's current station. Price,
// credits, supply and hold are re-read inside the transaction; a change
// between the first read and the write reports txn.ErrConflict.
func (e Engine) Trade(ctx context.Context, opts TradeOptions) (TradeResult, error) {
	good, ok := e.Config.Good(opts.GoodID)
	if !ok {
		return TradeResult{}, reject.Newf("unknown good %q", opts.GoodID)
	}
	op := txn.Op[tradeState]{
		Read: func(ctx context.Context, r repo.Repo) (tradeState, error) {
			var s tradeState
			var err error
			if s.world, err = r.GetWorld(ctx); err != nil {
				return s, err
			}
			if s.fleet, err = loadFleet(ctx, r, opts.PlayerID, opts.ShipID, opts.ConvoyID); err != nil {
				return s, err
			}
			if s.player, err = r.GetPlayer(ctx, opts.PlayerID); err != nil {
				return s, err
			}
			s.entry, err = r.GetMarketEntry(ctx, s.fleet.systemID(), opts.GoodID)
			if errors.Is(err, repo.ErrNotFound) {
				return s, reject.Newf("%s is not traded at %s", opts.GoodID, s.fleet.systemID())
			}
			if err != nil {
				return s, err
			}
			s.price = unitPrice(e.Config.Pricing, good, s.entry)
			for i := range s.fleet.ships {
				e.tagHazards(&s.fleet.ships[i])
			}
			return s, nil
		},
		Validate: func(s tradeState) error {
			_, _, err := opts.plan(s)
			return err
		},
		Same: func(a, b tradeState) bool {
			return a.price == b.price && a.fleet.systemID() == b.fleet.systemID()
		},
		Write: func(ctx context.Context, r repo.Repo, s tradeState) error {
			delta, allocs, err := opts.plan(s)
			if err != nil {
				return err
			}
			s.player.Credits += delta.Credits
			if err := r.UpdateCredits(ctx, s.player); err != nil {
				return err
			}
			s.entry.Supply += delta.Supply
			s.entry.Demand += delta.Demand
			if err := r.UpdateMarketEntry(ctx, s.entry); err != nil {
				return err
			}
			sign := 1
			if opts.Action == trade.Sell {
				sign = -1
			}
			for _, a := range allocs {
				ship, _ := s.fleet.ship(a.ShipID)
				if err := r.SetCargo(ctx, ship.ID, opts.GoodID, ship.Held(opts.GoodID)+sign*a.Quantity); err != nil {
					return err
				}
				if err := r.UpdateShip(ctx, ship); err != nil {
					return err
				}
			}
			return e.journal().Append(ctx, r.DB, s.world.CurrentTick, journal.TradeExecuted, "player", s.player.ID, s.player.ID, journal.Payload{
				"action": opts.Action, "good_id": opts.GoodID, "quantity": opts.Quantity, "unit_price": s.price,
				"total": delta.Total, "system_id": s.fleet.systemID(), "ships": s.fleet.ids(),
			})
		},
	}
	s, err := txn.Run(ctx, e.DB, op)
	if err != nil {
		return TradeResult{}, err
	}
	delta, allocs, err := opts.plan(s)
	if err != nil {
		return TradeResult{}, fmt.Errorf("replan committed trade: %w", err)
	}
	return TradeResult{
		Delta:       delta,
		UnitPrice:   s.price,
		SystemID:    s.fleet.systemID(),
		Allocations: allocs,
		Credits:     s.player.Credits + delta.Credits,
	}, nil
}
