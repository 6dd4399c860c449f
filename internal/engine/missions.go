package engine

import (
	"context"
	"errors"

	"stardock/internal/domain"
	"stardock/internal/engine/missions"
	"stardock/internal/engine/reject"
	"stardock/internal/journal"
	"stardock/internal/repo"
	"stardock/internal/txn"
)

type missionState struct {
	world   domain.GameWorld
	mission domain.Mission
	ships   []domain.Ship
	active  int
	player  domain.Player
}

func sameMission(a, b missionState) bool {
	return a.mission.Version == b.mission.Version
}

func readMission(ctx context.Context, r repo.Repo, id string) (missionState, error) {
	var s missionState
	var err error
	if s.world, err = r.GetWorld(ctx); err != nil {
		return s, err
	}
	s.mission, err = r.GetMission(ctx, id)
	return s, err
}

// AcceptMission claims an available mission for the player's ship docked at
// the posting system.
func (e Engine) AcceptMission(ctx context.Context, playerID, missionID string) (domain.Mission, error) {
	var ship domain.Ship
	op := txn.Op[missionState]{
		Read: func(ctx context.Context, r repo.Repo) (missionState, error) {
			s, err := readMission(ctx, r, missionID)
			if err != nil {
				return s, err
			}
			if s.player, err = r.GetPlayer(ctx, playerID); err != nil {
				return s, err
			}
			if s.ships, err = r.ListShips(ctx, repo.ShipFilter{PlayerID: playerID}); err != nil {
				return s, err
			}
			s.active, err = r.CountActiveMissions(ctx, playerID)
			return s, err
		},
		Validate: func(s missionState) error {
			var err error
			ship, err = missions.ValidateAccept(s.mission, playerID, s.ships, s.active, e.Config.Missions.MaxActivePerPlayer)
			return err
		},
		Same: sameMission,
		Write: func(ctx context.Context, r repo.Repo, s missionState) error {
			m := s.mission
			m.Status = domain.MissionAccepted
			m.PlayerID = playerID
			m.ShipID = ship.ID
			m.AcceptedTick = s.world.CurrentTick
			if err := r.UpdateMission(ctx, m); err != nil {
				return err
			}
			// the cap and the docked ship were checked against these rows
			if err := r.TouchPlayer(ctx, s.player); err != nil {
				return err
			}
			if err := r.UpdateShip(ctx, ship); err != nil {
				return err
			}
			return e.journal().Append(ctx, r.DB, s.world.CurrentTick, journal.MissionAccepted, "mission", m.ID, playerID, journal.Payload{
				"ship_id": ship.ID, "type": m.Type,
			})
		},
	}
	if _, err := txn.Run(ctx, e.DB, op); err != nil {
		return domain.Mission{}, err
	}
	return e.Repo.GetMission(ctx, missionID)
}

// StartMission puts an accepted operational mission in progress with a ship
// that meets its stat requirements.
func (e Engine) StartMission(ctx context.Context, playerID, missionID, shipID string) (domain.Mission, error) {
	op := txn.Op[missionState]{
		Read: func(ctx context.Context, r repo.Repo) (missionState, error) {
			s, err := readMission(ctx, r, missionID)
			if err != nil {
				return s, err
			}
			if shipID == "" {
				shipID = s.mission.ShipID
			}
			f, err := loadFleet(ctx, r, playerID, shipID, "")
			s.ships = f.ships
			return s, err
		},
		Validate: func(s missionState) error {
			return missions.ValidateStart(s.mission, playerID, s.ships[0])
		},
		Same: sameMission,
		Write: func(ctx context.Context, r repo.Repo, s missionState) error {
			m := s.mission
			m.Status = domain.MissionInProgress
			m.ShipID = s.ships[0].ID
			m.StartedTick = s.world.CurrentTick
			if err := r.UpdateMission(ctx, m); err != nil {
				return err
			}
			if err := r.UpdateShip(ctx, s.ships[0]); err != nil {
				return err
			}
			return e.journal().Append(ctx, r.DB, s.world.CurrentTick, journal.MissionStarted, "mission", m.ID, playerID, journal.Payload{
				"ship_id": m.ShipID, "type": m.Type, "duration_ticks": m.DurationTicks,
			})
		},
	}
	if _, err := txn.Run(ctx, e.DB, op); err != nil {
		return domain.Mission{}, err
	}
	return e.Repo.GetMission(ctx, missionID)
}

// DeliverMission hands a trade mission's cargo to the destination station and
// pays the reward.
func (e Engine) DeliverMission(ctx context.Context, playerID, missionID, shipID string) (domain.Mission, error) {
	op := txn.Op[missionState]{
		Read: func(ctx context.Context, r repo.Repo) (missionState, error) {
			s, err := readMission(ctx, r, missionID)
			if err != nil {
				return s, err
			}
			if shipID == "" {
				shipID = s.mission.ShipID
			}
			if shipID == "" {
				return s, reject.New("mission is not held by this player")
			}
			f, err := loadFleet(ctx, r, playerID, shipID, "")
			if err != nil {
				return s, err
			}
			s.ships = f.ships
			s.player, err = r.GetPlayer(ctx, playerID)
			return s, err
		},
		Validate: func(s missionState) error {
			return missions.ValidateDelivery(s.mission, playerID, s.ships[0], s.world.CurrentTick)
		},
		Same: sameMission,
		Write: func(ctx context.Context, r repo.Repo, s missionState) error {
			m := s.mission
			sh := s.ships[0]
			if err := r.SetCargo(ctx, sh.ID, m.GoodID, sh.Held(m.GoodID)-m.Quantity); err != nil {
				return err
			}
			if err := r.UpdateShip(ctx, sh); err != nil {
				return err
			}
			s.player.Credits += m.Reward
			if err := r.UpdateCredits(ctx, s.player); err != nil {
				return err
			}
			entry, err := r.GetMarketEntry(ctx, m.DestinationID, m.GoodID)
			switch {
			case err == nil:
				entry.Supply += m.Quantity
				if err := r.UpdateMarketEntry(ctx, entry); err != nil {
					return err
				}
			case !errors.Is(err, repo.ErrNotFound):
				return err
			}
			m.Status = domain.MissionCompleted
			m.ShipID = sh.ID
			if err := r.UpdateMission(ctx, m); err != nil {
				return err
			}
			return e.journal().Append(ctx, r.DB, s.world.CurrentTick, journal.MissionCompleted, "mission", m.ID, playerID, journal.Payload{
				"ship_id": sh.ID, "good_id": m.GoodID, "quantity": m.Quantity, "reward": m.Reward,
			})
		},
	}
	if _, err := txn.Run(ctx, e.DB, op); err != nil {
		return domain.Mission{}, err
	}
	return e.Repo.GetMission(ctx, missionID)
}

// AbandonMission returns a held mission to the board.
func (e Engine) AbandonMission(ctx context.Context, playerID, missionID string) (domain.Mission, error) {
	op := txn.Op[missionState]{
		Read: func(ctx context.Context, r repo.Repo) (missionState, error) {
			return readMission(ctx, r, missionID)
		},
		Validate: func(s missionState) error {
			return missions.ValidateAbandon(s.mission, playerID)
		},
		Same: sameMission,
		Write: func(ctx context.Context, r repo.Repo, s missionState) error {
			m := s.mission
			prior := m.Status
			m.Status = domain.MissionAvailable
			m.PlayerID = ""
			m.ShipID = ""
			m.AcceptedTick = 0
			m.StartedTick = 0
			if err := r.UpdateMission(ctx, m); err != nil {
				return err
			}
			return e.journal().Append(ctx, r.DB, s.world.CurrentTick, journal.MissionAbandoned, "mission", m.ID, playerID, journal.Payload{
				"from_status": prior,
			})
		},
	}
	if _, err := txn.Run(ctx, e.DB, op); err != nil {
		return domain.Mission{}, err
	}
	return e.Repo.GetMission(ctx, missionID)
}
