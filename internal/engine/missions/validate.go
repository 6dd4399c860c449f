package missions

import (
	"stardock/internal/domain"
	"stardock/internal/engine/reject"
	"stardock/internal/engine/rng"
)

// ValidateAccept checks, in order: the mission is unclaimed, the player has a
// ship docked at the posting system, and the player is under the active cap.
// It returns the first qualifying ship.
func ValidateAccept(m domain.Mission, playerID string, ships []domain.Ship, active, maxActive int) (domain.Ship, error) {
	if m.Status != domain.MissionAvailable || m.PlayerID != "" {
		return domain.Ship{}, reject.New("mission already claimed")
	}
	var docked *domain.Ship
	for i := range ships {
		s := ships[i]
		if s.PlayerID == playerID && s.Status == domain.ShipDocked && s.SystemID == m.SystemID {
			docked = &ships[i]
			break
		}
	}
	if docked == nil {
		return domain.Ship{}, reject.Newf("no ship docked at %s", m.SystemID)
	}
	if maxActive > 0 && active >= maxActive {
		return domain.Ship{}, reject.Newf("active mission limit reached (%d)", maxActive)
	}
	return *docked, nil
}

// ValidateDelivery checks, in order: ownership, location, cargo, deadline.
func ValidateDelivery(m domain.Mission, playerID string, ship domain.Ship, tick int64) error {
	if m.Kind != domain.MissionTrade || m.Status != domain.MissionAccepted || m.PlayerID != playerID || ship.PlayerID != playerID {
		return reject.New("mission is not held by this player")
	}
	if ship.Status != domain.ShipDocked || ship.SystemID != m.DestinationID {
		return reject.Newf("ship must be docked at %s", m.DestinationID)
	}
	if held := ship.Held(m.GoodID); held < m.Quantity {
		return reject.Newf("insufficient %s: need %d, holding %d", m.GoodID, m.Quantity, held)
	}
	if tick > m.DeadlineTick {
		return reject.New("mission deadline has passed")
	}
	return nil
}

// ValidateAbandon allows the holder to return an accepted or started
// mission to the board.
func ValidateAbandon(m domain.Mission, playerID string) error {
	if m.PlayerID != playerID {
		return reject.New("mission is not held by this player")
	}
	if m.Status != domain.MissionAccepted && m.Status != domain.MissionInProgress {
		return reject.Newf("cannot abandon a %s mission", m.Status)
	}
	return nil
}

// ValidateStart moves an accepted operational mission into progress with a
// ship docked at its target that meets every stat requirement.
func ValidateStart(m domain.Mission, playerID string, ship domain.Ship) error {
	if m.Kind != domain.MissionOperational {
		return reject.New("only operational missions are started")
	}
	if m.PlayerID != playerID || ship.PlayerID != playerID {
		return reject.New("mission is not held by this player")
	}
	if m.Status != domain.MissionAccepted {
		return reject.Newf("cannot start a %s mission", m.Status)
	}
	if ship.Status != domain.ShipDocked || ship.SystemID != m.SystemID {
		return reject.Newf("ship must be docked at %s", m.SystemID)
	}
	for stat, need := range m.StatRequirements {
		if have := ship.Stat(stat); have < need {
			return reject.Newf("ship %s %d below required %d", stat, have, need)
		}
	}
	return nil
}

// Due reports whether a timed operational mission has run its course.
// Bounties are never due; they resolve by battle.
func Due(m domain.Mission, tick int64) bool {
	return m.Status == domain.MissionInProgress && m.Type != domain.MissionBounty && tick-m.StartedTick >= m.DurationTicks
}

// Overdue reports whether an accepted or available mission has passed its deadline.
func Overdue(m domain.Mission, tick int64) bool {
	return (m.Status == domain.MissionAvailable || m.Status == domain.MissionAccepted) && tick > m.DeadlineTick
}

// Outcome of one bounty battle.
type Outcome struct {
	Won        bool `json:"won"`
	HullDamage int  `json:"hull_damage"`
}

// Fight resolves a bounty: the win chance is firepower / (firepower + enemy).
// A win costs up to half the enemy strength in hull, a loss the full strength.
func (b Battle) Fight(tier domain.EnemyTier, firepower int, src rng.Source) Outcome {
	enemy := b.Strength(tier)
	chance := 1.0
	if firepower+enemy > 0 {
		chance = float64(firepower) / float64(firepower+enemy)
	}
	if src.Float64() < chance {
		return Outcome{Won: true, HullDamage: int(rng.Between(src, 0, int64(enemy/2)))}
	}
	return Outcome{HullDamage: enemy}
}
