// Package trade validates market orders and computes their deltas.
package trade

import (
	"math"

	"stardock/internal/domain"
	"stardock/internal/engine/reject"
)

type Action string

const (
	Buy  Action = "buy"
	Sell Action = "sell"
)

// ErrNotDocked is returned by ValidateFleet for ships or convoys in transit.
var ErrNotDocked = reject.Error{Reason: "fleet must be docked to trade"}

// DemandImpact is the share of a traded quantity that moves station demand.
const DemandImpact = 0.1

// Params is a snapshot of everything one order depends on.
type Params struct {
	Action    Action
	Quantity  int
	UnitPrice int
	Credits   int
	CargoUsed int
	CargoMax  int
	Supply    int
	Held      int
}

// Delta is what the caller must apply when the order goes through.
type Delta struct {
	Credits int `json:"credits"`
	Cargo   int `json:"cargo"`
	Supply  int `json:"supply"`
	Demand  int `json:"demand"`
	Total   int `json:"total"`
}

func Validate(p Params) (Delta, error) {
	if p.Quantity <= 0 {
		return Delta{}, reject.New("quantity must be positive")
	}
	total := p.Quantity * p.UnitPrice
	demand := int(math.Round(float64(p.Quantity) * DemandImpact))
	switch p.Action {
	case Buy:
		if total > p.Credits {
			return Delta{}, reject.Newf("insufficient credits: need %d, have %d", total, p.Credits)
		}
		if p.CargoUsed+p.Quantity > p.CargoMax {
			return Delta{}, reject.Newf("insufficient cargo space: %d free", p.CargoMax-p.CargoUsed)
		}
		if p.Quantity > p.Supply {
			return Delta{}, reject.Newf("insufficient supply: %d available", p.Supply)
		}
		return Delta{Credits: -total, Cargo: p.Quantity, Supply: -p.Quantity, Demand: demand, Total: total}, nil
	case Sell:
		if p.Quantity > p.Held {
			return Delta{}, reject.Newf("insufficient cargo: holding %d", p.Held)
		}
		return Delta{Credits: total, Cargo: -p.Quantity, Supply: p.Quantity, Demand: -demand, Total: total}, nil
	default:
		return Delta{}, reject.Newf("unknown trade action %q", p.Action)
	}
}

// ValidateFleet rejects orders from fleets that are not docked before
// validating the order itself.
func ValidateFleet(status domain.ShipStatus, p Params) (Delta, error) {
	if status != domain.ShipDocked {
		return Delta{}, ErrNotDocked
	}
	return Validate(p)
}

// Member is one convoy ship's hold as seen by the convoy trade.
type Member struct {
	ShipID    string
	CargoUsed int
	CargoMax  int
	Held      int
}

type Allocation struct {
	ShipID   string `json:"ship_id"`
	Quantity int    `json:"quantity"`
}

// ConvoyParams folds every member's hold into one order snapshot.
func ConvoyParams(members []Member, action Action, quantity, unitPrice, credits, supply int) Params {
	p := Params{Action: action, Quantity: quantity, UnitPrice: unitPrice, Credits: credits, Supply: supply}
	for _, m := range members {
		p.CargoUsed += m.CargoUsed
		p.CargoMax += m.CargoMax
		p.Held += m.Held
	}
	return p
}

// DistributeBuy fills members in order, each taking as much as fits.
func DistributeBuy(members []Member, quantity int) ([]Allocation, error) {
	var out []Allocation
	left := quantity
	for _, m := range members {
		if left == 0 {
			break
		}
		free := m.CargoMax - m.CargoUsed
		if free <= 0 {
			continue
		}
		take := min(free, left)
		out = append(out, Allocation{ShipID: m.ShipID, Quantity: take})
		left -= take
	}
	if left > 0 {
		return nil, reject.Newf("convoy cannot hold %d more units", left)
	}
	return out, nil
}

// DrainSell empties members in order until the quantity is covered.
func DrainSell(members []Member, quantity int) ([]Allocation, error) {
	var out []Allocation
	left := quantity
	for _, m := range members {
		if left == 0 {
			break
		}
		if m.Held <= 0 {
			continue
		}
		take := min(m.Held, left)
		out = append(out, Allocation{ShipID: m.ShipID, Quantity: take})
		left -= take
	}
	if left > 0 {
		return nil, reject.Newf("convoy is short %d units", left)
	}
	return out, nil
}
