package trade

import (
	"errors"
	"reflect"
	"testing"

	"stardock/internal/domain"
	"stardock/internal/engine/reject"
)

func TestValidateBuy(t *testing.T) {
	d, err := Validate(Params{Action: Buy, Quantity: 5, UnitPrice: 100, Credits: 1000, CargoUsed: 10, CargoMax: 50, Supply: 20})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	want := Delta{Credits: -500, Cargo: 5, Supply: -5, Demand: 1, Total: 500}
	if d != want {
		t.Fatalf("got %+v want %+v", d, want)
	}
}

func TestValidateSell(t *testing.T) {
	d, err := Validate(Params{Action: Sell, Quantity: 5, UnitPrice: 100, Held: 10})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	want := Delta{Credits: 500, Cargo: -5, Supply: 5, Demand: -1, Total: 500}
	if d != want {
		t.Fatalf("got %+v want %+v", d, want)
	}
}

func TestValidateRejections(t *testing.T) {
	base := Params{Action: Buy, Quantity: 5, UnitPrice: 100, Credits: 1000, CargoUsed: 10, CargoMax: 50, Supply: 20, Held: 10}
	cases := []struct {
		name string
		mut  func(*Params)
	}{
		{"zero quantity", func(p *Params) { p.Quantity = 0 }},
		{"negative quantity", func(p *Params) { p.Quantity = -3 }},
		{"zero sell", func(p *Params) { p.Action = Sell; p.Quantity = 0 }},
		{"credits", func(p *Params) { p.Credits = 499 }},
		{"cargo", func(p *Params) { p.CargoUsed = 46 }},
		{"supply", func(p *Params) { p.Supply = 4 }},
		{"held", func(p *Params) { p.Action = Sell; p.Held = 4 }},
		{"action", func(p *Params) { p.Action = "steal" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			tc.mut(&p)
			if _, err := Validate(p); !reject.Is(err) {
				t.Fatalf("expected rejection, got %v", err)
			}
		})
	}
}

func TestValidateFleetRequiresDocked(t *testing.T) {
	p := Params{Action: Sell, Quantity: 1, UnitPrice: 10, Held: 1}
	if _, err := ValidateFleet(domain.ShipInTransit, p); !errors.Is(err, ErrNotDocked) {
		t.Fatalf("expected ErrNotDocked, got %v", err)
	}
	if _, err := ValidateFleet(domain.ShipDocked, p); err != nil {
		t.Fatalf("docked sell: %v", err)
	}
	p.Quantity = 0
	if _, err := ValidateFleet(domain.ShipDocked, p); err == nil || errors.Is(err, ErrNotDocked) {
		t.Fatalf("expected a plain validation error, got %v", err)
	}
}

func TestConvoyDistribution(t *testing.T) {
	members := []Member{
		{ShipID: "a", CargoUsed: 8, CargoMax: 10, Held: 3},
		{ShipID: "b", CargoUsed: 10, CargoMax: 10, Held: 0},
		{ShipID: "c", CargoUsed: 0, CargoMax: 20, Held: 7},
	}
	p := ConvoyParams(members, Buy, 15, 10, 1000, 100)
	if p.CargoUsed != 18 || p.CargoMax != 40 || p.Held != 10 {
		t.Fatalf("unexpected aggregate %+v", p)
	}
	if _, err := Validate(p); err != nil {
		t.Fatalf("aggregate buy: %v", err)
	}

	alloc, err := DistributeBuy(members, 15)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if want := []Allocation{{"a", 2}, {"c", 13}}; !reflect.DeepEqual(alloc, want) {
		t.Fatalf("got %+v want %+v", alloc, want)
	}
	if _, err := DistributeBuy(members, 23); !reject.Is(err) {
		t.Fatalf("expected overflow rejection, got %v", err)
	}

	alloc, err = DrainSell(members, 5)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if want := []Allocation{{"a", 3}, {"c", 2}}; !reflect.DeepEqual(alloc, want) {
		t.Fatalf("got %+v want %+v", alloc, want)
	}
	if _, err := DrainSell(members, 11); !reject.Is(err) {
		t.Fatalf("expected shortage rejection, got %v", err)
	}
}
