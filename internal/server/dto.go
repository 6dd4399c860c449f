package server

import (
	"stardock/internal/domain"
	"stardock/internal/engine/trade"
)

// Request payloads

type RegisterRequest struct {
	Name string `json:"name" minLength:"1" maxLength:"32"`
}

type TokenRequest struct {
	Name string `json:"name"`
}

type TradeRequest struct {
	ShipID   string       `json:"ship_id,omitempty"`
	ConvoyID string       `json:"convoy_id,omitempty"`
	GoodID   string       `json:"good_id"`
	Action   trade.Action `json:"action" enum:"buy,sell"`
	Quantity int          `json:"quantity" minimum:"1"`
}

type NavigateRequest struct {
	Destination string `json:"destination"`
}

type InstallModuleRequest struct {
	ModuleID string `json:"module_id"`
}

type CreateConvoyRequest struct {
	ShipIDs []string `json:"ship_ids" minItems:"1"`
}

type JoinConvoyRequest struct {
	ShipID string `json:"ship_id"`
}

type MissionShipRequest struct {
	ShipID string `json:"ship_id,omitempty"`
}

// Responses

type RegisterResponse struct {
	Player domain.Player `json:"player"`
	Ship   domain.Ship   `json:"ship"`
	Token  string        `json:"token"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type SystemResponse struct {
	domain.System
	Government string              `json:"government,omitempty"`
	Danger     float64             `json:"danger"`
	Lanes      []domain.Connection `json:"lanes"`
}

type RemoveModuleResponse struct {
	Ship   domain.Ship `json:"ship"`
	Refund int         `json:"refund"`
}
