package stardocksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal stardock HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Player represents the API player model.
type Player struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Credits int    `json:"credits"`
}

type CargoStack struct {
	GoodID   string `json:"good_id"`
	Quantity int    `json:"quantity"`
	Hazard   string `json:"hazard,omitempty"`
}

// Ship represents the API ship model (partial).
type Ship struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	SystemID      string       `json:"system_id"`
	Status        string       `json:"status"`
	DestinationID string       `json:"destination_id,omitempty"`
	ArrivalTick   int64        `json:"arrival_tick,omitempty"`
	CargoMax      int          `json:"cargo_max"`
	Hull          int          `json:"hull"`
	HullMax       int          `json:"hull_max"`
	ConvoyID      string       `json:"convoy_id,omitempty"`
	Modules       []string     `json:"modules,omitempty"`
	Cargo         []CargoStack `json:"cargo,omitempty"`
}

// Quote is one good's live price at a station.
type Quote struct {
	SystemID string `json:"system_id"`
	GoodID   string `json:"good_id"`
	Name     string `json:"name"`
	Supply   int    `json:"supply"`
	Demand   int    `json:"demand"`
	Price    int    `json:"price"`
}

type Mission struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	SystemID      string `json:"system_id"`
	DestinationID string `json:"destination_id,omitempty"`
	GoodID        string `json:"good_id,omitempty"`
	Quantity      int    `json:"quantity,omitempty"`
	Reward        int    `json:"reward"`
	DeadlineTick  int64  `json:"deadline_tick"`
}

// Entry is one journal row.
type Entry struct {
	ID         int64  `json:"id"`
	Tick       int64  `json:"tick"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Payload    string `json:"payload_json"`
}

type Registration struct {
	Player Player `json:"player"`
	Ship   Ship   `json:"ship"`
	Token  string `json:"token"`
}

type TradeResult struct {
	UnitPrice int    `json:"unit_price"`
	SystemID  string `json:"system_id"`
	Credits   int    `json:"credits"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Register creates a player and stores the returned token on the client.
func (c *Client) Register(ctx context.Context, name string) (Registration, error) {
	var resp Registration
	err := c.do(ctx, http.MethodPost, "players", map[string]any{"name": name}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

func (c *Client) Me(ctx context.Context) (Player, error) {
	var resp Player
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (c *Client) Ships(ctx context.Context) ([]Ship, error) {
	var resp []Ship
	err := c.do(ctx, http.MethodGet, "me/ships", nil, &resp)
	return resp, err
}

func (c *Client) Market(ctx context.Context, systemID string) ([]Quote, error) {
	var resp []Quote
	err := c.do(ctx, http.MethodGet, "systems/"+url.PathEscape(systemID)+"/market", nil, &resp)
	return resp, err
}

// Trade buys or sells with one ship. Use TradeConvoy for a convoy.
func (c *Client) Trade(ctx context.Context, shipID, goodID, action string, quantity int) (TradeResult, error) {
	return c.trade(ctx, map[string]any{"ship_id": shipID, "good_id": goodID, "action": action, "quantity": quantity})
}

func (c *Client) TradeConvoy(ctx context.Context, convoyID, goodID, action string, quantity int) (TradeResult, error) {
	return c.trade(ctx, map[string]any{"convoy_id": convoyID, "good_id": goodID, "action": action, "quantity": quantity})
}

func (c *Client) trade(ctx context.Context, body map[string]any) (TradeResult, error) {
	var resp TradeResult
	err := c.do(ctx, http.MethodPost, "trades", body, &resp)
	return resp, err
}

func (c *Client) Navigate(ctx context.Context, shipID, destination string) ([]Ship, error) {
	var resp []Ship
	err := c.do(ctx, http.MethodPost, "ships/"+url.PathEscape(shipID)+"/navigate", map[string]any{"destination": destination}, &resp)
	return resp, err
}

// Missions lists the board at a system; an empty systemID lists every system.
func (c *Client) Missions(ctx context.Context, systemID string) ([]Mission, error) {
	q := url.Values{}
	if systemID != "" {
		q.Set("system_id", systemID)
	}
	var resp []Mission
	err := c.do(ctx, http.MethodGet, "missions?"+q.Encode(), nil, &resp)
	return resp, err
}

// MissionAction runs accept, start, deliver or abandon. shipID may be empty.
func (c *Client) MissionAction(ctx context.Context, missionID, action, shipID string) (Mission, error) {
	var body any
	if shipID != "" {
		body = map[string]any{"ship_id": shipID}
	}
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions/"+url.PathEscape(missionID)+"/"+action, body, &resp)
	return resp, err
}

// Journal returns entries after afterID, oldest first.
func (c *Client) Journal(ctx context.Context, afterID int64, limit int) ([]Entry, error) {
	q := url.Values{}
	q.Set("after_id", strconv.FormatInt(afterID, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp []Entry
	err := c.do(ctx, http.MethodGet, "journal?"+q.Encode(), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
