package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stardock/internal/config"
	"stardock/internal/db"
	"stardock/internal/domain"
	"stardock/internal/engine"
	"stardock/internal/engine/auth"
	"stardock/internal/journal"
	"stardock/internal/migrate"
	"stardock/internal/txn"
)

type testServer struct {
	URL       string
	Engine    engine.Engine
	Workspace string
	client    *http.Client
	close     func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, tweak func(*Config)) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	cfg.Events.SpawnChance = 0
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(conn, cfg, logger)
	if _, err := e.InitWorld(context.Background(), "tester"); err != nil {
		t.Fatalf("init world: %v", err)
	}
	scfg := Config{
		Engine:      e,
		BasePath:    "/v1",
		Auth:        AuthConfig{Tokens: auth.Tokens{Secret: "test-secret", TTL: time.Hour}, DevLogin: true, Logger: logger},
		ManualTicks: true,
	}
	if tweak != nil {
		tweak(&scfg)
	}
	handler, err := New(scfg)
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:       "http://" + ln.Addr().String(),
		Engine:    scfg.Engine,
		Workspace: workspace,
		client:    &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, token string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func register(t *testing.T, srv *testServer, name string) RegisterResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/players", map[string]any{"name": name}, "")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", res.StatusCode, string(data))
	}
	var out RegisterResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal register: %v", err)
	}
	return out
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var body struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal error: %v (%s)", err, string(data))
	}
	return body.Error.Code
}

func TestRegisterAndTrade(t *testing.T) {
	srv := newTestServer(t, nil)
	ada := register(t, srv, "ada")
	if ada.Token == "" || ada.Player.Credits != 1000 || ada.Ship.SystemID != "sol" {
		t.Fatalf("register response %+v", ada)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/systems/sol/market", nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("market status %d: %s", res.StatusCode, string(data))
	}
	var quotes []engine.Quote
	if err := json.Unmarshal(data, &quotes); err != nil {
		t.Fatalf("unmarshal quotes: %v", err)
	}
	price := 0
	for _, q := range quotes {
		if q.GoodID == "water" {
			price = q.Price
		}
	}
	if price == 0 {
		t.Fatalf("no water quote in %s", string(data))
	}

	order := map[string]any{"ship_id": ada.Ship.ID, "good_id": "water", "action": "buy", "quantity": 5}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/trades", order, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous trade status %d", res.StatusCode)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/trades", order, ada.Token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("trade status %d: %s", res.StatusCode, string(data))
	}
	var result engine.TradeResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal trade: %v", err)
	}
	if result.Credits != 1000-5*price || result.UnitPrice != price {
		t.Fatalf("trade result %+v, price %d", result, price)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me/ships", nil, ada.Token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ships status %d: %s", res.StatusCode, string(data))
	}
	var ships []domain.Ship
	if err := json.Unmarshal(data, &ships); err != nil {
		t.Fatalf("unmarshal ships: %v", err)
	}
	if len(ships) != 1 || ships[0].Held("water") != 5 {
		t.Fatalf("ships %+v", ships)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, nil)
	ada := register(t, srv, "ada")
	bob := register(t, srv, "bob")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		token  string
		status int
		code   string
	}{
		{"rule rejection", http.MethodPost, "/v1/trades", map[string]any{"ship_id": ada.Ship.ID, "good_id": "water", "action": "buy", "quantity": 51}, ada.Token, http.StatusUnprocessableEntity, "rejected"},
		{"foreign ship", http.MethodPost, "/v1/trades", map[string]any{"ship_id": ada.Ship.ID, "good_id": "water", "action": "buy", "quantity": 1}, bob.Token, http.StatusForbidden, "forbidden"},
		{"unknown system", http.MethodGet, "/v1/systems/nowhere/market", nil, "", http.StatusNotFound, "not_found"},
		{"unknown ship", http.MethodPost, "/v1/ships/ghost/repair", nil, ada.Token, http.StatusNotFound, "not_found"},
		{"bad token", http.MethodGet, "/v1/me", nil, "not-a-jwt", http.StatusUnauthorized, "invalid_credentials"},
		{"duplicate name", http.MethodPost, "/v1/players", map[string]any{"name": "ada"}, "", http.StatusUnprocessableEntity, "rejected"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res, data := doJSON(t, srv.Client(), c.method, srv.URL+c.path, c.body, c.token)
			if res.StatusCode != c.status {
				t.Fatalf("status %d, want %d: %s", res.StatusCode, c.status, string(data))
			}
			if got := errorCode(t, data); got != c.code {
				t.Fatalf("code %q, want %q", got, c.code)
			}
		})
	}
}

func TestMissionAcceptWithoutBody(t *testing.T) {
	srv := newTestServer(t, nil)
	ada := register(t, srv, "ada")
	if err := srv.Engine.Repo.InsertMission(context.Background(), domain.Mission{
		ID: "m-1", Kind: domain.MissionTrade, Type: domain.MissionImport, Status: domain.MissionAvailable,
		SystemID: "sol", DestinationID: "sol", GoodID: "food", Quantity: 5, Hops: 1, Reward: 120, DeadlineTick: 50,
	}); err != nil {
		t.Fatal(err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/missions?system_id=sol", nil, ada.Token)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"m-1"`) {
		t.Fatalf("board status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/missions/m-1/accept", nil, ada.Token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept status %d: %s", res.StatusCode, string(data))
	}
	var m domain.Mission
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m.Status != domain.MissionAccepted || m.PlayerID != ada.Player.ID {
		t.Fatalf("mission %+v", m)
	}
}

func TestManualTickAndJournal(t *testing.T) {
	srv := newTestServer(t, nil)
	ada := register(t, srv, "ada")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/world/tick", nil, ada.Token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("tick status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/journal?type="+journal.TickAdvanced, nil, ada.Token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("journal status %d: %s", res.StatusCode, string(data))
	}
	var entries []domain.JournalEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Tick != 1 {
		t.Fatalf("entries %+v", entries)
	}

	locked := newTestServer(t, func(c *Config) { c.ManualTicks = false })
	bob := register(t, locked, "bob")
	res, _ = doJSON(t, locked.Client(), http.MethodPost, locked.URL+"/v1/world/tick", nil, bob.Token)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("locked tick status %d", res.StatusCode)
	}
}

func TestConflictMapsTo409(t *testing.T) {
	for _, err := range []error{
		txn.ErrConflict,
		fmt.Errorf("accept mission: %w", fmt.Errorf("%w: mission m-1 changed", txn.ErrConflict)),
	} {
		se := handleError(err)
		ae, ok := se.(*apiError)
		if !ok || ae.GetStatus() != http.StatusConflict || ae.Body.Code != "conflict" {
			t.Fatalf("%v mapped to %#v", err, se)
		}
	}
}

func TestTickRacedByAnotherWriterReturnsConflict(t *testing.T) {
	var (
		armed atomic.Bool
		rival engine.Engine
	)
	srv := newTestServer(t, func(c *Config) {
		// once armed, the next stamp lets a second writer advance the clock first
		c.Engine.Now = func() time.Time {
			if armed.CompareAndSwap(true, false) {
				if _, err := rival.AdvanceTick(context.Background()); err != nil {
					t.Errorf("rival tick: %v", err)
				}
			}
			return time.Now()
		}
	})
	ada := register(t, srv, "ada")
	conn, err := db.Open(db.Config{Workspace: srv.Workspace})
	if err != nil {
		t.Fatalf("open rival db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	rival = engine.New(conn, srv.Engine.Config, slog.New(slog.NewTextHandler(io.Discard, nil)))
	armed.Store(true)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/world/tick", nil, ada.Token)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("raced tick status %d: %s", res.StatusCode, string(data))
	}
	if got := errorCode(t, data); got != "conflict" {
		t.Fatalf("code %q, want conflict", got)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/world/tick", nil, ada.Token)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("retried tick status %d: %s", res.StatusCode, string(data))
	}
	w, err := srv.Engine.World(context.Background())
	if err != nil || w.CurrentTick != 2 {
		t.Fatalf("world %+v, %v", w, err)
	}
}

func TestDevTokenLogin(t *testing.T) {
	srv := newTestServer(t, nil)
	ada := register(t, srv, "ada")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/token", map[string]any{"name": "ada"}, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("token status %d: %s", res.StatusCode, string(data))
	}
	var tok TokenResponse
	if err := json.Unmarshal(data, &tok); err != nil {
		t.Fatal(err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, tok.Token)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), ada.Player.ID) {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}

	closed := newTestServer(t, func(c *Config) { c.Auth.DevLogin = false })
	register(t, closed, "ada")
	res, _ = doJSON(t, closed.Client(), http.MethodPost, closed.URL+"/v1/auth/token", map[string]any{"name": "ada"}, "")
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("disabled dev login status %d", res.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.Rate = RateConfig{Rate: 0.01, Burst: 2} })
	var codes []int
	for i := 0; i < 3; i++ {
		res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, "")
		codes = append(codes, res.StatusCode)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("status codes %v", codes)
	}
}

func TestRateLimitersStayBounded(t *testing.T) {
	l, err := newLimiters(RateConfig{Rate: 0.01, Burst: 1, MaxCallers: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !l.get("ip:10.0.0.1").Allow() {
		t.Fatal("first call must pass")
	}
	if l.get("ip:10.0.0.1").Allow() {
		t.Fatal("spent bucket must be reused while tracked")
	}
	for i := 2; i <= 50; i++ {
		l.get(fmt.Sprintf("ip:10.0.0.%d", i))
	}
	if n := l.len(); n != 2 {
		t.Fatalf("tracked callers = %d, want 2", n)
	}
	// an evicted caller comes back with a fresh bucket
	if !l.get("ip:10.0.0.1").Allow() {
		t.Fatal("evicted caller should start over")
	}

	d, err := newLimiters(RateConfig{Rate: 1})
	if err != nil || d.cfg.MaxCallers != DefaultMaxCallers {
		t.Fatalf("default bound %+v, %v", d, err)
	}
}

func TestOpenAPIMarksPublicRoutes(t *testing.T) {
	srv := newTestServer(t, nil)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	var doc struct {
		Paths map[string]map[string]struct {
			Security []map[string][]string `json:"security"`
		} `json:"paths"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if sec := doc.Paths["/v1/players"]["post"].Security; len(sec) != 0 {
		t.Fatalf("register should be public, got %v", sec)
	}
	if sec := doc.Paths["/v1/trades"]["post"].Security; len(sec) != 1 {
		t.Fatalf("trades should require a bearer token, got %v", sec)
	}
}

func TestFeedStreamsJournal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var hub *Hub
	srv := newTestServer(t, func(c *Config) {
		hub = NewHub(c.Auth.Logger)
		c.Hub = hub
	})
	go hub.Run(ctx)
	go Relay(ctx, srv.Engine, hub, 10*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/feed", nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	defer conn.Close()

	got := make(chan FeedMessage, 1)
	go func() {
		for {
			var msg FeedMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == journal.PlayerCreated {
				got <- msg
				return
			}
		}
	}()

	// the relay only forwards entries written after it started, so keep
	// producing until one arrives
	deadline := time.After(5 * time.Second)
	for i := 0; ; i++ {
		register(t, srv, fmt.Sprintf("pilot%d", i))
		select {
		case msg := <-got:
			if msg.Payload.EntityKind != "player" {
				t.Fatalf("feed message %+v", msg)
			}
			return
		case <-deadline:
			t.Fatalf("no feed message")
		case <-time.After(100 * time.Millisecond):
		}
	}
}
