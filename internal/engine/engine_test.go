package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"stardock/internal/config"
	"stardock/internal/db"
	"stardock/internal/domain"
	"stardock/internal/engine"
	"stardock/internal/engine/auth"
	"stardock/internal/engine/reject"
	"stardock/internal/engine/trade"
	"stardock/internal/journal"
	"stardock/internal/migrate"
	"stardock/internal/repo"
	"stardock/internal/txn"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Dir    string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	// keep ticks quiet unless a test opts in
	cfg.Events.SpawnChance = 0
	eng := engine.New(conn, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitWorld(ctx, "tester"); err != nil {
		t.Fatalf("init world: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Dir: dir}
}

// rival opens a second engine on the same database file, as another
// process or server replica would.
func (env testEnv) rival(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: env.Dir})
	if err != nil {
		t.Fatalf("open rival db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return engine.New(conn, env.Engine.Config, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (env testEnv) player(t *testing.T, name string) (domain.Player, domain.Ship) {
	t.Helper()
	p, s, err := env.Engine.CreatePlayer(env.Ctx, name)
	if err != nil {
		t.Fatalf("create player: %v", err)
	}
	return p, s
}

func (env testEnv) quote(t *testing.T, systemID, goodID string) engine.Quote {
	t.Helper()
	quotes, err := env.Engine.Market(env.Ctx, systemID)
	if err != nil {
		t.Fatal(err)
	}
	for _, q := range quotes {
		if q.GoodID == goodID {
			return q
		}
	}
	t.Fatalf("no quote for %s at %s", goodID, systemID)
	return engine.Quote{}
}

func (env testEnv) setCredits(t *testing.T, playerID string, credits int) {
	t.Helper()
	p, err := env.Engine.Repo.GetPlayer(env.Ctx, playerID)
	if err != nil {
		t.Fatal(err)
	}
	p.Credits = credits
	if err := env.Engine.Repo.UpdateCredits(env.Ctx, p); err != nil {
		t.Fatal(err)
	}
}

func (env testEnv) ship(t *testing.T, id string) domain.Ship {
	t.Helper()
	s, err := env.Engine.Repo.GetShip(env.Ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func (env testEnv) credits(t *testing.T, playerID string) int {
	t.Helper()
	p, err := env.Engine.Player(env.Ctx, playerID)
	if err != nil {
		t.Fatal(err)
	}
	return p.Credits
}

func TestInitWorldSeedsMarkets(t *testing.T) {
	env := newTestEnv(t)
	quotes, err := env.Engine.Market(env.Ctx, "sol")
	if err != nil {
		t.Fatal(err)
	}
	if len(quotes) != len(env.Engine.Config.Goods) {
		t.Fatalf("expected one entry per good, got %d", len(quotes))
	}
	// sol is industrial: produces machinery, consumes ore
	if q := env.quote(t, "sol", "machinery"); q.Supply != 150 || q.Demand != 50 {
		t.Fatalf("machinery = %+v", q.MarketEntry)
	}
	if q := env.quote(t, "sol", "ore"); q.Supply != 50 || q.Demand != 150 {
		t.Fatalf("ore = %+v", q.MarketEntry)
	}
	if _, err := env.Engine.InitWorld(env.Ctx, "tester"); err == nil {
		t.Fatalf("expected second init to fail")
	}
	if _, err := env.Engine.Market(env.Ctx, "nowhere"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown system: %v", err)
	}
}

func TestCreatePlayer(t *testing.T) {
	env := newTestEnv(t)
	p, s := env.player(t, "ada")
	if p.Credits != 1000 || s.SystemID != "sol" || s.Status != domain.ShipDocked || s.CargoMax != 50 {
		t.Fatalf("player %+v ship %+v", p, s)
	}
	if _, _, err := env.Engine.CreatePlayer(env.Ctx, "ada"); !reject.Is(err) {
		t.Fatalf("duplicate name: %v", err)
	}
	if _, _, err := env.Engine.CreatePlayer(env.Ctx, "  "); !reject.Is(err) {
		t.Fatalf("blank name: %v", err)
	}
}

func TestTradeBuyThenSell(t *testing.T) {
	env := newTestEnv(t)
	p, s := env.player(t, "ada")
	before := env.quote(t, "sol", "food")

	res, err := env.Engine.Trade(env.Ctx, engine.TradeOptions{PlayerID: p.ID, ShipID: s.ID, GoodID: "food", Action: trade.Buy, Quantity: 10})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.UnitPrice != before.Price || res.Delta.Total != 10*before.Price {
		t.Fatalf("result %+v, quote %d", res, before.Price)
	}
	if got := env.credits(t, p.ID); got != 1000-10*before.Price || res.Credits != got {
		t.Fatalf("credits = %d, result says %d", got, res.Credits)
	}
	after := env.quote(t, "sol", "food")
	if after.Supply != before.Supply-10 || after.Demand != before.Demand+1 {
		t.Fatalf("market %+v -> %+v", before.MarketEntry, after.MarketEntry)
	}
	if held := env.ship(t, s.ID).Held("food"); held != 10 {
		t.Fatalf("held = %d", held)
	}

	if _, err := env.Engine.Trade(env.Ctx, engine.TradeOptions{PlayerID: p.ID, ShipID: s.ID, GoodID: "food", Action: trade.Sell, Quantity: 11}); !reject.Is(err) {
		t.Fatalf("oversell: %v", err)
	}
	if _, err := env.Engine.Trade(env.Ctx, engine.TradeOptions{PlayerID: p.ID, ShipID: s.ID, GoodID: "food", Action: trade.Sell, Quantity: 4}); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if held := env.ship(t, s.ID).Held("food"); held != 6 {
		t.Fatalf("held after sell = %d", held)
	}
	entries, err := env.Engine.History(env.Ctx, journal.Filter{Type: journal.TradeExecuted})
	if err != nil || len(entries) != 2 {
		t.Fatalf("journal: %d entries, %v", len(entries), err)
	}
}

func TestTradeRejections(t *testing.T) {
	env := newTestEnv(t)
	p, s := env.player(t, "ada")
	other, _ := env.player(t, "bob")

	cases := []engine.TradeOptions{
		{PlayerID: p.ID, ShipID: s.ID, GoodID: "water", Action: trade.Buy, Quantity: 0},
		{PlayerID: p.ID, ShipID: s.ID, GoodID: "water", Action: trade.Buy, Quantity: 51},
		{PlayerID: p.ID, ShipID: s.ID, GoodID: "unobtainium", Action: trade.Buy, Quantity: 1},
		{PlayerID: p.ID, GoodID: "water", Action: trade.Buy, Quantity: 1},
	}
	for _, c := range cases {
		if _, err := env.Engine.Trade(env.Ctx, c); !reject.Is(err) {
			t.Fatalf("%+v: expected rejection, got %v", c, err)
		}
	}

	_, err := env.Engine.Trade(env.Ctx, engine.TradeOptions{PlayerID: other.ID, ShipID: s.ID, GoodID: "water", Action: trade.Buy, Quantity: 1})
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("foreign ship: %v", err)
	}
}

func TestNavigateArriveAndPayDuty(t *testing.T) {
	env := newTestEnv(t)
	p, s := env.player(t, "ada")
	if _, err := env.Engine.Trade(env.Ctx, engine.TradeOptions{PlayerID: p.ID, ShipID: s.ID, GoodID: "electronics", Action: trade.Buy, Quantity: 5}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := env.Engine.Navigate(env.Ctx, engine.NavigateOptions{PlayerID: p.ID, ShipID: s.ID, Destination: "deneb"}); !reject.Is(err) {
		t.Fatalf("no lane: %v", err)
	}
	ships, err := env.Engine.Navigate(env.Ctx, engine.NavigateOptions{PlayerID: p.ID, ShipID: s.ID, Destination: "vega"})
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if ships[0].Status != domain.ShipInTransit || ships[0].ArrivalTick != 2 {
		t.Fatalf("ship %+v", ships[0])
	}
	_, err = env.Engine.Trade(env.Ctx, engine.TradeOptions{PlayerID: p.ID, ShipID: s.ID, GoodID: "food", Action: trade.Buy, Quantity: 1})
	if !errors.Is(err, trade.ErrNotDocked) {
		t.Fatalf("trade in transit: %v", err)
	}

	if _, err := env.Engine.AdvanceTick(env.Ctx); err != nil {
		t.Fatal(err)
	}
	if env.ship(t, s.ID).Status != domain.ShipInTransit {
		t.Fatalf("arrived early")
	}
	if _, err := env.Engine.AdvanceTick(env.Ctx); err != nil {
		t.Fatal(err)
	}
	got := env.ship(t, s.ID)
	if got.Status != domain.ShipDocked || got.SystemID != "vega" || got.DestinationID != "" {
		t.Fatalf("after arrival %+v", got)
	}
	// the federation taxes electronics at 5%: ceil(5 × 0.05) = 1 unit
	if held := got.Held("electronics"); held != 4 {
		t.Fatalf("electronics after duty = %d", held)
	}
	duty, err := env.Engine.History(env.Ctx, journal.Filter{Type: journal.DutyCollected})
	if err != nil || len(duty) != 1 {
		t.Fatalf("duty journal: %d, %v", len(duty), err)
	}
}

func TestModulesInstallAndRemove(t *testing.T) {
	env := newTestEnv(t)
	p, s := env.player(t, "ada")
	sh, err := env.Engine.InstallModule(env.Ctx, p.ID, s.ID, "cargo_pod")
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if sh.CargoMax != 70 || len(sh.Modules) != 1 || env.credits(t, p.ID) != 600 {
		t.Fatalf("after install %+v credits %d", sh, env.credits(t, p.ID))
	}
	if _, err := env.Engine.InstallModule(env.Ctx, p.ID, s.ID, "cargo_pod"); !reject.Is(err) {
		t.Fatalf("duplicate install: %v", err)
	}
	if _, err := env.Engine.InstallModule(env.Ctx, p.ID, s.ID, "laser_battery"); !reject.Is(err) {
		t.Fatalf("unaffordable install: %v", err)
	}
	sh, refund, err := env.Engine.RemoveModule(env.Ctx, p.ID, s.ID, "cargo_pod")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if refund != 200 || sh.CargoMax != 50 || len(sh.Modules) != 0 || env.credits(t, p.ID) != 800 {
		t.Fatalf("after remove %+v refund %d credits %d", sh, refund, env.credits(t, p.ID))
	}
}

func TestRepairChargesPerPoint(t *testing.T) {
	env := newTestEnv(t)
	p, s := env.player(t, "ada")
	if _, err := env.Engine.Repair(env.Ctx, p.ID, s.ID); !reject.Is(err) {
		t.Fatalf("full hull: %v", err)
	}
	damaged := env.ship(t, s.ID)
	damaged.Hull = 80
	if err := env.Engine.Repo.UpdateShip(env.Ctx, damaged); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.Repair(env.Ctx, p.ID, s.ID)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if res.Points != 20 || res.Cost != 100 || res.Ship.Hull != 100 || env.credits(t, p.ID) != 900 {
		t.Fatalf("repair %+v credits %d", res, env.credits(t, p.ID))
	}
}

func TestConvoyTradeFillsMembersInOrder(t *testing.T) {
	env := newTestEnv(t)
	p, first := env.player(t, "ada")
	second := first
	second.ID = "ship-2"
	second.Name = "ada-2"
	if err := env.Engine.Repo.InsertShip(env.Ctx, second); err != nil {
		t.Fatal(err)
	}
	env.setCredits(t, p.ID, 10000)

	c, err := env.Engine.CreateConvoy(env.Ctx, p.ID, []string{first.ID, second.ID})
	if err != nil {
		t.Fatalf("create convoy: %v", err)
	}
	if len(c.ShipIDs) != 2 || c.ShipIDs[0] != first.ID {
		t.Fatalf("convoy %+v", c)
	}
	if _, err := env.Engine.Trade(env.Ctx, engine.TradeOptions{PlayerID: p.ID, ShipID: first.ID, ConvoyID: c.ID, GoodID: "machinery", Action: trade.Buy, Quantity: 1}); !reject.Is(err) {
		t.Fatalf("ship and convoy together: %v", err)
	}

	res, err := env.Engine.Trade(env.Ctx, engine.TradeOptions{PlayerID: p.ID, ConvoyID: c.ID, GoodID: "machinery", Action: trade.Buy, Quantity: 70})
	if err != nil {
		t.Fatalf("convoy buy: %v", err)
	}
	if len(res.Allocations) != 2 || res.Allocations[0].Quantity != 50 || res.Allocations[1].Quantity != 20 {
		t.Fatalf("allocations %+v", res.Allocations)
	}
	if _, err := env.Engine.Trade(env.Ctx, engine.TradeOptions{PlayerID: p.ID, ConvoyID: c.ID, GoodID: "machinery", Action: trade.Sell, Quantity: 60}); err != nil {
		t.Fatalf("convoy sell: %v", err)
	}
	if a, b := env.ship(t, first.ID).Held("machinery"), env.ship(t, second.ID).Held("machinery"); a != 0 || b != 10 {
		t.Fatalf("holds after sell: %d, %d", a, b)
	}

	if _, err := env.Engine.Navigate(env.Ctx, engine.NavigateOptions{PlayerID: p.ID, ShipID: first.ID, Destination: "vega"}); !reject.Is(err) {
		t.Fatalf("solo departure from convoy: %v", err)
	}
	if _, err := env.Engine.LeaveConvoy(env.Ctx, p.ID, first.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := env.Engine.LeaveConvoy(env.Ctx, p.ID, second.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, err := env.Engine.Repo.GetConvoy(env.Ctx, c.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("empty convoy should disband: %v", err)
	}
}

func insertMission(t *testing.T, env testEnv, m domain.Mission) domain.Mission {
	t.Helper()
	if m.Status == "" {
		m.Status = domain.MissionAvailable
	}
	if m.DeadlineTick == 0 {
		m.DeadlineTick = 100
	}
	if err := env.Engine.Repo.InsertMission(env.Ctx, m); err != nil {
		t.Fatalf("insert mission: %v", err)
	}
	return m
}

func TestTradeMissionAcceptDeliver(t *testing.T) {
	env := newTestEnv(t)
	p, s := env.player(t, "ada")
	other, _ := env.player(t, "bob")
	m := insertMission(t, env, domain.Mission{
		ID: "m-1", Kind: domain.MissionTrade, Type: domain.MissionImport, SystemID: "sol", DestinationID: "sol",
		GoodID: "water", Quantity: 5, Hops: 1, Reward: 250,
	})

	accepted, err := env.Engine.AcceptMission(env.Ctx, p.ID, m.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != domain.MissionAccepted || accepted.ShipID != s.ID {
		t.Fatalf("accepted %+v", accepted)
	}
	if _, err := env.Engine.AcceptMission(env.Ctx, other.ID, m.ID); !reject.Is(err) {
		t.Fatalf("claimed mission: %v", err)
	}
	if _, err := env.Engine.DeliverMission(env.Ctx, p.ID, m.ID, ""); !reject.Is(err) {
		t.Fatalf("deliver without cargo: %v", err)
	}

	if _, err := env.Engine.Trade(env.Ctx, engine.TradeOptions{PlayerID: p.ID, ShipID: s.ID, GoodID: "water", Action: trade.Buy, Quantity: 5}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	creditsBefore := env.credits(t, p.ID)
	supplyBefore := env.quote(t, "sol", "water").Supply
	done, err := env.Engine.DeliverMission(env.Ctx, p.ID, m.ID, "")
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if done.Status != domain.MissionCompleted {
		t.Fatalf("status %s", done.Status)
	}
	if got := env.credits(t, p.ID); got != creditsBefore+250 {
		t.Fatalf("credits %d, want %d", got, creditsBefore+250)
	}
	if held := env.ship(t, s.ID).Held("water"); held != 0 {
		t.Fatalf("cargo left: %d", held)
	}
	if got := env.quote(t, "sol", "water").Supply; got != supplyBefore+5 {
		t.Fatalf("station supply %d", got)
	}
}

func TestAcceptCapAndAbandon(t *testing.T) {
	env := newTestEnv(t)
	p, _ := env.player(t, "ada")
	for i, id := range []string{"a", "b", "c", "d"} {
		insertMission(t, env, domain.Mission{
			ID: id, Kind: domain.MissionTrade, Type: domain.MissionImport, SystemID: "sol", DestinationID: "sol",
			GoodID: "food", Quantity: 5 + i, Hops: 1, Reward: 100,
		})
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := env.Engine.AcceptMission(env.Ctx, p.ID, id); err != nil {
			t.Fatalf("accept %s: %v", id, err)
		}
	}
	if _, err := env.Engine.AcceptMission(env.Ctx, p.ID, "d"); !reject.Is(err) {
		t.Fatalf("cap: %v", err)
	}
	m, err := env.Engine.AbandonMission(env.Ctx, p.ID, "a")
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if m.Status != domain.MissionAvailable || m.PlayerID != "" || m.ShipID != "" {
		t.Fatalf("abandoned %+v", m)
	}
	if _, err := env.Engine.AcceptMission(env.Ctx, p.ID, "d"); err != nil {
		t.Fatalf("accept after abandon: %v", err)
	}
}

func TestPatrolCompletesAfterDuration(t *testing.T) {
	env := newTestEnv(t)
	p, s := env.player(t, "ada")
	insertMission(t, env, domain.Mission{
		ID: "patrol", Kind: domain.MissionOperational, Type: domain.MissionPatrol, SystemID: "sol", DestinationID: "sol",
		Reward: 400, DurationTicks: 2, StatRequirements: map[string]int{domain.StatFirepower: 10},
	})
	insertMission(t, env, domain.Mission{
		ID: "bounty", Kind: domain.MissionOperational, Type: domain.MissionBounty, SystemID: "sol", DestinationID: "sol",
		Reward: 600, EnemyTier: domain.EnemyWeak, StatRequirements: map[string]int{domain.StatFirepower: 15},
	})

	if _, err := env.Engine.StartMission(env.Ctx, p.ID, "patrol", s.ID); !reject.Is(err) {
		t.Fatalf("start before accept: %v", err)
	}
	if _, err := env.Engine.AcceptMission(env.Ctx, p.ID, "patrol"); err != nil {
		t.Fatal(err)
	}
	m, err := env.Engine.StartMission(env.Ctx, p.ID, "patrol", "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if m.Status != domain.MissionInProgress || m.StartedTick != 0 {
		t.Fatalf("started %+v", m)
	}
	if _, err := env.Engine.AcceptMission(env.Ctx, p.ID, "bounty"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.StartMission(env.Ctx, p.ID, "bounty", s.ID); !reject.Is(err) {
		t.Fatalf("firepower below requirement: %v", err)
	}

	if _, err := env.Engine.AdvanceTick(env.Ctx); err != nil {
		t.Fatal(err)
	}
	if m, _ := env.Engine.Repo.GetMission(env.Ctx, "patrol"); m.Status != domain.MissionInProgress {
		t.Fatalf("completed early: %s", m.Status)
	}
	report, err := env.Engine.AdvanceTick(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	ops := report.Results[engine.ProcOperations].(engine.OperationsResult)
	if len(ops.Completed) != 1 || ops.Completed[0] != "patrol" {
		t.Fatalf("operations %+v", ops)
	}
	if got := env.credits(t, p.ID); got != 1400 {
		t.Fatalf("credits %d", got)
	}
}

func TestAdvanceTickRunsEveryProcessor(t *testing.T) {
	env := newTestEnv(t)
	report, err := env.Engine.AdvanceTick(env.Ctx)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if report.Tick != 1 || len(report.Failures) != 0 {
		t.Fatalf("report %+v", report)
	}
	for _, name := range env.Engine.ProcessorNames() {
		if _, ok := report.Results[name]; !ok {
			t.Fatalf("processor %s produced no result", name)
		}
	}
	w, err := env.Engine.World(env.Ctx)
	if err != nil || w.CurrentTick != 1 {
		t.Fatalf("world %+v, %v", w, err)
	}
	reports, err := env.Engine.AdvanceTicks(env.Ctx, 3)
	if err != nil || len(reports) != 3 || reports[2].Tick != 4 {
		t.Fatalf("advance ticks: %d, %v", len(reports), err)
	}
}

func TestEventPhaseShockAndDanger(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.Repo.InsertEvent(env.Ctx, domain.EventInstance{
		ID: "raid", Type: "pirate_raid", SystemID: "sol", RegionID: "core",
		Phase: "sightings", PhaseStartTick: 0, PhaseDuration: 1, StartTick: 0, Severity: 1,
	}); err != nil {
		t.Fatal(err)
	}
	report, err := env.Engine.AdvanceTick(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	events := report.Results[engine.ProcEvents].(engine.EventsResult)
	if len(events.Advanced) != 1 || events.Advanced[0] != "raid" {
		t.Fatalf("events %+v", events)
	}
	raid, err := env.Engine.Repo.GetEvent(env.Ctx, "raid")
	if err != nil || raid.Phase != "raiding" || raid.PhaseStartTick != 1 {
		t.Fatalf("raid %+v, %v", raid, err)
	}
	// fuel supply 50 is shocked by -25, then reverts one step toward
	// 50 × 0.6 = 30: 25 + round(0.5) = 26
	if q := env.quote(t, "sol", "fuel"); q.Supply != 26 {
		t.Fatalf("fuel supply %d", q.Supply)
	}
	levels := report.Results[engine.ProcDanger].(engine.DangerResult)
	if levels["sol"] != 0.35 || levels["tortuga"] != 0 {
		t.Fatalf("danger %+v", levels)
	}
	stored, err := env.Engine.Repo.DangerLevels(env.Ctx)
	if err != nil || stored["sol"] != 0.35 {
		t.Fatalf("stored danger %+v, %v", stored, err)
	}
}

func TestEventExpiryCascadesToMissions(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.Repo.InsertEvent(env.Ctx, domain.EventInstance{
		ID: "unrest", Type: "unrest", SystemID: "vega", RegionID: "core",
		Phase: "protests", PhaseStartTick: 0, PhaseDuration: 1, StartTick: 0, Severity: 0.5,
	}); err != nil {
		t.Fatal(err)
	}
	insertMission(t, env, domain.Mission{
		ID: "relief", Kind: domain.MissionTrade, Type: domain.MissionEvent, SystemID: "vega", DestinationID: "vega",
		GoodID: "food", Quantity: 10, Hops: 1, Reward: 300, EventID: "unrest",
	})
	report, err := env.Engine.AdvanceTick(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	events := report.Results[engine.ProcEvents].(engine.EventsResult)
	if len(events.Expired) != 1 {
		t.Fatalf("events %+v", events)
	}
	if _, err := env.Engine.Repo.GetEvent(env.Ctx, "unrest"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("event still stored: %v", err)
	}
	m, err := env.Engine.Repo.GetMission(env.Ctx, "relief")
	if err != nil || m.Status != domain.MissionExpired {
		t.Fatalf("linked mission %+v, %v", m, err)
	}
}

func TestOverdueMissionsExpire(t *testing.T) {
	env := newTestEnv(t)
	insertMission(t, env, domain.Mission{
		ID: "late", Kind: domain.MissionTrade, Type: domain.MissionImport, SystemID: "sol", DestinationID: "sol",
		GoodID: "food", Quantity: 5, Hops: 1, Reward: 100, DeadlineTick: 1,
	})
	if _, err := env.Engine.AdvanceTicks(env.Ctx, 2); err != nil {
		t.Fatal(err)
	}
	m, err := env.Engine.Repo.GetMission(env.Ctx, "late")
	if err != nil || m.Status != domain.MissionExpired {
		t.Fatalf("mission %+v, %v", m, err)
	}
}

func TestAdvanceTickRacedByAnotherWriterConflicts(t *testing.T) {
	env := newTestEnv(t)
	rival := env.rival(t)
	fixed := env.Engine.Now
	var rivalErr error
	raced := false
	// the stamp is taken after the world was read and the tx opened, so the
	// rival's tick lands between the read and the guarded write
	env.Engine.Now = func() time.Time {
		if !raced {
			raced = true
			_, rivalErr = rival.AdvanceTick(env.Ctx)
		}
		return fixed()
	}
	_, err := env.Engine.AdvanceTick(env.Ctx)
	if rivalErr != nil {
		t.Fatalf("rival tick: %v", rivalErr)
	}
	if !errors.Is(err, txn.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if reject.Is(err) {
		t.Fatalf("a conflict must not read as a rejection: %v", err)
	}
	w, err := env.Engine.World(env.Ctx)
	if err != nil || w.CurrentTick != 1 {
		t.Fatalf("world must hold exactly the rival's tick: %+v, %v", w, err)
	}
	ticks, _ := env.Engine.History(env.Ctx, journal.Filter{Type: journal.TickAdvanced})
	if len(ticks) != 1 {
		t.Fatalf("tick journal entries = %d", len(ticks))
	}
	if _, err := env.Engine.AdvanceTick(env.Ctx); err != nil {
		t.Fatalf("retry after conflict: %v", err)
	}
}

func TestAcceptAndStartGuardTheRowsTheyChecked(t *testing.T) {
	env := newTestEnv(t)
	p, s := env.player(t, "ada")
	insertMission(t, env, domain.Mission{
		ID: "patrol", Kind: domain.MissionOperational, Type: domain.MissionPatrol, SystemID: "sol", DestinationID: "sol",
		Reward: 400, DurationTicks: 2, StatRequirements: map[string]int{domain.StatFirepower: 10},
	})
	player := func() domain.Player {
		got, err := env.Engine.Repo.GetPlayer(env.Ctx, p.ID)
		if err != nil {
			t.Fatal(err)
		}
		return got
	}
	p0, s0 := player(), env.ship(t, s.ID)

	if _, err := env.Engine.AcceptMission(env.Ctx, p.ID, "patrol"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	p1, s1 := player(), env.ship(t, s.ID)
	if p1.Version != p0.Version+1 || p1.Credits != p0.Credits {
		t.Fatalf("accept must bump the player version only: %+v -> %+v", p0, p1)
	}
	if s1.Version != s0.Version+1 || s1.SystemID != s0.SystemID || s1.Status != s0.Status {
		t.Fatalf("accept must bump the ship version only: %+v -> %+v", s0, s1)
	}

	if _, err := env.Engine.StartMission(env.Ctx, p.ID, "patrol", s.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s2 := env.ship(t, s.ID); s2.Version != s1.Version+1 {
		t.Fatalf("start must bump the ship version: %d -> %d", s1.Version, s2.Version)
	}
}

func TestTickJournalUsesEngineClock(t *testing.T) {
	env := newTestEnv(t)
	p, s := env.player(t, "ada")
	if _, err := env.Engine.Navigate(env.Ctx, engine.NavigateOptions{PlayerID: p.ID, ShipID: s.ID, Destination: "vega"}); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if _, err := env.Engine.AdvanceTicks(env.Ctx, 2); err != nil {
		t.Fatal(err)
	}
	arrivals, _ := env.Engine.History(env.Ctx, journal.Filter{Type: journal.ShipArrived})
	if len(arrivals) != 1 {
		t.Fatalf("arrivals = %d", len(arrivals))
	}
	all, err := env.Engine.History(env.Ctx, journal.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range all {
		if entry.TS != "2024-01-01T00:00:00Z" {
			t.Fatalf("%s written at %s, not the engine clock", entry.Type, entry.TS)
		}
	}
}
