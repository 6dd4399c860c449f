package repo_test

import (
	"context"
	"errors"
	"testing"

	"stardock/internal/config"
	"stardock/internal/db"
	"stardock/internal/domain"
	"stardock/internal/migrate"
	"stardock/internal/repo"
)

func openRepo(t *testing.T) repo.Repo {
	t.Helper()
	h, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	if err := migrate.Migrate(h); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.New(h)
}

func TestWorldClockIsGuarded(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	if _, err := r.GetWorld(ctx); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found before init, got %v", err)
	}
	cfg := config.Default()
	w := domain.GameWorld{ID: "w1", TickRate: 1, Seed: 7, UpdatedAt: "2026-01-01T00:00:00Z"}
	if err := r.InsertWorld(ctx, w, cfg); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := r.AdvanceTick(ctx, "w1", 0, 1, w.UpdatedAt); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := r.AdvanceTick(ctx, "w1", 0, 1, w.UpdatedAt); !errors.Is(err, repo.ErrStale) {
		t.Fatalf("second advance from 0 must be stale, got %v", err)
	}
	got, err := r.GetWorld(ctx)
	if err != nil || got.CurrentTick != 1 {
		t.Fatalf("world %+v, %v", got, err)
	}
	stored, err := r.GetWorldConfig(ctx)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if len(stored.Goods) != len(cfg.Goods) || stored.World.StartingCredits != cfg.World.StartingCredits {
		t.Fatalf("stored config differs")
	}
}

func TestVersionGuards(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	if err := r.InsertPlayer(ctx, domain.Player{ID: "p1", Name: "ada", Credits: 100, CreatedAt: "2026-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("insert player: %v", err)
	}
	p, err := r.GetPlayerByName(ctx, "ada")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	p.Credits = 50
	if err := r.UpdateCredits(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := r.UpdateCredits(ctx, p); !errors.Is(err, repo.ErrStale) {
		t.Fatalf("reused version must be stale, got %v", err)
	}
	// a touch collides with any write made since the read
	if err := r.TouchPlayer(ctx, p); !errors.Is(err, repo.ErrStale) {
		t.Fatalf("touch with old version must be stale, got %v", err)
	}
	p, _ = r.GetPlayer(ctx, "p1")
	if err := r.TouchPlayer(ctx, p); err != nil {
		t.Fatalf("touch: %v", err)
	}
	if got, _ := r.GetPlayer(ctx, "p1"); got.Version != p.Version+1 || got.Credits != 50 {
		t.Fatalf("touch must only bump version: %+v", got)
	}

	if err := r.InsertMarketEntry(ctx, domain.MarketEntry{SystemID: "sol", GoodID: "ore", Supply: 10, Demand: 5}); err != nil {
		t.Fatalf("insert market: %v", err)
	}
	e, err := r.GetMarketEntry(ctx, "sol", "ore")
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	e.Supply = -3
	if err := r.UpdateMarketEntry(ctx, e); err != nil {
		t.Fatalf("update market: %v", err)
	}
	e, _ = r.GetMarketEntry(ctx, "sol", "ore")
	if e.Supply != 0 || e.Version != 1 {
		t.Fatalf("counters must clamp at zero and bump version: %+v", e)
	}
	if _, err := r.GetMarketEntry(ctx, "sol", "gold"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDangerUpsert(t *testing.T) {
	ctx := context.Background()
	r := openRepo(t)
	if err := r.UpsertDanger(ctx, "sol", 0.2, 1); err != nil {
		t.Fatal(err)
	}
	if err := r.UpsertDanger(ctx, "sol", 0.5, 2); err != nil {
		t.Fatal(err)
	}
	levels, err := r.DangerLevels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(levels) != 1 || levels["sol"] != 0.5 {
		t.Fatalf("levels = %v", levels)
	}
}
