package journal

import (
	"context"
	"testing"
	"time"

	"stardock/internal/db"
	"stardock/internal/migrate"
)

func TestAppendListTail(t *testing.T) {
	ctx := context.Background()
	h, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()
	if err := migrate.Migrate(h); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	w := Writer{Dialect: h.Dialect, Now: func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }}

	if err := w.Append(ctx, h.DB, 0, WorldInit, "world", "w1", "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	for i := int64(1); i <= 3; i++ {
		if err := w.Append(ctx, h.DB, i, TickAdvanced, "world", "w1", SystemActor, Payload{"failures": 0}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Append(ctx, h.DB, 3, PlayerCreated, "player", "p1", "p1", Payload{"name": "ada"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	all, err := w.List(ctx, h.DB, Filter{})
	if err != nil || len(all) != 5 {
		t.Fatalf("list: %d, %v", len(all), err)
	}
	if all[0].ActorID != SystemActor || all[0].TS != "2026-01-01T00:00:00Z" || all[0].Payload != "{}" {
		t.Fatalf("first entry %+v", all[0])
	}

	ticks, _ := w.List(ctx, h.DB, Filter{Type: TickAdvanced, AfterID: all[1].ID})
	if len(ticks) != 2 || ticks[0].Tick != 2 {
		t.Fatalf("filtered %+v", ticks)
	}
	players, _ := w.List(ctx, h.DB, Filter{EntityKind: "player", EntityID: "p1"})
	if len(players) != 1 || players[0].Payload != `{"name":"ada"}` {
		t.Fatalf("players %+v", players)
	}
	limited, _ := w.List(ctx, h.DB, Filter{Limit: 2})
	if len(limited) != 2 {
		t.Fatalf("limit ignored: %d", len(limited))
	}

	tail, err := w.Tail(ctx, h.DB, 2)
	if err != nil || len(tail) != 2 {
		t.Fatalf("tail: %d, %v", len(tail), err)
	}
	if tail[0].Tick != 3 || tail[1].Type != PlayerCreated {
		t.Fatalf("tail must be oldest first: %+v", tail)
	}
}
