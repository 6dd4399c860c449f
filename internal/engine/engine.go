package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"stardock/internal/config"
	"stardock/internal/db"
	"stardock/internal/domain"
	"stardock/internal/engine/galaxy"
	"stardock/internal/engine/pricing"
	"stardock/internal/engine/reject"
	"stardock/internal/journal"
	"stardock/internal/repo"
	"stardock/internal/tick"
)

type Engine struct {
	DB      *db.Handle
	Repo    repo.Repo
	Journal journal.Writer
	Config  *config.Config
	Galaxy  *galaxy.Graph
	Log     *slog.Logger
	Now     func() time.Time
}

// New wires an engine over an open, migrated database.
func New(h *db.Handle, cfg *config.Config, logger *slog.Logger) Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := Engine{
		DB:      h,
		Repo:    repo.New(h),
		Journal: journal.Writer{Dialect: h.Dialect},
		Config:  cfg,
		Galaxy:  galaxy.New(cfg.Universe.Systems, cfg.Universe.Connections),
		Log:     logger,
		Now:     time.Now,
	}
	return e
}

// pipeline binds the fixed processor order to this engine value, so fields
// set after New (Now, Log) reach every processor.
func (e Engine) pipeline() *tick.Orchestrator {
	return tick.New(e.Log, e.processors()...)
}

// ProcessorNames lists the tick processors in run order.
func (e Engine) ProcessorNames() []string {
	return e.pipeline().Names()
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) journal() journal.Writer {
	return journal.Writer{Dialect: e.Journal.Dialect, Now: e.now}
}

func newID() string {
	return uuid.NewString()
}

// InitWorld creates the world row and seeds every station's market at its
// economy baseline.
func (e Engine) InitWorld(ctx context.Context, actorID string) (domain.GameWorld, error) {
	if e.Config == nil {
		return domain.GameWorld{}, errors.New("config not loaded")
	}
	if _, err := e.Repo.GetWorld(ctx); err == nil {
		return domain.GameWorld{}, errors.New("world already initialized")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.GameWorld{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.GameWorld{}, err
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)

	w := domain.GameWorld{
		ID:        e.Config.World.ID,
		TickRate:  e.Config.World.TickRate,
		Seed:      e.Config.World.Seed,
		UpdatedAt: e.stamp(),
	}
	if err := r.InsertWorld(ctx, w, e.Config); err != nil {
		return domain.GameWorld{}, fmt.Errorf("insert world: %w", err)
	}
	entries := 0
	for _, sys := range e.Config.Universe.Systems {
		econ := e.Config.EconomyFor(sys.EconomyType)
		for _, g := range e.Config.Goods {
			base := e.Config.Economy.Baseline(econ, g.ID)
			entry := domain.MarketEntry{
				SystemID: sys.ID,
				GoodID:   g.ID,
				Supply:   int(math.Round(base.Supply)),
				Demand:   int(math.Round(base.Demand)),
			}
			if err := r.InsertMarketEntry(ctx, entry); err != nil {
				return domain.GameWorld{}, fmt.Errorf("seed market %s/%s: %w", sys.ID, g.ID, err)
			}
			entries++
		}
	}
	if err := e.journal().Append(ctx, tx, 0, journal.WorldInit, "world", w.ID, actorID, journal.Payload{
		"systems": len(e.Config.Universe.Systems), "goods": len(e.Config.Goods), "market_entries": entries,
	}); err != nil {
		return domain.GameWorld{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.GameWorld{}, err
	}
	return w, nil
}

func (e Engine) World(ctx context.Context) (domain.GameWorld, error) {
	return e.Repo.GetWorld(ctx)
}

// CreatePlayer registers a player with the starting balance and one ship
// docked at the start system.
func (e Engine) CreatePlayer(ctx context.Context, name string) (domain.Player, domain.Ship, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Player{}, domain.Ship{}, reject.New("player name is required")
	}
	if _, err := e.Repo.GetPlayerByName(ctx, name); err == nil {
		return domain.Player{}, domain.Ship{}, reject.Newf("player name %q is taken", name)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Player{}, domain.Ship{}, err
	}
	start := e.Config.World.StartSystem
	if _, ok := e.Galaxy.System(start); !ok {
		return domain.Player{}, domain.Ship{}, fmt.Errorf("start system %q not in universe", start)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Player{}, domain.Ship{}, err
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)
	w, err := r.GetWorld(ctx)
	if err != nil {
		return domain.Player{}, domain.Ship{}, fmt.Errorf("load world: %w", err)
	}

	p := domain.Player{ID: newID(), Name: name, Credits: e.Config.World.StartingCredits, CreatedAt: e.stamp()}
	if err := r.InsertPlayer(ctx, p); err != nil {
		return domain.Player{}, domain.Ship{}, fmt.Errorf("insert player: %w", err)
	}
	f := e.Config.Fleet
	s := domain.Ship{
		ID:        newID(),
		PlayerID:  p.ID,
		Name:      name + "-1",
		SystemID:  start,
		Status:    domain.ShipDocked,
		CargoMax:  f.CargoMax,
		Hull:      f.HullMax,
		HullMax:   f.HullMax,
		Firepower: f.Firepower,
		Sensors:   f.Sensors,
	}
	if err := r.InsertShip(ctx, s); err != nil {
		return domain.Player{}, domain.Ship{}, fmt.Errorf("insert ship: %w", err)
	}
	if err := e.journal().Append(ctx, tx, w.CurrentTick, journal.PlayerCreated, "player", p.ID, p.ID, journal.Payload{
		"name": p.Name, "ship_id": s.ID, "system_id": start,
	}); err != nil {
		return domain.Player{}, domain.Ship{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Player{}, domain.Ship{}, err
	}
	return p, s, nil
}

func (e Engine) Player(ctx context.Context, id string) (domain.Player, error) {
	return e.Repo.GetPlayer(ctx, id)
}

// Quote is a market entry with its current unit price.
type Quote struct {
	domain.MarketEntry
	Name      string  `json:"name"`
	BasePrice float64 `json:"base_price"`
	Price     int     `json:"price"`
}

// Market prices every entry at the given system, or every station when
// systemID is empty.
func (e Engine) Market(ctx context.Context, systemID string) ([]Quote, error) {
	var ids []string
	if systemID != "" {
		if _, ok := e.Galaxy.System(systemID); !ok {
			return nil, repo.ErrNotFound
		}
		ids = append(ids, systemID)
	}
	entries, err := e.Repo.ListMarket(ctx, ids...)
	if err != nil {
		return nil, err
	}
	goods := e.Config.GoodsByID()
	out := make([]Quote, 0, len(entries))
	for _, en := range entries {
		g, ok := goods[en.GoodID]
		if !ok {
			continue
		}
		out = append(out, Quote{MarketEntry: en, Name: g.Name, BasePrice: g.BasePrice, Price: unitPrice(e.Config.Pricing, g, en)})
	}
	return out, nil
}

func unitPrice(c pricing.Curve, g domain.Good, en domain.MarketEntry) int {
	return pricing.UnitPrice(c.Quote(g, en))
}

func (e Engine) Events(ctx context.Context) ([]domain.EventInstance, error) {
	return e.Repo.ListEvents(ctx)
}

// Ships lists a player's fleet.
func (e Engine) Ships(ctx context.Context, playerID string) ([]domain.Ship, error) {
	ships, err := e.Repo.ListShips(ctx, repo.ShipFilter{PlayerID: playerID})
	if err != nil {
		return nil, err
	}
	for i := range ships {
		e.tagHazards(&ships[i])
	}
	return ships, nil
}

func (e Engine) Missions(ctx context.Context, f repo.MissionFilter) ([]domain.Mission, error) {
	return e.Repo.ListMissions(ctx, f)
}

// History returns journal rows in id order.
func (e Engine) History(ctx context.Context, f journal.Filter) ([]domain.JournalEntry, error) {
	return e.journal().List(ctx, e.DB, f)
}

// tagHazards fills each cargo stack's hazard class from the goods catalog.
func (e Engine) tagHazards(s *domain.Ship) {
	for i := range s.Cargo {
		if g, ok := e.Config.Good(s.Cargo[i].GoodID); ok {
			s.Cargo[i].Hazard = g.Hazard
		}
		if s.Cargo[i].Hazard == "" {
			s.Cargo[i].Hazard = domain.HazardNone
		}
	}
}
