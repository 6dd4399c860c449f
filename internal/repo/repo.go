package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"stardock/internal/config"
	"stardock/internal/db"
	"stardock/internal/domain"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repo runs every query against DB, which is either the pool or one
// transaction. Queries are written with ? placeholders.
type Repo struct {
	DB      DBTX
	Dialect db.Dialect
}

var (
	ErrNotFound = errors.New("not found")
	// ErrStale means a version-guarded write matched no row.
	ErrStale = errors.New("stale write")
)

func New(h *db.Handle) Repo {
	return Repo{DB: h.DB, Dialect: h.Dialect}
}

// WithTx returns a Repo bound to tx.
func (r Repo) WithTx(tx *sql.Tx) Repo {
	return Repo{DB: tx, Dialect: r.Dialect}
}

func (r Repo) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.DB.ExecContext(ctx, r.Dialect.Rebind(query), args...)
}

func (r Repo) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.DB.QueryContext(ctx, r.Dialect.Rebind(query), args...)
}

func (r Repo) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.DB.QueryRowContext(ctx, r.Dialect.Rebind(query), args...)
}

// guarded turns a zero-row write into ErrStale.
func guarded(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStale
	}
	return nil
}

func (r Repo) InsertWorld(ctx context.Context, w domain.GameWorld, cfg *config.Config) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, `INSERT INTO game_world(id,current_tick,tick_rate,seed,config_json,updated_at) VALUES (?,?,?,?,?,?)`,
		w.ID, w.CurrentTick, w.TickRate, w.Seed, string(payload), w.UpdatedAt)
	return err
}

// GetWorld returns the single world row.
func (r Repo) GetWorld(ctx context.Context) (domain.GameWorld, error) {
	var w domain.GameWorld
	err := r.queryRow(ctx, `SELECT id,current_tick,tick_rate,seed,updated_at FROM game_world LIMIT 1`).
		Scan(&w.ID, &w.CurrentTick, &w.TickRate, &w.Seed, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	return w, err
}

// GetWorldConfig returns the catalog the world was created with.
func (r Repo) GetWorldConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.queryRow(ctx, `SELECT config_json FROM game_world LIMIT 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, fmt.Errorf("decode world config: %w", err)
	}
	return &cfg, cfg.Validate()
}

// AdvanceTick moves the clock from one tick to the next. It fails with
// ErrStale when another writer advanced first.
func (r Repo) AdvanceTick(ctx context.Context, worldID string, from, to int64, updatedAt string) error {
	return guarded(r.exec(ctx, `UPDATE game_world SET current_tick=?, updated_at=? WHERE id=? AND current_tick=?`,
		to, updatedAt, worldID, from))
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
