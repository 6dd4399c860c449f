package repo

import (
	"context"
	"database/sql"
	"strings"

	"stardock/internal/domain"
)

const marketCols = `system_id,good_id,supply,demand,version`

func scanMarket(rows *sql.Rows) ([]domain.MarketEntry, error) {
	defer rows.Close()
	var res []domain.MarketEntry
	for rows.Next() {
		var e domain.MarketEntry
		if err := rows.Scan(&e.SystemID, &e.GoodID, &e.Supply, &e.Demand, &e.Version); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) InsertMarketEntry(ctx context.Context, e domain.MarketEntry) error {
	_, err := r.exec(ctx, `INSERT INTO market_entries(`+marketCols+`) VALUES (?,?,?,?,0)`,
		e.SystemID, e.GoodID, e.Supply, e.Demand)
	return err
}

func (r Repo) GetMarketEntry(ctx context.Context, systemID, goodID string) (domain.MarketEntry, error) {
	var e domain.MarketEntry
	err := r.queryRow(ctx, `SELECT `+marketCols+` FROM market_entries WHERE system_id=? AND good_id=?`, systemID, goodID).
		Scan(&e.SystemID, &e.GoodID, &e.Supply, &e.Demand, &e.Version)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

// ListMarket returns entries for the given systems, or every entry when none
// are given.
func (r Repo) ListMarket(ctx context.Context, systemIDs ...string) ([]domain.MarketEntry, error) {
	query := `SELECT ` + marketCols + ` FROM market_entries`
	var args []any
	if len(systemIDs) > 0 {
		query += ` WHERE system_id IN (?` + strings.Repeat(",?", len(systemIDs)-1) + `)`
		for _, id := range systemIDs {
			args = append(args, id)
		}
	}
	rows, err := r.query(ctx, query+` ORDER BY system_id, good_id`, args...)
	if err != nil {
		return nil, err
	}
	return scanMarket(rows)
}

// UpdateMarketEntry writes counters if the row still carries e.Version.
func (r Repo) UpdateMarketEntry(ctx context.Context, e domain.MarketEntry) error {
	return guarded(r.exec(ctx, `UPDATE market_entries SET supply=?, demand=?, version=version+1 WHERE system_id=? AND good_id=? AND version=?`,
		max(0, e.Supply), max(0, e.Demand), e.SystemID, e.GoodID, e.Version))
}

func (r Repo) UpsertDanger(ctx context.Context, systemID string, level float64, tick int64) error {
	_, err := r.exec(ctx, `INSERT INTO system_danger(system_id,level,tick) VALUES (?,?,?)
ON CONFLICT(system_id) DO UPDATE SET level=excluded.level, tick=excluded.tick`, systemID, level, tick)
	return err
}

// DangerLevels maps system id to its last computed danger.
func (r Repo) DangerLevels(ctx context.Context) (map[string]float64, error) {
	rows, err := r.query(ctx, `SELECT system_id,level FROM system_danger`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]float64{}
	for rows.Next() {
		var id string
		var level float64
		if err := rows.Scan(&id, &level); err != nil {
			return nil, err
		}
		res[id] = level
	}
	return res, rows.Err()
}
