package repo

import (
	"context"
	"database/sql"
	"strings"

	"stardock/internal/domain"
)

func (r Repo) InsertPlayer(ctx context.Context, p domain.Player) error {
	_, err := r.exec(ctx, `INSERT INTO players(id,name,credits,version,created_at) VALUES (?,?,?,0,?)`,
		p.ID, p.Name, p.Credits, p.CreatedAt)
	return err
}

func (r Repo) GetPlayer(ctx context.Context, id string) (domain.Player, error) {
	return r.getPlayer(ctx, `id=?`, id)
}

func (r Repo) GetPlayerByName(ctx context.Context, name string) (domain.Player, error) {
	return r.getPlayer(ctx, `name=?`, name)
}

func (r Repo) getPlayer(ctx context.Context, where string, arg string) (domain.Player, error) {
	var p domain.Player
	err := r.queryRow(ctx, `SELECT id,name,credits,version,created_at FROM players WHERE `+where, arg).
		Scan(&p.ID, &p.Name, &p.Credits, &p.Version, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListPlayers(ctx context.Context) ([]domain.Player, error) {
	rows, err := r.query(ctx, `SELECT id,name,credits,version,created_at FROM players ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Player
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.ID, &p.Name, &p.Credits, &p.Version, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdateCredits writes the balance if the player still carries p.Version.
func (r Repo) UpdateCredits(ctx context.Context, p domain.Player) error {
	return guarded(r.exec(ctx, `UPDATE players SET credits=?, version=version+1 WHERE id=? AND version=?`,
		p.Credits, p.ID, p.Version))
}

// TouchPlayer bumps the player's version without changing it. Writes that
// depend on player-wide counts use it to collide with each other.
func (r Repo) TouchPlayer(ctx context.Context, p domain.Player) error {
	return guarded(r.exec(ctx, `UPDATE players SET version=version+1 WHERE id=? AND version=?`, p.ID, p.Version))
}

const shipCols = `id,player_id,name,system_id,status,COALESCE(destination_id,''),COALESCE(arrival_tick,0),cargo_max,hull,hull_max,firepower,sensors,COALESCE(convoy_id,''),version`

func scanShip(s interface{ Scan(...any) error }) (domain.Ship, error) {
	var sh domain.Ship
	err := s.Scan(&sh.ID, &sh.PlayerID, &sh.Name, &sh.SystemID, &sh.Status, &sh.DestinationID, &sh.ArrivalTick,
		&sh.CargoMax, &sh.Hull, &sh.HullMax, &sh.Firepower, &sh.Sensors, &sh.ConvoyID, &sh.Version)
	return sh, err
}

func (r Repo) InsertShip(ctx context.Context, s domain.Ship) error {
	_, err := r.exec(ctx, `INSERT INTO ships(id,player_id,name,system_id,status,destination_id,arrival_tick,cargo_max,hull,hull_max,firepower,sensors,convoy_id,version) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,0)`,
		s.ID, s.PlayerID, s.Name, s.SystemID, s.Status, nullable(s.DestinationID), nullableInt(s.ArrivalTick),
		s.CargoMax, s.Hull, s.HullMax, s.Firepower, s.Sensors, nullable(s.ConvoyID))
	return err
}

// GetShip loads a ship with its hold and modules.
func (r Repo) GetShip(ctx context.Context, id string) (domain.Ship, error) {
	s, err := scanShip(r.queryRow(ctx, `SELECT `+shipCols+` FROM ships WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	ships := []domain.Ship{s}
	if err := r.loadHolds(ctx, ships); err != nil {
		return s, err
	}
	return ships[0], nil
}

// ShipFilter narrows ListShips. Zero values match everything.
type ShipFilter struct {
	PlayerID  string
	ConvoyID  string
	Status    domain.ShipStatus
	ArrivedBy int64
}

func (r Repo) ListShips(ctx context.Context, f ShipFilter) ([]domain.Ship, error) {
	var clauses []string
	var args []any
	if f.PlayerID != "" {
		clauses = append(clauses, "player_id=?")
		args = append(args, f.PlayerID)
	}
	if f.ConvoyID != "" {
		clauses = append(clauses, "convoy_id=?")
		args = append(args, f.ConvoyID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.ArrivedBy > 0 {
		clauses = append(clauses, "arrival_tick<=?")
		args = append(args, f.ArrivedBy)
	}
	query := `SELECT ` + shipCols + ` FROM ships`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	rows, err := r.query(ctx, query+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, err
	}
	var ships []domain.Ship
	for rows.Next() {
		s, err := scanShip(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		ships = append(ships, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	return ships, r.loadHolds(ctx, ships)
}

func (r Repo) loadHolds(ctx context.Context, ships []domain.Ship) error {
	for i := range ships {
		cargo, err := r.query(ctx, `SELECT good_id,quantity FROM ship_cargo WHERE ship_id=? ORDER BY good_id`, ships[i].ID)
		if err != nil {
			return err
		}
		for cargo.Next() {
			var c domain.CargoStack
			if err := cargo.Scan(&c.GoodID, &c.Quantity); err != nil {
				cargo.Close()
				return err
			}
			ships[i].Cargo = append(ships[i].Cargo, c)
		}
		cargo.Close()
		mods, err := r.query(ctx, `SELECT module_id FROM ship_modules WHERE ship_id=? ORDER BY module_id`, ships[i].ID)
		if err != nil {
			return err
		}
		for mods.Next() {
			var m string
			if err := mods.Scan(&m); err != nil {
				mods.Close()
				return err
			}
			ships[i].Modules = append(ships[i].Modules, m)
		}
		mods.Close()
	}
	return nil
}

// UpdateShip writes every scalar column if the ship still carries s.Version.
func (r Repo) UpdateShip(ctx context.Context, s domain.Ship) error {
	return guarded(r.exec(ctx, `UPDATE ships SET name=?, system_id=?, status=?, destination_id=?, arrival_tick=?, cargo_max=?, hull=?, hull_max=?, firepower=?, sensors=?, convoy_id=?, version=version+1 WHERE id=? AND version=?`,
		s.Name, s.SystemID, s.Status, nullable(s.DestinationID), nullableInt(s.ArrivalTick), s.CargoMax, s.Hull, s.HullMax,
		s.Firepower, s.Sensors, nullable(s.ConvoyID), s.ID, s.Version))
}

// SetCargo stores the quantity of one good in a ship's hold; zero removes it.
func (r Repo) SetCargo(ctx context.Context, shipID, goodID string, qty int) error {
	if qty <= 0 {
		_, err := r.exec(ctx, `DELETE FROM ship_cargo WHERE ship_id=? AND good_id=?`, shipID, goodID)
		return err
	}
	_, err := r.exec(ctx, `INSERT INTO ship_cargo(ship_id,good_id,quantity) VALUES (?,?,?)
ON CONFLICT(ship_id,good_id) DO UPDATE SET quantity=excluded.quantity`, shipID, goodID, qty)
	return err
}

func (r Repo) AddModule(ctx context.Context, shipID, moduleID string) error {
	_, err := r.exec(ctx, `INSERT INTO ship_modules(ship_id,module_id) VALUES (?,?)`, shipID, moduleID)
	return err
}

func (r Repo) RemoveModule(ctx context.Context, shipID, moduleID string) error {
	res, err := r.exec(ctx, `DELETE FROM ship_modules WHERE ship_id=? AND module_id=?`, shipID, moduleID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertConvoy(ctx context.Context, c domain.Convoy) error {
	_, err := r.exec(ctx, `INSERT INTO convoys(id,player_id,created_at) VALUES (?,?,?)`, c.ID, c.PlayerID, c.CreatedAt)
	return err
}

// GetConvoy loads a convoy and its member ids in name order.
func (r Repo) GetConvoy(ctx context.Context, id string) (domain.Convoy, error) {
	var c domain.Convoy
	err := r.queryRow(ctx, `SELECT id,player_id,created_at FROM convoys WHERE id=?`, id).Scan(&c.ID, &c.PlayerID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	rows, err := r.query(ctx, `SELECT id FROM ships WHERE convoy_id=? ORDER BY name, id`, id)
	if err != nil {
		return c, err
	}
	defer rows.Close()
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return c, err
		}
		c.ShipIDs = append(c.ShipIDs, sid)
	}
	return c, rows.Err()
}

func (r Repo) DeleteConvoy(ctx context.Context, id string) error {
	_, err := r.exec(ctx, `DELETE FROM convoys WHERE id=?`, id)
	return err
}
