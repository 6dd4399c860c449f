package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"stardock/internal/domain"
)

const missionCols = `id,kind,type,status,system_id,COALESCE(destination_id,''),COALESCE(good_id,''),quantity,hops,reward,COALESCE(event_id,''),COALESCE(stat_requirements,''),COALESCE(enemy_tier,''),duration_ticks,COALESCE(player_id,''),COALESCE(ship_id,''),created_tick,deadline_tick,accepted_tick,started_tick,version`

func scanMission(s interface{ Scan(...any) error }) (domain.Mission, error) {
	var m domain.Mission
	var reqs string
	err := s.Scan(&m.ID, &m.Kind, &m.Type, &m.Status, &m.SystemID, &m.DestinationID, &m.GoodID, &m.Quantity, &m.Hops, &m.Reward,
		&m.EventID, &reqs, &m.EnemyTier, &m.DurationTicks, &m.PlayerID, &m.ShipID, &m.CreatedTick, &m.DeadlineTick,
		&m.AcceptedTick, &m.StartedTick, &m.Version)
	if err != nil {
		return m, err
	}
	if reqs != "" {
		if err := json.Unmarshal([]byte(reqs), &m.StatRequirements); err != nil {
			return m, err
		}
	}
	return m, nil
}

func (r Repo) InsertMission(ctx context.Context, m domain.Mission) error {
	var reqs any
	if len(m.StatRequirements) > 0 {
		data, err := json.Marshal(m.StatRequirements)
		if err != nil {
			return err
		}
		reqs = string(data)
	}
	_, err := r.exec(ctx, `INSERT INTO missions(id,kind,type,status,system_id,destination_id,good_id,quantity,hops,reward,event_id,stat_requirements,enemy_tier,duration_ticks,player_id,ship_id,created_tick,deadline_tick,accepted_tick,started_tick,version) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,0)`,
		m.ID, m.Kind, m.Type, m.Status, m.SystemID, nullable(m.DestinationID), nullable(m.GoodID), m.Quantity, m.Hops, m.Reward,
		nullable(m.EventID), reqs, nullable(string(m.EnemyTier)), m.DurationTicks, nullable(m.PlayerID), nullable(m.ShipID),
		m.CreatedTick, m.DeadlineTick, m.AcceptedTick, m.StartedTick)
	return err
}

func (r Repo) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	m, err := scanMission(r.queryRow(ctx, `SELECT `+missionCols+` FROM missions WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

// MissionFilter narrows ListMissions. Zero values match everything.
type MissionFilter struct {
	Statuses []domain.MissionStatus
	PlayerID string
	SystemID string
	EventID  string
}

func (r Repo) ListMissions(ctx context.Context, f MissionFilter) ([]domain.Mission, error) {
	var clauses []string
	var args []any
	if len(f.Statuses) > 0 {
		clauses = append(clauses, `status IN (?`+strings.Repeat(",?", len(f.Statuses)-1)+`)`)
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.PlayerID != "" {
		clauses = append(clauses, "player_id=?")
		args = append(args, f.PlayerID)
	}
	if f.SystemID != "" {
		clauses = append(clauses, "system_id=?")
		args = append(args, f.SystemID)
	}
	if f.EventID != "" {
		clauses = append(clauses, "event_id=?")
		args = append(args, f.EventID)
	}
	query := `SELECT ` + missionCols + ` FROM missions`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	rows, err := r.query(ctx, query+` ORDER BY created_tick, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// CountActiveMissions counts accepted and in-progress missions held by a player.
func (r Repo) CountActiveMissions(ctx context.Context, playerID string) (int, error) {
	var n int
	err := r.queryRow(ctx, `SELECT COUNT(*) FROM missions WHERE player_id=? AND status IN (?,?)`,
		playerID, domain.MissionAccepted, domain.MissionInProgress).Scan(&n)
	return n, err
}

// UpdateMission writes the mutable columns if the row still carries m.Version.
func (r Repo) UpdateMission(ctx context.Context, m domain.Mission) error {
	return guarded(r.exec(ctx, `UPDATE missions SET status=?, player_id=?, ship_id=?, accepted_tick=?, started_tick=?, version=version+1 WHERE id=? AND version=?`,
		m.Status, nullable(m.PlayerID), nullable(m.ShipID), m.AcceptedTick, m.StartedTick, m.ID, m.Version))
}
