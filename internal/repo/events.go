package repo

import (
	"context"
	"database/sql"

	"stardock/internal/domain"
	"stardock/internal/engine/lifecycle"
)

const eventCols = `id,type,system_id,region_id,phase,phase_start_tick,phase_duration,start_tick,severity,COALESCE(source_event_id,'')`

func scanEvent(s interface{ Scan(...any) error }) (domain.EventInstance, error) {
	var e domain.EventInstance
	err := s.Scan(&e.ID, &e.Type, &e.SystemID, &e.RegionID, &e.Phase, &e.PhaseStartTick, &e.PhaseDuration, &e.StartTick, &e.Severity, &e.SourceEventID)
	return e, err
}

func (r Repo) InsertEvent(ctx context.Context, e domain.EventInstance) error {
	_, err := r.exec(ctx, `INSERT INTO event_instances(id,type,system_id,region_id,phase,phase_start_tick,phase_duration,start_tick,severity,source_event_id) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Type, e.SystemID, e.RegionID, e.Phase, e.PhaseStartTick, e.PhaseDuration, e.StartTick, e.Severity, nullable(e.SourceEventID))
	if err != nil {
		return err
	}
	return r.recordEventStart(ctx, e.Type, e.SystemID, e.StartTick)
}

func (r Repo) GetEvent(ctx context.Context, id string) (domain.EventInstance, error) {
	e, err := scanEvent(r.queryRow(ctx, `SELECT `+eventCols+` FROM event_instances WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

func (r Repo) ListEvents(ctx context.Context) ([]domain.EventInstance, error) {
	rows, err := r.query(ctx, `SELECT `+eventCols+` FROM event_instances ORDER BY start_tick, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.EventInstance
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// UpdateEventPhase stores the phase an instance moved into.
func (r Repo) UpdateEventPhase(ctx context.Context, e domain.EventInstance) error {
	res, err := r.exec(ctx, `UPDATE event_instances SET phase=?, phase_start_tick=?, phase_duration=? WHERE id=?`,
		e.Phase, e.PhaseStartTick, e.PhaseDuration, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteEvent(ctx context.Context, id string) error {
	_, err := r.exec(ctx, `DELETE FROM event_instances WHERE id=?`, id)
	return err
}

func (r Repo) recordEventStart(ctx context.Context, eventType, systemID string, tick int64) error {
	_, err := r.exec(ctx, `INSERT INTO event_starts(type,system_id,tick) VALUES (?,?,?)
ON CONFLICT(type,system_id) DO UPDATE SET tick=excluded.tick`, eventType, systemID, tick)
	return err
}

// EventStarts returns the latest start tick per (type, system), including
// instances that have since expired.
func (r Repo) EventStarts(ctx context.Context) (map[lifecycle.StartKey]int64, error) {
	rows, err := r.query(ctx, `SELECT type,system_id,tick FROM event_starts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[lifecycle.StartKey]int64{}
	for rows.Next() {
		var k lifecycle.StartKey
		var tick int64
		if err := rows.Scan(&k.Type, &k.SystemID, &tick); err != nil {
			return nil, err
		}
		res[k] = tick
	}
	return res, rows.Err()
}
