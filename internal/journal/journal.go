// Package journal appends world history rows inside the caller's transaction.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"stardock/internal/db"
	"stardock/internal/domain"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Writer struct {
	Dialect db.Dialect
	Now     func() time.Time
}

type Payload map[string]any

// Entry types.
const (
	WorldInit        = "world.init"
	TickAdvanced     = "tick.advanced"
	EventSpawned     = "event.spawned"
	EventSpread      = "event.spread"
	EventPhase       = "event.phase"
	EventExpired     = "event.expired"
	ShipArrived      = "ship.arrived"
	CargoLost        = "cargo.lost"
	HazardIncident   = "cargo.hazard"
	DutyCollected    = "cargo.duty"
	ContrabandSeized = "cargo.seized"
	TradeExecuted    = "trade.executed"
	ShipDeparted     = "ship.departed"
	ShipRepaired     = "ship.repaired"
	ModuleInstalled  = "module.installed"
	ModuleRemoved    = "module.removed"
	ConvoyChanged    = "convoy.changed"
	PlayerCreated    = "player.created"
	MissionPosted    = "mission.posted"
	MissionAccepted  = "mission.accepted"
	MissionStarted   = "mission.started"
	MissionCompleted = "mission.completed"
	MissionFailed    = "mission.failed"
	MissionAbandoned = "mission.abandoned"
	MissionExpired   = "mission.expired"
)

// SystemActor marks rows written by the tick loop.
const SystemActor = "system"

func (w Writer) Append(ctx context.Context, q Querier, tick int64, entryType, entityKind, entityID, actorID string, payload Payload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	if actorID == "" {
		actorID = SystemActor
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal journal payload: %w", err)
	}
	_, err = q.ExecContext(ctx, w.Dialect.Rebind(`INSERT INTO journal(tick,ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`),
		tick, ts, entryType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	AfterID    int64
	Type       string
	EntityKind string
	EntityID   string
	Limit      int
}

// List returns entries in id order.
func (w Writer) List(ctx context.Context, q Querier, f Filter) ([]domain.JournalEntry, error) {
	clauses := []string{"id > ?"}
	args := []any{f.AfterID}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind = ?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	query := `SELECT id,tick,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM journal WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := q.QueryContext(ctx, w.Dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.JournalEntry
	for rows.Next() {
		var e domain.JournalEntry
		if err := rows.Scan(&e.ID, &e.Tick, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// Tail returns the last n entries, oldest first.
func (w Writer) Tail(ctx context.Context, q Querier, n int) ([]domain.JournalEntry, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := q.QueryContext(ctx, w.Dialect.Rebind(`SELECT id FROM journal ORDER BY id DESC LIMIT ?`), n)
	if err != nil {
		return nil, err
	}
	var minID int64 = -1
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		minID = id
	}
	rows.Close()
	if minID < 0 {
		return nil, nil
	}
	return w.List(ctx, q, Filter{AfterID: minID - 1})
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
