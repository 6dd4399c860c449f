package tick_test

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"stardock/internal/db"
	"stardock/internal/engine/rng"
	"stardock/internal/migrate"
	"stardock/internal/tick"
)

func openTx(t *testing.T) (*db.Handle, *sql.Tx) {
	t.Helper()
	h, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	if err := migrate.Migrate(h); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	tx, err := h.Begin()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tx.Rollback() })
	return h, tx
}

func insertDanger(id string) func(context.Context, *sql.Tx, *tick.Context) (any, error) {
	return func(ctx context.Context, tx *sql.Tx, tc *tick.Context) (any, error) {
		_, err := tx.ExecContext(ctx, `INSERT INTO system_danger(system_id,level,tick) VALUES (?,?,?)`, id, 0.1, tc.Tick)
		return id, err
	}
}

func TestRunSharesResultsInOrder(t *testing.T) {
	_, tx := openTx(t)
	var seen []string
	o := tick.New(nil,
		tick.Func{ProcessorName: "first", Fn: func(ctx context.Context, tx *sql.Tx, tc *tick.Context) (any, error) {
			seen = append(seen, "first")
			return 7, nil
		}},
		tick.Func{ProcessorName: "second", Fn: func(ctx context.Context, tx *sql.Tx, tc *tick.Context) (any, error) {
			seen = append(seen, "second")
			v, ok := tc.Result("first")
			if !ok {
				return nil, errors.New("first result missing")
			}
			return v.(int) * 2, nil
		}},
	)
	report, err := o.Run(context.Background(), tx, tick.NewContext(3, rng.Fixed(0.5)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Join(seen, ",") != "first,second" {
		t.Fatalf("order = %v", seen)
	}
	if report.Tick != 3 || report.Results["second"] != 14 || len(report.Failures) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if got := strings.Join(o.Names(), ","); got != "first,second" {
		t.Fatalf("names = %s", got)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	_, tx := openTx(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	o := tick.New(logger,
		tick.Func{ProcessorName: "ok-before", Fn: insertDanger("sol")},
		tick.Func{ProcessorName: "broken", Fn: func(ctx context.Context, tx *sql.Tx, tc *tick.Context) (any, error) {
			if _, err := insertDanger("vega")(ctx, tx, tc); err != nil {
				return nil, err
			}
			return nil, errors.New("boom")
		}},
		tick.Func{ProcessorName: "panics", Fn: func(ctx context.Context, tx *sql.Tx, tc *tick.Context) (any, error) {
			if _, err := insertDanger("rigel")(ctx, tx, tc); err != nil {
				return nil, err
			}
			panic("bad state")
		}},
		tick.Func{ProcessorName: "ok-after", Fn: func(ctx context.Context, tx *sql.Tx, tc *tick.Context) (any, error) {
			if _, ok := tc.Result("broken"); ok {
				return nil, errors.New("failed processor leaked a result")
			}
			return insertDanger("altair")(ctx, tx, tc)
		}},
	)
	report, err := o.Run(context.Background(), tx, tick.NewContext(1, rng.Fixed(0.5)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Failures) != 2 || report.Failures[0].Processor != "broken" || report.Failures[1].Processor != "panics" {
		t.Fatalf("failures = %+v", report.Failures)
	}
	if !strings.Contains(report.Failures[1].Error, "bad state") {
		t.Fatalf("panic not captured: %s", report.Failures[1].Error)
	}
	if _, ok := report.Results["ok-after"]; !ok {
		t.Fatalf("later processor did not run")
	}

	rows, err := tx.Query(`SELECT system_id FROM system_danger ORDER BY system_id`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	if got := strings.Join(ids, ","); got != "altair,sol" {
		t.Fatalf("failed processors must roll back their writes, got %s", got)
	}
	if !strings.Contains(logs.String(), "processor=broken") {
		t.Fatalf("failure not logged: %s", logs.String())
	}
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	p := tick.Func{ProcessorName: "x", Fn: func(context.Context, *sql.Tx, *tick.Context) (any, error) { return nil, nil }}
	tick.New(nil, p, p)
}

func TestNewCopiesProcessorList(t *testing.T) {
	p := tick.Func{ProcessorName: "a", Fn: func(context.Context, *sql.Tx, *tick.Context) (any, error) { return nil, nil }}
	list := []tick.Processor{p}
	o := tick.New(nil, list...)
	list[0] = tick.Func{ProcessorName: "b"}
	if o.Names()[0] != "a" {
		t.Fatalf("orchestrator shares caller slice")
	}
}
