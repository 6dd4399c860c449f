package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stardock/internal/engine/rng"
	"stardock/internal/journal"
	"stardock/internal/repo"
	"stardock/internal/tick"
	"stardock/internal/txn"
)

// AdvanceTick moves the world clock forward by one and runs the processor
// pipeline in the same transaction. Two callers racing for the same tick
// see one succeed and the other get txn.ErrConflict.
func (e Engine) AdvanceTick(ctx context.Context) (tick.Report, error) {
	w, err := e.Repo.GetWorld(ctx)
	if err != nil {
		return tick.Report{}, fmt.Errorf("load world: %w", err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return tick.Report{}, err
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)

	next := w.CurrentTick + 1
	if err := r.AdvanceTick(ctx, w.ID, w.CurrentTick, next, e.stamp()); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return tick.Report{}, fmt.Errorf("%w: tick %d already advanced", txn.ErrConflict, w.CurrentTick)
		}
		return tick.Report{}, err
	}
	started := time.Now()
	report, err := e.pipeline().Run(ctx, tx, tick.NewContext(next, rng.ForTick(w.Seed, next)))
	if err != nil {
		return report, err
	}
	if err := e.journal().Append(ctx, tx, next, journal.TickAdvanced, "world", w.ID, journal.SystemActor, journal.Payload{
		"failures": len(report.Failures),
	}); err != nil {
		return report, err
	}
	if err := tx.Commit(); err != nil {
		return report, err
	}
	e.Log.Info("tick advanced", "tick", next, "failures", len(report.Failures), "elapsed", time.Since(started))
	return report, nil
}

// AdvanceTicks runs n ticks back to back and returns their reports.
func (e Engine) AdvanceTicks(ctx context.Context, n int) ([]tick.Report, error) {
	reports := make([]tick.Report, 0, n)
	for i := 0; i < n; i++ {
		rep, err := e.AdvanceTick(ctx)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}
