// Package tick runs the ordered processor pipeline for one world tick.
package tick

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"runtime/debug"

	"stardock/internal/engine/rng"
)

// Processor is one stage of the tick pipeline. Its writes go through tx; the
// value it returns is visible to later stages through Context.Result.
type Processor interface {
	Name() string
	Process(ctx context.Context, tx *sql.Tx, tc *Context) (any, error)
}

// Func adapts a function to Processor.
type Func struct {
	ProcessorName string
	Fn            func(ctx context.Context, tx *sql.Tx, tc *Context) (any, error)
}

func (f Func) Name() string { return f.ProcessorName }

func (f Func) Process(ctx context.Context, tx *sql.Tx, tc *Context) (any, error) {
	return f.Fn(ctx, tx, tc)
}

// Context is shared by every processor of one tick.
type Context struct {
	Tick    int64
	Rand    rng.Source
	results map[string]any
}

func NewContext(tick int64, src rng.Source) *Context {
	return &Context{Tick: tick, Rand: src, results: map[string]any{}}
}

// Result returns what an earlier processor produced this tick. It is false
// for processors that have not run or that failed.
func (c *Context) Result(name string) (any, bool) {
	v, ok := c.results[name]
	return v, ok
}

// Failure records one processor that did not complete.
type Failure struct {
	Processor string `json:"processor"`
	Error     string `json:"error"`
}

type Report struct {
	Tick     int64          `json:"tick"`
	Results  map[string]any `json:"results"`
	Failures []Failure      `json:"failures,omitempty"`
}

// Orchestrator holds the fixed processor order.
type Orchestrator struct {
	processors []Processor
	log        *slog.Logger
}

// New builds an orchestrator over a private copy of processors.
func New(logger *slog.Logger, processors ...Processor) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	seen := map[string]bool{}
	for _, p := range processors {
		if seen[p.Name()] {
			panic(fmt.Sprintf("tick: duplicate processor %q", p.Name()))
		}
		seen[p.Name()] = true
	}
	return &Orchestrator{processors: append([]Processor(nil), processors...), log: logger}
}

func (o *Orchestrator) Names() []string {
	names := make([]string, len(o.processors))
	for i, p := range o.processors {
		names[i] = p.Name()
	}
	return names
}

// Run executes every processor in order inside tx. Each processor gets its
// own savepoint: an error or panic rolls back only that processor's writes and
// the pipeline moves on. Run returns an error only when the savepoint
// statements themselves fail, which leaves tx unusable.
func (o *Orchestrator) Run(ctx context.Context, tx *sql.Tx, tc *Context) (Report, error) {
	report := Report{Tick: tc.Tick, Results: map[string]any{}}
	for i, p := range o.processors {
		sp := fmt.Sprintf("tick_proc_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
			return report, fmt.Errorf("savepoint %s: %w", p.Name(), err)
		}
		res, err := runOne(ctx, tx, tc, p)
		if err != nil {
			o.log.Error("tick processor failed", "tick", tc.Tick, "processor", p.Name(), "err", err)
			report.Failures = append(report.Failures, Failure{Processor: p.Name(), Error: err.Error()})
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
				return report, fmt.Errorf("rollback %s: %w", p.Name(), rbErr)
			}
		} else {
			tc.results[p.Name()] = res
			report.Results[p.Name()] = res
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			return report, fmt.Errorf("release %s: %w", p.Name(), err)
		}
	}
	o.log.Debug("tick processed", "tick", tc.Tick, "processors", len(o.processors), "failures", len(report.Failures))
	return report, nil
}

func runOne(ctx context.Context, tx *sql.Tx, tc *Context, p Processor) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return p.Process(ctx, tx, tc)
}
