// Package txn runs mutations under the read, validate, re-read, re-validate,
// write discipline that keeps concurrent requests and the tick loop consistent.
package txn

import (
	"context"
	"errors"
	"fmt"

	"stardock/internal/db"
	"stardock/internal/repo"
)

// ErrConflict means state changed between the first read and the commit.
// Callers may retry; it is never reported as a plain validation failure.
var ErrConflict = errors.New("state changed concurrently")

// Op describes one optimistic mutation over a snapshot S.
type Op[S any] struct {
	// Read loads the snapshot. It runs once against the pool and once inside the transaction.
	Read func(ctx context.Context, r repo.Repo) (S, error)
	// Validate returns a user-facing rejection for an invalid snapshot.
	Validate func(s S) error
	// Same reports whether the in-transaction snapshot still matches the one
	// the caller validated. Nil skips the comparison.
	Same func(before, after S) bool
	// Write applies the mutation through the transaction-bound repo.
	Write func(ctx context.Context, r repo.Repo, s S) error
	// Attempts bounds how many times a conflict is retried. Zero means one attempt.
	Attempts int
}

// Run executes op. A rejection from the first validation is returned as is; a
// rejection or divergence found only inside the transaction, and any stale
// version-guarded write, is reported as ErrConflict.
func Run[S any](ctx context.Context, h *db.Handle, op Op[S]) (S, error) {
	attempts := max(1, op.Attempts)
	var (
		s   S
		err error
	)
	for i := 0; i < attempts; i++ {
		s, err = runOnce(ctx, h, op)
		if !errors.Is(err, ErrConflict) {
			return s, err
		}
	}
	return s, err
}

func runOnce[S any](ctx context.Context, h *db.Handle, op Op[S]) (S, error) {
	var zero S
	base := repo.New(h)
	before, err := op.Read(ctx, base)
	if err != nil {
		return zero, err
	}
	if op.Validate != nil {
		if err := op.Validate(before); err != nil {
			return zero, err
		}
	}

	tx, err := h.BeginTx(ctx, nil)
	if err != nil {
		return zero, err
	}
	defer tx.Rollback()
	r := base.WithTx(tx)

	after, err := op.Read(ctx, r)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return zero, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return zero, err
	}
	if op.Validate != nil {
		if err := op.Validate(after); err != nil {
			return zero, fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	if op.Same != nil && !op.Same(before, after) {
		return zero, ErrConflict
	}
	if err := op.Write(ctx, r, after); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return zero, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return zero, err
	}
	if err := tx.Commit(); err != nil {
		return zero, err
	}
	return after, nil
}
