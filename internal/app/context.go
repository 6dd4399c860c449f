// Package app wires a database, the world config and the engine together for
// the CLI and the server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"stardock/internal/config"
	"stardock/internal/db"
	"stardock/internal/engine"
	"stardock/internal/migrate"
	"stardock/internal/repo"
)

type Options struct {
	Workspace string
	Dialect   string
	DSN       string
	Logger    *slog.Logger
}

// Runtime is an open database plus an engine bound to the world's config.
type Runtime struct {
	DB     *db.Handle
	Engine engine.Engine
	// Initialized is false until a world row exists.
	Initialized bool
}

// Open connects, migrates and resolves the config the engine runs with.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	dialect, err := db.ParseDialect(opts.Dialect)
	if err != nil {
		return nil, err
	}
	h, err := db.Open(db.Config{Workspace: opts.Workspace, Dialect: dialect, DSN: opts.DSN})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(h); err != nil {
		h.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, initialized, err := ResolveConfig(ctx, opts.Workspace, repo.New(h))
	if err != nil {
		h.Close()
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = NewLogger(io.Discard, "info", false)
	}
	return &Runtime{DB: h, Engine: engine.New(h, cfg, logger), Initialized: initialized}, nil
}

func (rt *Runtime) Close() error {
	return rt.DB.Close()
}

// ResolveConfig prefers the config stored with the world, since catalogs must
// not drift under a running world. Before init it reads stardock.yml from the
// workspace, falling back to the built-in defaults.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, bool, error) {
	cfg, err := r.GetWorldConfig(ctx)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, fmt.Errorf("load world config: %w", err)
	}
	cfg, err = config.LoadOptional(workspace)
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

// NewLogger builds the process logger. Unknown levels mean info.
func NewLogger(w io.Writer, level string, json bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
