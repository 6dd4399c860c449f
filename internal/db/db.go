package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const defaultDBName = "stardock.db"

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

type Config struct {
	Workspace string
	Dialect   Dialect
	// DSN is required for postgres; sqlite ignores it and uses the workspace file.
	DSN string
}

// Handle pairs a connection pool with the dialect its queries are written for.
type Handle struct {
	*sql.DB
	Dialect Dialect
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".stardock", defaultDBName)
}

// EnsureWorkspace creates workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, ".stardock")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// ParseDialect accepts an empty string as sqlite.
func ParseDialect(raw string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(raw))); d {
	case "":
		return SQLite, nil
	case SQLite, Postgres:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", raw)
	}
}

// Open opens the database for the configured dialect and pings it.
func Open(cfg Config) (*Handle, error) {
	dialect := cfg.Dialect
	if dialect == "" {
		dialect = SQLite
	}
	var driver, dsn string
	switch dialect {
	case SQLite:
		if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
			return nil, err
		}
		driver = "sqlite"
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath(cfg.Workspace))
	case Postgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("dialect postgres requires a dsn")
		}
		driver = "pgx"
		dsn = cfg.DSN
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == SQLite {
		// a single writer keeps sqlite from returning SQLITE_BUSY mid-transaction
		conn.SetMaxOpenConns(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}
	return &Handle{DB: conn, Dialect: dialect}, nil
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}

// Rebind rewrites ? placeholders into the dialect's form.
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
