// Package sqlstore persists the entry tree to SQLite or Postgres, one row
// per top-level entry in a single table.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "modernc.org/sqlite"             // registers "sqlite"

	"github.com/tamzrod/superscore/internal/backend"
	"github.com/tamzrod/superscore/internal/backend/memory"
	"github.com/tamzrod/superscore/internal/model"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"

	DefaultTable = "superscore_entries"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex

	tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

var _ backend.Backend = (*Store)(nil)

// Config selects the database.
type Config struct {
	Driver string // DriverSQLite or DriverPostgres
	DSN    string // file path for sqlite, connection string for postgres
	Table  string // defaults to DefaultTable
	Logger *slog.Logger
}

// Store snapshots the in-memory tree to the table after every successful
// mutation, inside one transaction.
type Store struct {
	*memory.Store
	db     *sql.DB
	driver string
	table  string
	mu     sync.Mutex
}

// Open connects, ensures the table exists and loads its rows in order.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("%w: sqlstore: invalid table name %q", backend.ErrBackend, cfg.Table)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	switch cfg.Driver {
	case DriverSQLite:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: sqlstore: sqlite path required", backend.ErrBackend)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o750); err != nil {
			return nil, fmt.Errorf("%w: sqlstore: create dirs: %v", backend.ErrBackend, err)
		}
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: sqlstore: postgres dsn required", backend.ErrBackend)
		}
	default:
		return nil, fmt.Errorf("%w: sqlstore: unknown driver %q", backend.ErrBackend, cfg.Driver)
	}

	openMu.Lock()
	db, err := sqlOpen(cfg.Driver, cfg.DSN)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: sqlstore: open %s: %v", backend.ErrBackend, cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		// one writer at a time; the memory layer serializes mutations anyway
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: sqlstore: ping %s: %v", backend.ErrBackend, cfg.Driver, err)
	}

	s := &Store{db: db, driver: cfg.Driver, table: cfg.Table}
	if err := s.ensureTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	root, err := s.load(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.Store = memory.New(
		memory.WithRoot(root),
		memory.WithCommit(s.persist),
		memory.WithLogger(cfg.Logger.With("backend", "sql", "driver", cfg.Driver, "table", cfg.Table)),
	)
	return s, nil
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureTable(ctx context.Context) error {
	payload := "BLOB"
	if s.driver == DriverPostgres {
		payload = "JSONB"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		position INTEGER NOT NULL,
		id TEXT PRIMARY KEY,
		payload %s NOT NULL
	)`, s.table, payload)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%w: sqlstore: create table: %v", backend.ErrBackend, err)
	}
	return nil
}

func (s *Store) load(ctx context.Context) (*model.Root, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT payload FROM %s ORDER BY position`, s.table))
	if err != nil {
		return nil, fmt.Errorf("%w: sqlstore: select: %v", backend.ErrBackend, err)
	}
	defer func() { _ = rows.Close() }()

	var docs [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%w: sqlstore: scan: %v", backend.ErrBackend, err)
		}
		docs = append(docs, payload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: sqlstore: iterate: %v", backend.ErrBackend, err)
	}
	return backend.DecodeEntries(docs)
}

func (s *Store) placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		if s.driver == DriverPostgres {
			ph[i] = fmt.Sprintf("$%d", i+1)
		} else {
			ph[i] = "?"
		}
	}
	return strings.Join(ph, ",")
}

func (s *Store) persist(ctx context.Context, root *model.Root) (retErr error) {
	docs, err := backend.EncodeEntries(root.Entries)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return fmt.Errorf("clear %s: %w", s.table, err)
	}
	insert := fmt.Sprintf(`INSERT INTO %s (position, id, payload) VALUES (%s)`, s.table, s.placeholders(3))
	for i, e := range root.Entries {
		if _, err := tx.ExecContext(ctx, insert, i, e.EntryID().String(), string(docs[i])); err != nil {
			return fmt.Errorf("insert %s: %w", e.EntryID(), err)
		}
	}
	return tx.Commit()
}
