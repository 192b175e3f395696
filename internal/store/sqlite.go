package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/market-intel/internal/model"
)

// DefaultSQLitePath is the database file used when no DSN is configured.
const DefaultSQLitePath = "market-intel.db"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	dsn  string
	init initializer
	now  func() time.Time

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLite returns a store for the database at dsn. Nothing is opened until
// Initialize or the first operation.
func NewSQLite(dsn string) *SQLiteStore {
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	return &SQLiteStore{dsn: dsn, now: time.Now}
}

// Initialize opens the database, configures WAL mode and applies pending
// migrations.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	return s.init.run(ctx, s.open)
}

func (s *SQLiteStore) open(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return unavailable(err, "sqlite: open")
	}
	// busy_timeout is per connection; a single connection keeps it in force.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return unavailable(err, "sqlite: exec "+pragma)
		}
	}
	if err := migrateSQLite(ctx, db); err != nil {
		db.Close() //nolint:errcheck
		return unavailable(err, "sqlite: migrate")
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return 0, err
	}
	var v int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v); err != nil {
		return 0, eris.Wrap(err, "sqlite: schema version")
	}
	return v, nil
}

func (s *SQLiteStore) handle(ctx context.Context) (*sql.DB, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, eris.Wrap(ErrStorageUnavailable, "sqlite: store closed")
	}
	return s.db, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.init.reset()
	return eris.Wrap(err, "sqlite: close")
}

func (s *SQLiteStore) StoreSnapshot(ctx context.Context, symbol string, m model.Microstructure) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO microstructure_history (symbol, timestamp, bid, ask, spread, liquidity_score) VALUES (?, ?, ?, ?, ?, ?)`,
		symbol, s.now().UnixMilli(), m.Bid, m.Ask, m.Spread, m.LiquidityScore,
	)
	return eris.Wrapf(err, "sqlite: insert snapshot %s", symbol)
}

func (s *SQLiteStore) StoreNarrative(ctx context.Context, symbol string, n model.NarrativeIntelligence) error {
	db, err := s.handle(ctx)
	if err != nil {
		return err
	}
	entities, err := json.Marshal(n.Entities)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal entities")
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO narrative_history (symbol, timestamp, sentiment_index, archetype, entities) VALUES (?, ?, ?, ?, ?)`,
		symbol, s.now().UnixMilli(), n.SentimentIndex, n.NarrativeArchetype, string(entities),
	)
	return eris.Wrapf(err, "sqlite: insert narrative %s", symbol)
}

func (s *SQLiteStore) GetRecentHistory(ctx context.Context, symbol string, limit int) ([]model.SnapshotEntry, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, symbol, timestamp, bid, ask, spread, liquidity_score FROM microstructure_history
		WHERE symbol = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		symbol, historyLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query history %s", symbol)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.SnapshotEntry{}
	for rows.Next() {
		var e model.SnapshotEntry
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Timestamp, &e.Bid, &e.Ask, &e.Spread, &e.LiquidityScore); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate history")
	}
	reverse(out)
	return out, nil
}

func (s *SQLiteStore) GetNarrativeHistory(ctx context.Context, symbol string, limit int) ([]model.NarrativeEntry, error) {
	db, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, symbol, timestamp, sentiment_index, archetype, entities FROM narrative_history
		WHERE symbol = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		symbol, historyLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query narratives %s", symbol)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.NarrativeEntry{}
	for rows.Next() {
		var (
			e        model.NarrativeEntry
			entities string
		)
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Timestamp, &e.SentimentIndex, &e.Archetype, &entities); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan narrative")
		}
		if err := json.Unmarshal([]byte(entities), &e.Entities); err != nil {
			zap.L().Warn("sqlite: corrupt narrative entities", zap.Int64("id", e.ID), zap.Error(err))
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate narratives")
	}
	reverse(out)
	return out, nil
}

func migrateSQLite(ctx context.Context, db *sql.DB) error {
	log := zap.L().With(zap.String("component", "store.migrate"), zap.String("driver", "sqlite"))

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return eris.Wrap(err, "sqlite: ensure schema_version")
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return eris.Wrap(err, "sqlite: read schema version")
	}

	migrations, err := loadMigrations("sqlite")
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		log.Info("applying migration", zap.String("file", m.name))

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return eris.Wrap(err, "sqlite: begin migration")
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback() //nolint:errcheck
			return eris.Wrapf(err, "sqlite: apply migration %s", m.name)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version, name, applied_at) VALUES (?, ?, ?)`,
			m.version, m.name, time.Now().UnixMilli(),
		); err != nil {
			tx.Rollback() //nolint:errcheck
			return eris.Wrapf(err, "sqlite: record migration %s", m.name)
		}
		if err := tx.Commit(); err != nil {
			return eris.Wrapf(err, "sqlite: commit migration %s", m.name)
		}
	}
	return nil
}
