package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/db"
	"github.com/sells-group/market-intel/internal/model"
)

// migrationLockID serializes migrations across processes sharing a database.
const migrationLockID = 20260301

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	connString string
	poolCfg    *PoolConfig
	init       initializer
	now        func() time.Time

	mu      sync.RWMutex
	pool    db.Pool
	closeFn func()
}

// NewPostgres returns a store for connString. The pool is created on
// Initialize or the first operation.
func NewPostgres(connString string, poolCfg *PoolConfig) *PostgresStore {
	return &PostgresStore{connString: connString, poolCfg: poolCfg, now: time.Now}
}

// Initialize creates the connection pool if needed and applies pending
// migrations.
func (s *PostgresStore) Initialize(ctx context.Context) error {
	return s.init.run(ctx, s.open)
}

func (s *PostgresStore) open(ctx context.Context) error {
	s.mu.RLock()
	pool := s.pool
	s.mu.RUnlock()

	if pool == nil {
		p, err := s.connect(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.pool, s.closeFn = p, p.Close
		s.mu.Unlock()
		pool = p
	}

	if err := migratePostgres(ctx, pool); err != nil {
		return unavailable(err, "postgres: migrate")
	}
	return nil
}

func (s *PostgresStore) connect(ctx context.Context) (*pgxpool.Pool, error) {
	pgxCfg, err := pgxpool.ParseConfig(s.connString)
	if err != nil {
		return nil, unavailable(err, "postgres: parse config")
	}

	maxConns := int32(5)
	minConns := int32(1)
	if s.poolCfg != nil {
		if s.poolCfg.MaxConns > 0 {
			maxConns = s.poolCfg.MaxConns
		}
		if s.poolCfg.MinConns > 0 {
			minConns = s.poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, unavailable(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable(err, "postgres: ping")
	}
	return pool, nil
}

func (s *PostgresStore) handle(ctx context.Context) (db.Pool, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pool == nil {
		return nil, eris.Wrap(ErrStorageUnavailable, "postgres: store closed")
	}
	return s.pool, nil
}

// SchemaVersion returns the highest applied migration version.
func (s *PostgresStore) SchemaVersion(ctx context.Context) (int, error) {
	pool, err := s.handle(ctx)
	if err != nil {
		return 0, err
	}
	var v int
	if err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v); err != nil {
		return 0, eris.Wrap(err, "postgres: schema version")
	}
	return v, nil
}

func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeFn != nil {
		s.closeFn()
	}
	s.pool, s.closeFn = nil, nil
	s.init.reset()
	return nil
}

func (s *PostgresStore) StoreSnapshot(ctx context.Context, symbol string, m model.Microstructure) error {
	pool, err := s.handle(ctx)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx,
		`INSERT INTO microstructure_history (symbol, timestamp, bid, ask, spread, liquidity_score) VALUES ($1, $2, $3, $4, $5, $6)`,
		symbol, s.now().UnixMilli(), m.Bid, m.Ask, m.Spread, m.LiquidityScore,
	)
	return eris.Wrapf(err, "postgres: insert snapshot %s", symbol)
}

func (s *PostgresStore) StoreNarrative(ctx context.Context, symbol string, n model.NarrativeIntelligence) error {
	pool, err := s.handle(ctx)
	if err != nil {
		return err
	}
	entities, err := json.Marshal(n.Entities)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal entities")
	}
	_, err = pool.Exec(ctx,
		`INSERT INTO narrative_history (symbol, timestamp, sentiment_index, archetype, entities) VALUES ($1, $2, $3, $4, $5)`,
		symbol, s.now().UnixMilli(), n.SentimentIndex, n.NarrativeArchetype, entities,
	)
	return eris.Wrapf(err, "postgres: insert narrative %s", symbol)
}

func (s *PostgresStore) GetRecentHistory(ctx context.Context, symbol string, limit int) ([]model.SnapshotEntry, error) {
	pool, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx,
		`SELECT id, symbol, timestamp, bid, ask, spread, liquidity_score FROM microstructure_history
		WHERE symbol = $1 ORDER BY timestamp DESC, id DESC LIMIT $2`,
		symbol, historyLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query history %s", symbol)
	}
	defer rows.Close()

	out := []model.SnapshotEntry{}
	for rows.Next() {
		var e model.SnapshotEntry
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Timestamp, &e.Bid, &e.Ask, &e.Spread, &e.LiquidityScore); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate history")
	}
	reverse(out)
	return out, nil
}

func (s *PostgresStore) GetNarrativeHistory(ctx context.Context, symbol string, limit int) ([]model.NarrativeEntry, error) {
	pool, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx,
		`SELECT id, symbol, timestamp, sentiment_index, archetype, entities FROM narrative_history
		WHERE symbol = $1 ORDER BY timestamp DESC, id DESC LIMIT $2`,
		symbol, historyLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query narratives %s", symbol)
	}
	defer rows.Close()

	out := []model.NarrativeEntry{}
	for rows.Next() {
		var (
			e        model.NarrativeEntry
			entities []byte
		)
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Timestamp, &e.SentimentIndex, &e.Archetype, &entities); err != nil {
			return nil, eris.Wrap(err, "postgres: scan narrative")
		}
		if err := json.Unmarshal(entities, &e.Entities); err != nil {
			zap.L().Warn("postgres: corrupt narrative entities", zap.Int64("id", e.ID), zap.Error(err))
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate narratives")
	}
	reverse(out)
	return out, nil
}

func migratePostgres(ctx context.Context, pool db.Pool) error {
	log := zap.L().With(zap.String("component", "store.migrate"), zap.String("driver", "postgres"))

	migrations, err := loadMigrations("postgres")
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin migration")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Held until commit or rollback on the transaction's own connection.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}

	if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return eris.Wrap(err, "postgres: ensure schema_version")
	}

	var applied int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&applied); err != nil {
		return eris.Wrap(err, "postgres: read schema version")
	}

	for _, m := range migrations {
		if m.version <= applied {
			continue
		}
		log.Info("applying migration", zap.String("file", m.name))
		if _, err := tx.Exec(ctx, m.sql); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", m.name)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_version (version, name) VALUES ($1, $2)`,
			m.version, m.name,
		); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", m.name)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit migrations")
	}
	return nil
}
