package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"

	"github.com/cryptoscout/scout/internal/persistence"
)

// Config holds database connection configuration
type Config struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	Enabled         bool          `yaml:"enabled"`
}

// DefaultConfig returns reasonable defaults for database connections
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    30 * time.Second,
		Enabled:         false, // requires explicit configuration
	}
}

// Connect opens the pool, verifies connectivity, and applies the
// schema.
func Connect(ctx context.Context, config Config) (*sqlx.DB, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("database DSN is required when enabled")
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Int("max_open_conns", config.MaxOpenConns).Msg("postgres: connected")
	return db, nil
}

// NewStore wires the three repositories over one pool.
func NewStore(db *sqlx.DB, queryTimeout time.Duration) persistence.Store {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return persistence.Store{
		Assets:  NewAssetsRepo(db, queryTimeout),
		History: NewHistoryRepo(db, queryTimeout),
		Alerts:  NewAlertsRepo(db, queryTimeout),
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS assets (
	symbol            TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	current_price     DOUBLE PRECISION NOT NULL,
	market_cap        DOUBLE PRECISION,
	volume_24h        DOUBLE PRECISION,
	price_change_24h  DOUBLE PRECISION,
	price_change_7d   DOUBLE PRECISION,
	market_cap_rank   INTEGER NOT NULL DEFAULT 0,
	trending          BOOLEAN NOT NULL DEFAULT FALSE,
	ai_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	ai_verdict        TEXT NOT NULL DEFAULT '',
	sentiment_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	combined_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	reasons           TEXT NOT NULL DEFAULT '',
	last_updated      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS asset_history (
	id                BIGSERIAL PRIMARY KEY,
	symbol            TEXT NOT NULL,
	current_price     DOUBLE PRECISION NOT NULL,
	market_cap        DOUBLE PRECISION NOT NULL DEFAULT 0,
	volume_24h        DOUBLE PRECISION NOT NULL DEFAULT 0,
	price_change_24h  DOUBLE PRECISION NOT NULL DEFAULT 0,
	price_change_7d   DOUBLE PRECISION NOT NULL DEFAULT 0,
	ai_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
	sentiment_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
	combined_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	snapshot_time     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_symbol_time
	ON asset_history (symbol, snapshot_time DESC);

CREATE TABLE IF NOT EXISTS alerts (
	id          BIGSERIAL PRIMARY KEY,
	symbol      TEXT NOT NULL,
	alert_type  TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	read        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_symbol_type_time
	ON alerts (symbol, alert_type, created_at DESC);
`

func applySchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
