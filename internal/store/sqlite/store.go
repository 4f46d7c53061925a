// Package sqlite persists signals and candle history in a local SQLite
// database (WAL mode, single writer connection).
package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/smc.db"
}

// Store implements model.SignalStore and model.CandleHistory.
type Store struct {
	db *sql.DB

	// Optional metrics hooks
	OnWrite func(table string, rows int)
	OnError func(op string)
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			id                   TEXT PRIMARY KEY,
			symbol               TEXT    NOT NULL,
			timeframe            TEXT    NOT NULL,
			action               TEXT    NOT NULL,
			entry                REAL    NOT NULL,
			stop_loss            REAL    NOT NULL,
			take_profit_1        REAL    NOT NULL,
			take_profit_2        REAL    NOT NULL,
			take_profit_3        REAL    NOT NULL,
			confidence_overall   INTEGER NOT NULL,
			confidence_technical REAL    NOT NULL,
			confidence_smc       REAL    NOT NULL,
			confidence_sentiment REAL    NOT NULL,
			risk_reward_ratio    REAL    NOT NULL,
			reasons              TEXT    NOT NULL,
			source_analysis      TEXT    NOT NULL,
			ts                   INTEGER NOT NULL, -- unix nanoseconds
			status               TEXT    NOT NULL,
			exit_price           REAL,
			exit_ts              INTEGER          -- unix nanoseconds
		);
		CREATE INDEX IF NOT EXISTS idx_signals_symbol_ts ON signals (symbol, ts DESC);

		CREATE TABLE IF NOT EXISTS candles (
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL,
			PRIMARY KEY (symbol, timeframe, ts)
		);
	`)
	return err
}

func (s *Store) wrote(table string, rows int) {
	if s.OnWrite != nil {
		s.OnWrite(table, rows)
	}
}

func (s *Store) failed(op string) {
	if s.OnError != nil {
		s.OnError(op)
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
