// Package postgres is a PostgreSQL signal repository for deployments that
// share signals across hosts.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lib/pq"

	"smc-systemv1/internal/model"
)

// Config holds connection settings.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the key/value connection string lib/pq expects.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Store implements model.SignalStore.
type Store struct {
	db *sql.DB
}

// New connects, pings and creates the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	log.Printf("[postgres] connected to %s@%s/%s", cfg.User, cfg.Host, cfg.DBName)
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS signals (
	id                   TEXT PRIMARY KEY,
	symbol               TEXT             NOT NULL,
	timeframe            TEXT             NOT NULL,
	action               TEXT             NOT NULL,
	entry                DOUBLE PRECISION NOT NULL,
	stop_loss            DOUBLE PRECISION NOT NULL,
	take_profit_1        DOUBLE PRECISION NOT NULL,
	take_profit_2        DOUBLE PRECISION NOT NULL,
	take_profit_3        DOUBLE PRECISION NOT NULL,
	confidence_overall   INTEGER          NOT NULL,
	confidence_technical DOUBLE PRECISION NOT NULL,
	confidence_smc       DOUBLE PRECISION NOT NULL,
	confidence_sentiment DOUBLE PRECISION NOT NULL,
	risk_reward_ratio    DOUBLE PRECISION NOT NULL,
	reasons              TEXT[]           NOT NULL,
	source_analysis      JSONB            NOT NULL,
	created_at           TIMESTAMPTZ      NOT NULL,
	status               TEXT             NOT NULL DEFAULT 'active',
	exit_price           DOUBLE PRECISION,
	exit_time            TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_signals_symbol_created ON signals (symbol, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_signals_status ON signals (status);
`

const columns = `id, symbol, timeframe, action, entry, stop_loss,
	take_profit_1, take_profit_2, take_profit_3,
	confidence_overall, confidence_technical, confidence_smc, confidence_sentiment,
	risk_reward_ratio, reasons, source_analysis, created_at, status, exit_price, exit_time`

// SaveSignal inserts a new signal. A stored id is never overwritten; the call
// returns ErrSignalExists instead.
func (s *Store) SaveSignal(ctx context.Context, sig *model.Signal) error {
	source, err := json.Marshal(sig.SourceAnalysis)
	if err != nil {
		return fmt.Errorf("marshal source analysis: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (`+columns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (id) DO NOTHING
	`,
		sig.ID, sig.Symbol, sig.Timeframe, string(sig.Action), sig.Entry, sig.StopLoss,
		sig.TakeProfit1, sig.TakeProfit2, sig.TakeProfit3,
		sig.ConfidenceOverall, sig.ConfidenceTechnical, sig.ConfidenceSMC, sig.ConfidenceSentiment,
		sig.RiskRewardRatio, pq.Array(reasonsOrEmpty(sig.Reasons)), source, sig.Timestamp,
		string(sig.Status), nullFloat(sig.ExitPrice), nullTime(sig.ExitTime),
	)
	if err != nil {
		return fmt.Errorf("postgres insert signal %s: %w", sig.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", model.ErrSignalExists, sig.ID)
	}
	return nil
}

// UpdateStatus overwrites the exit fields; re-applying is harmless.
func (s *Store) UpdateStatus(ctx context.Context, u model.StatusUpdate) error {
	if !u.Status.Valid() {
		return fmt.Errorf("postgres update status: invalid status %q", u.Status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE signals SET status = $1, exit_price = $2, exit_time = $3 WHERE id = $4`,
		string(u.Status), nullFloat(u.ExitPrice), nullTime(u.ExitTime), u.ID)
	if err != nil {
		return fmt.Errorf("postgres update status %s: %w", u.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", model.ErrSignalNotFound, u.ID)
	}
	return nil
}

// GetSignal loads one signal.
func (s *Store) GetSignal(ctx context.Context, id string) (*model.Signal, error) {
	sig, err := scanSignal(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM signals WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrSignalNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get signal %s: %w", id, err)
	}
	return sig, nil
}

// ListSignals returns newest first.
func (s *Store) ListSignals(ctx context.Context, f model.SignalFilter) ([]model.Signal, error) {
	q, args := listQuery(f)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres list signals: %w", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres scan signal: %w", err)
		}
		out = append(out, *sig)
	}
	return out, rows.Err()
}

func listQuery(f model.SignalFilter) (string, []any) {
	var where []string
	var args []any
	if f.Symbol != "" {
		args = append(args, f.Symbol)
		where = append(where, fmt.Sprintf("symbol = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	q := `SELECT ` + columns + ` FROM signals`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return q, args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSignal(sc scanner) (*model.Signal, error) {
	var (
		sig            model.Signal
		action, status string
		source         []byte
		exitPrice      sql.NullFloat64
		exitTime       sql.NullTime
	)
	err := sc.Scan(&sig.ID, &sig.Symbol, &sig.Timeframe, &action, &sig.Entry, &sig.StopLoss,
		&sig.TakeProfit1, &sig.TakeProfit2, &sig.TakeProfit3,
		&sig.ConfidenceOverall, &sig.ConfidenceTechnical, &sig.ConfidenceSMC, &sig.ConfidenceSentiment,
		&sig.RiskRewardRatio, pq.Array(&sig.Reasons), &source, &sig.Timestamp, &status, &exitPrice, &exitTime)
	if err != nil {
		return nil, err
	}
	sig.Action = model.Action(action)
	sig.Status = model.Status(status)
	sig.Timestamp = sig.Timestamp.UTC()
	if exitPrice.Valid {
		sig.ExitPrice = exitPrice.Float64
	}
	if exitTime.Valid {
		t := exitTime.Time.UTC()
		sig.ExitTime = &t
	}
	if err := json.Unmarshal(source, &sig.SourceAnalysis); err != nil {
		return nil, fmt.Errorf("unmarshal source analysis: %w", err)
	}
	return &sig, nil
}

func reasonsOrEmpty(r []string) []string {
	if r == nil {
		return []string{}
	}
	return r
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v != 0}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Ping checks connectivity for health probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}
