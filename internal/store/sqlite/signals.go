package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"smc-systemv1/internal/model"
)

const signalColumns = `id, symbol, timeframe, action, entry, stop_loss,
	take_profit_1, take_profit_2, take_profit_3,
	confidence_overall, confidence_technical, confidence_smc, confidence_sentiment,
	risk_reward_ratio, reasons, source_analysis, ts, status, exit_price, exit_ts`

// SaveSignal inserts a new signal. An id that is already stored keeps its
// row, including any exit status, and ErrSignalExists is returned.
func (s *Store) SaveSignal(ctx context.Context, sig *model.Signal) error {
	reasons, err := json.Marshal(sig.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}
	source, err := json.Marshal(sig.SourceAnalysis)
	if err != nil {
		return fmt.Errorf("marshal source analysis: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (`+signalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sig.ID, sig.Symbol, sig.Timeframe, string(sig.Action), sig.Entry, sig.StopLoss,
		sig.TakeProfit1, sig.TakeProfit2, sig.TakeProfit3,
		sig.ConfidenceOverall, sig.ConfidenceTechnical, sig.ConfidenceSMC, sig.ConfidenceSentiment,
		sig.RiskRewardRatio, string(reasons), string(source), sig.Timestamp.UnixNano(),
		string(sig.Status), nullFloat(sig.ExitPrice), nullTime(sig.ExitTime),
	)
	if err != nil {
		s.failed("save_signal")
		return fmt.Errorf("sqlite insert signal %s: %w", sig.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", model.ErrSignalExists, sig.ID)
	}
	s.wrote("signals", 1)
	return nil
}

// UpdateStatus overwrites the exit fields of one signal. Re-applying the
// same update is a no-op on the stored row.
func (s *Store) UpdateStatus(ctx context.Context, u model.StatusUpdate) error {
	if !u.Status.Valid() {
		return fmt.Errorf("sqlite update status: invalid status %q", u.Status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE signals SET status = ?, exit_price = ?, exit_ts = ? WHERE id = ?
	`, string(u.Status), nullFloat(u.ExitPrice), nullTime(u.ExitTime), u.ID)
	if err != nil {
		s.failed("update_status")
		return fmt.Errorf("sqlite update status %s: %w", u.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", model.ErrSignalNotFound, u.ID)
	}
	s.wrote("signals", 1)
	return nil
}

// GetSignal loads one signal by id.
func (s *Store) GetSignal(ctx context.Context, id string) (*model.Signal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = ?`, id)
	sig, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrSignalNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get signal %s: %w", id, err)
	}
	return sig, nil
}

// ListSignals returns signals newest first.
func (s *Store) ListSignals(ctx context.Context, f model.SignalFilter) ([]model.Signal, error) {
	var where []string
	var args []any
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	q := `SELECT ` + signalColumns + ` FROM signals`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite list signals: %w", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan signal: %w", err)
		}
		out = append(out, *sig)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSignal(sc scanner) (*model.Signal, error) {
	var (
		sig             model.Signal
		action, status  string
		reasons, source string
		ts              int64
		exitPrice       sql.NullFloat64
		exitTS          sql.NullInt64
	)
	err := sc.Scan(&sig.ID, &sig.Symbol, &sig.Timeframe, &action, &sig.Entry, &sig.StopLoss,
		&sig.TakeProfit1, &sig.TakeProfit2, &sig.TakeProfit3,
		&sig.ConfidenceOverall, &sig.ConfidenceTechnical, &sig.ConfidenceSMC, &sig.ConfidenceSentiment,
		&sig.RiskRewardRatio, &reasons, &source, &ts, &status, &exitPrice, &exitTS)
	if err != nil {
		return nil, err
	}
	sig.Action = model.Action(action)
	sig.Status = model.Status(status)
	sig.Timestamp = time.Unix(0, ts).UTC()
	if exitPrice.Valid {
		sig.ExitPrice = exitPrice.Float64
	}
	if exitTS.Valid {
		t := time.Unix(0, exitTS.Int64).UTC()
		sig.ExitTime = &t
	}
	if err := json.Unmarshal([]byte(reasons), &sig.Reasons); err != nil {
		return nil, fmt.Errorf("unmarshal reasons: %w", err)
	}
	if err := json.Unmarshal([]byte(source), &sig.SourceAnalysis); err != nil {
		return nil, fmt.Errorf("unmarshal source analysis: %w", err)
	}
	return &sig, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: v != 0}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
