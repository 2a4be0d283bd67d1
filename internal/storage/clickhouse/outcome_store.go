package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// OutcomeStore implements storage.OutcomeStore using ClickHouse.
// MergeTree engines don't enforce uniqueness at insert time, so
// duplicates are detected with an explicit existence check; the
// ReplacingMergeTree engine collapses any race survivors at merge time.
type OutcomeStore struct {
	conn *Conn
}

// NewOutcomeStore creates a new OutcomeStore.
func NewOutcomeStore(conn *Conn) *OutcomeStore {
	return &OutcomeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.OutcomeStore = (*OutcomeStore)(nil)

// AppendOutcome inserts an outcome, ErrDuplicateKey when the id exists.
func (s *OutcomeStore) AppendOutcome(ctx context.Context, o *domain.TradeOutcome) error {
	if o == nil || o.OutcomeID == "" {
		return fmt.Errorf("%w: outcome id required", storage.ErrInvalidInput)
	}

	exists, err := s.exists(ctx, o.OutcomeID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	var entrySignal []byte
	if o.EntrySignal != nil {
		entrySignal, err = json.Marshal(o.EntrySignal)
		if err != nil {
			return fmt.Errorf("marshal entry signal: %w", err)
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_outcomes (
			outcome_id, position_id, token_address, entry_signal,
			entry_price, exit_price, entry_liquidity,
			pnl, pnl_percent, hold_minutes,
			exit_reason, is_win, closed_at_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	var isWin uint8
	if o.IsWin {
		isWin = 1
	}
	err = batch.Append(
		o.OutcomeID, o.PositionID, o.TokenAddress, string(entrySignal),
		o.EntryPrice, o.ExitPrice, o.EntryLiquidity,
		o.PnL, o.PnLPercent, o.HoldMinutes,
		o.ExitReason, isWin, uint64(o.ClosedAtMs),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// LoadOutcomes retrieves up to limit outcomes ordered by close time,
// most recent last. limit <= 0 means all.
func (s *OutcomeStore) LoadOutcomes(ctx context.Context, limit int) ([]*domain.TradeOutcome, error) {
	query := `
		SELECT
			outcome_id, position_id, token_address, entry_signal,
			entry_price, exit_price, entry_liquidity,
			pnl, pnl_percent, hold_minutes,
			exit_reason, is_win, closed_at_ms
		FROM trade_outcomes FINAL
		ORDER BY closed_at_ms DESC, outcome_id DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, uint64(limit))
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trade outcomes: %w", err)
	}
	defer rows.Close()

	outcomes, err := scanOutcomes(rows)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(outcomes)-1; i < j; i, j = i+1, j-1 {
		outcomes[i], outcomes[j] = outcomes[j], outcomes[i]
	}
	return outcomes, nil
}

// exists checks if an outcome with the given id exists.
func (s *OutcomeStore) exists(ctx context.Context, outcomeID string) (bool, error) {
	query := `SELECT count(*) FROM trade_outcomes WHERE outcome_id = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, outcomeID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanOutcomes scans multiple rows into a slice.
func scanOutcomes(rows chRows) ([]*domain.TradeOutcome, error) {
	var outcomes []*domain.TradeOutcome

	for rows.Next() {
		var (
			o           domain.TradeOutcome
			entrySignal string
			isWin       uint8
			closedAtMs  uint64
		)
		err := rows.Scan(
			&o.OutcomeID, &o.PositionID, &o.TokenAddress, &entrySignal,
			&o.EntryPrice, &o.ExitPrice, &o.EntryLiquidity,
			&o.PnL, &o.PnLPercent, &o.HoldMinutes,
			&o.ExitReason, &isWin, &closedAtMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade outcome row: %w", err)
		}

		if entrySignal != "" {
			var sig domain.Signal
			if err := json.Unmarshal([]byte(entrySignal), &sig); err != nil {
				return nil, fmt.Errorf("unmarshal entry signal: %w", err)
			}
			o.EntrySignal = &sig
		}
		o.IsWin = isWin == 1
		o.ClosedAtMs = int64(closedAtMs)
		outcomes = append(outcomes, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade outcome rows: %w", err)
	}

	return outcomes, nil
}
