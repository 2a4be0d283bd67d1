package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

// OutcomeStore implements storage.OutcomeStore using PostgreSQL.
type OutcomeStore struct {
	pool *Pool
}

// NewOutcomeStore creates a new OutcomeStore.
func NewOutcomeStore(pool *Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OutcomeStore = (*OutcomeStore)(nil)

// AppendOutcome inserts an outcome. Returns ErrDuplicateKey when the
// outcome id already exists; rows are never updated.
func (s *OutcomeStore) AppendOutcome(ctx context.Context, o *domain.TradeOutcome) error {
	if o == nil || o.OutcomeID == "" {
		return fmt.Errorf("%w: outcome id required", storage.ErrInvalidInput)
	}

	var entrySignal []byte
	if o.EntrySignal != nil {
		var err error
		entrySignal, err = json.Marshal(o.EntrySignal)
		if err != nil {
			return fmt.Errorf("marshal entry signal: %w", err)
		}
	}

	query := `
		INSERT INTO trade_outcomes (
			outcome_id, position_id, token_address, entry_signal,
			entry_price, exit_price, entry_liquidity,
			pnl, pnl_percent, hold_minutes,
			exit_reason, is_win, closed_at_ms
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, $13
		)
	`

	_, err := s.pool.Exec(ctx, query,
		o.OutcomeID, o.PositionID, o.TokenAddress, entrySignal,
		o.EntryPrice, o.ExitPrice, o.EntryLiquidity,
		o.PnL, o.PnLPercent, o.HoldMinutes,
		o.ExitReason, o.IsWin, o.ClosedAtMs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade outcome: %w", err)
	}
	return nil
}

// LoadOutcomes retrieves up to limit outcomes ordered by close time,
// most recent last. limit <= 0 means all.
func (s *OutcomeStore) LoadOutcomes(ctx context.Context, limit int) ([]*domain.TradeOutcome, error) {
	// Select the most recent rows, then flip back to ascending order.
	query := `
		SELECT
			outcome_id, position_id, token_address, entry_signal,
			entry_price, exit_price, entry_liquidity,
			pnl, pnl_percent, hold_minutes,
			exit_reason, is_win, closed_at_ms
		FROM trade_outcomes
		ORDER BY closed_at_ms DESC, outcome_id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load trade outcomes: %w", err)
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

// scanOutcomes scans rows into TradeOutcomes.
func scanOutcomes(rows pgx.Rows) ([]*domain.TradeOutcome, error) {
	var outcomes []*domain.TradeOutcome

	for rows.Next() {
		var (
			o           domain.TradeOutcome
			entrySignal []byte
		)
		err := rows.Scan(
			&o.OutcomeID, &o.PositionID, &o.TokenAddress, &entrySignal,
			&o.EntryPrice, &o.ExitPrice, &o.EntryLiquidity,
			&o.PnL, &o.PnLPercent, &o.HoldMinutes,
			&o.ExitReason, &o.IsWin, &o.ClosedAtMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade outcome row: %w", err)
		}
		if len(entrySignal) > 0 {
			var sig domain.Signal
			if err := json.Unmarshal(entrySignal, &sig); err != nil {
				return nil, fmt.Errorf("unmarshal entry signal: %w", err)
			}
			o.EntrySignal = &sig
		}
		outcomes = append(outcomes, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade outcome rows: %w", err)
	}
	return outcomes, nil
}
